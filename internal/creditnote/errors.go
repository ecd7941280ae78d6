package creditnote

import "errors"

var (
	ErrMissingTenant    = errors.New("tenant ID is required")
	ErrMissingClient    = errors.New("client ID is required")
	ErrMissingDocument  = errors.New("document ID is required")
	ErrInvalidKind      = errors.New("invalid credit note kind")
	ErrNegativeTaxRate  = errors.New("tax rate cannot be negative")
	ErrEmptyDescription = errors.New("line description cannot be empty")
	ErrInvalidQuantity  = errors.New("line quantity must be positive")
	ErrNegativeAmount   = errors.New("line amount cannot be negative")
	ErrNotFound         = errors.New("credit note not found")
)
