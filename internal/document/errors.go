package document

import "errors"

// Model errors
var (
	ErrMissingTenant    = errors.New("tenant ID is required")
	ErrMissingClient    = errors.New("client ID is required")
	ErrInvalidKind      = errors.New("invalid document kind")
	ErrInvalidStatus    = errors.New("invalid document status")
	ErrNegativeTaxRate  = errors.New("tax rate cannot be negative")
	ErrEmptyDescription = errors.New("line item description is required")
	ErrInvalidQuantity  = errors.New("line item quantity must be positive")
	ErrNegativeAmount   = errors.New("unit amount cannot be negative")
)

// Lifecycle errors
var (
	ErrNotFound         = errors.New("document not found")
	ErrLineItemNotFound = errors.New("line item not found")
)
