package credit

import "errors"

var (
	ErrMissingTenant  = errors.New("tenant ID is required")
	ErrMissingClient  = errors.New("client ID is required")
	ErrZeroDelta      = errors.New("credit delta cannot be zero")
	ErrInvalidReason  = errors.New("invalid credit reason")
	ErrMissingSource  = errors.New("credit entry source is required")
	ErrClientNotFound = errors.New("client not found")
)
