package ledger

import "errors"

// Source errors
var (
	ErrInvalidSourceType = errors.New("invalid source type")
	ErrMissingSourceID   = errors.New("source ID is required")
	ErrMissingTenant     = errors.New("tenant ID is required")
)

// Line errors
var (
	ErrInvalidDirection = errors.New("invalid debit/credit direction")
	ErrInvalidAccount   = errors.New("invalid account code")
	ErrNegativeAmount   = errors.New("line amount cannot be negative")
)

// Entry errors
var (
	ErrNoLines          = errors.New("entry has no lines")
	ErrEntryNotBalanced = errors.New("entry debits and credits do not balance")
	ErrEntryNotFound    = errors.New("journal entry not found")
)
