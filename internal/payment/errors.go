package payment

import "errors"

var (
	ErrMissingTenant        = errors.New("tenant ID is required")
	ErrMissingDocument      = errors.New("document ID is required")
	ErrMissingPayment       = errors.New("payment ID is required")
	ErrNonPositiveAmount    = errors.New("amount must be positive")
	ErrNegativeAllocation   = errors.New("allocation shares cannot be negative")
	ErrAllocationMismatch   = errors.New("allocation shares do not sum to the amount")
	ErrRefundExceedsPayment = errors.New("refunded amount exceeds payment amount")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrRefundNotFound       = errors.New("refund not found")
)
