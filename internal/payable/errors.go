package payable

import "errors"

var (
	ErrMissingTenant     = errors.New("tenant ID is required")
	ErrMissingVendor     = errors.New("vendor name is required")
	ErrMissingBill       = errors.New("bill ID is required")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidPaidAmount = errors.New("paid amount must be between zero and the bill amount")
	ErrBillNotFound      = errors.New("bill not found")
)
