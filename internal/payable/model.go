package payable

import (
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/pkg/money"
)

// Status of a bill.
type Status string

const (
	StatusOpen          Status = "open"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
)

// Bill is a vendor obligation. Recording a bill posts the expense and
// the matching accounts payable liability; payments against it draw the
// liability down.
type Bill struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	VendorName string
	Reference  string
	Amount     money.Money
	PaidAmount money.Money
	Status     Status
	DueAt      *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Outstanding returns the unpaid remainder of the bill.
func (b *Bill) Outstanding() money.Money {
	return b.Amount - b.PaidAmount
}

// Validate checks bill fields.
func (b *Bill) Validate() error {
	if b.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if b.VendorName == "" {
		return ErrMissingVendor
	}
	if !b.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if b.PaidAmount.IsNegative() || b.PaidAmount > b.Amount {
		return ErrInvalidPaidAmount
	}
	return nil
}

// BillPayment is one payment made against a bill.
type BillPayment struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	BillID    uuid.UUID
	Amount    money.Money
	PaidAt    time.Time
	CreatedAt time.Time
}

// Validate checks bill payment fields.
func (p *BillPayment) Validate() error {
	if p.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if p.BillID == uuid.Nil {
		return ErrMissingBill
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
