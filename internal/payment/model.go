package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/pkg/money"
)

// Method is how the payment was made.
type Method string

const (
	MethodCard     Method = "card"
	MethodBank     Method = "bank_transfer"
	MethodCash     Method = "cash"
	MethodCheck    Method = "check"
	MethodExternal Method = "external"
)

// Status is the payment outcome. Only succeeded payments count toward a
// document's balance.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Payment records a gross amount received against an invoice, together
// with the split of its original journal allocation: ARApplied went to
// accounts receivable, CreditApplied was overpayment routed to the
// client credit ledger. RefundedAmount rolls up the payment's refunds
// and never exceeds Amount.
type Payment struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ClientID       uuid.UUID
	DocumentID     uuid.UUID
	Amount         money.Money
	RefundedAmount money.Money
	ARApplied      money.Money
	CreditApplied  money.Money
	Method         Method
	Status         Status
	ReceivedAt     time.Time
	CreatedAt      time.Time
}

// NetAmount is the payment's contribution to the document balance:
// amount minus cumulative refunds.
func (p *Payment) NetAmount() money.Money {
	return p.Amount - p.RefundedAmount
}

// Validate validates the payment
func (p *Payment) Validate() error {
	if p.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if p.DocumentID == uuid.Nil {
		return ErrMissingDocument
	}
	if !p.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if p.RefundedAmount.IsNegative() || p.RefundedAmount > p.Amount {
		return ErrRefundExceedsPayment
	}
	if p.ARApplied.IsNegative() || p.CreditApplied.IsNegative() {
		return ErrNegativeAllocation
	}
	if p.ARApplied+p.CreditApplied != p.Amount {
		return ErrAllocationMismatch
	}
	return nil
}

// Refund is an immutable record of one refund event against one payment,
// carrying the prorated reversal of the payment's AR/credit allocation.
// ARShare + CreditShare always equals Amount exactly.
type Refund struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	PaymentID   uuid.UUID
	Amount      money.Money
	ARShare     money.Money
	CreditShare money.Money
	CreatedAt   time.Time
}

// Validate validates the refund
func (r *Refund) Validate() error {
	if r.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if r.PaymentID == uuid.Nil {
		return ErrMissingPayment
	}
	if !r.Amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if r.ARShare.IsNegative() || r.CreditShare.IsNegative() {
		return ErrNegativeAllocation
	}
	if r.ARShare+r.CreditShare != r.Amount {
		return ErrAllocationMismatch
	}
	return nil
}
