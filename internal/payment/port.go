package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for payment persistence. Refund rows
// are append-only; the only mutable payment field is the refunded_amount
// rollup, updated under a row lock.
type Repository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)
	// GetPaymentForUpdate row-locks the payment so concurrent refunds
	// against the same payment serialize.
	GetPaymentForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error)
	// UpdateRefundedAmount is the single mutable write on a payment row.
	UpdateRefundedAmount(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, tenantID uuid.UUID) ([]*Payment, error)

	CreateRefund(ctx context.Context, r *Refund) error
	GetRefund(ctx context.Context, tenantID, id uuid.UUID) (*Refund, error)
	ListRefunds(ctx context.Context, tenantID uuid.UUID) ([]*Refund, error)
	ListRefundsForPayment(ctx context.Context, tenantID, paymentID uuid.UUID) ([]*Refund, error)

	// Transaction management
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}
