package payable

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for bills and their payments.
type Repository interface {
	CreateBill(ctx context.Context, bill *Bill) error
	GetBill(ctx context.Context, tenantID, id uuid.UUID) (*Bill, error)
	GetBillForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Bill, error)
	UpdateBill(ctx context.Context, bill *Bill) error
	ListBills(ctx context.Context, tenantID uuid.UUID) ([]*Bill, error)
	CreateBillPayment(ctx context.Context, payment *BillPayment) error
	ListBillPayments(ctx context.Context, tenantID, billID uuid.UUID) ([]*BillPayment, error)

	// Transaction support
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}
