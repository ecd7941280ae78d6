package document

import (
	"context"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/pkg/money"
)

// Repository defines the interface for document persistence.
type Repository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*Document, error)
	// GetDocumentForUpdate loads the document under a row-level lock so a
	// concurrent writer cannot observe a stale lock state between the
	// guard check and the write. Only meaningful inside a transaction.
	GetDocumentForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*Document, error)
	UpdateDocument(ctx context.Context, doc *Document) error
	ListDocuments(ctx context.Context, tenantID uuid.UUID) ([]*Document, error)

	CreateLineItem(ctx context.Context, item *LineItem) error
	UpdateLineItem(ctx context.Context, item *LineItem) error

	// Transaction management
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}

// ActivitySource supplies the cross-module facts the lock guard and the
// balance recompute derive from: payments, credit applications and posted
// credit notes referencing a document. Implemented by the storage layer
// so the sums are always read from source records, never from caches.
type ActivitySource interface {
	DocumentActivity(ctx context.Context, tenantID, documentID uuid.UUID) (Activity, error)
	// SumNetPayments totals the AR-effective value of succeeded payments
	// referencing the document: ar_applied minus the AR share of refunds.
	// Overpayment excess belongs to the credit ledger, not the invoice.
	SumNetPayments(ctx context.Context, tenantID, documentID uuid.UUID) (money.Money, error)
	// SumCreditApplications totals credit applied to the document.
	SumCreditApplications(ctx context.Context, tenantID, documentID uuid.UUID) (money.Money, error)
	// SumCreditNoteReductions totals the AR-applied amounts of posted
	// credit notes referencing the document.
	SumCreditNoteReductions(ctx context.Context, tenantID, documentID uuid.UUID) (money.Money, error)
}
