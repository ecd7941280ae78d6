package creditnote

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for credit notes.
type Repository interface {
	CreateCreditNote(ctx context.Context, cn *CreditNote) error
	GetCreditNote(ctx context.Context, tenantID, id uuid.UUID) (*CreditNote, error)
	GetCreditNoteForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*CreditNote, error)
	UpdateCreditNote(ctx context.Context, cn *CreditNote) error
	ListCreditNotes(ctx context.Context, tenantID uuid.UUID) ([]*CreditNote, error)
	ListCreditNotesForDocument(ctx context.Context, tenantID, documentID uuid.UUID) ([]*CreditNote, error)

	// Transaction support
	BeginTx(ctx context.Context) (context.Context, error)
	CommitTx(ctx context.Context) error
	RollbackTx(ctx context.Context) error
}

// NumberSequence hands out the next value of a tenant's monthly credit
// note counter. Implementations must serialize concurrent callers for
// the same (tenant, period) so no two posted notes share a number;
// values consumed by transactions that later roll back leave gaps,
// which is acceptable.
type NumberSequence interface {
	Next(ctx context.Context, tenantID uuid.UUID, period string) (int64, error)
}
