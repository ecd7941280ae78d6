package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for journal persistence.
//
// Implementations must enforce two contracts:
//   - a uniqueness constraint on (tenant_id, source_type, source_id),
//     applied at the storage layer, never as check-then-insert;
//   - append-only entries and lines: no update or delete path exists.
type Repository interface {
	// CreateEntry persists an entry and its lines as one atomic unit.
	// A concurrent or repeated insert for the same source key is absorbed
	// silently: the entry row is simply not written and no error is
	// returned. Callers re-read the canonical row via GetEntryBySource.
	CreateEntry(ctx context.Context, entry *JournalEntry) error

	GetEntry(ctx context.Context, tenantID, id uuid.UUID) (*JournalEntry, error)
	GetEntryBySource(ctx context.Context, tenantID uuid.UUID, source Source) (*JournalEntry, error)
	ListEntries(ctx context.Context, tenantID uuid.UUID) ([]*JournalEntry, error)
}
