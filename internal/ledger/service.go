package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/keelhq/keelbooks/internal/shared/errors"
)

// Service is the posting engine: it turns business events into balanced,
// idempotently persisted journal entries. It performs no scheduling of its
// own — it is a synchronous library invoked under the caller's concurrency
// model, usually inside the caller's storage transaction.
type Service struct {
	repo Repository
}

// NewService creates a new posting engine
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Post records a balanced journal entry for a business event, exactly once.
//
// If an entry already exists for (tenant, source), Post is a no-op that
// returns the existing entry. Duplicates are absorbed rather than rejected
// because callers (retried webhooks, manual resyncs) cannot always tell
// whether a prior attempt succeeded.
//
// Unbalanced or malformed lines fail with an UNBALANCED_ENTRY or
// VALIDATION_ERROR AppError before anything is written.
func (s *Service) Post(
	ctx context.Context,
	tenantID uuid.UUID,
	source Source,
	memo string,
	lines []*JournalLine,
) (*JournalEntry, error) {
	entry := &JournalEntry{
		ID:       uuid.New(),
		TenantID: tenantID,
		Source:   source,
		Memo:     memo,
		Lines:    lines,
		PostedAt: time.Now().UTC(),
	}

	for _, line := range entry.Lines {
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		line.EntryID = entry.ID
	}

	if err := entry.Validate(); err != nil {
		if err == ErrEntryNotBalanced {
			return nil, apperrors.UnbalancedEntry(fmt.Sprintf(
				"entry for %s %s does not balance: debits=%s credits=%s",
				source.Type, source.ID, entry.DebitTotal(), entry.CreditTotal(),
			))
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid journal entry")
	}

	// The storage layer absorbs a concurrent insert for the same source
	// key; either way the canonical row is whatever the re-read returns.
	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return nil, apperrors.DatabaseError("failed to persist journal entry", err)
	}

	persisted, err := s.repo.GetEntryBySource(ctx, tenantID, source)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to read back journal entry", err)
	}

	return persisted, nil
}

// EntryForSource returns the journal entry posted for a business event,
// or ErrEntryNotFound if the event was never posted.
func (s *Service) EntryForSource(ctx context.Context, tenantID uuid.UUID, source Source) (*JournalEntry, error) {
	return s.repo.GetEntryBySource(ctx, tenantID, source)
}

// EntriesForTenant lists every journal entry for a tenant, oldest first.
// Used by the audit trail and the reconciliation checker.
func (s *Service) EntriesForTenant(ctx context.Context, tenantID uuid.UUID) ([]*JournalEntry, error) {
	return s.repo.ListEntries(ctx, tenantID)
}
