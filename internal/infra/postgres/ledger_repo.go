package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keelhq/keelbooks/internal/ledger"
	"github.com/keelhq/keelbooks/pkg/money"
)

// LedgerRepository implements the journal repository using PostgreSQL.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL journal repository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// CreateEntry persists an entry and its lines. The unique index on
// (tenant_id, source_type, source_id) is the idempotency guarantee:
// INSERT ... ON CONFLICT DO NOTHING absorbs a concurrent or repeated
// post, and when the entry row is not written the lines are not written
// either. Callers re-read the canonical row via GetEntryBySource.
func (r *LedgerRepository) CreateEntry(ctx context.Context, entry *ledger.JournalEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}

	entryQuery := `
		INSERT INTO journal_entries (id, tenant_id, source_type, source_id, memo, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, source_type, source_id) DO NOTHING
	`

	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, entryQuery,
		entry.ID,
		entry.TenantID,
		string(entry.Source.Type),
		entry.Source.ID,
		entry.Memo,
		entry.PostedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Another post for this source key won; nothing to write.
		return nil
	}

	lineQuery := `
		INSERT INTO journal_lines (id, entry_id, account, direction, amount)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, line := range entry.Lines {
		if _, err := q.Exec(ctx, lineQuery,
			line.ID,
			entry.ID,
			string(line.Account),
			string(line.Direction),
			int64(line.Amount),
		); err != nil {
			return fmt.Errorf("failed to insert line: %w", err)
		}
	}
	return nil
}

// GetEntry retrieves an entry by ID with its lines.
func (r *LedgerRepository) GetEntry(ctx context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error) {
	query := `
		SELECT id, tenant_id, source_type, source_id, memo, posted_at
		FROM journal_entries
		WHERE tenant_id = $1 AND id = $2
	`
	q := getQueryer(ctx, r.pool)
	entry, err := r.scanEntry(q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// GetEntryBySource retrieves the canonical entry for a source key.
func (r *LedgerRepository) GetEntryBySource(ctx context.Context, tenantID uuid.UUID, source ledger.Source) (*ledger.JournalEntry, error) {
	query := `
		SELECT id, tenant_id, source_type, source_id, memo, posted_at
		FROM journal_entries
		WHERE tenant_id = $1 AND source_type = $2 AND source_id = $3
	`
	q := getQueryer(ctx, r.pool)
	entry, err := r.scanEntry(q.QueryRow(ctx, query, tenantID, string(source.Type), source.ID))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListEntries lists a tenant's entries oldest first, with lines.
func (r *LedgerRepository) ListEntries(ctx context.Context, tenantID uuid.UUID) ([]*ledger.JournalEntry, error) {
	query := `
		SELECT id, tenant_id, source_type, source_id, memo, posted_at
		FROM journal_entries
		WHERE tenant_id = $1
		ORDER BY posted_at ASC, id ASC
	`
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.JournalEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	for _, entry := range entries {
		if err := r.loadLines(ctx, entry); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// scanEntry scans a single entry header from a row.
func (r *LedgerRepository) scanEntry(row pgx.Row) (*ledger.JournalEntry, error) {
	var entry ledger.JournalEntry
	var sourceType string

	err := row.Scan(
		&entry.ID,
		&entry.TenantID,
		&sourceType,
		&entry.Source.ID,
		&entry.Memo,
		&entry.PostedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to scan entry: %w", err)
	}
	entry.Source.Type = ledger.SourceType(sourceType)
	return &entry, nil
}

// loadLines loads an entry's lines in insertion order.
func (r *LedgerRepository) loadLines(ctx context.Context, entry *ledger.JournalEntry) error {
	query := `
		SELECT id, entry_id, account, direction, amount
		FROM journal_lines
		WHERE entry_id = $1
		ORDER BY id ASC
	`
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line ledger.JournalLine
		var account, direction string
		var amount int64

		if err := rows.Scan(&line.ID, &line.EntryID, &account, &direction, &amount); err != nil {
			return fmt.Errorf("failed to scan line: %w", err)
		}
		line.Account = ledger.Account(account)
		line.Direction = ledger.Direction(direction)
		line.Amount = money.Money(amount)
		entry.Lines = append(entry.Lines, &line)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating lines: %w", err)
	}
	return nil
}
