package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keelhq/keelbooks/internal/creditnote"
	"github.com/keelhq/keelbooks/pkg/money"
)

// CreditNoteRepository implements credit note persistence using
// PostgreSQL.
type CreditNoteRepository struct {
	pool *pgxpool.Pool
}

// NewCreditNoteRepository creates a new PostgreSQL credit note repository
func NewCreditNoteRepository(pool *pgxpool.Pool) *CreditNoteRepository {
	return &CreditNoteRepository{pool: pool}
}

const creditNoteColumns = `id, tenant_id, client_id, document_id, kind, status, number,
	reason, tax_bps, subtotal, tax, total, posted_at, created_at, updated_at`

// CreateCreditNote creates a credit note with its lines.
func (r *CreditNoteRepository) CreateCreditNote(ctx context.Context, cn *creditnote.CreditNote) error {
	if err := cn.Validate(); err != nil {
		return fmt.Errorf("invalid credit note: %w", err)
	}

	query := `
		INSERT INTO credit_notes (` + creditNoteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, query,
		cn.ID,
		cn.TenantID,
		cn.ClientID,
		cn.DocumentID,
		string(cn.Kind),
		string(cn.Status),
		cn.Number,
		cn.Reason,
		cn.TaxBps,
		int64(cn.Subtotal),
		int64(cn.Tax),
		int64(cn.Total),
		cn.PostedAt,
		cn.CreatedAt,
		cn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create credit note: %w", err)
	}

	lineQuery := `
		INSERT INTO credit_note_lines (id, credit_note_id, description, quantity, unit_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, l := range cn.Lines {
		if _, err := q.Exec(ctx, lineQuery,
			l.ID,
			cn.ID,
			l.Description,
			l.Quantity,
			int64(l.UnitAmount),
			l.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create credit note line: %w", err)
		}
	}
	return nil
}

// GetCreditNote retrieves a credit note by ID with its lines.
func (r *CreditNoteRepository) GetCreditNote(ctx context.Context, tenantID, id uuid.UUID) (*creditnote.CreditNote, error) {
	return r.getCreditNote(ctx, tenantID, id, false)
}

// GetCreditNoteForUpdate retrieves a credit note under a row-level lock.
func (r *CreditNoteRepository) GetCreditNoteForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*creditnote.CreditNote, error) {
	return r.getCreditNote(ctx, tenantID, id, true)
}

func (r *CreditNoteRepository) getCreditNote(ctx context.Context, tenantID, id uuid.UUID, forUpdate bool) (*creditnote.CreditNote, error) {
	query := `
		SELECT ` + creditNoteColumns + `
		FROM credit_notes
		WHERE tenant_id = $1 AND id = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	q := getQueryer(ctx, r.pool)
	cn, err := r.scanCreditNote(q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, cn); err != nil {
		return nil, err
	}
	return cn, nil
}

// UpdateCreditNote persists a credit note's mutable fields.
func (r *CreditNoteRepository) UpdateCreditNote(ctx context.Context, cn *creditnote.CreditNote) error {
	query := `
		UPDATE credit_notes
		SET kind = $3, status = $4, number = $5, reason = $6, tax_bps = $7,
			subtotal = $8, tax = $9, total = $10, posted_at = $11, updated_at = $12
		WHERE tenant_id = $1 AND id = $2
	`
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, query,
		cn.TenantID,
		cn.ID,
		string(cn.Kind),
		string(cn.Status),
		cn.Number,
		cn.Reason,
		cn.TaxBps,
		int64(cn.Subtotal),
		int64(cn.Tax),
		int64(cn.Total),
		cn.PostedAt,
		cn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update credit note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return creditnote.ErrNotFound
	}
	return nil
}

// ListCreditNotes lists a tenant's credit notes newest first.
func (r *CreditNoteRepository) ListCreditNotes(ctx context.Context, tenantID uuid.UUID) ([]*creditnote.CreditNote, error) {
	query := `
		SELECT ` + creditNoteColumns + `
		FROM credit_notes
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	return r.listCreditNotes(ctx, query, tenantID)
}

// ListCreditNotesForDocument lists credit notes against one document.
func (r *CreditNoteRepository) ListCreditNotesForDocument(ctx context.Context, tenantID, documentID uuid.UUID) ([]*creditnote.CreditNote, error) {
	query := `
		SELECT ` + creditNoteColumns + `
		FROM credit_notes
		WHERE tenant_id = $1 AND document_id = $2
		ORDER BY created_at ASC
	`
	return r.listCreditNotes(ctx, query, tenantID, documentID)
}

func (r *CreditNoteRepository) listCreditNotes(ctx context.Context, query string, args ...any) ([]*creditnote.CreditNote, error) {
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit notes: %w", err)
	}
	defer rows.Close()

	var notes []*creditnote.CreditNote
	for rows.Next() {
		cn, err := r.scanCreditNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, cn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credit notes: %w", err)
	}

	for _, cn := range notes {
		if err := r.loadLines(ctx, cn); err != nil {
			return nil, err
		}
	}
	return notes, nil
}

// BeginTx starts a transaction and stores it in the context.
func (r *CreditNoteRepository) BeginTx(ctx context.Context) (context.Context, error) {
	return beginTx(ctx, r.pool)
}

// CommitTx commits the context's transaction.
func (r *CreditNoteRepository) CommitTx(ctx context.Context) error {
	return commitTx(ctx)
}

// RollbackTx rolls back the context's transaction.
func (r *CreditNoteRepository) RollbackTx(ctx context.Context) error {
	return rollbackTx(ctx)
}

func (r *CreditNoteRepository) scanCreditNote(row pgx.Row) (*creditnote.CreditNote, error) {
	var cn creditnote.CreditNote
	var kind, status string
	var subtotal, tax, total int64

	err := row.Scan(
		&cn.ID,
		&cn.TenantID,
		&cn.ClientID,
		&cn.DocumentID,
		&kind,
		&status,
		&cn.Number,
		&cn.Reason,
		&cn.TaxBps,
		&subtotal,
		&tax,
		&total,
		&cn.PostedAt,
		&cn.CreatedAt,
		&cn.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, creditnote.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan credit note: %w", err)
	}
	cn.Kind = creditnote.Kind(kind)
	cn.Status = creditnote.Status(status)
	cn.Subtotal = money.Money(subtotal)
	cn.Tax = money.Money(tax)
	cn.Total = money.Money(total)
	return &cn, nil
}

func (r *CreditNoteRepository) loadLines(ctx context.Context, cn *creditnote.CreditNote) error {
	query := `
		SELECT id, credit_note_id, description, quantity, unit_amount, created_at
		FROM credit_note_lines
		WHERE credit_note_id = $1
		ORDER BY created_at ASC, id ASC
	`
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, cn.ID)
	if err != nil {
		return fmt.Errorf("failed to query credit note lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l creditnote.Line
		var unitAmount int64

		if err := rows.Scan(
			&l.ID,
			&l.CreditNoteID,
			&l.Description,
			&l.Quantity,
			&unitAmount,
			&l.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan credit note line: %w", err)
		}
		l.UnitAmount = money.Money(unitAmount)
		cn.Lines = append(cn.Lines, &l)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating credit note lines: %w", err)
	}
	return nil
}

// NumberSequenceRepository implements the per-tenant monthly credit note
// counter. The counter row is upserted then incremented under a row
// lock, serializing concurrent posts for the same (tenant, period).
type NumberSequenceRepository struct {
	pool *pgxpool.Pool
}

// NewNumberSequenceRepository creates a new PostgreSQL number sequence
func NewNumberSequenceRepository(pool *pgxpool.Pool) *NumberSequenceRepository {
	return &NumberSequenceRepository{pool: pool}
}

// Next returns the next sequence value for the tenant and period.
// Values consumed by transactions that later roll back leave gaps.
func (r *NumberSequenceRepository) Next(ctx context.Context, tenantID uuid.UUID, period string) (int64, error) {
	query := `
		INSERT INTO credit_note_sequences (tenant_id, period, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, period)
		DO UPDATE SET value = credit_note_sequences.value + 1
		RETURNING value
	`
	var value int64
	q := getQueryer(ctx, r.pool)
	if err := q.QueryRow(ctx, query, tenantID, period).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to advance credit note sequence: %w", err)
	}
	return value, nil
}
