package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keelhq/keelbooks/internal/document"
	"github.com/keelhq/keelbooks/pkg/money"
)

// DocumentRepository implements document persistence using PostgreSQL.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository creates a new PostgreSQL document repository
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

const documentColumns = `id, tenant_id, client_id, project_id, kind, number, status,
	issue_date, due_date, tax_bps, subtotal, tax, total, balance_due, created_at, updated_at`

// CreateDocument creates a document with its line items.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *document.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid document: %w", err)
	}

	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, query,
		doc.ID,
		doc.TenantID,
		doc.ClientID,
		doc.ProjectID,
		string(doc.Kind),
		doc.Number,
		string(doc.Status),
		doc.IssueDate,
		doc.DueDate,
		doc.TaxBps,
		int64(doc.Subtotal),
		int64(doc.Tax),
		int64(doc.Total),
		int64(doc.BalanceDue),
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	for _, li := range doc.LineItems {
		if err := r.CreateLineItem(ctx, li); err != nil {
			return err
		}
	}
	return nil
}

// GetDocument retrieves a document by ID with its line items.
func (r *DocumentRepository) GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*document.Document, error) {
	return r.getDocument(ctx, tenantID, id, false)
}

// GetDocumentForUpdate retrieves a document under a row-level lock.
func (r *DocumentRepository) GetDocumentForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*document.Document, error) {
	return r.getDocument(ctx, tenantID, id, true)
}

func (r *DocumentRepository) getDocument(ctx context.Context, tenantID, id uuid.UUID, forUpdate bool) (*document.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1 AND id = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	q := getQueryer(ctx, r.pool)
	doc, err := r.scanDocument(q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadLineItems(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDocument persists a document's mutable fields.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, doc *document.Document) error {
	query := `
		UPDATE documents
		SET client_id = $3, project_id = $4, status = $5, issue_date = $6, due_date = $7,
			tax_bps = $8, subtotal = $9, tax = $10, total = $11, balance_due = $12, updated_at = $13
		WHERE tenant_id = $1 AND id = $2
	`
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, query,
		doc.TenantID,
		doc.ID,
		doc.ClientID,
		doc.ProjectID,
		string(doc.Status),
		doc.IssueDate,
		doc.DueDate,
		doc.TaxBps,
		int64(doc.Subtotal),
		int64(doc.Tax),
		int64(doc.Total),
		int64(doc.BalanceDue),
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return document.ErrNotFound
	}
	return nil
}

// ListDocuments lists a tenant's documents newest first, with line items.
func (r *DocumentRepository) ListDocuments(ctx context.Context, tenantID uuid.UUID) ([]*document.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []*document.Document
	for rows.Next() {
		doc, err := r.scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	for _, doc := range docs {
		if err := r.loadLineItems(ctx, doc); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// CreateLineItem creates a line item.
func (r *DocumentRepository) CreateLineItem(ctx context.Context, li *document.LineItem) error {
	if err := li.Validate(); err != nil {
		return fmt.Errorf("invalid line item: %w", err)
	}

	query := `
		INSERT INTO document_line_items (id, document_id, description, quantity, unit_amount, amount, position, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, query,
		li.ID,
		li.DocumentID,
		li.Description,
		li.Quantity,
		int64(li.UnitAmount),
		int64(li.Amount),
		li.Position,
		li.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create line item: %w", err)
	}
	return nil
}

// UpdateLineItem persists a line item's mutable fields, including the
// soft-delete tombstone.
func (r *DocumentRepository) UpdateLineItem(ctx context.Context, li *document.LineItem) error {
	query := `
		UPDATE document_line_items
		SET description = $2, quantity = $3, unit_amount = $4, amount = $5, position = $6, deleted_at = $7
		WHERE id = $1
	`
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, query,
		li.ID,
		li.Description,
		li.Quantity,
		int64(li.UnitAmount),
		int64(li.Amount),
		li.Position,
		li.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update line item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return document.ErrLineItemNotFound
	}
	return nil
}

// BeginTx starts a transaction and stores it in the context.
func (r *DocumentRepository) BeginTx(ctx context.Context) (context.Context, error) {
	return beginTx(ctx, r.pool)
}

// CommitTx commits the context's transaction.
func (r *DocumentRepository) CommitTx(ctx context.Context) error {
	return commitTx(ctx)
}

// RollbackTx rolls back the context's transaction.
func (r *DocumentRepository) RollbackTx(ctx context.Context) error {
	return rollbackTx(ctx)
}

func (r *DocumentRepository) scanDocument(row pgx.Row) (*document.Document, error) {
	var doc document.Document
	var kind, status string
	var subtotal, tax, total, balanceDue int64

	err := row.Scan(
		&doc.ID,
		&doc.TenantID,
		&doc.ClientID,
		&doc.ProjectID,
		&kind,
		&doc.Number,
		&status,
		&doc.IssueDate,
		&doc.DueDate,
		&doc.TaxBps,
		&subtotal,
		&tax,
		&total,
		&balanceDue,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, document.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.Kind = document.Kind(kind)
	doc.Status = document.Status(status)
	doc.Subtotal = money.Money(subtotal)
	doc.Tax = money.Money(tax)
	doc.Total = money.Money(total)
	doc.BalanceDue = money.Money(balanceDue)
	return &doc, nil
}

func (r *DocumentRepository) loadLineItems(ctx context.Context, doc *document.Document) error {
	query := `
		SELECT id, document_id, description, quantity, unit_amount, amount, position, deleted_at
		FROM document_line_items
		WHERE document_id = $1
		ORDER BY position ASC
	`
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to query line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var li document.LineItem
		var unitAmount, amount int64

		if err := rows.Scan(
			&li.ID,
			&li.DocumentID,
			&li.Description,
			&li.Quantity,
			&unitAmount,
			&amount,
			&li.Position,
			&li.DeletedAt,
		); err != nil {
			return fmt.Errorf("failed to scan line item: %w", err)
		}
		li.UnitAmount = money.Money(unitAmount)
		li.Amount = money.Money(amount)
		doc.LineItems = append(doc.LineItems, &li)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating line items: %w", err)
	}
	return nil
}
