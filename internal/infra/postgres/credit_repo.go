package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keelhq/keelbooks/internal/credit"
	"github.com/keelhq/keelbooks/pkg/money"
)

// CreditRepository implements the credit ledger using PostgreSQL.
// Entries and applications are insert-only tables; the client row's
// credit_balance column is the cached rollup.
type CreditRepository struct {
	pool *pgxpool.Pool
}

// NewCreditRepository creates a new PostgreSQL credit repository
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepository {
	return &CreditRepository{pool: pool}
}

// CreateClient creates a client.
func (r *CreditRepository) CreateClient(ctx context.Context, client *credit.Client) error {
	query := `
		INSERT INTO clients (id, tenant_id, name, credit_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, query,
		client.ID,
		client.TenantID,
		client.Name,
		int64(client.CreditBalance),
		client.CreatedAt,
		client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by ID.
func (r *CreditRepository) GetClient(ctx context.Context, tenantID, id uuid.UUID) (*credit.Client, error) {
	return r.getClient(ctx, tenantID, id, false)
}

// GetClientForUpdate retrieves a client under a row-level lock.
func (r *CreditRepository) GetClientForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*credit.Client, error) {
	return r.getClient(ctx, tenantID, id, true)
}

func (r *CreditRepository) getClient(ctx context.Context, tenantID, id uuid.UUID, forUpdate bool) (*credit.Client, error) {
	query := `
		SELECT id, tenant_id, name, credit_balance, created_at, updated_at
		FROM clients
		WHERE tenant_id = $1 AND id = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	q := getQueryer(ctx, r.pool)
	return r.scanClient(q.QueryRow(ctx, query, tenantID, id))
}

// ListClients lists a tenant's clients by name.
func (r *CreditRepository) ListClients(ctx context.Context, tenantID uuid.UUID) ([]*credit.Client, error) {
	query := `
		SELECT id, tenant_id, name, credit_balance, created_at, updated_at
		FROM clients
		WHERE tenant_id = $1
		ORDER BY name ASC
	`
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []*credit.Client
	for rows.Next() {
		client, err := r.scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}
	return clients, nil
}

// UpdateClientCreditRollup writes the cached balance.
func (r *CreditRepository) UpdateClientCreditRollup(ctx context.Context, tenantID, clientID uuid.UUID, balance money.Money) error {
	query := `
		UPDATE clients
		SET credit_balance = $3, updated_at = $4
		WHERE tenant_id = $1 AND id = $2
	`
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, query, tenantID, clientID, int64(balance), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update credit rollup: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return credit.ErrClientNotFound
	}
	return nil
}

// AppendEntry appends a credit ledger entry.
func (r *CreditRepository) AppendEntry(ctx context.Context, entry *credit.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid credit entry: %w", err)
	}

	query := `
		INSERT INTO credit_entries (id, tenant_id, client_id, amount, reason, source_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.ClientID,
		int64(entry.Amount),
		string(entry.Reason),
		entry.SourceID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append credit entry: %w", err)
	}
	return nil
}

// ListEntries lists a client's credit entries oldest first.
func (r *CreditRepository) ListEntries(ctx context.Context, tenantID, clientID uuid.UUID) ([]*credit.LedgerEntry, error) {
	query := `
		SELECT id, tenant_id, client_id, amount, reason, source_id, created_at
		FROM credit_entries
		WHERE tenant_id = $1 AND client_id = $2
		ORDER BY created_at ASC, id ASC
	`
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, tenantID, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit entries: %w", err)
	}
	defer rows.Close()

	var entries []*credit.LedgerEntry
	for rows.Next() {
		var entry credit.LedgerEntry
		var amount int64
		var reason string

		if err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.ClientID,
			&amount,
			&reason,
			&entry.SourceID,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan credit entry: %w", err)
		}
		entry.Amount = money.Money(amount)
		entry.Reason = credit.Reason(reason)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credit entries: %w", err)
	}
	return entries, nil
}

// SumEntries computes the authoritative balance from the ledger.
func (r *CreditRepository) SumEntries(ctx context.Context, tenantID, clientID uuid.UUID) (money.Money, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM credit_entries
		WHERE tenant_id = $1 AND client_id = $2
	`
	var total int64
	q := getQueryer(ctx, r.pool)
	if err := q.QueryRow(ctx, query, tenantID, clientID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum credit entries: %w", err)
	}
	return money.Money(total), nil
}

// CreateApplication records a credit application.
func (r *CreditRepository) CreateApplication(ctx context.Context, app *credit.Application) error {
	query := `
		INSERT INTO credit_applications (id, tenant_id, client_id, document_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, query,
		app.ID,
		app.TenantID,
		app.ClientID,
		app.DocumentID,
		int64(app.Amount),
		app.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create credit application: %w", err)
	}
	return nil
}

// ListApplications lists a tenant's credit applications oldest first.
func (r *CreditRepository) ListApplications(ctx context.Context, tenantID uuid.UUID) ([]*credit.Application, error) {
	query := `
		SELECT id, tenant_id, client_id, document_id, amount, created_at
		FROM credit_applications
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
	`
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit applications: %w", err)
	}
	defer rows.Close()

	var apps []*credit.Application
	for rows.Next() {
		var app credit.Application
		var amount int64

		if err := rows.Scan(
			&app.ID,
			&app.TenantID,
			&app.ClientID,
			&app.DocumentID,
			&amount,
			&app.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan credit application: %w", err)
		}
		app.Amount = money.Money(amount)
		apps = append(apps, &app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credit applications: %w", err)
	}
	return apps, nil
}

// BeginTx starts a transaction and stores it in the context.
func (r *CreditRepository) BeginTx(ctx context.Context) (context.Context, error) {
	return beginTx(ctx, r.pool)
}

// CommitTx commits the context's transaction.
func (r *CreditRepository) CommitTx(ctx context.Context) error {
	return commitTx(ctx)
}

// RollbackTx rolls back the context's transaction.
func (r *CreditRepository) RollbackTx(ctx context.Context) error {
	return rollbackTx(ctx)
}

func (r *CreditRepository) scanClient(row pgx.Row) (*credit.Client, error) {
	var client credit.Client
	var balance int64

	err := row.Scan(
		&client.ID,
		&client.TenantID,
		&client.Name,
		&balance,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, credit.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to scan client: %w", err)
	}
	client.CreditBalance = money.Money(balance)
	return &client, nil
}
