package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keelhq/keelbooks/internal/payable"
	"github.com/keelhq/keelbooks/pkg/money"
)

// PayableRepository implements bill persistence using PostgreSQL.
type PayableRepository struct {
	pool *pgxpool.Pool
}

// NewPayableRepository creates a new PostgreSQL payable repository
func NewPayableRepository(pool *pgxpool.Pool) *PayableRepository {
	return &PayableRepository{pool: pool}
}

const billColumns = `id, tenant_id, vendor_name, reference, amount, paid_amount, status, due_at, created_at, updated_at`

// CreateBill creates a bill.
func (r *PayableRepository) CreateBill(ctx context.Context, bill *payable.Bill) error {
	if err := bill.Validate(); err != nil {
		return fmt.Errorf("invalid bill: %w", err)
	}

	query := `
		INSERT INTO bills (` + billColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, query,
		bill.ID,
		bill.TenantID,
		bill.VendorName,
		bill.Reference,
		int64(bill.Amount),
		int64(bill.PaidAmount),
		string(bill.Status),
		bill.DueAt,
		bill.CreatedAt,
		bill.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bill: %w", err)
	}
	return nil
}

// GetBill retrieves a bill by ID.
func (r *PayableRepository) GetBill(ctx context.Context, tenantID, id uuid.UUID) (*payable.Bill, error) {
	return r.getBill(ctx, tenantID, id, false)
}

// GetBillForUpdate retrieves a bill under a row-level lock.
func (r *PayableRepository) GetBillForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*payable.Bill, error) {
	return r.getBill(ctx, tenantID, id, true)
}

func (r *PayableRepository) getBill(ctx context.Context, tenantID, id uuid.UUID, forUpdate bool) (*payable.Bill, error) {
	query := `
		SELECT ` + billColumns + `
		FROM bills
		WHERE tenant_id = $1 AND id = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	q := getQueryer(ctx, r.pool)
	return r.scanBill(q.QueryRow(ctx, query, tenantID, id))
}

// UpdateBill persists a bill's mutable fields.
func (r *PayableRepository) UpdateBill(ctx context.Context, bill *payable.Bill) error {
	query := `
		UPDATE bills
		SET paid_amount = $3, status = $4, updated_at = $5
		WHERE tenant_id = $1 AND id = $2
	`
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, query,
		bill.TenantID,
		bill.ID,
		int64(bill.PaidAmount),
		string(bill.Status),
		bill.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payable.ErrBillNotFound
	}
	return nil
}

// ListBills lists a tenant's bills newest first.
func (r *PayableRepository) ListBills(ctx context.Context, tenantID uuid.UUID) ([]*payable.Bill, error) {
	query := `
		SELECT ` + billColumns + `
		FROM bills
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	var bills []*payable.Bill
	for rows.Next() {
		bill, err := r.scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bills: %w", err)
	}
	return bills, nil
}

// CreateBillPayment records a payment against a bill.
func (r *PayableRepository) CreateBillPayment(ctx context.Context, p *payable.BillPayment) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid bill payment: %w", err)
	}

	query := `
		INSERT INTO bill_payments (id, tenant_id, bill_id, amount, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, query,
		p.ID,
		p.TenantID,
		p.BillID,
		int64(p.Amount),
		p.PaidAt,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bill payment: %w", err)
	}
	return nil
}

// ListBillPayments lists payments against one bill oldest first.
func (r *PayableRepository) ListBillPayments(ctx context.Context, tenantID, billID uuid.UUID) ([]*payable.BillPayment, error) {
	query := `
		SELECT id, tenant_id, bill_id, amount, paid_at, created_at
		FROM bill_payments
		WHERE tenant_id = $1 AND bill_id = $2
		ORDER BY paid_at ASC, id ASC
	`
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, tenantID, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bill payments: %w", err)
	}
	defer rows.Close()

	var payments []*payable.BillPayment
	for rows.Next() {
		var p payable.BillPayment
		var amount int64

		if err := rows.Scan(
			&p.ID,
			&p.TenantID,
			&p.BillID,
			&amount,
			&p.PaidAt,
			&p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bill payment: %w", err)
		}
		p.Amount = money.Money(amount)
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bill payments: %w", err)
	}
	return payments, nil
}

// BeginTx starts a transaction and stores it in the context.
func (r *PayableRepository) BeginTx(ctx context.Context) (context.Context, error) {
	return beginTx(ctx, r.pool)
}

// CommitTx commits the context's transaction.
func (r *PayableRepository) CommitTx(ctx context.Context) error {
	return commitTx(ctx)
}

// RollbackTx rolls back the context's transaction.
func (r *PayableRepository) RollbackTx(ctx context.Context) error {
	return rollbackTx(ctx)
}

func (r *PayableRepository) scanBill(row pgx.Row) (*payable.Bill, error) {
	var bill payable.Bill
	var amount, paidAmount int64
	var status string

	err := row.Scan(
		&bill.ID,
		&bill.TenantID,
		&bill.VendorName,
		&bill.Reference,
		&amount,
		&paidAmount,
		&status,
		&bill.DueAt,
		&bill.CreatedAt,
		&bill.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, payable.ErrBillNotFound
		}
		return nil, fmt.Errorf("failed to scan bill: %w", err)
	}
	bill.Amount = money.Money(amount)
	bill.PaidAmount = money.Money(paidAmount)
	bill.Status = payable.Status(status)
	return &bill, nil
}
