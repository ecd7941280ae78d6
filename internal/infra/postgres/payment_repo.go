package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keelhq/keelbooks/internal/payment"
	"github.com/keelhq/keelbooks/pkg/money"
)

// PaymentRepository implements payment persistence using PostgreSQL.
// Refund rows are insert-only; refunded_amount on the payment row is the
// only mutable field and is updated under the payment's row lock.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PostgreSQL payment repository
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

const paymentColumns = `id, tenant_id, client_id, document_id, amount, refunded_amount,
	ar_applied, credit_applied, method, status, received_at, created_at`

// CreatePayment creates a payment.
func (r *PaymentRepository) CreatePayment(ctx context.Context, p *payment.Payment) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid payment: %w", err)
	}

	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, query,
		p.ID,
		p.TenantID,
		p.ClientID,
		p.DocumentID,
		int64(p.Amount),
		int64(p.RefundedAmount),
		int64(p.ARApplied),
		int64(p.CreditApplied),
		string(p.Method),
		string(p.Status),
		p.ReceivedAt,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by ID.
func (r *PaymentRepository) GetPayment(ctx context.Context, tenantID, id uuid.UUID) (*payment.Payment, error) {
	return r.getPayment(ctx, tenantID, id, false)
}

// GetPaymentForUpdate retrieves a payment under a row-level lock.
func (r *PaymentRepository) GetPaymentForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*payment.Payment, error) {
	return r.getPayment(ctx, tenantID, id, true)
}

func (r *PaymentRepository) getPayment(ctx context.Context, tenantID, id uuid.UUID, forUpdate bool) (*payment.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE tenant_id = $1 AND id = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}
	q := getQueryer(ctx, r.pool)
	return r.scanPayment(q.QueryRow(ctx, query, tenantID, id))
}

// UpdateRefundedAmount writes the payment's refund rollup.
func (r *PaymentRepository) UpdateRefundedAmount(ctx context.Context, p *payment.Payment) error {
	query := `
		UPDATE payments
		SET refunded_amount = $3
		WHERE tenant_id = $1 AND id = $2
	`
	q := getQueryer(ctx, r.pool)
	tag, err := q.Exec(ctx, query, p.TenantID, p.ID, int64(p.RefundedAmount))
	if err != nil {
		return fmt.Errorf("failed to update refunded amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrPaymentNotFound
	}
	return nil
}

// ListPayments lists a tenant's payments newest first.
func (r *PaymentRepository) ListPayments(ctx context.Context, tenantID uuid.UUID) ([]*payment.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE tenant_id = $1
		ORDER BY received_at DESC, id ASC
	`
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

// CreateRefund records a refund row.
func (r *PaymentRepository) CreateRefund(ctx context.Context, refund *payment.Refund) error {
	if err := refund.Validate(); err != nil {
		return fmt.Errorf("invalid refund: %w", err)
	}

	query := `
		INSERT INTO payment_refunds (id, tenant_id, payment_id, amount, ar_share, credit_share, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	q := getQueryer(ctx, r.pool)
	_, err := q.Exec(ctx, query,
		refund.ID,
		refund.TenantID,
		refund.PaymentID,
		int64(refund.Amount),
		int64(refund.ARShare),
		int64(refund.CreditShare),
		refund.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}
	return nil
}

// GetRefund retrieves a refund by its event identity.
func (r *PaymentRepository) GetRefund(ctx context.Context, tenantID, id uuid.UUID) (*payment.Refund, error) {
	query := `
		SELECT id, tenant_id, payment_id, amount, ar_share, credit_share, created_at
		FROM payment_refunds
		WHERE tenant_id = $1 AND id = $2
	`
	q := getQueryer(ctx, r.pool)
	return r.scanRefund(q.QueryRow(ctx, query, tenantID, id))
}

// ListRefunds lists a tenant's refunds oldest first.
func (r *PaymentRepository) ListRefunds(ctx context.Context, tenantID uuid.UUID) ([]*payment.Refund, error) {
	query := `
		SELECT id, tenant_id, payment_id, amount, ar_share, credit_share, created_at
		FROM payment_refunds
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
	`
	return r.listRefunds(ctx, query, tenantID)
}

// ListRefundsForPayment lists refunds against one payment oldest first.
func (r *PaymentRepository) ListRefundsForPayment(ctx context.Context, tenantID, paymentID uuid.UUID) ([]*payment.Refund, error) {
	query := `
		SELECT id, tenant_id, payment_id, amount, ar_share, credit_share, created_at
		FROM payment_refunds
		WHERE tenant_id = $1 AND payment_id = $2
		ORDER BY created_at ASC, id ASC
	`
	return r.listRefunds(ctx, query, tenantID, paymentID)
}

func (r *PaymentRepository) listRefunds(ctx context.Context, query string, args ...any) ([]*payment.Refund, error) {
	q := getQueryer(ctx, r.pool)
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query refunds: %w", err)
	}
	defer rows.Close()

	var refunds []*payment.Refund
	for rows.Next() {
		refund, err := r.scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, refund)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refunds: %w", err)
	}
	return refunds, nil
}

// BeginTx starts a transaction and stores it in the context.
func (r *PaymentRepository) BeginTx(ctx context.Context) (context.Context, error) {
	return beginTx(ctx, r.pool)
}

// CommitTx commits the context's transaction.
func (r *PaymentRepository) CommitTx(ctx context.Context) error {
	return commitTx(ctx)
}

// RollbackTx rolls back the context's transaction.
func (r *PaymentRepository) RollbackTx(ctx context.Context) error {
	return rollbackTx(ctx)
}

func (r *PaymentRepository) scanPayment(row pgx.Row) (*payment.Payment, error) {
	var p payment.Payment
	var amount, refunded, arApplied, creditApplied int64
	var method, status string

	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.ClientID,
		&p.DocumentID,
		&amount,
		&refunded,
		&arApplied,
		&creditApplied,
		&method,
		&status,
		&p.ReceivedAt,
		&p.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	p.Amount = money.Money(amount)
	p.RefundedAmount = money.Money(refunded)
	p.ARApplied = money.Money(arApplied)
	p.CreditApplied = money.Money(creditApplied)
	p.Method = payment.Method(method)
	p.Status = payment.Status(status)
	return &p, nil
}

func (r *PaymentRepository) scanRefund(row pgx.Row) (*payment.Refund, error) {
	var refund payment.Refund
	var amount, arShare, creditShare int64

	err := row.Scan(
		&refund.ID,
		&refund.TenantID,
		&refund.PaymentID,
		&amount,
		&arShare,
		&creditShare,
		&refund.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, payment.ErrRefundNotFound
		}
		return nil, fmt.Errorf("failed to scan refund: %w", err)
	}
	refund.Amount = money.Money(amount)
	refund.ARShare = money.Money(arShare)
	refund.CreditShare = money.Money(creditShare)
	return &refund, nil
}
