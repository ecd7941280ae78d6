package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keelhq/keelbooks/internal/document"
	"github.com/keelhq/keelbooks/pkg/money"
)

// ActivityRepository implements document.ActivitySource by summing over
// the payment, credit application and credit note tables. Every value is
// derived from source rows at query time, inside whatever transaction
// the context carries, so the lock guard and the balance recompute see
// the same snapshot as the rest of the operation.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository creates a new PostgreSQL activity source
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// DocumentActivity reports whether any financial records reference the
// document.
func (r *ActivityRepository) DocumentActivity(ctx context.Context, tenantID, documentID uuid.UUID) (document.Activity, error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM payments WHERE tenant_id = $1 AND document_id = $2 AND status = 'succeeded'),
			EXISTS (SELECT 1 FROM credit_applications WHERE tenant_id = $1 AND document_id = $2),
			EXISTS (SELECT 1 FROM credit_notes WHERE tenant_id = $1 AND document_id = $2 AND status = 'posted')
	`
	var activity document.Activity
	q := getQueryer(ctx, r.pool)
	err := q.QueryRow(ctx, query, tenantID, documentID).Scan(
		&activity.HasPayments,
		&activity.HasCreditApplications,
		&activity.HasPostedCreditNotes,
	)
	if err != nil {
		return document.Activity{}, fmt.Errorf("failed to check document activity: %w", err)
	}
	return activity, nil
}

// SumNetPayments totals the AR-effective value of succeeded payments
// referencing the document: ar_applied minus the AR share of any
// refunds. Overpayment excess went to the credit ledger and must not
// count against the invoice here.
func (r *ActivityRepository) SumNetPayments(ctx context.Context, tenantID, documentID uuid.UUID) (money.Money, error) {
	query := `
		SELECT COALESCE(SUM(p.ar_applied), 0) - COALESCE((
			SELECT SUM(pr.ar_share)
			FROM payment_refunds pr
			JOIN payments rp ON rp.id = pr.payment_id AND rp.tenant_id = pr.tenant_id
			WHERE pr.tenant_id = $1 AND rp.document_id = $2 AND rp.status = 'succeeded'
		), 0)
		FROM payments p
		WHERE p.tenant_id = $1 AND p.document_id = $2 AND p.status = 'succeeded'
	`
	return r.sum(ctx, query, tenantID, documentID)
}

// SumCreditApplications totals credit applied to the document.
func (r *ActivityRepository) SumCreditApplications(ctx context.Context, tenantID, documentID uuid.UUID) (money.Money, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM credit_applications
		WHERE tenant_id = $1 AND document_id = $2
	`
	return r.sum(ctx, query, tenantID, documentID)
}

// SumCreditNoteReductions totals posted AR-reducing credit notes
// referencing the document. Credit-issuing notes do not touch the
// document balance; their value lands in the client's credit ledger.
func (r *ActivityRepository) SumCreditNoteReductions(ctx context.Context, tenantID, documentID uuid.UUID) (money.Money, error) {
	query := `
		SELECT COALESCE(SUM(total), 0)
		FROM credit_notes
		WHERE tenant_id = $1 AND document_id = $2 AND status = 'posted' AND kind = 'reduce_ar'
	`
	return r.sum(ctx, query, tenantID, documentID)
}

func (r *ActivityRepository) sum(ctx context.Context, query string, tenantID, documentID uuid.UUID) (money.Money, error) {
	var total int64
	q := getQueryer(ctx, r.pool)
	if err := q.QueryRow(ctx, query, tenantID, documentID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum document activity: %w", err)
	}
	return money.Money(total), nil
}
