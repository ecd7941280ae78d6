package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/internal/credit"
	"github.com/keelhq/keelbooks/internal/document"
	"github.com/keelhq/keelbooks/internal/ledger"
	"github.com/keelhq/keelbooks/internal/payment"
	apperrors "github.com/keelhq/keelbooks/internal/shared/errors"
	"github.com/keelhq/keelbooks/pkg/logger"
	"github.com/keelhq/keelbooks/pkg/money"
)

// Checker verifies the financial invariants of a tenant's books against
// source records. Run only reads and reports; Recalculate repairs the
// two derived caches (invoice balances, client credit rollups) by
// re-deriving them from source records.
type Checker struct {
	journal  ledger.Repository
	docs     document.Repository
	activity document.ActivitySource
	credits  credit.Repository
	payments payment.Repository

	docService    *document.Service
	creditService *credit.Service
	log           *logger.Logger
}

// NewChecker creates a new invariant checker
func NewChecker(
	journal ledger.Repository,
	docs document.Repository,
	activity document.ActivitySource,
	credits credit.Repository,
	payments payment.Repository,
	docService *document.Service,
	creditService *credit.Service,
	log *logger.Logger,
) *Checker {
	return &Checker{
		journal:       journal,
		docs:          docs,
		activity:      activity,
		credits:       credits,
		payments:      payments,
		docService:    docService,
		creditService: creditService,
		log:           log,
	}
}

// Run executes every check for the tenant and returns the findings.
// A discrepancy is a finding, never an error: the returned error is
// non-nil only when the checker itself could not read the records.
func (c *Checker) Run(ctx context.Context, tenantID uuid.UUID) (*Report, error) {
	report := &Report{
		TenantID: tenantID,
		RanAt:    time.Now().UTC(),
	}

	if err := c.checkJournal(ctx, tenantID, report); err != nil {
		return nil, err
	}
	if err := c.checkInvoices(ctx, tenantID, report); err != nil {
		return nil, err
	}
	if err := c.checkCredits(ctx, tenantID, report); err != nil {
		return nil, err
	}
	if err := c.checkPayments(ctx, tenantID, report); err != nil {
		return nil, err
	}
	if err := c.checkApplications(ctx, tenantID, report); err != nil {
		return nil, err
	}

	c.log.Info("reconciliation finished",
		"tenant_id", tenantID.String(),
		"findings", len(report.Findings),
	)
	return report, nil
}

// checkJournal verifies every entry balances and no source key appears
// twice.
func (c *Checker) checkJournal(ctx context.Context, tenantID uuid.UUID, report *Report) error {
	entries, err := c.journal.ListEntries(ctx, tenantID)
	if err != nil {
		return apperrors.DatabaseError("failed to list journal entries", err)
	}

	seen := make(map[ledger.Source]uuid.UUID, len(entries))
	for _, e := range entries {
		if !e.IsBalanced() {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityError,
				Check:    CheckEntryBalance,
				EntityID: e.ID,
				Message: fmt.Sprintf("entry debits %s do not equal credits %s",
					e.DebitTotal(), e.CreditTotal()),
			})
		}
		key := e.Source
		if prev, ok := seen[key]; ok {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityError,
				Check:    CheckSourceUniqueness,
				EntityID: e.ID,
				Message: fmt.Sprintf("source %s/%s already posted as entry %s",
					key.Type, key.ID, prev),
			})
			continue
		}
		seen[key] = e.ID
	}
	return nil
}

// checkInvoices re-derives each invoice's balance from source records
// and compares it with the cached balance_due.
func (c *Checker) checkInvoices(ctx context.Context, tenantID uuid.UUID, report *Report) error {
	docs, err := c.docs.ListDocuments(ctx, tenantID)
	if err != nil {
		return apperrors.DatabaseError("failed to list documents", err)
	}

	for _, doc := range docs {
		if doc.Kind != document.KindInvoice || doc.Status == document.StatusVoid {
			continue
		}
		if doc.Status == document.StatusDraft {
			if doc.BalanceDue != doc.Total {
				report.Findings = append(report.Findings, Finding{
					Severity: SeverityWarning,
					Check:    CheckInvoiceBalance,
					EntityID: doc.ID,
					Message: fmt.Sprintf("draft balance %s should equal total %s",
						doc.BalanceDue, doc.Total),
				})
			}
			continue
		}

		payments, err := c.activity.SumNetPayments(ctx, tenantID, doc.ID)
		if err != nil {
			return apperrors.DatabaseError("failed to sum payments", err)
		}
		applications, err := c.activity.SumCreditApplications(ctx, tenantID, doc.ID)
		if err != nil {
			return apperrors.DatabaseError("failed to sum credit applications", err)
		}
		reductions, err := c.activity.SumCreditNoteReductions(ctx, tenantID, doc.ID)
		if err != nil {
			return apperrors.DatabaseError("failed to sum credit note reductions", err)
		}

		expected := doc.Total - payments - applications - reductions
		if expected.IsNegative() {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityError,
				Check:    CheckInvoiceBalance,
				EntityID: doc.ID,
				Message: fmt.Sprintf(
					"derived balance is negative: total=%s payments=%s applications=%s reductions=%s",
					doc.Total, payments, applications, reductions),
			})
			continue
		}
		if doc.BalanceDue != expected {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityWarning,
				Check:    CheckInvoiceBalance,
				EntityID: doc.ID,
				Message: fmt.Sprintf("cached balance %s does not match derived balance %s",
					doc.BalanceDue, expected),
			})
		}
	}
	return nil
}

// checkCredits compares each client's cached rollup with the ledger sum
// and flags negative authoritative balances.
func (c *Checker) checkCredits(ctx context.Context, tenantID uuid.UUID, report *Report) error {
	clients, err := c.credits.ListClients(ctx, tenantID)
	if err != nil {
		return apperrors.DatabaseError("failed to list clients", err)
	}

	for _, client := range clients {
		sum, err := c.credits.SumEntries(ctx, tenantID, client.ID)
		if err != nil {
			return apperrors.DatabaseError("failed to sum credit entries", err)
		}
		if sum.IsNegative() {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityError,
				Check:    CheckCreditNonNegative,
				EntityID: client.ID,
				Message:  fmt.Sprintf("credit ledger sums to %s", sum),
			})
		}
		if client.CreditBalance != sum {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityWarning,
				Check:    CheckCreditRollup,
				EntityID: client.ID,
				Message: fmt.Sprintf("cached rollup %s does not match ledger sum %s",
					client.CreditBalance, sum),
			})
		}
	}
	return nil
}

// checkPayments verifies each payment's allocation and refund rollup
// against its refund rows.
func (c *Checker) checkPayments(ctx context.Context, tenantID uuid.UUID, report *Report) error {
	payments, err := c.payments.ListPayments(ctx, tenantID)
	if err != nil {
		return apperrors.DatabaseError("failed to list payments", err)
	}

	for _, p := range payments {
		if p.ARApplied+p.CreditApplied != p.Amount {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityError,
				Check:    CheckPaymentAllocation,
				EntityID: p.ID,
				Message: fmt.Sprintf("allocation %s + %s does not equal amount %s",
					p.ARApplied, p.CreditApplied, p.Amount),
			})
		}

		refunds, err := c.payments.ListRefundsForPayment(ctx, tenantID, p.ID)
		if err != nil {
			return apperrors.DatabaseError("failed to list refunds", err)
		}
		var refunded money.Money
		for _, r := range refunds {
			refunded += r.Amount
			if r.ARShare+r.CreditShare != r.Amount {
				report.Findings = append(report.Findings, Finding{
					Severity: SeverityError,
					Check:    CheckRefundTotals,
					EntityID: r.ID,
					Message: fmt.Sprintf("refund shares %s + %s do not equal amount %s",
						r.ARShare, r.CreditShare, r.Amount),
				})
			}
		}
		if refunded != p.RefundedAmount {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityError,
				Check:    CheckRefundTotals,
				EntityID: p.ID,
				Message: fmt.Sprintf("refund rows sum to %s but payment records %s refunded",
					refunded, p.RefundedAmount),
			})
		}
		if p.RefundedAmount > p.Amount {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityError,
				Check:    CheckRefundTotals,
				EntityID: p.ID,
				Message: fmt.Sprintf("refunded %s exceeds payment amount %s",
					p.RefundedAmount, p.Amount),
			})
		}
	}
	return nil
}

// checkApplications verifies each credit application's client owns the
// document it was applied to.
func (c *Checker) checkApplications(ctx context.Context, tenantID uuid.UUID, report *Report) error {
	apps, err := c.credits.ListApplications(ctx, tenantID)
	if err != nil {
		return apperrors.DatabaseError("failed to list credit applications", err)
	}

	for _, app := range apps {
		doc, err := c.docs.GetDocument(ctx, tenantID, app.DocumentID)
		if err != nil {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityError,
				Check:    CheckApplicationClient,
				EntityID: app.ID,
				Message:  fmt.Sprintf("applied document %s not found", app.DocumentID),
			})
			continue
		}
		if doc.ClientID != app.ClientID {
			report.Findings = append(report.Findings, Finding{
				Severity: SeverityError,
				Check:    CheckApplicationClient,
				EntityID: app.ID,
				Message: fmt.Sprintf("application client %s does not own document %s (client %s)",
					app.ClientID, doc.ID, doc.ClientID),
			})
		}
	}
	return nil
}

// Recalculate repairs the derived caches for the tenant: every invoice
// balance and every client credit rollup is re-derived from source
// records. Source records themselves are never touched.
func (c *Checker) Recalculate(ctx context.Context, tenantID uuid.UUID) error {
	docs, err := c.docs.ListDocuments(ctx, tenantID)
	if err != nil {
		return apperrors.DatabaseError("failed to list documents", err)
	}
	for _, doc := range docs {
		if doc.Kind != document.KindInvoice {
			continue
		}
		if _, err := c.docService.Recalculate(ctx, tenantID, doc.ID); err != nil {
			return err
		}
	}

	clients, err := c.credits.ListClients(ctx, tenantID)
	if err != nil {
		return apperrors.DatabaseError("failed to list clients", err)
	}
	for _, client := range clients {
		if _, err := c.creditService.RefreshRollup(ctx, tenantID, client.ID); err != nil {
			return err
		}
	}

	c.log.Info("recalculation finished",
		"tenant_id", tenantID.String(),
		"documents", len(docs),
		"clients", len(clients),
	)
	return nil
}
