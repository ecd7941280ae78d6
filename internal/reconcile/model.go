package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// Severity of a finding.
type Severity string

const (
	// SeverityError marks a broken financial invariant; the books cannot
	// be trusted until it is resolved.
	SeverityError Severity = "error"
	// SeverityWarning marks drift that is repairable in place, such as a
	// stale cached rollup.
	SeverityWarning Severity = "warning"
)

// Check names for findings.
const (
	CheckEntryBalance      = "entry_balance"
	CheckSourceUniqueness  = "source_uniqueness"
	CheckInvoiceBalance    = "invoice_balance"
	CheckCreditRollup      = "credit_rollup"
	CheckCreditNonNegative = "credit_non_negative"
	CheckRefundTotals      = "refund_totals"
	CheckPaymentAllocation = "payment_allocation"
	CheckApplicationClient = "application_client"
)

// Finding is one detected discrepancy. Findings are reported, never
// acted on: detection and repair are separate operations.
type Finding struct {
	Severity Severity
	Check    string
	EntityID uuid.UUID
	Message  string
}

// Report is the result of one reconciliation run over a tenant.
type Report struct {
	TenantID uuid.UUID
	RanAt    time.Time
	Findings []Finding
}

// Clean reports whether the run found nothing.
func (r *Report) Clean() bool {
	return len(r.Findings) == 0
}

// Errors returns only the error-severity findings.
func (r *Report) Errors() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}
