package credit

import (
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/pkg/money"
)

// Reason explains why a credit ledger entry was appended.
type Reason string

const (
	ReasonOverpayment      Reason = "overpayment"
	ReasonCreditNote       Reason = "credit_note"
	ReasonAppliedToInvoice Reason = "applied_to_invoice"
	ReasonRefundReversal   Reason = "refund_reversal"
	ReasonManualGrant      Reason = "manual_grant"
)

// IsValid reports whether the reason is known.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonOverpayment, ReasonCreditNote, ReasonAppliedToInvoice,
		ReasonRefundReversal, ReasonManualGrant:
		return true
	}
	return false
}

// LedgerEntry is one signed delta in a client's credit ledger.
// APPEND-ONLY: the sum of a client's entries is the authoritative credit
// balance; entries are never updated or deleted.
type LedgerEntry struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	ClientID  uuid.UUID
	Amount    money.Money // signed: grants positive, applications negative
	Reason    Reason
	SourceID  uuid.UUID // the record that caused the delta
	CreatedAt time.Time
}

// Validate validates the entry
func (e *LedgerEntry) Validate() error {
	if e.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if e.ClientID == uuid.Nil {
		return ErrMissingClient
	}
	if e.Amount.IsZero() {
		return ErrZeroDelta
	}
	if !e.Reason.IsValid() {
		return ErrInvalidReason
	}
	if e.SourceID == uuid.Nil {
		return ErrMissingSource
	}
	return nil
}

// Application links a credit ledger debit to a specific invoice.
// IMMUTABLE: created once, never edited or deleted.
type Application struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ClientID   uuid.UUID
	DocumentID uuid.UUID
	Amount     money.Money
	CreatedAt  time.Time
}

// Client is a billable party. CreditBalance is a cached rollup of the
// credit ledger sum — refreshed after every durable ledger write, read
// for display only, never trusted by an invariant check.
type Client struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Name          string
	CreditBalance money.Money
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
