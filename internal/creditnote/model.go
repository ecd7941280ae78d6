package creditnote

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/pkg/money"
)

// Kind determines where a posted credit note's value lands.
type Kind string

const (
	// KindReduceAR reduces the open balance of the linked invoice.
	KindReduceAR Kind = "reduce_ar"
	// KindIssueCredit grants the value to the client's credit ledger
	// for use against future invoices.
	KindIssueCredit Kind = "issue_credit"
)

// IsValid checks if the kind is one of the known values.
func (k Kind) IsValid() bool {
	return k == KindReduceAR || k == KindIssueCredit
}

// Status of a credit note. Drafts are editable; posting is one-way.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusPosted Status = "posted"
)

// Line is one line of a credit note.
type Line struct {
	ID           uuid.UUID
	CreditNoteID uuid.UUID
	Description  string
	Quantity     int64
	UnitAmount   money.Money
	CreatedAt    time.Time
}

// Amount returns the line total.
func (l *Line) Amount() money.Money {
	return money.Money(l.Quantity) * l.UnitAmount
}

// Validate checks line fields.
func (l *Line) Validate() error {
	if l.Description == "" {
		return ErrEmptyDescription
	}
	if l.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if l.UnitAmount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// CreditNote is a document that reverses part or all of an invoice's
// value after it was sent. Its number is assigned at post time from a
// per-tenant monthly sequence and is empty while the note is a draft.
type CreditNote struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ClientID   uuid.UUID
	DocumentID uuid.UUID
	Kind       Kind
	Status     Status
	Number     string
	Reason     string
	TaxBps     int64
	Subtotal   money.Money
	Tax        money.Money
	Total      money.Money
	Lines      []*Line
	PostedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ComputeTotals recalculates subtotal, tax and total from the lines.
func (cn *CreditNote) ComputeTotals() error {
	var subtotal money.Money
	for _, l := range cn.Lines {
		subtotal += l.Amount()
	}
	tax, err := money.Percent(subtotal, cn.TaxBps)
	if err != nil {
		return err
	}
	cn.Subtotal = subtotal
	cn.Tax = tax
	cn.Total = subtotal + tax
	return nil
}

// Validate checks credit note fields.
func (cn *CreditNote) Validate() error {
	if cn.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if cn.ClientID == uuid.Nil {
		return ErrMissingClient
	}
	if cn.DocumentID == uuid.Nil {
		return ErrMissingDocument
	}
	if !cn.Kind.IsValid() {
		return ErrInvalidKind
	}
	if cn.TaxBps < 0 {
		return ErrNegativeTaxRate
	}
	for _, l := range cn.Lines {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FormatNumber renders a credit note number for the given monthly
// period and sequence value, e.g. CN-202608-0007.
func FormatNumber(period string, seq int64) string {
	return fmt.Sprintf("CN-%s-%04d", period, seq)
}
