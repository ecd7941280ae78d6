package document

import (
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/pkg/money"
)

// Kind distinguishes invoices from estimates. Estimates never carry
// payments and post no journal entries.
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindEstimate Kind = "estimate"
)

// Status is the document lifecycle state. Ordered by lock seniority:
// Draft < Sent < PartiallyPaid < Paid, with Void terminal from any
// non-Paid state. Once Sent or later, status only moves forward.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusSent          Status = "sent"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusVoid          Status = "void"
)

// seniority orders statuses by lock strength.
func (s Status) seniority() int {
	switch s {
	case StatusDraft:
		return 0
	case StatusSent:
		return 1
	case StatusPartiallyPaid:
		return 2
	case StatusPaid:
		return 3
	case StatusVoid:
		return 4
	}
	return -1
}

// IsValid reports whether the status is a known state.
func (s Status) IsValid() bool {
	return s.seniority() >= 0
}

// AtLeast reports whether s has reached other's seniority.
func (s Status) AtLeast(other Status) bool {
	return s.seniority() >= other.seniority()
}

// CanTransition reports whether a status change is allowed. Transitions
// are monotonic: seniority never decreases, Paid and Void are terminal.
func CanTransition(from, to Status) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	switch from {
	case StatusPaid, StatusVoid:
		return false
	case StatusDraft:
		return to == StatusSent || to == StatusVoid
	case StatusSent:
		return to == StatusPartiallyPaid || to == StatusPaid || to == StatusVoid
	case StatusPartiallyPaid:
		return to == StatusPaid || to == StatusVoid
	}
	return false
}

// LineItem is one billable line on a document. Amount is always
// Quantity * UnitAmount in minor units. Line items on drafts may be
// soft-deleted; once the document locks they are frozen entirely.
type LineItem struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	Description string
	Quantity    int64
	UnitAmount  money.Money
	Amount      money.Money
	Position    int
	DeletedAt   *time.Time
}

// IsDeleted reports whether the line item is tombstoned.
func (li *LineItem) IsDeleted() bool {
	return li.DeletedAt != nil
}

// Validate validates the line item
func (li *LineItem) Validate() error {
	if li.Description == "" {
		return ErrEmptyDescription
	}
	if li.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if li.UnitAmount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// Document is an invoice or estimate. Subtotal, Tax and Total are frozen
// at Sent; BalanceDue is a derived cache recomputed from source records
// (payments, credit applications, posted credit notes) and is never
// treated as authoritative input.
type Document struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ClientID   uuid.UUID
	ProjectID  *uuid.UUID
	Kind       Kind
	Number     string
	Status     Status
	IssueDate  time.Time
	DueDate    time.Time
	TaxBps     int64 // tax rate in basis points, applied to the subtotal
	Subtotal   money.Money
	Tax        money.Money
	Total      money.Money
	BalanceDue money.Money
	LineItems  []*LineItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ActiveLineItems returns the non-tombstoned line items in position order.
func (d *Document) ActiveLineItems() []*LineItem {
	items := make([]*LineItem, 0, len(d.LineItems))
	for _, li := range d.LineItems {
		if !li.IsDeleted() {
			items = append(items, li)
		}
	}
	return items
}

// ComputeTotals derives subtotal, tax and total from the active line
// items. Called on drafts only; MarkSent freezes the result.
func (d *Document) ComputeTotals() error {
	var subtotal money.Money
	for _, li := range d.ActiveLineItems() {
		subtotal += li.Amount
	}
	tax, err := money.Percent(subtotal, d.TaxBps)
	if err != nil {
		return err
	}
	d.Subtotal = subtotal
	d.Tax = tax
	d.Total = subtotal + tax
	return nil
}

// Validate validates the document
func (d *Document) Validate() error {
	if d.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if d.ClientID == uuid.Nil {
		return ErrMissingClient
	}
	if d.Kind != KindInvoice && d.Kind != KindEstimate {
		return ErrInvalidKind
	}
	if !d.Status.IsValid() {
		return ErrInvalidStatus
	}
	if d.TaxBps < 0 {
		return ErrNegativeTaxRate
	}
	return nil
}
