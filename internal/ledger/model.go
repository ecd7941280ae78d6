package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/pkg/money"
)

// SourceType identifies the kind of business event a journal entry
// originated from. The set is closed: every kind has a typed constructor
// below, so an entry can never carry a source tag without its ID.
type SourceType string

const (
	SourceTypeInvoice           SourceType = "invoice"
	SourceTypePayment           SourceType = "payment"
	SourceTypePaymentRefund     SourceType = "payment_refund"
	SourceTypeCreditNote        SourceType = "credit_note"
	SourceTypeCreditApplication SourceType = "credit_application"
	SourceTypeBill              SourceType = "bill"
	SourceTypeBillPayment       SourceType = "bill_payment"
)

// Source is the provenance of a journal entry: which business event,
// identified by record, produced it. (tenant, Source) is the idempotency
// key for posting.
type Source struct {
	Type SourceType
	ID   uuid.UUID
}

// InvoiceSource identifies an invoice-sent event.
func InvoiceSource(id uuid.UUID) Source { return Source{Type: SourceTypeInvoice, ID: id} }

// PaymentSource identifies a payment-received event.
func PaymentSource(id uuid.UUID) Source { return Source{Type: SourceTypePayment, ID: id} }

// RefundSource identifies a payment-refund event.
func RefundSource(id uuid.UUID) Source { return Source{Type: SourceTypePaymentRefund, ID: id} }

// CreditNoteSource identifies a credit-note posting event.
func CreditNoteSource(id uuid.UUID) Source { return Source{Type: SourceTypeCreditNote, ID: id} }

// CreditApplicationSource identifies a credit-application event.
func CreditApplicationSource(id uuid.UUID) Source {
	return Source{Type: SourceTypeCreditApplication, ID: id}
}

// BillSource identifies a vendor-bill posting event.
func BillSource(id uuid.UUID) Source { return Source{Type: SourceTypeBill, ID: id} }

// BillPaymentSource identifies a bill-payment event.
func BillPaymentSource(id uuid.UUID) Source { return Source{Type: SourceTypeBillPayment, ID: id} }

// Validate validates the source reference
func (s Source) Validate() error {
	switch s.Type {
	case SourceTypeInvoice, SourceTypePayment, SourceTypePaymentRefund,
		SourceTypeCreditNote, SourceTypeCreditApplication,
		SourceTypeBill, SourceTypeBillPayment:
	default:
		return ErrInvalidSourceType
	}
	if s.ID == uuid.Nil {
		return ErrMissingSourceID
	}
	return nil
}

// Direction represents whether a line is a debit or credit
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// Account is a general-ledger account code.
type Account string

const (
	AccountCash         Account = "assets.cash"
	AccountReceivable   Account = "assets.accounts_receivable"
	AccountPayable      Account = "liabilities.accounts_payable"
	AccountClientCredit Account = "liabilities.client_credit"
	AccountTaxPayable   Account = "liabilities.tax_payable"
	AccountRevenue      Account = "revenue.sales"
	AccountSalesReturns Account = "revenue.sales_returns"
	AccountExpense      Account = "expenses.operating"
)

// JournalLine is one side of a journal entry.
// IMMUTABLE: lines are created only as part of their parent entry's
// single creation and are never updated or deleted.
type JournalLine struct {
	ID        uuid.UUID
	EntryID   uuid.UUID
	Account   Account
	Direction Direction
	Amount    money.Money
}

// Validate validates the line
func (l *JournalLine) Validate() error {
	if l.Direction != Debit && l.Direction != Credit {
		return ErrInvalidDirection
	}
	if l.Account == "" {
		return ErrInvalidAccount
	}
	if l.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// IsDebit returns true if this line is a debit
func (l *JournalLine) IsDebit() bool {
	return l.Direction == Debit
}

// SignedAmount returns the amount signed for balance calculations.
// Debits are positive, credits are negative.
func (l *JournalLine) SignedAmount() money.Money {
	if l.Direction == Credit {
		return -l.Amount
	}
	return l.Amount
}

// DebitLine builds a debit line for an account.
func DebitLine(account Account, amount money.Money) *JournalLine {
	return &JournalLine{ID: uuid.New(), Account: account, Direction: Debit, Amount: amount}
}

// CreditLine builds a credit line for an account.
func CreditLine(account Account, amount money.Money) *JournalLine {
	return &JournalLine{ID: uuid.New(), Account: account, Direction: Credit, Amount: amount}
}

// JournalEntry is a balanced set of debit/credit lines recording one
// accounting event for one tenant.
// IMMUTABLE: entries are never updated or deleted; corrections are new,
// additive entries.
type JournalEntry struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Source   Source
	Memo     string
	Lines    []*JournalLine
	PostedAt time.Time
}

// DebitTotal sums the entry's debit lines.
func (e *JournalEntry) DebitTotal() money.Money {
	var total money.Money
	for _, l := range e.Lines {
		if l.IsDebit() {
			total += l.Amount
		}
	}
	return total
}

// CreditTotal sums the entry's credit lines.
func (e *JournalEntry) CreditTotal() money.Money {
	var total money.Money
	for _, l := range e.Lines {
		if !l.IsDebit() {
			total += l.Amount
		}
	}
	return total
}

// IsBalanced reports whether debits equal credits.
func (e *JournalEntry) IsBalanced() bool {
	return e.DebitTotal() == e.CreditTotal()
}

// Validate validates the entry and its lines
func (e *JournalEntry) Validate() error {
	if e.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if err := e.Source.Validate(); err != nil {
		return err
	}
	if len(e.Lines) == 0 {
		return ErrNoLines
	}
	for _, l := range e.Lines {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	if !e.IsBalanced() {
		return ErrEntryNotBalanced
	}
	return nil
}
