// Package memory provides an in-memory implementation of every storage
// port, used by unit tests. One mutex serializes all access, so the
// row-lock semantics of the PostgreSQL layer degrade to whole-store
// serialization, which is strictly stronger. BeginTx/CommitTx/RollbackTx
// are accepted but not transactional: a rolled-back operation's writes
// are not undone. Tests that need real rollback semantics run against
// PostgreSQL with the integration harness.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/internal/credit"
	"github.com/keelhq/keelbooks/internal/creditnote"
	"github.com/keelhq/keelbooks/internal/document"
	"github.com/keelhq/keelbooks/internal/ledger"
	"github.com/keelhq/keelbooks/internal/payable"
	"github.com/keelhq/keelbooks/internal/payment"
	"github.com/keelhq/keelbooks/pkg/money"
)

type sourceKey struct {
	tenantID uuid.UUID
	source   ledger.Source
}

type sequenceKey struct {
	tenantID uuid.UUID
	period   string
}

// Store holds all records in maps keyed by ID.
type Store struct {
	mu sync.Mutex

	entries       map[uuid.UUID]*ledger.JournalEntry
	entriesBySrc  map[sourceKey]uuid.UUID
	documents     map[uuid.UUID]*document.Document
	clients       map[uuid.UUID]*credit.Client
	creditEntries []*credit.LedgerEntry
	applications  []*credit.Application
	payments      map[uuid.UUID]*payment.Payment
	refunds       map[uuid.UUID]*payment.Refund
	creditNotes   map[uuid.UUID]*creditnote.CreditNote
	sequences     map[sequenceKey]int64
	bills         map[uuid.UUID]*payable.Bill
	billPayments  []*payable.BillPayment
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		entries:      map[uuid.UUID]*ledger.JournalEntry{},
		entriesBySrc: map[sourceKey]uuid.UUID{},
		documents:    map[uuid.UUID]*document.Document{},
		clients:      map[uuid.UUID]*credit.Client{},
		payments:     map[uuid.UUID]*payment.Payment{},
		refunds:      map[uuid.UUID]*payment.Refund{},
		creditNotes:  map[uuid.UUID]*creditnote.CreditNote{},
		sequences:    map[sequenceKey]int64{},
		bills:        map[uuid.UUID]*payable.Bill{},
	}
}

// BeginTx is accepted for interface compatibility; see package comment.
func (s *Store) BeginTx(ctx context.Context) (context.Context, error) { return ctx, nil }

// CommitTx is a no-op.
func (s *Store) CommitTx(ctx context.Context) error { return nil }

// RollbackTx is a no-op.
func (s *Store) RollbackTx(ctx context.Context) error { return nil }

// --- ledger.Repository ---

// JournalStore is the journal view over a Store. It is a separate type
// because the journal and credit ledger ports both name a ListEntries
// method with different signatures.
type JournalStore struct {
	s *Store
}

// Journal returns the store's journal view.
func (s *Store) Journal() *JournalStore {
	return &JournalStore{s: s}
}

// CreateEntry persists an entry, absorbing duplicate source keys the way
// the SQL unique index does.
func (j *JournalStore) CreateEntry(ctx context.Context, entry *ledger.JournalEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	key := sourceKey{tenantID: entry.TenantID, source: entry.Source}
	if _, exists := j.s.entriesBySrc[key]; exists {
		return nil
	}
	cp := copyEntry(entry)
	j.s.entries[cp.ID] = cp
	j.s.entriesBySrc[key] = cp.ID
	return nil
}

// GetEntry retrieves an entry by ID.
func (j *JournalStore) GetEntry(ctx context.Context, tenantID, id uuid.UUID) (*ledger.JournalEntry, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	entry, ok := j.s.entries[id]
	if !ok || entry.TenantID != tenantID {
		return nil, ledger.ErrEntryNotFound
	}
	return copyEntry(entry), nil
}

// GetEntryBySource retrieves the canonical entry for a source key.
func (j *JournalStore) GetEntryBySource(ctx context.Context, tenantID uuid.UUID, source ledger.Source) (*ledger.JournalEntry, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	id, ok := j.s.entriesBySrc[sourceKey{tenantID: tenantID, source: source}]
	if !ok {
		return nil, ledger.ErrEntryNotFound
	}
	return copyEntry(j.s.entries[id]), nil
}

// ListEntries lists a tenant's entries.
func (j *JournalStore) ListEntries(ctx context.Context, tenantID uuid.UUID) ([]*ledger.JournalEntry, error) {
	j.s.mu.Lock()
	defer j.s.mu.Unlock()

	var out []*ledger.JournalEntry
	for _, entry := range j.s.entries {
		if entry.TenantID == tenantID {
			out = append(out, copyEntry(entry))
		}
	}
	return out, nil
}

// --- document.Repository ---

// CreateDocument creates a document with its line items.
func (s *Store) CreateDocument(ctx context.Context, doc *document.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = copyDocument(doc)
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getDocumentLocked(tenantID, id)
}

// GetDocumentForUpdate retrieves a document; the store mutex stands in
// for the row lock.
func (s *Store) GetDocumentForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*document.Document, error) {
	return s.GetDocument(ctx, tenantID, id)
}

func (s *Store) getDocumentLocked(tenantID, id uuid.UUID) (*document.Document, error) {
	doc, ok := s.documents[id]
	if !ok || doc.TenantID != tenantID {
		return nil, document.ErrNotFound
	}
	return copyDocument(doc), nil
}

// UpdateDocument persists a document's fields, preserving stored line items.
func (s *Store) UpdateDocument(ctx context.Context, doc *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.documents[doc.ID]
	if !ok || stored.TenantID != doc.TenantID {
		return document.ErrNotFound
	}
	cp := copyDocument(doc)
	cp.LineItems = stored.LineItems
	s.documents[doc.ID] = cp
	return nil
}

// ListDocuments lists a tenant's documents.
func (s *Store) ListDocuments(ctx context.Context, tenantID uuid.UUID) ([]*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*document.Document
	for _, doc := range s.documents {
		if doc.TenantID == tenantID {
			out = append(out, copyDocument(doc))
		}
	}
	return out, nil
}

// CreateLineItem attaches a line item to its document.
func (s *Store) CreateLineItem(ctx context.Context, li *document.LineItem) error {
	if err := li.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[li.DocumentID]
	if !ok {
		return document.ErrNotFound
	}
	cp := *li
	doc.LineItems = append(doc.LineItems, &cp)
	return nil
}

// UpdateLineItem updates a stored line item in place.
func (s *Store) UpdateLineItem(ctx context.Context, li *document.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[li.DocumentID]
	if !ok {
		return document.ErrNotFound
	}
	for i, stored := range doc.LineItems {
		if stored.ID == li.ID {
			cp := *li
			doc.LineItems[i] = &cp
			return nil
		}
	}
	return document.ErrLineItemNotFound
}

// --- document.ActivitySource ---

// DocumentActivity reports whether any financial records reference the
// document.
func (s *Store) DocumentActivity(ctx context.Context, tenantID, documentID uuid.UUID) (document.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var activity document.Activity
	for _, p := range s.payments {
		if p.TenantID == tenantID && p.DocumentID == documentID && p.Status == payment.StatusSucceeded {
			activity.HasPayments = true
			break
		}
	}
	for _, app := range s.applications {
		if app.TenantID == tenantID && app.DocumentID == documentID {
			activity.HasCreditApplications = true
			break
		}
	}
	for _, cn := range s.creditNotes {
		if cn.TenantID == tenantID && cn.DocumentID == documentID && cn.Status == creditnote.StatusPosted {
			activity.HasPostedCreditNotes = true
			break
		}
	}
	return activity, nil
}

// SumNetPayments totals the AR-effective value of succeeded payments:
// ar_applied minus the AR share of any refunds. Overpayment excess went
// to the credit ledger and must not count against the invoice here.
func (s *Store) SumNetPayments(ctx context.Context, tenantID, documentID uuid.UUID) (money.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total money.Money
	for _, p := range s.payments {
		if p.TenantID != tenantID || p.DocumentID != documentID || p.Status != payment.StatusSucceeded {
			continue
		}
		total += p.ARApplied
		for _, r := range s.refunds {
			if r.TenantID == tenantID && r.PaymentID == p.ID {
				total -= r.ARShare
			}
		}
	}
	return total, nil
}

// SumCreditApplications totals credit applied to the document.
func (s *Store) SumCreditApplications(ctx context.Context, tenantID, documentID uuid.UUID) (money.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total money.Money
	for _, app := range s.applications {
		if app.TenantID == tenantID && app.DocumentID == documentID {
			total += app.Amount
		}
	}
	return total, nil
}

// SumCreditNoteReductions totals posted AR-reducing credit notes.
func (s *Store) SumCreditNoteReductions(ctx context.Context, tenantID, documentID uuid.UUID) (money.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total money.Money
	for _, cn := range s.creditNotes {
		if cn.TenantID == tenantID && cn.DocumentID == documentID &&
			cn.Status == creditnote.StatusPosted && cn.Kind == creditnote.KindReduceAR {
			total += cn.Total
		}
	}
	return total, nil
}

// --- credit.Repository ---

// CreateClient creates a client.
func (s *Store) CreateClient(ctx context.Context, client *credit.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *client
	s.clients[client.ID] = &cp
	return nil
}

// GetClient retrieves a client by ID.
func (s *Store) GetClient(ctx context.Context, tenantID, id uuid.UUID) (*credit.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[id]
	if !ok || client.TenantID != tenantID {
		return nil, credit.ErrClientNotFound
	}
	cp := *client
	return &cp, nil
}

// GetClientForUpdate retrieves a client; the store mutex stands in for
// the row lock.
func (s *Store) GetClientForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*credit.Client, error) {
	return s.GetClient(ctx, tenantID, id)
}

// ListClients lists a tenant's clients.
func (s *Store) ListClients(ctx context.Context, tenantID uuid.UUID) ([]*credit.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*credit.Client
	for _, client := range s.clients {
		if client.TenantID == tenantID {
			cp := *client
			out = append(out, &cp)
		}
	}
	return out, nil
}

// UpdateClientCreditRollup writes the cached balance.
func (s *Store) UpdateClientCreditRollup(ctx context.Context, tenantID, clientID uuid.UUID, balance money.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[clientID]
	if !ok || client.TenantID != tenantID {
		return credit.ErrClientNotFound
	}
	client.CreditBalance = balance
	return nil
}

// AppendEntry appends a credit ledger entry.
func (s *Store) AppendEntry(ctx context.Context, entry *credit.LedgerEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.creditEntries = append(s.creditEntries, &cp)
	return nil
}

// ListEntries lists a client's credit entries in append order.
func (s *Store) ListEntries(ctx context.Context, tenantID, clientID uuid.UUID) ([]*credit.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*credit.LedgerEntry
	for _, entry := range s.creditEntries {
		if entry.TenantID == tenantID && entry.ClientID == clientID {
			cp := *entry
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SumEntries computes the authoritative balance from the ledger.
func (s *Store) SumEntries(ctx context.Context, tenantID, clientID uuid.UUID) (money.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total money.Money
	for _, entry := range s.creditEntries {
		if entry.TenantID == tenantID && entry.ClientID == clientID {
			total += entry.Amount
		}
	}
	return total, nil
}

// CreateApplication records a credit application.
func (s *Store) CreateApplication(ctx context.Context, app *credit.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *app
	s.applications = append(s.applications, &cp)
	return nil
}

// ListApplications lists a tenant's credit applications.
func (s *Store) ListApplications(ctx context.Context, tenantID uuid.UUID) ([]*credit.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*credit.Application
	for _, app := range s.applications {
		if app.TenantID == tenantID {
			cp := *app
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- payment.Repository ---

// CreatePayment creates a payment.
func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

// GetPayment retrieves a payment by ID.
func (s *Store) GetPayment(ctx context.Context, tenantID, id uuid.UUID) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok || p.TenantID != tenantID {
		return nil, payment.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

// GetPaymentForUpdate retrieves a payment; the store mutex stands in for
// the row lock.
func (s *Store) GetPaymentForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*payment.Payment, error) {
	return s.GetPayment(ctx, tenantID, id)
}

// UpdateRefundedAmount writes the payment's refund rollup.
func (s *Store) UpdateRefundedAmount(ctx context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.payments[p.ID]
	if !ok || stored.TenantID != p.TenantID {
		return payment.ErrPaymentNotFound
	}
	stored.RefundedAmount = p.RefundedAmount
	return nil
}

// ListPayments lists a tenant's payments.
func (s *Store) ListPayments(ctx context.Context, tenantID uuid.UUID) ([]*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*payment.Payment
	for _, p := range s.payments {
		if p.TenantID == tenantID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// CreateRefund records a refund row.
func (s *Store) CreateRefund(ctx context.Context, r *payment.Refund) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.refunds[r.ID] = &cp
	return nil
}

// GetRefund retrieves a refund by its event identity.
func (s *Store) GetRefund(ctx context.Context, tenantID, id uuid.UUID) (*payment.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.refunds[id]
	if !ok || r.TenantID != tenantID {
		return nil, payment.ErrRefundNotFound
	}
	cp := *r
	return &cp, nil
}

// ListRefunds lists a tenant's refunds.
func (s *Store) ListRefunds(ctx context.Context, tenantID uuid.UUID) ([]*payment.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*payment.Refund
	for _, r := range s.refunds {
		if r.TenantID == tenantID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ListRefundsForPayment lists refunds against one payment.
func (s *Store) ListRefundsForPayment(ctx context.Context, tenantID, paymentID uuid.UUID) ([]*payment.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*payment.Refund
	for _, r := range s.refunds {
		if r.TenantID == tenantID && r.PaymentID == paymentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- creditnote.Repository ---

// CreateCreditNote creates a credit note.
func (s *Store) CreateCreditNote(ctx context.Context, cn *creditnote.CreditNote) error {
	if err := cn.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.creditNotes[cn.ID] = copyCreditNote(cn)
	return nil
}

// GetCreditNote retrieves a credit note by ID.
func (s *Store) GetCreditNote(ctx context.Context, tenantID, id uuid.UUID) (*creditnote.CreditNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cn, ok := s.creditNotes[id]
	if !ok || cn.TenantID != tenantID {
		return nil, creditnote.ErrNotFound
	}
	return copyCreditNote(cn), nil
}

// GetCreditNoteForUpdate retrieves a credit note; the store mutex stands
// in for the row lock.
func (s *Store) GetCreditNoteForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*creditnote.CreditNote, error) {
	return s.GetCreditNote(ctx, tenantID, id)
}

// UpdateCreditNote persists a credit note's fields.
func (s *Store) UpdateCreditNote(ctx context.Context, cn *creditnote.CreditNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.creditNotes[cn.ID]
	if !ok || stored.TenantID != cn.TenantID {
		return creditnote.ErrNotFound
	}
	s.creditNotes[cn.ID] = copyCreditNote(cn)
	return nil
}

// ListCreditNotes lists a tenant's credit notes.
func (s *Store) ListCreditNotes(ctx context.Context, tenantID uuid.UUID) ([]*creditnote.CreditNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*creditnote.CreditNote
	for _, cn := range s.creditNotes {
		if cn.TenantID == tenantID {
			out = append(out, copyCreditNote(cn))
		}
	}
	return out, nil
}

// ListCreditNotesForDocument lists credit notes against one document.
func (s *Store) ListCreditNotesForDocument(ctx context.Context, tenantID, documentID uuid.UUID) ([]*creditnote.CreditNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*creditnote.CreditNote
	for _, cn := range s.creditNotes {
		if cn.TenantID == tenantID && cn.DocumentID == documentID {
			out = append(out, copyCreditNote(cn))
		}
	}
	return out, nil
}

// --- creditnote.NumberSequence ---

// Next returns the next sequence value for the tenant and period.
func (s *Store) Next(ctx context.Context, tenantID uuid.UUID, period string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sequenceKey{tenantID: tenantID, period: period}
	s.sequences[key]++
	return s.sequences[key], nil
}

// --- payable.Repository ---

// CreateBill creates a bill.
func (s *Store) CreateBill(ctx context.Context, bill *payable.Bill) error {
	if err := bill.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *bill
	s.bills[bill.ID] = &cp
	return nil
}

// GetBill retrieves a bill by ID.
func (s *Store) GetBill(ctx context.Context, tenantID, id uuid.UUID) (*payable.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.bills[id]
	if !ok || bill.TenantID != tenantID {
		return nil, payable.ErrBillNotFound
	}
	cp := *bill
	return &cp, nil
}

// GetBillForUpdate retrieves a bill; the store mutex stands in for the
// row lock.
func (s *Store) GetBillForUpdate(ctx context.Context, tenantID, id uuid.UUID) (*payable.Bill, error) {
	return s.GetBill(ctx, tenantID, id)
}

// UpdateBill persists a bill's fields.
func (s *Store) UpdateBill(ctx context.Context, bill *payable.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.bills[bill.ID]
	if !ok || stored.TenantID != bill.TenantID {
		return payable.ErrBillNotFound
	}
	cp := *bill
	s.bills[bill.ID] = &cp
	return nil
}

// ListBills lists a tenant's bills.
func (s *Store) ListBills(ctx context.Context, tenantID uuid.UUID) ([]*payable.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*payable.Bill
	for _, bill := range s.bills {
		if bill.TenantID == tenantID {
			cp := *bill
			out = append(out, &cp)
		}
	}
	return out, nil
}

// CreateBillPayment records a payment against a bill.
func (s *Store) CreateBillPayment(ctx context.Context, p *payable.BillPayment) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.billPayments = append(s.billPayments, &cp)
	return nil
}

// ListBillPayments lists payments against one bill.
func (s *Store) ListBillPayments(ctx context.Context, tenantID, billID uuid.UUID) ([]*payable.BillPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*payable.BillPayment
	for _, p := range s.billPayments {
		if p.TenantID == tenantID && p.BillID == billID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- copy helpers ---

func copyEntry(entry *ledger.JournalEntry) *ledger.JournalEntry {
	cp := *entry
	cp.Lines = make([]*ledger.JournalLine, len(entry.Lines))
	for i, l := range entry.Lines {
		lc := *l
		cp.Lines[i] = &lc
	}
	return &cp
}

func copyDocument(doc *document.Document) *document.Document {
	cp := *doc
	cp.LineItems = make([]*document.LineItem, len(doc.LineItems))
	for i, li := range doc.LineItems {
		lc := *li
		cp.LineItems[i] = &lc
	}
	return &cp
}

func copyCreditNote(cn *creditnote.CreditNote) *creditnote.CreditNote {
	cp := *cn
	cp.Lines = make([]*creditnote.Line, len(cn.Lines))
	for i, l := range cn.Lines {
		lc := *l
		cp.Lines[i] = &lc
	}
	return &cp
}
