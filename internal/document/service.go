package document

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/internal/ledger"
	apperrors "github.com/keelhq/keelbooks/internal/shared/errors"
	"github.com/keelhq/keelbooks/pkg/money"
)

// Service governs document lifecycle: creation, mutation under the lock
// guard, the Sent/Void transitions, and balance recomputation. Every
// mutating operation runs in one storage transaction holding a row lock
// on the document, and re-evaluates the lock guard inside it.
type Service struct {
	repo     Repository
	activity ActivitySource
	journal  *ledger.Service
}

// NewService creates a new document service
func NewService(repo Repository, activity ActivitySource, journal *ledger.Service) *Service {
	return &Service{
		repo:     repo,
		activity: activity,
		journal:  journal,
	}
}

// CreateParams are the inputs for creating a draft document.
type CreateParams struct {
	TenantID  uuid.UUID
	ClientID  uuid.UUID
	ProjectID *uuid.UUID
	Kind      Kind
	Number    string
	IssueDate time.Time
	DueDate   time.Time
	TaxBps    int64
}

// Create creates a new Draft document with no line items.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Document, error) {
	now := time.Now().UTC()
	doc := &Document{
		ID:        uuid.New(),
		TenantID:  p.TenantID,
		ClientID:  p.ClientID,
		ProjectID: p.ProjectID,
		Kind:      p.Kind,
		Number:    p.Number,
		Status:    StatusDraft,
		IssueDate: p.IssueDate,
		DueDate:   p.DueDate,
		TaxBps:    p.TaxBps,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := doc.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid document")
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		return nil, apperrors.DatabaseError("failed to create document", err)
	}
	return doc, nil
}

// Get retrieves a document with its line items.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*Document, error) {
	return s.repo.GetDocument(ctx, tenantID, id)
}

// List lists a tenant's documents.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]*Document, error) {
	return s.repo.ListDocuments(ctx, tenantID)
}

// DetailsUpdate carries optional field updates for a draft document.
type DetailsUpdate struct {
	ClientID  *uuid.UUID
	ProjectID *uuid.UUID
	Number    *string
	IssueDate *time.Time
	DueDate   *time.Time
	TaxBps    *int64
}

// UpdateDetails mutates client/project references, dates and the tax rate.
// Rejected with DOCUMENT_LOCKED once the document is locked.
func (s *Service) UpdateDetails(ctx context.Context, tenantID, documentID uuid.UUID, upd DetailsUpdate) (*Document, error) {
	var result *Document
	err := s.withTx(ctx, func(ctx context.Context) error {
		doc, err := s.guardedDocument(ctx, tenantID, documentID)
		if err != nil {
			return err
		}

		if upd.ClientID != nil {
			doc.ClientID = *upd.ClientID
		}
		if upd.ProjectID != nil {
			doc.ProjectID = upd.ProjectID
		}
		if upd.Number != nil {
			doc.Number = *upd.Number
		}
		if upd.IssueDate != nil {
			doc.IssueDate = *upd.IssueDate
		}
		if upd.DueDate != nil {
			doc.DueDate = *upd.DueDate
		}
		if upd.TaxBps != nil {
			doc.TaxBps = *upd.TaxBps
		}
		if err := doc.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid document update")
		}
		if err := doc.ComputeTotals(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "failed to compute totals")
		}
		doc.BalanceDue = doc.Total
		doc.UpdatedAt = time.Now().UTC()

		if err := s.repo.UpdateDocument(ctx, doc); err != nil {
			return apperrors.DatabaseError("failed to update document", err)
		}
		result = doc
		return nil
	})
	return result, err
}

// AddLineItem appends a line item to a draft document.
func (s *Service) AddLineItem(ctx context.Context, tenantID, documentID uuid.UUID, description string, quantity int64, unitAmount money.Money) (*LineItem, error) {
	var result *LineItem
	err := s.withTx(ctx, func(ctx context.Context) error {
		doc, err := s.guardedDocument(ctx, tenantID, documentID)
		if err != nil {
			return err
		}

		item := &LineItem{
			ID:          uuid.New(),
			DocumentID:  doc.ID,
			Description: description,
			Quantity:    quantity,
			UnitAmount:  unitAmount,
			Amount:      unitAmount * money.Money(quantity),
			Position:    nextPosition(doc),
		}
		if err := item.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid line item")
		}
		if err := s.repo.CreateLineItem(ctx, item); err != nil {
			return apperrors.DatabaseError("failed to create line item", err)
		}

		doc.LineItems = append(doc.LineItems, item)
		if err := s.refreshDraftTotals(ctx, doc); err != nil {
			return err
		}
		result = item
		return nil
	})
	return result, err
}

// UpdateLineItem mutates a line item on a draft document.
func (s *Service) UpdateLineItem(ctx context.Context, tenantID, documentID, itemID uuid.UUID, description string, quantity int64, unitAmount money.Money) (*LineItem, error) {
	var result *LineItem
	err := s.withTx(ctx, func(ctx context.Context) error {
		doc, err := s.guardedDocument(ctx, tenantID, documentID)
		if err != nil {
			return err
		}

		item := findLineItem(doc, itemID)
		if item == nil {
			return apperrors.Wrap(ErrLineItemNotFound, apperrors.ErrCodeNotFound, "line item not found")
		}

		item.Description = description
		item.Quantity = quantity
		item.UnitAmount = unitAmount
		item.Amount = unitAmount * money.Money(quantity)
		if err := item.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid line item")
		}
		if err := s.repo.UpdateLineItem(ctx, item); err != nil {
			return apperrors.DatabaseError("failed to update line item", err)
		}

		if err := s.refreshDraftTotals(ctx, doc); err != nil {
			return err
		}
		result = item
		return nil
	})
	return result, err
}

// RemoveLineItem tombstones a line item on a draft document.
func (s *Service) RemoveLineItem(ctx context.Context, tenantID, documentID, itemID uuid.UUID) error {
	return s.withTx(ctx, func(ctx context.Context) error {
		doc, err := s.guardedDocument(ctx, tenantID, documentID)
		if err != nil {
			return err
		}

		item := findLineItem(doc, itemID)
		if item == nil {
			return apperrors.Wrap(ErrLineItemNotFound, apperrors.ErrCodeNotFound, "line item not found")
		}

		now := time.Now().UTC()
		item.DeletedAt = &now
		if err := s.repo.UpdateLineItem(ctx, item); err != nil {
			return apperrors.DatabaseError("failed to remove line item", err)
		}

		return s.refreshDraftTotals(ctx, doc)
	})
}

// MarkSent transitions Draft to Sent: totals are computed from line items
// one final time and frozen, and for invoices the journal entry is posted
// (debit accounts receivable for the total, credit revenue and tax
// payable). Already-sent documents are a no-op.
func (s *Service) MarkSent(ctx context.Context, tenantID, documentID uuid.UUID) (*Document, error) {
	var result *Document
	err := s.withTx(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetDocumentForUpdate(ctx, tenantID, documentID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "document not found")
		}

		if doc.Status.AtLeast(StatusSent) && doc.Status != StatusVoid {
			result = doc
			return nil
		}
		if !CanTransition(doc.Status, StatusSent) {
			return apperrors.Conflict(fmt.Sprintf("cannot mark a %s document as sent", doc.Status))
		}

		if err := doc.ComputeTotals(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "failed to compute totals")
		}
		doc.Status = StatusSent
		doc.BalanceDue = doc.Total
		doc.UpdatedAt = time.Now().UTC()

		if err := s.repo.UpdateDocument(ctx, doc); err != nil {
			return apperrors.DatabaseError("failed to update document", err)
		}

		if doc.Kind == KindInvoice {
			lines := []*ledger.JournalLine{
				ledger.DebitLine(ledger.AccountReceivable, doc.Total),
				ledger.CreditLine(ledger.AccountRevenue, doc.Subtotal),
			}
			if doc.Tax.IsPositive() {
				lines = append(lines, ledger.CreditLine(ledger.AccountTaxPayable, doc.Tax))
			}
			memo := fmt.Sprintf("invoice %s sent", doc.Number)
			if _, err := s.journal.Post(ctx, tenantID, ledger.InvoiceSource(doc.ID), memo, lines); err != nil {
				return err
			}
		}

		result = doc
		return nil
	})
	return result, err
}

// Void transitions a document to Void. Paid documents cannot be voided,
// and neither can documents with recorded payments, credit applications
// or posted credit notes — those must be corrected additively first.
func (s *Service) Void(ctx context.Context, tenantID, documentID uuid.UUID) (*Document, error) {
	var result *Document
	err := s.withTx(ctx, func(ctx context.Context) error {
		doc, err := s.repo.GetDocumentForUpdate(ctx, tenantID, documentID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "document not found")
		}

		if doc.Status == StatusVoid {
			result = doc
			return nil
		}
		if !CanTransition(doc.Status, StatusVoid) {
			return apperrors.Conflict(fmt.Sprintf("cannot void a %s document", doc.Status))
		}

		activity, err := s.activity.DocumentActivity(ctx, tenantID, doc.ID)
		if err != nil {
			return apperrors.DatabaseError("failed to check document activity", err)
		}
		if activity.Any() {
			return apperrors.Conflict("cannot void a document with recorded payments, credit applications or posted credit notes; issue a credit note instead")
		}

		doc.Status = StatusVoid
		doc.BalanceDue = money.Zero
		doc.UpdatedAt = time.Now().UTC()
		if err := s.repo.UpdateDocument(ctx, doc); err != nil {
			return apperrors.DatabaseError("failed to update document", err)
		}
		result = doc
		return nil
	})
	return result, err
}

// RecomputeBalance re-derives balance_due from source records and writes
// the cache, advancing status forward (Sent to PartiallyPaid to Paid)
// where the new balance warrants it. Must be called inside the caller's
// transaction: the document row lock taken here spans the caller's whole
// operation.
func (s *Service) RecomputeBalance(ctx context.Context, tenantID, documentID uuid.UUID) (*Document, error) {
	doc, err := s.repo.GetDocumentForUpdate(ctx, tenantID, documentID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "document not found")
	}

	if doc.Kind != KindInvoice || doc.Status == StatusVoid {
		return doc, nil
	}
	if doc.Status == StatusDraft {
		doc.BalanceDue = doc.Total
		doc.UpdatedAt = time.Now().UTC()
		if err := s.repo.UpdateDocument(ctx, doc); err != nil {
			return nil, apperrors.DatabaseError("failed to update document", err)
		}
		return doc, nil
	}

	payments, err := s.activity.SumNetPayments(ctx, tenantID, doc.ID)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to sum payments", err)
	}
	applications, err := s.activity.SumCreditApplications(ctx, tenantID, doc.ID)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to sum credit applications", err)
	}
	reductions, err := s.activity.SumCreditNoteReductions(ctx, tenantID, doc.ID)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to sum credit note reductions", err)
	}

	balance := doc.Total - payments - applications - reductions
	if balance.IsNegative() {
		// Overpayment is routed to the credit ledger before it reaches
		// here; a negative balance means a posting defect upstream.
		return nil, apperrors.Internal(fmt.Sprintf(
			"balance for document %s would be negative: total=%s payments=%s applications=%s reductions=%s",
			doc.ID, doc.Total, payments, applications, reductions,
		), nil)
	}

	doc.BalanceDue = balance
	switch {
	case balance.IsZero() && doc.Total.IsPositive() && CanTransition(doc.Status, StatusPaid):
		doc.Status = StatusPaid
	case balance < doc.Total && doc.Status == StatusSent:
		doc.Status = StatusPartiallyPaid
	}
	doc.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateDocument(ctx, doc); err != nil {
		return nil, apperrors.DatabaseError("failed to update document", err)
	}
	return doc, nil
}

// Recalculate runs RecomputeBalance in its own transaction. Used by
// operator tooling to repair a drifted balance cache.
func (s *Service) Recalculate(ctx context.Context, tenantID, documentID uuid.UUID) (*Document, error) {
	var result *Document
	err := s.withTx(ctx, func(ctx context.Context) error {
		doc, err := s.RecomputeBalance(ctx, tenantID, documentID)
		if err != nil {
			return err
		}
		result = doc
		return nil
	})
	return result, err
}

// guardedDocument loads a document under a row lock and rejects the
// mutation if the lock invariant holds. The activity check runs inside
// the same transaction so a racing payment cannot slip between the guard
// and the write.
func (s *Service) guardedDocument(ctx context.Context, tenantID, documentID uuid.UUID) (*Document, error) {
	doc, err := s.repo.GetDocumentForUpdate(ctx, tenantID, documentID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "document not found")
	}

	activity, err := s.activity.DocumentActivity(ctx, tenantID, doc.ID)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to check document activity", err)
	}
	if locked, reason := IsLocked(doc.Status, activity); locked {
		return nil, apperrors.DocumentLocked(reason)
	}
	return doc, nil
}

// refreshDraftTotals recomputes a draft's totals after a line item change.
func (s *Service) refreshDraftTotals(ctx context.Context, doc *Document) error {
	if err := doc.ComputeTotals(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "failed to compute totals")
	}
	doc.BalanceDue = doc.Total
	doc.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateDocument(ctx, doc); err != nil {
		return apperrors.DatabaseError("failed to update document", err)
	}
	return nil
}

// nextPosition returns a position past every live line's, so an append
// after a mid-list removal never collides with a surviving line.
func nextPosition(doc *Document) int {
	next := 0
	for _, li := range doc.ActiveLineItems() {
		if li.Position >= next {
			next = li.Position + 1
		}
	}
	return next
}

func findLineItem(doc *Document, itemID uuid.UUID) *LineItem {
	for _, li := range doc.LineItems {
		if li.ID == itemID && !li.IsDeleted() {
			return li
		}
	}
	return nil
}

// withTx runs fn inside a storage transaction, rolling back on any error.
func (s *Service) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txCtx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return apperrors.DatabaseError("failed to begin transaction", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = s.repo.RollbackTx(txCtx)
		}
	}()

	if err := fn(txCtx); err != nil {
		return err
	}

	if err := s.repo.CommitTx(txCtx); err != nil {
		return apperrors.DatabaseError("failed to commit transaction", err)
	}
	committed = true
	return nil
}
