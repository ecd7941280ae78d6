package creditnote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/internal/credit"
	"github.com/keelhq/keelbooks/internal/document"
	"github.com/keelhq/keelbooks/internal/ledger"
	apperrors "github.com/keelhq/keelbooks/internal/shared/errors"
)

// Service manages credit notes. Notes are drafted freely, then posted
// exactly once; posting assigns the note's number, writes its journal
// entry and delivers the value either to the invoice's balance or to
// the client's credit ledger.
type Service struct {
	repo     Repository
	sequence NumberSequence
	journal  *ledger.Service
	docs     *document.Service
	credits  *credit.Service
}

// NewService creates a new credit note service
func NewService(repo Repository, sequence NumberSequence, journal *ledger.Service, docs *document.Service, credits *credit.Service) *Service {
	return &Service{
		repo:     repo,
		sequence: sequence,
		journal:  journal,
		docs:     docs,
		credits:  credits,
	}
}

// CreateParams are the inputs for drafting a credit note.
type CreateParams struct {
	DocumentID uuid.UUID
	Kind       Kind
	Reason     string
	TaxBps     int64
	Lines      []*Line
}

// Create drafts a credit note against a sent invoice. The draft carries
// no financial effect until posted.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, params CreateParams) (*CreditNote, error) {
	doc, err := s.docs.Get(ctx, tenantID, params.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.Kind != document.KindInvoice {
		return nil, apperrors.Validation("credit notes can only be issued against invoices")
	}
	if doc.Status == document.StatusDraft {
		return nil, apperrors.Conflict("cannot issue a credit note against a draft invoice")
	}
	if doc.Status == document.StatusVoid {
		return nil, apperrors.Conflict("cannot issue a credit note against a void invoice")
	}

	now := time.Now().UTC()
	cn := &CreditNote{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ClientID:   doc.ClientID,
		DocumentID: doc.ID,
		Kind:       params.Kind,
		Status:     StatusDraft,
		Reason:     params.Reason,
		TaxBps:     params.TaxBps,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, l := range params.Lines {
		cn.Lines = append(cn.Lines, &Line{
			ID:           uuid.New(),
			CreditNoteID: cn.ID,
			Description:  l.Description,
			Quantity:     l.Quantity,
			UnitAmount:   l.UnitAmount,
			CreatedAt:    now,
		})
	}
	if err := cn.ComputeTotals(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid credit note totals")
	}

	if err := cn.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid credit note")
	}
	if err := s.repo.CreateCreditNote(ctx, cn); err != nil {
		return nil, apperrors.DatabaseError("failed to create credit note", err)
	}
	return cn, nil
}

// Post finalizes a draft credit note: assigns its number, writes the
// reversing journal entry and applies the value per the note's kind.
// Posting an already-posted note returns it unchanged.
func (s *Service) Post(ctx context.Context, tenantID, noteID uuid.UUID) (*CreditNote, error) {
	var result *CreditNote
	err := s.withTx(ctx, func(ctx context.Context) error {
		cn, err := s.repo.GetCreditNoteForUpdate(ctx, tenantID, noteID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "credit note not found")
		}
		if cn.Status == StatusPosted {
			result = cn
			return nil
		}

		if err := cn.ComputeTotals(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid credit note totals")
		}
		if !cn.Total.IsPositive() {
			return apperrors.Validation("credit note total must be positive to post")
		}

		doc, err := s.docs.Get(ctx, tenantID, cn.DocumentID)
		if err != nil {
			return err
		}
		if doc.Status == document.StatusVoid {
			return apperrors.Conflict("cannot post a credit note against a void invoice")
		}
		if cn.Kind == KindReduceAR {
			doc, err = s.docs.RecomputeBalance(ctx, tenantID, cn.DocumentID)
			if err != nil {
				return err
			}
			if cn.Total > doc.BalanceDue {
				return apperrors.OverApplication(fmt.Sprintf(
					"invoice balance due is %s, cannot reduce by %s", doc.BalanceDue, cn.Total,
				))
			}
		}

		now := time.Now().UTC()
		period := now.Format("200601")
		seq, err := s.sequence.Next(ctx, tenantID, period)
		if err != nil {
			return apperrors.DatabaseError("failed to allocate credit note number", err)
		}
		cn.Number = FormatNumber(period, seq)
		cn.Status = StatusPosted
		cn.PostedAt = &now
		cn.UpdatedAt = now
		if err := s.repo.UpdateCreditNote(ctx, cn); err != nil {
			return apperrors.DatabaseError("failed to update credit note", err)
		}

		lines := []*ledger.JournalLine{
			ledger.DebitLine(ledger.AccountSalesReturns, cn.Subtotal),
		}
		if cn.Tax.IsPositive() {
			lines = append(lines, ledger.DebitLine(ledger.AccountTaxPayable, cn.Tax))
		}
		switch cn.Kind {
		case KindReduceAR:
			lines = append(lines, ledger.CreditLine(ledger.AccountReceivable, cn.Total))
		case KindIssueCredit:
			lines = append(lines, ledger.CreditLine(ledger.AccountClientCredit, cn.Total))
		}
		memo := fmt.Sprintf("credit note %s against invoice %s", cn.Number, doc.Number)
		if _, err := s.journal.Post(ctx, tenantID, ledger.CreditNoteSource(cn.ID), memo, lines); err != nil {
			return err
		}

		switch cn.Kind {
		case KindReduceAR:
			if _, err := s.docs.RecomputeBalance(ctx, tenantID, cn.DocumentID); err != nil {
				return err
			}
		case KindIssueCredit:
			if _, err := s.credits.Append(ctx, tenantID, cn.ClientID, cn.Total, credit.ReasonCreditNote, cn.ID); err != nil {
				return err
			}
		}

		result = cn
		return nil
	})
	return result, err
}

// Get retrieves a credit note.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*CreditNote, error) {
	return s.repo.GetCreditNote(ctx, tenantID, id)
}

// List lists a tenant's credit notes.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]*CreditNote, error) {
	return s.repo.ListCreditNotes(ctx, tenantID)
}

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
