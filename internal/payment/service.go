package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/internal/credit"
	"github.com/keelhq/keelbooks/internal/document"
	"github.com/keelhq/keelbooks/internal/ledger"
	apperrors "github.com/keelhq/keelbooks/internal/shared/errors"
	"github.com/keelhq/keelbooks/pkg/money"
)

// Service records payments and refunds. Both are treated as plain
// business events: the caller (webhook handler, staff action) has
// already verified their authenticity. Every operation is a single
// transaction holding row locks on the records it derives from.
type Service struct {
	repo    Repository
	journal *ledger.Service
	docs    *document.Service
	credits *credit.Service
}

// NewService creates a new payment service
func NewService(repo Repository, journal *ledger.Service, docs *document.Service, credits *credit.Service) *Service {
	return &Service{
		repo:    repo,
		journal: journal,
		docs:    docs,
		credits: credits,
	}
}

// RecordPayment records a payment against a sent invoice. paymentID is
// the event's identity when the caller has one (the gateway's payment
// ID); a retried webhook resubmitting the same event is absorbed. Pass
// uuid.Nil for a manual payment with no external identity and a fresh
// ID is assigned.
//
// The gross amount is allocated to accounts receivable up to the
// invoice's open balance; any excess is routed to the client's credit
// ledger so the invoice balance never goes negative. Posts one balanced
// journal entry (debit cash; credit AR and, for overpayment, credit
// client credit) and recomputes the invoice balance.
func (s *Service) RecordPayment(ctx context.Context, tenantID, documentID, paymentID uuid.UUID, amount money.Money, method Method) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, apperrors.Validation("payment amount must be positive")
	}

	var result *Payment
	err := s.withTx(ctx, func(ctx context.Context) error {
		if paymentID != uuid.Nil {
			if existing, err := s.repo.GetPayment(ctx, tenantID, paymentID); err == nil {
				result = existing
				return nil
			} else if !errors.Is(err, ErrPaymentNotFound) {
				return apperrors.DatabaseError("failed to check for existing payment", err)
			}
		}

		// Row-locks the document and yields a fresh balance to allocate
		// against.
		doc, err := s.docs.RecomputeBalance(ctx, tenantID, documentID)
		if err != nil {
			return err
		}
		if doc.Kind != document.KindInvoice {
			return apperrors.Validation("payments can only be recorded against invoices")
		}
		if doc.Status == document.StatusDraft {
			return apperrors.Conflict("cannot record a payment against a draft invoice; mark it sent first")
		}
		if doc.Status == document.StatusVoid {
			return apperrors.Conflict("cannot record a payment against a void invoice")
		}

		arApplied := amount.Min(doc.BalanceDue)
		excess := amount - arApplied

		id := paymentID
		if id == uuid.Nil {
			id = uuid.New()
		}
		now := time.Now().UTC()
		p := &Payment{
			ID:            id,
			TenantID:      tenantID,
			ClientID:      doc.ClientID,
			DocumentID:    doc.ID,
			Amount:        amount,
			ARApplied:     arApplied,
			CreditApplied: excess,
			Method:        method,
			Status:        StatusSucceeded,
			ReceivedAt:    now,
			CreatedAt:     now,
		}
		if err := p.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid payment")
		}
		if err := s.repo.CreatePayment(ctx, p); err != nil {
			return apperrors.DatabaseError("failed to create payment", err)
		}

		if excess.IsPositive() {
			if _, err := s.credits.Append(ctx, tenantID, doc.ClientID, excess, credit.ReasonOverpayment, p.ID); err != nil {
				return err
			}
		}

		lines := []*ledger.JournalLine{
			ledger.DebitLine(ledger.AccountCash, amount),
		}
		if arApplied.IsPositive() {
			lines = append(lines, ledger.CreditLine(ledger.AccountReceivable, arApplied))
		}
		if excess.IsPositive() {
			lines = append(lines, ledger.CreditLine(ledger.AccountClientCredit, excess))
		}
		memo := fmt.Sprintf("payment received for invoice %s", doc.Number)
		if _, err := s.journal.Post(ctx, tenantID, ledger.PaymentSource(p.ID), memo, lines); err != nil {
			return err
		}

		if _, err := s.docs.RecomputeBalance(ctx, tenantID, doc.ID); err != nil {
			return err
		}

		result = p
		return nil
	})
	return result, err
}

// RecordRefund records one refund event against a payment. refundID is
// the event's identity (the gateway's refund ID, or a fresh UUID for a
// manual refund): a retried webhook resubmitting the same event is
// detected by it and absorbed without touching any state, so
// refunded_amount increments exactly once per event.
//
// The refund reverses the original payment's AR/credit allocation in the
// same ratio: arShare = floor(amount * ARApplied / Amount), with the
// remainder attributed to the credit side, so the shares always sum to
// the refunded amount exactly.
func (s *Service) RecordRefund(ctx context.Context, tenantID, paymentID, refundID uuid.UUID, amount money.Money) (*Refund, error) {
	if !amount.IsPositive() {
		return nil, apperrors.Validation("refund amount must be positive")
	}
	if refundID == uuid.Nil {
		return nil, apperrors.Validation("refund ID is required")
	}

	var result *Refund
	err := s.withTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetPaymentForUpdate(ctx, tenantID, paymentID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "payment not found")
		}

		if existing, err := s.repo.GetRefund(ctx, tenantID, refundID); err == nil {
			result = existing
			return nil
		} else if !errors.Is(err, ErrRefundNotFound) {
			return apperrors.DatabaseError("failed to check for existing refund", err)
		}

		if p.RefundedAmount+amount > p.Amount {
			return apperrors.OverRefund(fmt.Sprintf(
				"payment of %s already refunded %s; cannot refund another %s",
				p.Amount, p.RefundedAmount, amount,
			))
		}

		arShare, creditShare, err := money.Split(amount, p.ARApplied, p.Amount)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "failed to prorate refund")
		}

		r := &Refund{
			ID:          refundID,
			TenantID:    tenantID,
			PaymentID:   p.ID,
			Amount:      amount,
			ARShare:     arShare,
			CreditShare: creditShare,
			CreatedAt:   time.Now().UTC(),
		}
		if err := r.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid refund")
		}
		if err := s.repo.CreateRefund(ctx, r); err != nil {
			return apperrors.DatabaseError("failed to create refund", err)
		}

		p.RefundedAmount += amount
		if err := s.repo.UpdateRefundedAmount(ctx, p); err != nil {
			return apperrors.DatabaseError("failed to update refunded amount", err)
		}

		if creditShare.IsPositive() {
			// The credit-liability share was granted to the client as
			// credit; refunding it in cash takes the credit back.
			if _, err := s.credits.Append(ctx, tenantID, p.ClientID, -creditShare, credit.ReasonRefundReversal, r.ID); err != nil {
				return err
			}
		}

		lines := make([]*ledger.JournalLine, 0, 3)
		if arShare.IsPositive() {
			lines = append(lines, ledger.DebitLine(ledger.AccountReceivable, arShare))
		}
		if creditShare.IsPositive() {
			lines = append(lines, ledger.DebitLine(ledger.AccountClientCredit, creditShare))
		}
		lines = append(lines, ledger.CreditLine(ledger.AccountCash, amount))
		memo := fmt.Sprintf("refund issued against payment %s", p.ID)
		if _, err := s.journal.Post(ctx, tenantID, ledger.RefundSource(r.ID), memo, lines); err != nil {
			return err
		}

		if _, err := s.docs.RecomputeBalance(ctx, tenantID, p.DocumentID); err != nil {
			return err
		}

		result = r
		return nil
	})
	return result, err
}

// GetPayment retrieves a payment.
func (s *Service) GetPayment(ctx context.Context, tenantID, id uuid.UUID) (*Payment, error) {
	return s.repo.GetPayment(ctx, tenantID, id)
}

// ListPayments lists a tenant's payments.
func (s *Service) ListPayments(ctx context.Context, tenantID uuid.UUID) ([]*Payment, error) {
	return s.repo.ListPayments(ctx, tenantID)
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
