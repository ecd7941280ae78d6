package payable

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/internal/ledger"
	apperrors "github.com/keelhq/keelbooks/internal/shared/errors"
	"github.com/keelhq/keelbooks/pkg/money"
)

// Service records vendor bills and payments against them.
type Service struct {
	repo    Repository
	journal *ledger.Service
}

// NewService creates a new payable service
func NewService(repo Repository, journal *ledger.Service) *Service {
	return &Service{
		repo:    repo,
		journal: journal,
	}
}

// BillParams are the inputs for recording a bill.
type BillParams struct {
	VendorName string
	Reference  string
	Amount     money.Money
	DueAt      *time.Time
}

// RecordBill records a vendor bill and posts the expense against
// accounts payable.
func (s *Service) RecordBill(ctx context.Context, tenantID uuid.UUID, params BillParams) (*Bill, error) {
	var result *Bill
	err := s.withTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		bill := &Bill{
			ID:         uuid.New(),
			TenantID:   tenantID,
			VendorName: params.VendorName,
			Reference:  params.Reference,
			Amount:     params.Amount,
			Status:     StatusOpen,
			DueAt:      params.DueAt,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := bill.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid bill")
		}
		if err := s.repo.CreateBill(ctx, bill); err != nil {
			return apperrors.DatabaseError("failed to create bill", err)
		}

		memo := fmt.Sprintf("bill from %s", bill.VendorName)
		lines := []*ledger.JournalLine{
			ledger.DebitLine(ledger.AccountExpense, bill.Amount),
			ledger.CreditLine(ledger.AccountPayable, bill.Amount),
		}
		if _, err := s.journal.Post(ctx, tenantID, ledger.BillSource(bill.ID), memo, lines); err != nil {
			return err
		}

		result = bill
		return nil
	})
	return result, err
}

// PayBill records a payment against an open bill. Cumulative payments
// cannot exceed the bill amount; the bill flips to partially paid or
// paid as the outstanding balance shrinks.
func (s *Service) PayBill(ctx context.Context, tenantID, billID uuid.UUID, amount money.Money) (*BillPayment, error) {
	if !amount.IsPositive() {
		return nil, apperrors.Validation("payment amount must be positive")
	}

	var result *BillPayment
	err := s.withTx(ctx, func(ctx context.Context) error {
		bill, err := s.repo.GetBillForUpdate(ctx, tenantID, billID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "bill not found")
		}
		if amount > bill.Outstanding() {
			return apperrors.Conflict(fmt.Sprintf(
				"payment of %s exceeds outstanding balance %s", amount, bill.Outstanding(),
			))
		}

		now := time.Now().UTC()
		payment := &BillPayment{
			ID:        uuid.New(),
			TenantID:  tenantID,
			BillID:    bill.ID,
			Amount:    amount,
			PaidAt:    now,
			CreatedAt: now,
		}
		if err := payment.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid bill payment")
		}
		if err := s.repo.CreateBillPayment(ctx, payment); err != nil {
			return apperrors.DatabaseError("failed to create bill payment", err)
		}

		bill.PaidAmount += amount
		if bill.PaidAmount == bill.Amount {
			bill.Status = StatusPaid
		} else {
			bill.Status = StatusPartiallyPaid
		}
		bill.UpdatedAt = now
		if err := s.repo.UpdateBill(ctx, bill); err != nil {
			return apperrors.DatabaseError("failed to update bill", err)
		}

		memo := fmt.Sprintf("payment to %s", bill.VendorName)
		lines := []*ledger.JournalLine{
			ledger.DebitLine(ledger.AccountPayable, amount),
			ledger.CreditLine(ledger.AccountCash, amount),
		}
		if _, err := s.journal.Post(ctx, tenantID, ledger.BillPaymentSource(payment.ID), memo, lines); err != nil {
			return err
		}

		result = payment
		return nil
	})
	return result, err
}

// GetBill retrieves a bill.
func (s *Service) GetBill(ctx context.Context, tenantID, id uuid.UUID) (*Bill, error) {
	return s.repo.GetBill(ctx, tenantID, id)
}

// ListBills lists a tenant's bills.
func (s *Service) ListBills(ctx context.Context, tenantID uuid.UUID) ([]*Bill, error) {
	return s.repo.ListBills(ctx, tenantID)
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
