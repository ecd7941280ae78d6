package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keelhq/keelbooks/internal/document"
	"github.com/keelhq/keelbooks/internal/ledger"
	apperrors "github.com/keelhq/keelbooks/internal/shared/errors"
	"github.com/keelhq/keelbooks/pkg/money"
)

// Service manages the client credit ledger and its application to
// invoices. The ledger sum is the authoritative balance; the cached
// client rollup is refreshed after every durable ledger write.
type Service struct {
	repo    Repository
	journal *ledger.Service
	docs    *document.Service
}

// NewService creates a new credit service
func NewService(repo Repository, journal *ledger.Service, docs *document.Service) *Service {
	return &Service{
		repo:    repo,
		journal: journal,
		docs:    docs,
	}
}

// CreateClient registers a client with a zero credit balance.
func (s *Service) CreateClient(ctx context.Context, tenantID uuid.UUID, name string) (*Client, error) {
	now := time.Now().UTC()
	client := &Client{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateClient(ctx, client); err != nil {
		return nil, apperrors.DatabaseError("failed to create client", err)
	}
	return client, nil
}

// GetClient retrieves a client.
func (s *Service) GetClient(ctx context.Context, tenantID, clientID uuid.UUID) (*Client, error) {
	return s.repo.GetClient(ctx, tenantID, clientID)
}

// Balance returns the authoritative credit balance: the sum of the
// client's ledger entries. Readers needing strong correctness use this,
// never the cached rollup.
func (s *Service) Balance(ctx context.Context, tenantID, clientID uuid.UUID) (money.Money, error) {
	return s.repo.SumEntries(ctx, tenantID, clientID)
}

// Append records one signed delta in a client's credit ledger and
// refreshes the cached rollup. Runs inside the caller's transaction:
// the client row lock taken here spans the caller's whole operation.
// A delta that would take the balance negative fails with
// INSUFFICIENT_CREDIT.
func (s *Service) Append(ctx context.Context, tenantID, clientID uuid.UUID, delta money.Money, reason Reason, sourceID uuid.UUID) (*LedgerEntry, error) {
	if _, err := s.repo.GetClientForUpdate(ctx, tenantID, clientID); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "client not found")
	}

	balance, err := s.repo.SumEntries(ctx, tenantID, clientID)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to sum credit ledger", err)
	}
	newBalance := balance + delta
	if newBalance.IsNegative() {
		return nil, apperrors.InsufficientCredit(fmt.Sprintf(
			"credit balance %s cannot absorb delta %s", balance, delta,
		))
	}

	entry := &LedgerEntry{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ClientID:  clientID,
		Amount:    delta,
		Reason:    reason,
		SourceID:  sourceID,
		CreatedAt: time.Now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid credit entry")
	}
	if err := s.repo.AppendEntry(ctx, entry); err != nil {
		return nil, apperrors.DatabaseError("failed to append credit entry", err)
	}

	// Rollup is a cache write after the durable ledger append, never before.
	if err := s.repo.UpdateClientCreditRollup(ctx, tenantID, clientID, newBalance); err != nil {
		return nil, apperrors.DatabaseError("failed to refresh credit rollup", err)
	}

	return entry, nil
}

// ApplyCredit applies part of a client's credit balance to an invoice:
// one negative ledger entry, one immutable application row, one balanced
// journal entry (debit credit liability, credit accounts receivable),
// and a balance recompute on the invoice — all in a single transaction.
func (s *Service) ApplyCredit(ctx context.Context, tenantID, clientID, documentID uuid.UUID, amount money.Money) (*Application, error) {
	if !amount.IsPositive() {
		return nil, apperrors.Validation("credit application amount must be positive")
	}

	var result *Application
	err := s.withTx(ctx, func(ctx context.Context) error {
		// Lock the client first, then the document: every credit path
		// takes rows in this order.
		if _, err := s.repo.GetClientForUpdate(ctx, tenantID, clientID); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "client not found")
		}

		balance, err := s.repo.SumEntries(ctx, tenantID, clientID)
		if err != nil {
			return apperrors.DatabaseError("failed to sum credit ledger", err)
		}
		if amount > balance {
			return apperrors.InsufficientCredit(fmt.Sprintf(
				"credit balance is %s, cannot apply %s", balance, amount,
			))
		}

		doc, err := s.docs.RecomputeBalance(ctx, tenantID, documentID)
		if err != nil {
			return err
		}
		if doc.Kind != document.KindInvoice {
			return apperrors.Validation("credit can only be applied to invoices")
		}
		if doc.ClientID != clientID {
			return apperrors.Validation("invoice does not belong to this client")
		}
		if !doc.Status.AtLeast(document.StatusSent) || doc.Status == document.StatusVoid {
			return apperrors.Conflict(fmt.Sprintf("cannot apply credit to a %s invoice", doc.Status))
		}
		if amount > doc.BalanceDue {
			return apperrors.OverApplication(fmt.Sprintf(
				"invoice balance due is %s, cannot apply %s", doc.BalanceDue, amount,
			))
		}

		app := &Application{
			ID:         uuid.New(),
			TenantID:   tenantID,
			ClientID:   clientID,
			DocumentID: documentID,
			Amount:     amount,
			CreatedAt:  time.Now().UTC(),
		}

		if _, err := s.Append(ctx, tenantID, clientID, -amount, ReasonAppliedToInvoice, app.ID); err != nil {
			return err
		}
		if err := s.repo.CreateApplication(ctx, app); err != nil {
			return apperrors.DatabaseError("failed to create credit application", err)
		}

		lines := []*ledger.JournalLine{
			ledger.DebitLine(ledger.AccountClientCredit, amount),
			ledger.CreditLine(ledger.AccountReceivable, amount),
		}
		memo := fmt.Sprintf("credit applied to invoice %s", doc.Number)
		if _, err := s.journal.Post(ctx, tenantID, ledger.CreditApplicationSource(app.ID), memo, lines); err != nil {
			return err
		}

		if _, err := s.docs.RecomputeBalance(ctx, tenantID, documentID); err != nil {
			return err
		}

		result = app
		return nil
	})
	return result, err
}

// Grant adds credit to a client outside any payment flow (a goodwill or
// promotional grant). Runs in its own transaction.
func (s *Service) Grant(ctx context.Context, tenantID, clientID uuid.UUID, amount money.Money) (*LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, apperrors.Validation("credit grant amount must be positive")
	}
	var result *LedgerEntry
	err := s.withTx(ctx, func(ctx context.Context) error {
		entry, err := s.Append(ctx, tenantID, clientID, amount, ReasonManualGrant, clientID)
		if err != nil {
			return err
		}
		result = entry
		return nil
	})
	return result, err
}

// RefreshRollup rewrites the cached rollup from the ledger sum. Used by
// the operator recalculate action.
func (s *Service) RefreshRollup(ctx context.Context, tenantID, clientID uuid.UUID) (money.Money, error) {
	var balance money.Money
	err := s.withTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetClientForUpdate(ctx, tenantID, clientID); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "client not found")
		}
		sum, err := s.repo.SumEntries(ctx, tenantID, clientID)
		if err != nil {
			return apperrors.DatabaseError("failed to sum credit ledger", err)
		}
		if err := s.repo.UpdateClientCreditRollup(ctx, tenantID, clientID, sum); err != nil {
			return apperrors.DatabaseError("failed to refresh credit rollup", err)
		}
		balance = sum
		return nil
	})
	return balance, err
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
