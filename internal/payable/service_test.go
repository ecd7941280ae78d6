package payable_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keelhq/keelbooks/internal/infra/memory"
	"github.com/keelhq/keelbooks/internal/ledger"
	"github.com/keelhq/keelbooks/internal/payable"
	apperrors "github.com/keelhq/keelbooks/internal/shared/errors"
	"github.com/keelhq/keelbooks/pkg/money"
)

type fixture struct {
	journal  *ledger.Service
	bills    *payable.Service
	tenantID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	journal := ledger.NewService(store.Journal())
	return &fixture{
		journal:  journal,
		bills:    payable.NewService(store, journal),
		tenantID: uuid.New(),
	}
}

func (f *fixture) recordBill(t *testing.T, amount money.Money) *payable.Bill {
	t.Helper()
	bill, err := f.bills.RecordBill(context.Background(), f.tenantID, payable.BillParams{
		VendorName: "Hosting Co",
		Reference:  "H-2026-08",
		Amount:     amount,
	})
	require.NoError(t, err)
	return bill
}

func TestRecordBill_PostsExpense(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bill := f.recordBill(t, money.FromCents(12000))
	assert.Equal(t, payable.StatusOpen, bill.Status)
	assert.Equal(t, money.FromCents(12000), bill.Outstanding())

	entry, err := f.journal.EntryForSource(ctx, f.tenantID, ledger.BillSource(bill.ID))
	require.NoError(t, err)
	assert.True(t, entry.IsBalanced())
	assert.Equal(t, money.FromCents(12000), entry.DebitTotal())
}

func TestRecordBill_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.bills.RecordBill(ctx, f.tenantID, payable.BillParams{
		VendorName: "Hosting Co",
		Amount:     money.Zero,
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	_, err = f.bills.RecordBill(ctx, f.tenantID, payable.BillParams{
		Amount: money.FromCents(100),
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestPayBill_PartialThenPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bill := f.recordBill(t, money.FromCents(12000))

	p, err := f.bills.PayBill(ctx, f.tenantID, bill.ID, money.FromCents(5000))
	require.NoError(t, err)

	got, err := f.bills.GetBill(ctx, f.tenantID, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, payable.StatusPartiallyPaid, got.Status)
	assert.Equal(t, money.FromCents(7000), got.Outstanding())

	entry, err := f.journal.EntryForSource(ctx, f.tenantID, ledger.BillPaymentSource(p.ID))
	require.NoError(t, err)
	assert.True(t, entry.IsBalanced())

	_, err = f.bills.PayBill(ctx, f.tenantID, bill.ID, money.FromCents(7000))
	require.NoError(t, err)

	got, err = f.bills.GetBill(ctx, f.tenantID, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, payable.StatusPaid, got.Status)
	assert.True(t, got.Outstanding().IsZero())
}

func TestPayBill_Overpayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bill := f.recordBill(t, money.FromCents(12000))

	_, err := f.bills.PayBill(ctx, f.tenantID, bill.ID, money.FromCents(12001))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))

	// Nothing was written for the rejected attempt.
	got, err := f.bills.GetBill(ctx, f.tenantID, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, payable.StatusOpen, got.Status)
}

func TestPayBill_UnknownBill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.bills.PayBill(ctx, f.tenantID, uuid.New(), money.FromCents(100))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}
