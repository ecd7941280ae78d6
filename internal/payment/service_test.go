package payment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keelhq/keelbooks/internal/credit"
	"github.com/keelhq/keelbooks/internal/document"
	"github.com/keelhq/keelbooks/internal/infra/memory"
	"github.com/keelhq/keelbooks/internal/ledger"
	"github.com/keelhq/keelbooks/internal/payment"
	apperrors "github.com/keelhq/keelbooks/internal/shared/errors"
	"github.com/keelhq/keelbooks/pkg/money"
)

type fixture struct {
	store    *memory.Store
	journal  *ledger.Service
	docs     *document.Service
	credits  *credit.Service
	payments *payment.Service
	tenantID uuid.UUID
	clientID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	journal := ledger.NewService(store.Journal())
	docs := document.NewService(store, store, journal)
	credits := credit.NewService(store, journal, docs)

	tenantID := uuid.New()
	client, err := credits.CreateClient(context.Background(), tenantID, "Acme Corp")
	require.NoError(t, err)

	return &fixture{
		store:    store,
		journal:  journal,
		docs:     docs,
		credits:  credits,
		payments: payment.NewService(store, journal, docs, credits),
		tenantID: tenantID,
		clientID: client.ID,
	}
}

func (f *fixture) sentInvoice(t *testing.T, total money.Money) *document.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := f.docs.Create(ctx, document.CreateParams{
		TenantID:  f.tenantID,
		ClientID:  f.clientID,
		Kind:      document.KindInvoice,
		Number:    "INV-200",
		IssueDate: time.Now().UTC(),
		DueDate:   time.Now().UTC().AddDate(0, 0, 14),
	})
	require.NoError(t, err)
	_, err = f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "services", 1, total)
	require.NoError(t, err)
	sent, err := f.docs.MarkSent(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	return sent
}

func TestRecordPayment_Partial(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.sentInvoice(t, money.FromCents(10000))

	p, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.FromCents(6000), payment.MethodCard)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(6000), p.ARApplied)
	assert.True(t, p.CreditApplied.IsZero())
	assert.Equal(t, payment.StatusSucceeded, p.Status)

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(4000), got.BalanceDue)
	assert.Equal(t, document.StatusPartiallyPaid, got.Status)

	entry, err := f.journal.EntryForSource(ctx, f.tenantID, ledger.PaymentSource(p.ID))
	require.NoError(t, err)
	assert.True(t, entry.IsBalanced())
}

func TestRecordPayment_PaysInFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.sentInvoice(t, money.FromCents(10000))

	_, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.FromCents(10000), payment.MethodBank)
	require.NoError(t, err)

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusPaid, got.Status)
	assert.True(t, got.BalanceDue.IsZero())
}

func TestRecordPayment_DuplicateEventAbsorbed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.sentInvoice(t, money.FromCents(10000))
	eventID := uuid.New()

	first, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, eventID, money.FromCents(6000), payment.MethodCard)
	require.NoError(t, err)

	// The retried webhook resubmits the same event and is absorbed.
	again, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, eventID, money.FromCents(6000), payment.MethodCard)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	all, err := f.payments.ListPayments(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(4000), got.BalanceDue)
	assert.Equal(t, document.StatusPartiallyPaid, got.Status)
}

func TestRecordPayment_OverpaymentBecomesCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.sentInvoice(t, money.FromCents(10000))

	p, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.FromCents(12500), payment.MethodCard)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(10000), p.ARApplied)
	assert.Equal(t, money.FromCents(2500), p.CreditApplied)

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusPaid, got.Status)
	assert.True(t, got.BalanceDue.IsZero())

	// The excess lands in the client credit ledger, not a negative balance.
	balance, err := f.credits.Balance(ctx, f.tenantID, f.clientID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(2500), balance)
}

func TestRecordPayment_DraftRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.docs.Create(ctx, document.CreateParams{
		TenantID: f.tenantID,
		ClientID: f.clientID,
		Kind:     document.KindInvoice,
	})
	require.NoError(t, err)

	_, err = f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.FromCents(100), payment.MethodCash)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
}

func TestRecordPayment_EstimateRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.docs.Create(ctx, document.CreateParams{
		TenantID: f.tenantID,
		ClientID: f.clientID,
		Kind:     document.KindEstimate,
	})
	require.NoError(t, err)

	_, err = f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.FromCents(100), payment.MethodCash)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestRecordPayment_NonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.sentInvoice(t, money.FromCents(1000))

	_, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.Zero, payment.MethodCash)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestRecordRefund_RestoresBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.sentInvoice(t, money.FromCents(10000))

	p, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.FromCents(6000), payment.MethodCard)
	require.NoError(t, err)

	r, err := f.payments.RecordRefund(ctx, f.tenantID, p.ID, uuid.New(), money.FromCents(3000))
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(3000), r.ARShare)
	assert.True(t, r.CreditShare.IsZero())

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(7000), got.BalanceDue)

	updated, err := f.payments.GetPayment(ctx, f.tenantID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(3000), updated.RefundedAmount)
	assert.Equal(t, money.FromCents(3000), updated.NetAmount())
}

func TestRecordRefund_ProratesOverpaidAllocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.sentInvoice(t, money.FromCents(9000))

	// 9000 to AR, 3000 to credit.
	p, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.FromCents(12000), payment.MethodBank)
	require.NoError(t, err)

	// A 4000 refund splits 3:1 along the original allocation.
	r, err := f.payments.RecordRefund(ctx, f.tenantID, p.ID, uuid.New(), money.FromCents(4000))
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(3000), r.ARShare)
	assert.Equal(t, money.FromCents(1000), r.CreditShare)
	assert.Equal(t, r.Amount, r.ARShare+r.CreditShare)

	// The credit side of the reversal is clawed back from the ledger.
	balance, err := f.credits.Balance(ctx, f.tenantID, f.clientID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(2000), balance)

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(3000), got.BalanceDue)
}

func TestRecordRefund_SharesSumWithRemainder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.sentInvoice(t, money.FromCents(1000))

	p, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.FromCents(3000), payment.MethodCard)
	require.NoError(t, err)

	// floor(1000 * 1000 / 3000) = 333 to AR, remainder 667 to credit.
	r, err := f.payments.RecordRefund(ctx, f.tenantID, p.ID, uuid.New(), money.FromCents(1000))
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(333), r.ARShare)
	assert.Equal(t, money.FromCents(667), r.CreditShare)
}

func TestRecordRefund_DuplicateEventAbsorbed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.sentInvoice(t, money.FromCents(10000))

	p, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.FromCents(6000), payment.MethodCard)
	require.NoError(t, err)

	refundID := uuid.New()
	first, err := f.payments.RecordRefund(ctx, f.tenantID, p.ID, refundID, money.FromCents(3000))
	require.NoError(t, err)

	// A retried webhook resubmits the same event; nothing moves twice.
	second, err := f.payments.RecordRefund(ctx, f.tenantID, p.ID, refundID, money.FromCents(3000))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	updated, err := f.payments.GetPayment(ctx, f.tenantID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(3000), updated.RefundedAmount)

	refunds, err := f.store.ListRefundsForPayment(ctx, f.tenantID, p.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 1)

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(7000), got.BalanceDue)
}

func TestRecordRefund_OverRefund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.sentInvoice(t, money.FromCents(10000))

	p, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.FromCents(6000), payment.MethodCard)
	require.NoError(t, err)
	_, err = f.payments.RecordRefund(ctx, f.tenantID, p.ID, uuid.New(), money.FromCents(5000))
	require.NoError(t, err)

	_, err = f.payments.RecordRefund(ctx, f.tenantID, p.ID, uuid.New(), money.FromCents(1001))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeOverRefund))
}

func TestRecordRefund_FullThenStatusStaysPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.sentInvoice(t, money.FromCents(5000))

	p, err := f.payments.RecordPayment(ctx, f.tenantID, doc.ID, uuid.Nil, money.FromCents(5000), payment.MethodCard)
	require.NoError(t, err)

	_, err = f.payments.RecordRefund(ctx, f.tenantID, p.ID, uuid.New(), money.FromCents(5000))
	require.NoError(t, err)

	// The balance reopens but the status never walks backwards.
	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(5000), got.BalanceDue)
	assert.Equal(t, document.StatusPaid, got.Status)
}
