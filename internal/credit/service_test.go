package credit_test

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
	apperrors "github.com/keelhq/keelbooks/internal/shared/errors"
	"github.com/keelhq/keelbooks/pkg/money"
)

type fixture struct {
	store    *memory.Store
	journal  *ledger.Service
	docs     *document.Service
	credits  *credit.Service
	tenantID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	journal := ledger.NewService(store.Journal())
	docs := document.NewService(store, store, journal)
	return &fixture{
		store:    store,
		journal:  journal,
		docs:     docs,
		credits:  credit.NewService(store, journal, docs),
		tenantID: uuid.New(),
	}
}

func (f *fixture) createClient(t *testing.T) *credit.Client {
	t.Helper()
	client, err := f.credits.CreateClient(context.Background(), f.tenantID, "Acme Corp")
	require.NoError(t, err)
	return client
}

// sentInvoice creates an invoice for the client and marks it sent with
// the given total.
func (f *fixture) sentInvoice(t *testing.T, clientID uuid.UUID, total money.Money) *document.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := f.docs.Create(ctx, document.CreateParams{
		TenantID:  f.tenantID,
		ClientID:  clientID,
		Kind:      document.KindInvoice,
		Number:    "INV-100",
		IssueDate: time.Now().UTC(),
		DueDate:   time.Now().UTC().AddDate(0, 0, 30),
	})
	require.NoError(t, err)
	_, err = f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "services", 1, total)
	require.NoError(t, err)
	sent, err := f.docs.MarkSent(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	return sent
}

func TestGrant_IncreasesBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.createClient(t)

	entry, err := f.credits.Grant(ctx, f.tenantID, client.ID, money.FromCents(2500))
	require.NoError(t, err)
	assert.Equal(t, credit.ReasonManualGrant, entry.Reason)

	balance, err := f.credits.Balance(ctx, f.tenantID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(2500), balance)

	// The cached rollup follows the ledger.
	got, err := f.credits.GetClient(ctx, f.tenantID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(2500), got.CreditBalance)
}

func TestGrant_RejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.createClient(t)

	_, err := f.credits.Grant(ctx, f.tenantID, client.ID, money.Zero)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestGrant_UnknownClient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.credits.Grant(ctx, f.tenantID, uuid.New(), money.FromCents(100))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestApplyCredit_ReducesInvoiceBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.createClient(t)
	doc := f.sentInvoice(t, client.ID, money.FromCents(10000))

	_, err := f.credits.Grant(ctx, f.tenantID, client.ID, money.FromCents(3000))
	require.NoError(t, err)

	app, err := f.credits.ApplyCredit(ctx, f.tenantID, client.ID, doc.ID, money.FromCents(3000))
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(3000), app.Amount)

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(7000), got.BalanceDue)
	assert.Equal(t, document.StatusPartiallyPaid, got.Status)

	balance, err := f.credits.Balance(ctx, f.tenantID, client.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	entry, err := f.journal.EntryForSource(ctx, f.tenantID, ledger.CreditApplicationSource(app.ID))
	require.NoError(t, err)
	assert.True(t, entry.IsBalanced())
}

func TestApplyCredit_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.createClient(t)
	doc := f.sentInvoice(t, client.ID, money.FromCents(10000))

	_, err := f.credits.Grant(ctx, f.tenantID, client.ID, money.FromCents(1000))
	require.NoError(t, err)

	_, err = f.credits.ApplyCredit(ctx, f.tenantID, client.ID, doc.ID, money.FromCents(1001))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientCredit))
}

func TestApplyCredit_SecondApplicationExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.createClient(t)
	doc := f.sentInvoice(t, client.ID, money.FromCents(10000))

	_, err := f.credits.Grant(ctx, f.tenantID, client.ID, money.FromCents(2000))
	require.NoError(t, err)
	_, err = f.credits.ApplyCredit(ctx, f.tenantID, client.ID, doc.ID, money.FromCents(2000))
	require.NoError(t, err)

	_, err = f.credits.ApplyCredit(ctx, f.tenantID, client.ID, doc.ID, money.FromCents(1))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientCredit))
}

func TestApplyCredit_ExceedsBalanceDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.createClient(t)
	doc := f.sentInvoice(t, client.ID, money.FromCents(1000))

	_, err := f.credits.Grant(ctx, f.tenantID, client.ID, money.FromCents(5000))
	require.NoError(t, err)

	_, err = f.credits.ApplyCredit(ctx, f.tenantID, client.ID, doc.ID, money.FromCents(1500))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeOverApplication))
}

func TestApplyCredit_WrongClient(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.createClient(t)
	other := f.createClient(t)
	doc := f.sentInvoice(t, owner.ID, money.FromCents(1000))

	_, err := f.credits.Grant(ctx, f.tenantID, other.ID, money.FromCents(1000))
	require.NoError(t, err)

	_, err = f.credits.ApplyCredit(ctx, f.tenantID, other.ID, doc.ID, money.FromCents(500))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestApplyCredit_DraftInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.createClient(t)
	doc, err := f.docs.Create(ctx, document.CreateParams{
		TenantID: f.tenantID,
		ClientID: client.ID,
		Kind:     document.KindInvoice,
	})
	require.NoError(t, err)

	_, err = f.credits.Grant(ctx, f.tenantID, client.ID, money.FromCents(1000))
	require.NoError(t, err)

	_, err = f.credits.ApplyCredit(ctx, f.tenantID, client.ID, doc.ID, money.FromCents(500))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
}

func TestApplyCredit_PaysInvoiceInFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.createClient(t)
	doc := f.sentInvoice(t, client.ID, money.FromCents(4000))

	_, err := f.credits.Grant(ctx, f.tenantID, client.ID, money.FromCents(4000))
	require.NoError(t, err)
	_, err = f.credits.ApplyCredit(ctx, f.tenantID, client.ID, doc.ID, money.FromCents(4000))
	require.NoError(t, err)

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusPaid, got.Status)
	assert.True(t, got.BalanceDue.IsZero())
}

func TestRefreshRollup_RepairsDriftedCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	client := f.createClient(t)
	_, err := f.credits.Grant(ctx, f.tenantID, client.ID, money.FromCents(2500))
	require.NoError(t, err)

	// Corrupt the cached rollup directly; the ledger stays authoritative.
	require.NoError(t, f.store.UpdateClientCreditRollup(ctx, f.tenantID, client.ID, money.FromCents(99)))

	balance, err := f.credits.RefreshRollup(ctx, f.tenantID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(2500), balance)

	got, err := f.credits.GetClient(ctx, f.tenantID, client.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(2500), got.CreditBalance)
}
