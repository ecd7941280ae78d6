package document_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	tenantID uuid.UUID
	clientID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	journal := ledger.NewService(store.Journal())
	return &fixture{
		store:    store,
		journal:  journal,
		docs:     document.NewService(store, store, journal),
		tenantID: uuid.New(),
		clientID: uuid.New(),
	}
}

func (f *fixture) createInvoice(t *testing.T, taxBps int64) *document.Document {
	t.Helper()
	doc, err := f.docs.Create(context.Background(), document.CreateParams{
		TenantID:  f.tenantID,
		ClientID:  f.clientID,
		Kind:      document.KindInvoice,
		Number:    "INV-001",
		IssueDate: time.Now().UTC(),
		DueDate:   time.Now().UTC().AddDate(0, 0, 30),
		TaxBps:    taxBps,
	})
	require.NoError(t, err)
	return doc
}

func TestCreate_StartsAsDraft(t *testing.T) {
	f := newFixture(t)
	doc := f.createInvoice(t, 0)

	assert.Equal(t, document.StatusDraft, doc.Status)
	assert.True(t, doc.Total.IsZero())
	assert.True(t, doc.BalanceDue.IsZero())
}

func TestCreate_RejectsInvalid(t *testing.T) {
	f := newFixture(t)
	_, err := f.docs.Create(context.Background(), document.CreateParams{
		TenantID: f.tenantID,
		ClientID: f.clientID,
		Kind:     document.Kind("receipt"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestAddLineItem_RefreshesDraftTotals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createInvoice(t, 1900)

	_, err := f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "design work", 2, money.FromCents(5000))
	require.NoError(t, err)

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(10000), got.Subtotal)
	assert.Equal(t, money.FromCents(1900), got.Tax)
	assert.Equal(t, money.FromCents(11900), got.Total)
	assert.Equal(t, money.FromCents(11900), got.BalanceDue)
}

func TestRemoveLineItem_Tombstones(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createInvoice(t, 0)

	li, err := f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "design work", 1, money.FromCents(5000))
	require.NoError(t, err)
	_, err = f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "hosting", 1, money.FromCents(2000))
	require.NoError(t, err)

	require.NoError(t, f.docs.RemoveLineItem(ctx, f.tenantID, doc.ID, li.ID))

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(2000), got.Total)
	assert.Len(t, got.ActiveLineItems(), 1)
}

func TestAddLineItem_PositionAfterRemoval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createInvoice(t, 0)

	first, err := f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "design work", 1, money.FromCents(5000))
	require.NoError(t, err)
	_, err = f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "hosting", 1, money.FromCents(2000))
	require.NoError(t, err)
	third, err := f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "support", 1, money.FromCents(1000))
	require.NoError(t, err)
	assert.Equal(t, 2, third.Position)

	// Removing a mid-list line must not let a later append collide with
	// a surviving line's position.
	require.NoError(t, f.docs.RemoveLineItem(ctx, f.tenantID, doc.ID, first.ID))

	added, err := f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "onboarding", 1, money.FromCents(500))
	require.NoError(t, err)
	assert.Equal(t, 3, added.Position)

	got, err := f.docs.Get(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	seen := map[int]bool{}
	for _, li := range got.ActiveLineItems() {
		assert.False(t, seen[li.Position], "duplicate position %d", li.Position)
		seen[li.Position] = true
	}
}

func TestMarkSent_FreezesTotalsAndPostsJournal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createInvoice(t, 1900)
	_, err := f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "design work", 1, money.FromCents(10000))
	require.NoError(t, err)

	sent, err := f.docs.MarkSent(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusSent, sent.Status)
	assert.Equal(t, money.FromCents(11900), sent.Total)
	assert.Equal(t, money.FromCents(11900), sent.BalanceDue)

	entry, err := f.journal.EntryForSource(ctx, f.tenantID, ledger.InvoiceSource(doc.ID))
	require.NoError(t, err)
	assert.True(t, entry.IsBalanced())
	assert.Equal(t, money.FromCents(11900), entry.DebitTotal())
}

func TestMarkSent_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createInvoice(t, 0)
	_, err := f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "design work", 1, money.FromCents(10000))
	require.NoError(t, err)

	_, err = f.docs.MarkSent(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	again, err := f.docs.MarkSent(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusSent, again.Status)

	entries, err := f.journal.EntriesForTenant(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMarkSent_EstimatePostsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.docs.Create(ctx, document.CreateParams{
		TenantID: f.tenantID,
		ClientID: f.clientID,
		Kind:     document.KindEstimate,
		Number:   "EST-001",
	})
	require.NoError(t, err)
	_, err = f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "design work", 1, money.FromCents(10000))
	require.NoError(t, err)

	_, err = f.docs.MarkSent(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)

	entries, err := f.journal.EntriesForTenant(ctx, f.tenantID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEditAfterSent_Locked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createInvoice(t, 0)
	li, err := f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "design work", 1, money.FromCents(10000))
	require.NoError(t, err)
	_, err = f.docs.MarkSent(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)

	_, err = f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "extras", 1, money.FromCents(100))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDocumentLocked))

	_, err = f.docs.UpdateLineItem(ctx, f.tenantID, doc.ID, li.ID, "design work", 2, money.FromCents(10000))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDocumentLocked))

	err = f.docs.RemoveLineItem(ctx, f.tenantID, doc.ID, li.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDocumentLocked))

	newBps := int64(500)
	_, err = f.docs.UpdateDetails(ctx, f.tenantID, doc.ID, document.DetailsUpdate{TaxBps: &newBps})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDocumentLocked))
}

func TestVoid_Draft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createInvoice(t, 0)

	voided, err := f.docs.Void(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusVoid, voided.Status)
	assert.True(t, voided.BalanceDue.IsZero())

	// Terminal: marking a void document sent is rejected.
	_, err = f.docs.MarkSent(ctx, f.tenantID, doc.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
}

func TestVoid_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createInvoice(t, 0)

	_, err := f.docs.Void(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	again, err := f.docs.Void(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusVoid, again.Status)
}

func TestRecomputeBalance_DraftTracksTotal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createInvoice(t, 0)
	_, err := f.docs.AddLineItem(ctx, f.tenantID, doc.ID, "design work", 1, money.FromCents(4000))
	require.NoError(t, err)

	got, err := f.docs.Recalculate(ctx, f.tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusDraft, got.Status)
	assert.Equal(t, got.Total, got.BalanceDue)
}

func TestGet_WrongTenant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := f.createInvoice(t, 0)

	_, err := f.docs.Get(ctx, uuid.New(), doc.ID)
	assert.Error(t, err)
}
