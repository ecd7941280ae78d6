//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keelhq/keelbooks/internal/credit"
	"github.com/keelhq/keelbooks/internal/document"
	"github.com/keelhq/keelbooks/internal/ledger"
	"github.com/keelhq/keelbooks/pkg/money"
	"github.com/keelhq/keelbooks/testutil/testdb"
)

var testDB *testdb.TestDB

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	testDB, err = testdb.NewTestDB(ctx)
	if err != nil {
		panic("failed to create test database: " + err.Error())
	}

	code := m.Run()

	testDB.Close(ctx)
	if code != 0 {
		panic("tests failed")
	}
}

func setupTest(t *testing.T) context.Context {
	ctx := context.Background()
	require.NoError(t, testDB.Reset(ctx))
	return ctx
}

func createTestClient(t *testing.T, ctx context.Context, tenantID uuid.UUID) uuid.UUID {
	clientID := uuid.New()
	_, err := testDB.Pool.Exec(ctx, `
		INSERT INTO clients (id, tenant_id, name)
		VALUES ($1, $2, $3)
	`, clientID, tenantID, "Client "+clientID.String()[:8])
	require.NoError(t, err)
	return clientID
}

func balancedEntry(tenantID uuid.UUID, source ledger.Source, amount money.Money) *ledger.JournalEntry {
	entryID := uuid.New()
	return &ledger.JournalEntry{
		ID:       entryID,
		TenantID: tenantID,
		Source:   source,
		Memo:     "test entry",
		PostedAt: time.Now().UTC(),
		Lines: []*ledger.JournalLine{
			{ID: uuid.New(), EntryID: entryID, Account: ledger.AccountCash, Direction: ledger.Debit, Amount: amount},
			{ID: uuid.New(), EntryID: entryID, Account: ledger.AccountReceivable, Direction: ledger.Credit, Amount: amount},
		},
	}
}

// Journal tests

func TestLedgerRepository_CreateEntry_ReadBack(t *testing.T) {
	ctx := setupTest(t)
	repo := NewLedgerRepository(testDB.Pool)

	tenantID := uuid.New()
	source := ledger.PaymentSource(uuid.New())
	entry := balancedEntry(tenantID, source, money.FromCents(5000))

	require.NoError(t, repo.CreateEntry(ctx, entry))

	got, err := repo.GetEntryBySource(ctx, tenantID, source)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, source, got.Source)
	require.Len(t, got.Lines, 2)
	assert.True(t, got.IsBalanced())
}

func TestLedgerRepository_DuplicateSourceAbsorbed(t *testing.T) {
	ctx := setupTest(t)
	repo := NewLedgerRepository(testDB.Pool)

	tenantID := uuid.New()
	source := ledger.PaymentSource(uuid.New())

	first := balancedEntry(tenantID, source, money.FromCents(5000))
	require.NoError(t, repo.CreateEntry(ctx, first))

	// A second insert for the same source key must not write: no error,
	// no second entry, no orphan lines.
	second := balancedEntry(tenantID, source, money.FromCents(9999))
	require.NoError(t, repo.CreateEntry(ctx, second))

	got, err := repo.GetEntryBySource(ctx, tenantID, source)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, money.FromCents(5000), got.DebitTotal())

	entries, err := repo.ListEntries(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedgerRepository_ConcurrentSameSource(t *testing.T) {
	ctx := setupTest(t)
	repo := NewLedgerRepository(testDB.Pool)

	tenantID := uuid.New()
	source := ledger.PaymentSource(uuid.New())

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.CreateEntry(ctx, balancedEntry(tenantID, source, money.FromCents(5000)))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := repo.ListEntries(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedgerRepository_GetEntryBySource_NotFound(t *testing.T) {
	ctx := setupTest(t)
	repo := NewLedgerRepository(testDB.Pool)

	_, err := repo.GetEntryBySource(ctx, uuid.New(), ledger.BillSource(uuid.New()))
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

// Document tests

func TestDocumentRepository_CreateGetUpdate(t *testing.T) {
	ctx := setupTest(t)
	repo := NewDocumentRepository(testDB.Pool)

	tenantID := uuid.New()
	clientID := createTestClient(t, ctx, tenantID)

	now := time.Now().UTC()
	doc := &document.Document{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ClientID:  clientID,
		Kind:      document.KindInvoice,
		Number:    "INV-001",
		Status:    document.StatusDraft,
		IssueDate: now,
		DueDate:   now.AddDate(0, 0, 30),
		TaxBps:    1900,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateDocument(ctx, doc))
	require.NoError(t, repo.CreateLineItem(ctx, &document.LineItem{
		ID:          uuid.New(),
		DocumentID:  doc.ID,
		Description: "services",
		Quantity:    2,
		UnitAmount:  money.FromCents(5000),
		Amount:      money.FromCents(10000),
	}))

	got, err := repo.GetDocument(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusDraft, got.Status)
	require.Len(t, got.LineItems, 1)

	got.Status = document.StatusSent
	got.Subtotal = money.FromCents(10000)
	got.Tax = money.FromCents(1900)
	got.Total = money.FromCents(11900)
	got.BalanceDue = money.FromCents(11900)
	require.NoError(t, repo.UpdateDocument(ctx, got))

	got, err = repo.GetDocument(ctx, tenantID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, document.StatusSent, got.Status)
	assert.Equal(t, money.FromCents(11900), got.BalanceDue)
}

func TestDocumentRepository_WrongTenant(t *testing.T) {
	ctx := setupTest(t)
	repo := NewDocumentRepository(testDB.Pool)

	tenantID := uuid.New()
	clientID := createTestClient(t, ctx, tenantID)
	now := time.Now().UTC()
	doc := &document.Document{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ClientID:  clientID,
		Kind:      document.KindInvoice,
		Status:    document.StatusDraft,
		IssueDate: now,
		DueDate:   now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateDocument(ctx, doc))

	_, err := repo.GetDocument(ctx, uuid.New(), doc.ID)
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestDocumentRepository_TxRollback(t *testing.T) {
	ctx := setupTest(t)
	repo := NewDocumentRepository(testDB.Pool)

	tenantID := uuid.New()
	clientID := createTestClient(t, ctx, tenantID)
	now := time.Now().UTC()
	doc := &document.Document{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ClientID:  clientID,
		Kind:      document.KindInvoice,
		Status:    document.StatusDraft,
		IssueDate: now,
		DueDate:   now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	txCtx, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.CreateDocument(txCtx, doc))
	require.NoError(t, repo.RollbackTx(txCtx))

	_, err = repo.GetDocument(ctx, tenantID, doc.ID)
	assert.ErrorIs(t, err, document.ErrNotFound)
}

// Credit ledger tests

func TestCreditRepository_SumEntries(t *testing.T) {
	ctx := setupTest(t)
	repo := NewCreditRepository(testDB.Pool)

	tenantID := uuid.New()
	clientID := createTestClient(t, ctx, tenantID)

	deltas := []money.Money{money.FromCents(2500), money.FromCents(-1000), money.FromCents(300)}
	reasons := []credit.Reason{credit.ReasonOverpayment, credit.ReasonAppliedToInvoice, credit.ReasonCreditNote}
	for i, delta := range deltas {
		require.NoError(t, repo.AppendEntry(ctx, &credit.LedgerEntry{
			ID:        uuid.New(),
			TenantID:  tenantID,
			ClientID:  clientID,
			Amount:    delta,
			Reason:    reasons[i],
			SourceID:  uuid.New(),
			CreatedAt: time.Now().UTC(),
		}))
	}

	sum, err := repo.SumEntries(ctx, tenantID, clientID)
	require.NoError(t, err)
	assert.Equal(t, money.FromCents(1800), sum)

	// An untouched client sums to zero.
	other := createTestClient(t, ctx, tenantID)
	sum, err = repo.SumEntries(ctx, tenantID, other)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

// Credit note numbering tests

func TestNumberSequenceRepository_Next(t *testing.T) {
	ctx := setupTest(t)
	repo := NewNumberSequenceRepository(testDB.Pool)

	tenantID := uuid.New()

	seq, err := repo.Next(ctx, tenantID, "202608")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	seq, err = repo.Next(ctx, tenantID, "202608")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	// A new period restarts the sequence; other tenants are independent.
	seq, err = repo.Next(ctx, tenantID, "202609")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	seq, err = repo.Next(ctx, uuid.New(), "202608")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}
