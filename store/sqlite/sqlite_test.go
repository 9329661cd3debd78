package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fincube/finance"
	"github.com/warp/fincube/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testAccount(tenant finance.TenantID, name string) *finance.Account {
	return &finance.Account{
		ID:          uuid.NewString(),
		TenantID:    tenant,
		Name:        name,
		Type:        finance.AccountChecking,
		NetWorth:    finance.NetWorthAsset,
		Balance:     finance.MustDecimal("0"),
		BalanceDate: finance.NewDate(2024, time.January, 1),
		IsActive:    true,
	}
}

func testTx(tenant finance.TenantID, accountID, categoryID, amount, date string) *finance.Transaction {
	d, _ := finance.ParseDate(date)
	return &finance.Transaction{
		ID:         uuid.NewString(),
		TenantID:   tenant,
		AccountID:  accountID,
		CategoryID: categoryID,
		Amount:     finance.MustDecimal(amount),
		Date:       d,
		Type:       finance.TxExpense,
	}
}

// =============================================================================
// TENANT GUARD TESTS
// =============================================================================

func TestStore_EmptyTenant_Refused(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetAccount(ctx, "", "some-id")
	assert.ErrorIs(t, err, finance.ErrTenantRequired)

	_, err = store.ListAccounts(ctx, "", finance.AccountFilter{})
	assert.ErrorIs(t, err, finance.ErrTenantRequired)

	err = store.InsertAccount(ctx, testAccount("", "No Tenant"))
	assert.ErrorIs(t, err, finance.ErrTenantRequired)

	_, err = store.LedgerTotal(ctx, "")
	assert.ErrorIs(t, err, finance.ErrTenantRequired)

	_, err = store.ClearCube(ctx, "")
	assert.ErrorIs(t, err, finance.ErrTenantRequired)
}

func TestStore_CrossTenant_Invisible(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	account := testAccount("tenant-a", "Checking")
	require.NoError(t, store.InsertAccount(ctx, account))

	// Same id, different tenant: reads as absent
	got, err := store.GetAccount(ctx, "tenant-b", account.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	list, err := store.ListAccounts(ctx, "tenant-b", finance.AccountFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

// =============================================================================
// UNIQUENESS TESTS
// =============================================================================

func TestStore_ActiveAccountName_Unique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertAccount(ctx, testAccount("t1", "Checking")))

	err := store.InsertAccount(ctx, testAccount("t1", "Checking"))
	assert.ErrorIs(t, err, finance.ErrUniqueViolation)

	// Inactive duplicates are allowed
	inactive := testAccount("t1", "Checking")
	inactive.IsActive = false
	assert.NoError(t, store.InsertAccount(ctx, inactive))

	// Same name in a different tenant is allowed
	assert.NoError(t, store.InsertAccount(ctx, testAccount("t2", "Checking")))
}

func TestStore_CategoryNameType_Unique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	food := &finance.Category{ID: uuid.NewString(), TenantID: "t1", Name: "Food", Type: finance.CategoryExpense}
	require.NoError(t, store.InsertCategory(ctx, food))

	dup := &finance.Category{ID: uuid.NewString(), TenantID: "t1", Name: "Food", Type: finance.CategoryExpense}
	assert.ErrorIs(t, store.InsertCategory(ctx, dup), finance.ErrUniqueViolation)

	// Same name under a different type is fine
	income := &finance.Category{ID: uuid.NewString(), TenantID: "t1", Name: "Food", Type: finance.CategoryIncome}
	assert.NoError(t, store.InsertCategory(ctx, income))
}

func TestStore_AnchorUpsert_ReplacesOnSameDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	date := finance.NewDate(2024, time.March, 1)
	first := &finance.BalanceAnchor{
		ID: uuid.NewString(), TenantID: "t1", AccountID: "a1",
		AnchorDate: date, Balance: finance.MustDecimal("100.00"),
	}
	require.NoError(t, store.UpsertAnchor(ctx, first))

	second := &finance.BalanceAnchor{
		ID: uuid.NewString(), TenantID: "t1", AccountID: "a1",
		AnchorDate: date, Balance: finance.MustDecimal("250.00"),
	}
	require.NoError(t, store.UpsertAnchor(ctx, second))

	anchors, err := store.AnchorsForAccount(ctx, "t1", "a1")
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.True(t, anchors[0].Balance.Equal(finance.MustDecimal("250.00")))
}

// =============================================================================
// TRANSACTION ORDER AND RANGE TESTS
// =============================================================================

func TestStore_AccountTransactions_DeterministicOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	date := finance.NewDate(2024, time.March, 2)
	for _, tc := range []struct{ id, desc string }{
		{"tx-7", "b"},
		{"tx-5", "a"},
	} {
		tx := testTx("t1", "a1", "", "1.00", "2024-03-02")
		tx.ID = tc.id
		tx.Description = tc.desc
		tx.Date = date
		require.NoError(t, store.InsertTransaction(ctx, tx))
	}

	txs, err := store.AccountTransactions(ctx, "t1", "a1", nil, nil)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "tx-5", txs[0].ID)
	assert.Equal(t, "tx-7", txs[1].ID)
}

func TestStore_LedgerDateRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	min, max, err := store.LedgerDateRange(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, min)
	assert.Nil(t, max)

	require.NoError(t, store.InsertTransaction(ctx, testTx("t1", "a1", "", "-5.00", "2024-02-10")))
	require.NoError(t, store.InsertTransaction(ctx, testTx("t1", "a1", "", "-5.00", "2024-01-03")))

	min, max, err = store.LedgerDateRange(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, min)
	require.NotNil(t, max)
	assert.Equal(t, "2024-01-03", min.String())
	assert.Equal(t, "2024-02-10", max.String())
}

// =============================================================================
// TRANSACTION SCOPE TESTS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx finance.Store) error {
		if err := tx.InsertAccount(ctx, testAccount("t1", "Doomed")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := store.ListAccounts(ctx, "t1", finance.AccountFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_WithTx_ReadsSeeUncommittedWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx finance.Store) error {
		if err := tx.InsertTransaction(ctx, testTx("t1", "a1", "", "-9.99", "2024-05-01")); err != nil {
			return err
		}
		total, err := tx.LedgerTotal(ctx, "t1")
		if err != nil {
			return err
		}
		assert.True(t, total.Equal(finance.MustDecimal("-9.99")))
		return nil
	})
	require.NoError(t, err)
}
