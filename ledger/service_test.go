package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fincube/finance"
	"github.com/warp/fincube/ledger"
	"github.com/warp/fincube/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const tenant = finance.TenantID("t1")

func newTestService(t *testing.T) (*ledger.Service, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return ledger.New(store), store
}

func createAccount(t *testing.T, svc *ledger.Service, name string) *finance.Account {
	t.Helper()
	account, err := svc.CreateAccount(context.Background(), tenant, ledger.CreateAccountInput{
		Name:        name,
		Type:        finance.AccountChecking,
		BalanceDate: finance.NewDate(2024, time.January, 1),
	})
	require.NoError(t, err)
	return account
}

func createExpenseTx(t *testing.T, svc *ledger.Service, accountID, amount, date string) *finance.Transaction {
	t.Helper()
	d, err := finance.ParseDate(date)
	require.NoError(t, err)
	tx, err := svc.CreateTransaction(context.Background(), tenant, ledger.CreateTransactionInput{
		AccountID: accountID,
		Amount:    finance.MustDecimal(amount),
		Date:      d,
		Type:      finance.TxExpense,
	})
	require.NoError(t, err)
	return tx
}

// =============================================================================
// ACCOUNT LIFECYCLE TESTS
// =============================================================================

func TestCreateAccount_Defaults(t *testing.T) {
	svc, _ := newTestService(t)

	checking := createAccount(t, svc, "Checking")
	assert.True(t, checking.IsActive)
	assert.Equal(t, finance.NetWorthAsset, checking.NetWorth)

	loan, err := svc.CreateAccount(context.Background(), tenant, ledger.CreateAccountInput{
		Name:        "Mortgage",
		Type:        finance.AccountLoan,
		BalanceDate: finance.NewDate(2024, time.January, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, finance.NetWorthLiability, loan.NetWorth)
}

func TestCreateAccount_ActiveNameCollision(t *testing.T) {
	svc, _ := newTestService(t)
	createAccount(t, svc, "Checking")

	_, err := svc.CreateAccount(context.Background(), tenant, ledger.CreateAccountInput{
		Name:        "Checking",
		Type:        finance.AccountSavings,
		BalanceDate: finance.NewDate(2024, time.January, 1),
	})
	assert.ErrorIs(t, err, finance.ErrUniqueViolation)
	var uv *finance.UniqueViolationError
	assert.ErrorAs(t, err, &uv)
	assert.Equal(t, "Checking", uv.Name)
}

func TestGetAccount_CrossTenant_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	account := createAccount(t, svc, "Checking")

	_, err := svc.GetAccount(context.Background(), "other-tenant", account.ID)
	assert.True(t, finance.IsNotFound(err))
}

func TestDeleteAccount_Referenced_Conflict(t *testing.T) {
	svc, _ := newTestService(t)
	account := createAccount(t, svc, "Checking")
	createExpenseTx(t, svc, account.ID, "-5.00", "2024-01-10")

	err := svc.DeleteAccount(context.Background(), tenant, account.ID)
	assert.ErrorIs(t, err, finance.ErrConflict)
	var conflict *finance.ConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.References)
}

func TestDeleteCategory_Referenced_Conflict(t *testing.T) {
	svc, _ := newTestService(t)
	account := createAccount(t, svc, "Checking")

	category, err := svc.CreateCategory(context.Background(), tenant, ledger.CreateCategoryInput{
		Name: "Food", Type: finance.CategoryExpense,
	})
	require.NoError(t, err)

	d := finance.NewDate(2024, time.January, 10)
	_, err = svc.CreateTransaction(context.Background(), tenant, ledger.CreateTransactionInput{
		AccountID:  account.ID,
		CategoryID: category.ID,
		Amount:     finance.MustDecimal("-5.00"),
		Date:       d,
		Type:       finance.TxExpense,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteCategory(context.Background(), tenant, category.ID), finance.ErrConflict)
}

func TestCreateTransaction_MissingReferences(t *testing.T) {
	svc, _ := newTestService(t)
	account := createAccount(t, svc, "Checking")
	d := finance.NewDate(2024, time.January, 10)

	_, err := svc.CreateTransaction(context.Background(), tenant, ledger.CreateTransactionInput{
		AccountID: "ghost-account",
		Amount:    finance.MustDecimal("-5.00"),
		Date:      d,
		Type:      finance.TxExpense,
	})
	assert.True(t, finance.IsNotFound(err))

	_, err = svc.CreateTransaction(context.Background(), tenant, ledger.CreateTransactionInput{
		AccountID:  account.ID,
		CategoryID: "ghost-category",
		Amount:     finance.MustDecimal("-5.00"),
		Date:       d,
		Type:       finance.TxExpense,
	})
	assert.True(t, finance.IsNotFound(err))
}

// =============================================================================
// RECONCILIATION TESTS
// =============================================================================

func TestReconcile_WithAdjustment(t *testing.T) {
	// GIVEN: computed balance today is 980.00
	// WHEN: reconciling to 1000.00 today
	// THEN: anchor at today/1000.00, one +20.00 INCOME adjustment,
	//       cached balance and date updated

	svc, store := newTestService(t)
	account := createAccount(t, svc, "Checking")
	today := finance.Today()

	_, err := svc.CreateTransaction(context.Background(), tenant, ledger.CreateTransactionInput{
		AccountID: account.ID,
		Amount:    finance.MustDecimal("980.00"),
		Date:      today.AddDays(-10),
		Type:      finance.TxIncome,
	})
	require.NoError(t, err)

	result, err := svc.ReconcileAccount(context.Background(), tenant, account.ID, ledger.ReconcileInput{
		NewBalance:    finance.MustDecimal("1000.00"),
		ReconcileDate: today,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Adjustment)
	assert.Equal(t, finance.TxIncome, result.Adjustment.Type)
	assert.True(t, result.Adjustment.Amount.Equal(finance.MustDecimal("20.00")))
	assert.Equal(t, today.String(), result.Adjustment.Date.String())

	assert.True(t, result.Account.Balance.Equal(finance.MustDecimal("1000.00")))
	assert.Equal(t, today.String(), result.Account.BalanceDate.String())

	anchors, err := store.AnchorsForAccount(context.Background(), tenant, account.ID)
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.True(t, anchors[0].Balance.Equal(finance.MustDecimal("1000.00")))
	assert.Equal(t, today.String(), anchors[0].AnchorDate.String())
}

func TestReconcile_NegativeDifference_Expense(t *testing.T) {
	svc, _ := newTestService(t)
	account := createAccount(t, svc, "Checking")
	today := finance.Today()

	_, err := svc.CreateTransaction(context.Background(), tenant, ledger.CreateTransactionInput{
		AccountID: account.ID,
		Amount:    finance.MustDecimal("500.00"),
		Date:      today.AddDays(-5),
		Type:      finance.TxIncome,
	})
	require.NoError(t, err)

	result, err := svc.ReconcileAccount(context.Background(), tenant, account.ID, ledger.ReconcileInput{
		NewBalance:    finance.MustDecimal("450.00"),
		ReconcileDate: today,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Adjustment)
	assert.Equal(t, finance.TxExpense, result.Adjustment.Type)
	assert.True(t, result.Adjustment.Amount.Equal(finance.MustDecimal("-50.00")))
}

func TestReconcile_WithinTolerance_NoAdjustment(t *testing.T) {
	svc, store := newTestService(t)
	account := createAccount(t, svc, "Checking")
	today := finance.Today()

	_, err := svc.CreateTransaction(context.Background(), tenant, ledger.CreateTransactionInput{
		AccountID: account.ID,
		Amount:    finance.MustDecimal("100.00"),
		Date:      today.AddDays(-1),
		Type:      finance.TxIncome,
	})
	require.NoError(t, err)

	result, err := svc.ReconcileAccount(context.Background(), tenant, account.ID, ledger.ReconcileInput{
		NewBalance:    finance.MustDecimal("100.005"),
		ReconcileDate: today,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Adjustment)

	// The anchor is still written
	anchors, err := store.AnchorsForAccount(context.Background(), tenant, account.ID)
	require.NoError(t, err)
	assert.Len(t, anchors, 1)
}

func TestReconcile_FutureDate_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	account := createAccount(t, svc, "Checking")

	_, err := svc.ReconcileAccount(context.Background(), tenant, account.ID, ledger.ReconcileInput{
		NewBalance:    finance.MustDecimal("100.00"),
		ReconcileDate: finance.Today().AddDays(1),
	})
	assert.ErrorIs(t, err, finance.ErrFutureReconcileDate)
}

func TestReconcile_ExplicitTransferType(t *testing.T) {
	svc, _ := newTestService(t)
	account := createAccount(t, svc, "Checking")
	today := finance.Today()

	transfer := finance.TxTransfer
	result, err := svc.ReconcileAccount(context.Background(), tenant, account.ID, ledger.ReconcileInput{
		NewBalance:     finance.MustDecimal("75.00"),
		ReconcileDate:  today,
		AdjustmentType: &transfer,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Adjustment)
	assert.Equal(t, finance.TxTransfer, result.Adjustment.Type)
}

// =============================================================================
// BULK OPERATION TESTS
// =============================================================================

func TestBulkUpdate_DateChange_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	account := createAccount(t, svc, "Checking")
	tx := createExpenseTx(t, svc, account.ID, "-5.00", "2024-01-10")

	d := finance.NewDate(2024, time.February, 1)
	err := svc.BulkUpdateTransactions(context.Background(), tenant, []string{tx.ID},
		ledger.TxBulkPatch{Date: &d})
	assert.ErrorIs(t, err, finance.ErrUnsupportedBulkField)
}

func TestBulkUpdate_MultipleFields_Rejected(t *testing.T) {
	svc, _ := newTestService(t)
	account := createAccount(t, svc, "Checking")
	tx := createExpenseTx(t, svc, account.ID, "-5.00", "2024-01-10")

	recurring := true
	amount := finance.MustDecimal("-7.00")
	err := svc.BulkUpdateTransactions(context.Background(), tenant, []string{tx.ID},
		ledger.TxBulkPatch{IsRecurring: &recurring, Amount: &amount})
	assert.ErrorIs(t, err, finance.ErrUnsupportedBulkField)
}

func TestBulkUpdate_RecurringFlag(t *testing.T) {
	svc, _ := newTestService(t)
	account := createAccount(t, svc, "Checking")
	tx1 := createExpenseTx(t, svc, account.ID, "-5.00", "2024-01-10")
	tx2 := createExpenseTx(t, svc, account.ID, "-6.00", "2024-01-11")

	recurring := true
	err := svc.BulkUpdateTransactions(context.Background(), tenant,
		[]string{tx1.ID, tx2.ID}, ledger.TxBulkPatch{IsRecurring: &recurring})
	require.NoError(t, err)

	got, err := svc.GetTransaction(context.Background(), tenant, tx1.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRecurring)
}

func TestBulkUpdate_AmountUniform(t *testing.T) {
	svc, store := newTestService(t)
	account := createAccount(t, svc, "Checking")
	tx1 := createExpenseTx(t, svc, account.ID, "-5.00", "2024-01-10")
	tx2 := createExpenseTx(t, svc, account.ID, "-5.00", "2024-01-11")

	amount := finance.MustDecimal("-8.00")
	err := svc.BulkUpdateTransactions(context.Background(), tenant,
		[]string{tx1.ID, tx2.ID}, ledger.TxBulkPatch{Amount: &amount})
	require.NoError(t, err)

	total, err := store.LedgerTotal(context.Background(), tenant)
	require.NoError(t, err)
	assert.True(t, total.Equal(finance.MustDecimal("-16.00")))
}

func TestBulkDelete_ReturnsCountAndClearsCube(t *testing.T) {
	svc, store := newTestService(t)
	account := createAccount(t, svc, "Checking")
	tx1 := createExpenseTx(t, svc, account.ID, "-5.00", "2024-01-10")
	tx2 := createExpenseTx(t, svc, account.ID, "-6.00", "2024-02-10")

	deleted, err := svc.BulkDeleteTransactions(context.Background(), tenant, []string{tx1.ID, tx2.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	cells, err := store.QueryCells(context.Background(), tenant, finance.TrendFilter{})
	require.NoError(t, err)
	assert.Empty(t, cells)

	_, err = svc.GetTransaction(context.Background(), tenant, tx1.ID)
	assert.True(t, finance.IsNotFound(err))
}

func TestBulkDelete_EmptyAndUnknownIDs(t *testing.T) {
	svc, _ := newTestService(t)

	deleted, err := svc.BulkDeleteTransactions(context.Background(), tenant, nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = svc.BulkDeleteTransactions(context.Background(), tenant, []string{"ghost"})
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

// =============================================================================
// LISTING TESTS
// =============================================================================

func TestListTransactions_JoinsNames(t *testing.T) {
	svc, _ := newTestService(t)
	account := createAccount(t, svc, "Checking")
	createExpenseTx(t, svc, account.ID, "-5.00", "2024-01-10")

	list, err := svc.ListTransactions(context.Background(), tenant, finance.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Checking", list[0].AccountName)
	assert.Equal(t, finance.UncategorizedName, list[0].CategoryName)
}
