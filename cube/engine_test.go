package cube_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fincube/cube"
	"github.com/warp/fincube/finance"
	"github.com/warp/fincube/ledger"
	"github.com/warp/fincube/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const tenant = finance.TenantID("t1")

type testEnv struct {
	store   *sqlite.Store
	ledger  *ledger.Service
	cubes   *cube.Engine
	food    string
	fun     string
	account [3]string
}

func newTestEnv(t *testing.T) *testEnv {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store:  store,
		ledger: ledger.New(store),
		cubes:  cube.New(store),
	}
	ctx := context.Background()

	for i := range env.account {
		account, err := env.ledger.CreateAccount(ctx, tenant, ledger.CreateAccountInput{
			Name:        fmt.Sprintf("Account %d", i+1),
			Type:        finance.AccountChecking,
			BalanceDate: finance.NewDate(2024, time.January, 1),
		})
		require.NoError(t, err)
		env.account[i] = account.ID
	}

	food, err := env.ledger.CreateCategory(ctx, tenant, ledger.CreateCategoryInput{
		Name: "Food", Type: finance.CategoryExpense,
	})
	require.NoError(t, err)
	env.food = food.ID

	fun, err := env.ledger.CreateCategory(ctx, tenant, ledger.CreateCategoryInput{
		Name: "Entertainment", Type: finance.CategoryExpense,
	})
	require.NoError(t, err)
	env.fun = fun.ID

	return env
}

func (e *testEnv) createExpense(t *testing.T, accountID, categoryID, amount, date string, recurring bool) *finance.Transaction {
	t.Helper()
	d, err := finance.ParseDate(date)
	require.NoError(t, err)
	tx, err := e.ledger.CreateTransaction(context.Background(), tenant, ledger.CreateTransactionInput{
		AccountID:   accountID,
		CategoryID:  categoryID,
		Amount:      finance.MustDecimal(amount),
		Date:        d,
		Type:        finance.TxExpense,
		IsRecurring: recurring,
	})
	require.NoError(t, err)
	return tx
}

// cubeSnapshot captures the cube as key -> (amount, count) for comparison.
func cubeSnapshot(t *testing.T, store *sqlite.Store) map[string]string {
	t.Helper()
	cells, err := store.QueryCells(context.Background(), tenant, finance.TrendFilter{})
	require.NoError(t, err)

	snap := map[string]string{}
	for _, c := range cells {
		key := fmt.Sprintf("%s|%s|%s|%s|%s|%v",
			c.PeriodType, c.PeriodStart, c.TransactionType, c.CategoryID, c.AccountID, c.IsRecurring)
		snap[key] = fmt.Sprintf("%s x%d", c.TotalAmount, c.TransactionCount)
	}
	return snap
}

// =============================================================================
// END-TO-END SCENARIO TESTS
// =============================================================================

func TestBulkCategoryUpdate_RegeneratesCollapsedCells(t *testing.T) {
	// GIVEN: 100 EXPENSE postings on 2024-01-15, 3 accounts, 2 recurring
	//        flags, all in Food
	// WHEN: all are recategorized to Entertainment in one bulk call
	// THEN: the cube holds exactly 12 non-zero cells (2 periods x 3 accounts
	//       x 2 flags), all Entertainment, and totals match the ledger

	env := newTestEnv(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 100; i++ {
		tx := env.createExpense(t, env.account[i%3], env.food, "-10.00", "2024-01-15", i%5 < 2)
		ids = append(ids, tx.ID)
	}

	newCategory := env.fun
	err := env.ledger.BulkUpdateTransactions(ctx, tenant, ids, ledger.TxBulkPatch{CategoryID: &newCategory})
	require.NoError(t, err)

	cells, err := env.store.QueryCells(ctx, tenant, finance.TrendFilter{})
	require.NoError(t, err)
	require.Len(t, cells, 12)

	total := finance.MustDecimal("0")
	for _, c := range cells {
		assert.Equal(t, env.fun, c.CategoryID)
		assert.Equal(t, "Entertainment", c.CategoryName)
		assert.Greater(t, c.TransactionCount, 0)
		if c.PeriodType == finance.PeriodMonthly {
			total = total.Add(c.TotalAmount)
		}
	}
	assert.True(t, total.Equal(finance.MustDecimal("-1000.00")), "got %s", total)
}

func TestBulkUpdate_NonUniformOldValue_Rejected(t *testing.T) {
	// GIVEN: postings with mixed existing categories {Food, Food, Fun}
	// WHEN: a bulk recategorization is attempted
	// THEN: NonUniformBulk; no rows mutated; cube unchanged

	env := newTestEnv(t)
	ctx := context.Background()

	tx1 := env.createExpense(t, env.account[0], env.food, "-1.00", "2024-01-15", false)
	tx2 := env.createExpense(t, env.account[0], env.food, "-2.00", "2024-01-15", false)
	tx3 := env.createExpense(t, env.account[0], env.fun, "-3.00", "2024-01-15", false)
	before := cubeSnapshot(t, env.store)

	target := env.fun
	err := env.ledger.BulkUpdateTransactions(ctx, tenant,
		[]string{tx1.ID, tx2.ID, tx3.ID}, ledger.TxBulkPatch{CategoryID: &target})

	assert.ErrorIs(t, err, finance.ErrNonUniformBulk)
	var nonUniform *finance.NonUniformBulkError
	assert.ErrorAs(t, err, &nonUniform)
	assert.Len(t, nonUniform.Values, 2)

	// Nothing moved
	got, err := env.ledger.GetTransaction(ctx, tenant, tx1.ID)
	require.NoError(t, err)
	assert.Equal(t, env.food, got.CategoryID)
	assert.Equal(t, before, cubeSnapshot(t, env.store))
}

func TestUpdateTransaction_CrossPeriodMove(t *testing.T) {
	// GIVEN: one -100.00 EXPENSE posting dated 2024-01-31
	// WHEN: its date moves to 2024-02-01
	// THEN: no January monthly cell survives; the shared week (Jan 29 -
	//       Feb 04) and the February month carry -100.00 each

	env := newTestEnv(t)
	ctx := context.Background()

	tx := env.createExpense(t, env.account[0], env.food, "-100.00", "2024-01-31", false)

	newDate := finance.NewDate(2024, time.February, 1)
	_, err := env.ledger.UpdateTransaction(ctx, tenant, tx.ID, ledger.UpdateTransactionInput{Date: &newDate})
	require.NoError(t, err)

	cells, err := env.store.QueryCells(ctx, tenant, finance.TrendFilter{})
	require.NoError(t, err)
	require.Len(t, cells, 2)

	byType := map[finance.PeriodType]finance.CubeCell{}
	for _, c := range cells {
		byType[c.PeriodType] = c
	}

	weekly := byType[finance.PeriodWeekly]
	assert.Equal(t, "2024-01-29", weekly.PeriodStart.String())
	assert.Equal(t, "2024-02-04", weekly.PeriodEnd.String())
	assert.True(t, weekly.TotalAmount.Equal(finance.MustDecimal("-100.00")))
	assert.Equal(t, 1, weekly.TransactionCount)

	monthly := byType[finance.PeriodMonthly]
	assert.Equal(t, "2024-02-01", monthly.PeriodStart.String())
	assert.True(t, monthly.TotalAmount.Equal(finance.MustDecimal("-100.00")))
}

// =============================================================================
// IDEMPOTENCE AND ROUND-TRIP TESTS
// =============================================================================

func TestApply_ReapplySameChange_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx := env.createExpense(t, env.account[0], env.food, "-25.00", "2024-01-15", false)
	after := cubeSnapshot(t, env.store)

	// Reapplying the original insert descriptor recomputes the same cells
	change := finance.InsertChange(tenant, tx.ID, finance.ProjectTransaction(tx))
	require.NoError(t, env.cubes.Apply(ctx, change))

	assert.Equal(t, after, cubeSnapshot(t, env.store))
}

func TestBackfill_MatchesIncrementalMaintenance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createExpense(t, env.account[0], env.food, "-10.00", "2024-01-15", false)
	env.createExpense(t, env.account[1], env.fun, "-20.00", "2024-01-31", true)
	env.createExpense(t, env.account[2], "", "-5.50", "2024-02-14", false)

	incremental := cubeSnapshot(t, env.store)
	require.NotEmpty(t, incremental)

	deleted, err := env.cubes.ClearAll(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(len(incremental)), deleted)

	result, err := env.cubes.PopulateHistorical(ctx, tenant, cube.BackfillOptions{})
	require.NoError(t, err)
	assert.Greater(t, result.PeriodsProcessed, 0)
	assert.Equal(t, len(incremental), result.CellsCreated)

	assert.Equal(t, incremental, cubeSnapshot(t, env.store))
}

func TestInsertThenDelete_LeavesCubeUnchanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createExpense(t, env.account[0], env.food, "-10.00", "2024-01-15", false)
	before := cubeSnapshot(t, env.store)

	tx := env.createExpense(t, env.account[1], env.fun, "-99.99", "2024-03-03", true)
	require.NoError(t, env.ledger.DeleteTransaction(ctx, tenant, tx.ID))

	// No lingering zero cells
	assert.Equal(t, before, cubeSnapshot(t, env.store))
}

func TestNoZeroSumCellsPersisted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx := env.createExpense(t, env.account[0], env.food, "-10.00", "2024-01-15", false)
	require.NoError(t, env.ledger.DeleteTransaction(ctx, tenant, tx.ID))

	cells, err := env.store.QueryCells(ctx, tenant, finance.TrendFilter{})
	require.NoError(t, err)
	assert.Empty(t, cells)
}

// =============================================================================
// CONSISTENCY TESTS
// =============================================================================

func TestValidateConsistency_TracksLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createExpense(t, env.account[0], env.food, "-10.00", "2024-01-15", false)
	env.createExpense(t, env.account[1], env.fun, "123.45", "2024-02-02", false)

	consistent, err := env.cubes.ValidateConsistency(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, consistent)

	// Wipe the cube behind the engine's back: now inconsistent
	_, err = env.store.ClearCube(ctx, tenant)
	require.NoError(t, err)

	consistent, err = env.cubes.ValidateConsistency(ctx, tenant)
	require.NoError(t, err)
	assert.False(t, consistent)

	// Reconcile rebuilds and restores consistency
	require.NoError(t, env.cubes.Reconcile(ctx, tenant))
	consistent, err = env.cubes.ValidateConsistency(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, consistent)
}

// =============================================================================
// QUERY SURFACE TESTS
// =============================================================================

func TestTrendsAndAggregatedTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createExpense(t, env.account[0], env.food, "-10.00", "2024-01-15", false)
	env.createExpense(t, env.account[0], env.food, "-15.00", "2024-01-16", false)
	env.createExpense(t, env.account[1], env.fun, "-20.00", "2024-01-15", false)

	monthly := finance.PeriodMonthly
	cells, err := env.cubes.Trends(ctx, tenant, finance.TrendFilter{PeriodType: &monthly})
	require.NoError(t, err)
	require.Len(t, cells, 2)

	rows, err := env.cubes.CategoryOverTime(ctx, tenant, finance.TrendFilter{PeriodType: &monthly})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.NotNil(t, row.CategoryID)
		switch *row.CategoryID {
		case env.food:
			assert.True(t, row.TotalAmount.Equal(finance.MustDecimal("-25.00")))
			assert.Equal(t, int64(2), row.TransactionCount)
		case env.fun:
			assert.True(t, row.TotalAmount.Equal(finance.MustDecimal("-20.00")))
			assert.Equal(t, int64(1), row.TransactionCount)
		default:
			t.Fatalf("unexpected category %s", *row.CategoryID)
		}
	}

	_, err = env.cubes.AggregatedTotals(ctx, tenant,
		[]finance.CubeDimension{"total_amount"}, finance.TrendFilter{})
	assert.Error(t, err, "facts are not valid group-by columns")
}

func TestStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createExpense(t, env.account[0], env.food, "-10.00", "2024-01-15", false)
	env.createExpense(t, env.account[1], "", "-5.00", "2024-02-20", false)

	stats, err := env.cubes.Statistics(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalCells)
	assert.Equal(t, 2, stats.WeeklyCells)
	assert.Equal(t, 2, stats.MonthlyCells)
	assert.Equal(t, 2, stats.AccountCount)
	require.NotNil(t, stats.EarliestPeriod)
	require.NotNil(t, stats.LatestPeriod)
	assert.Equal(t, "2024-01-01", stats.EarliestPeriod.String())
	assert.Equal(t, "2024-02-19", stats.LatestPeriod.String())
	require.NotNil(t, stats.LastUpdated)
}

func TestUncategorized_Denormalization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createExpense(t, env.account[0], "", "-7.00", "2024-01-15", false)

	cells, err := env.store.QueryCells(ctx, tenant, finance.TrendFilter{})
	require.NoError(t, err)
	require.Len(t, cells, 2)
	for _, c := range cells {
		assert.Equal(t, "", c.CategoryID)
		assert.Equal(t, finance.UncategorizedName, c.CategoryName)
		assert.Equal(t, "Account 1", c.AccountName)
	}
}
