/*
queries.go - Read-only trend and aggregation surface of the cube

PURPOSE:
  Everything analytics needs from the cube without touching the ledger:
  raw cells (trends), grouped totals over any dimension subset, and the
  composed helpers built on them. No method in this file writes.
*/
package cube

import (
	"context"

	"github.com/warp/fincube/finance"
)

// Trends returns raw cube cells matching the filter, sorted by
// (period_start, transaction_type, category_name, account_name).
func (e *Engine) Trends(ctx context.Context, tenant finance.TenantID, f finance.TrendFilter) ([]finance.CubeCell, error) {
	return e.store.QueryCells(ctx, tenant, f)
}

// AggregatedTotals returns SUM(total_amount) and SUM(transaction_count)
// grouped by the given dimensions. Group-by accepts dimensions only; facts
// are rejected by the adapter.
func (e *Engine) AggregatedTotals(ctx context.Context, tenant finance.TenantID, groupBy []finance.CubeDimension, f finance.TrendFilter) ([]finance.AggregateRow, error) {
	return e.store.AggregateCube(ctx, tenant, groupBy, f)
}

// CategoryOverTime groups totals by (category, period start).
func (e *Engine) CategoryOverTime(ctx context.Context, tenant finance.TenantID, f finance.TrendFilter) ([]finance.AggregateRow, error) {
	return e.AggregatedTotals(ctx, tenant,
		[]finance.CubeDimension{finance.DimCategory, finance.DimPeriodStart}, f)
}

// AccountOverTime groups totals by (account, period start).
func (e *Engine) AccountOverTime(ctx context.Context, tenant finance.TenantID, f finance.TrendFilter) ([]finance.AggregateRow, error) {
	return e.AggregatedTotals(ctx, tenant,
		[]finance.CubeDimension{finance.DimAccount, finance.DimPeriodStart}, f)
}

// IncomeVsExpense groups totals by (transaction type, period start).
func (e *Engine) IncomeVsExpense(ctx context.Context, tenant finance.TenantID, f finance.TrendFilter) ([]finance.AggregateRow, error) {
	return e.AggregatedTotals(ctx, tenant,
		[]finance.CubeDimension{finance.DimTransactionType, finance.DimPeriodStart}, f)
}

// Statistics exposes the cube's read-only statistics.
func (e *Engine) Statistics(ctx context.Context, tenant finance.TenantID) (*finance.CubeStats, error) {
	return e.store.CubeStatistics(ctx, tenant)
}

// ClearAll deletes every cube cell of the tenant and reports the count.
func (e *Engine) ClearAll(ctx context.Context, tenant finance.TenantID) (int64, error) {
	return e.store.ClearCube(ctx, tenant)
}
