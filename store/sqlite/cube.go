/*
cube.go - Cube-cell persistence and ledger aggregation queries

PURPOSE:
  The cube side of the SQLite adapter: regeneration queries that recompute
  cells from the posting ledger, the upsert/delete primitives the cube
  engine drives, and the read surface (trends, grouped aggregation,
  statistics).

REGENERATION:
  AggregateCell recomputes one dimensional target from the raw ledger. A
  HAVING COUNT(*) > 0 clause suppresses zero-sum groups, so a target whose
  postings all vanished simply returns no row and the cell stays deleted.
  Category and account names are denormalized via MIN() over the join;
  uncategorized groups render as "Uncategorized".

SIGN NOTE:
  total_amount_cents is the exact integer SUM of posting cents. Conversion
  back to decimal happens at the boundary, like everywhere else in this
  package.

SEE ALSO:
  - sqlite.go: schema, ledger tables, shared helpers
  - finance/store.go: interface definitions
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/fincube/finance"
)

// =============================================================================
// CELL WRITES (cube engine only)
// =============================================================================

func (q *queries) DeleteCells(ctx context.Context, keys []finance.CubeKey) (int64, error) {
	var deleted int64
	for _, key := range keys {
		if err := requireTenant(key.TenantID); err != nil {
			return deleted, err
		}

		res, err := q.db.ExecContext(ctx, `
			DELETE FROM cube_cells
			WHERE tenant_id = ? AND period_start = ? AND period_type = ?
			  AND tx_type = ? AND category_id = ? AND account_id = ? AND is_recurring = ?`,
			key.TenantID, key.PeriodStart.String(), key.PeriodType,
			key.TransactionType, key.CategoryID, key.AccountID, key.IsRecurring,
		)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete cube cell: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	return deleted, nil
}

func (q *queries) UpsertCells(ctx context.Context, cells []finance.CubeCell) error {
	query := `
		INSERT INTO cube_cells
		(tenant_id, period_type, period_start, period_end, tx_type, category_id,
		 account_id, is_recurring, total_amount_cents, tx_count, category_name,
		 account_name, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, period_start, period_type, tx_type, category_id, account_id, is_recurring)
		DO UPDATE SET
			period_end = excluded.period_end,
			total_amount_cents = excluded.total_amount_cents,
			tx_count = excluded.tx_count,
			category_name = excluded.category_name,
			account_name = excluded.account_name,
			updated_at = excluded.updated_at
	`

	for _, cell := range cells {
		if err := requireTenant(cell.TenantID); err != nil {
			return err
		}

		_, err := q.db.ExecContext(ctx, query,
			cell.TenantID, cell.PeriodType, cell.PeriodStart.String(), cell.PeriodEnd.String(),
			cell.TransactionType, cell.CategoryID, cell.AccountID, cell.IsRecurring,
			finance.Cents(cell.TotalAmount), cell.TransactionCount,
			cell.CategoryName, cell.AccountName, formatTime(cell.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert cube cell: %w", err)
		}
	}
	return nil
}

// =============================================================================
// REGENERATION - Recompute cells from the posting ledger
// =============================================================================

// AggregateCell recomputes one dimensional target from the raw ledger.
// Returns (nil, nil) when no postings match; the cell must then not exist.
func (q *queries) AggregateCell(ctx context.Context, key finance.CubeKey) (*finance.CubeCell, error) {
	if err := requireTenant(key.TenantID); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(t.amount_cents), 0), COUNT(*),
		       COALESCE(MIN(c.name), ''), MIN(a.name)
		FROM transactions t
		INNER JOIN accounts a ON a.tenant_id = t.tenant_id AND a.id = t.account_id
		LEFT JOIN categories c ON c.tenant_id = t.tenant_id AND c.id = t.category_id
		WHERE t.tenant_id = ? AND t.tx_date >= ? AND t.tx_date <= ?
		  AND t.tx_type = ? AND t.category_id = ? AND t.account_id = ? AND t.is_recurring = ?
		HAVING COUNT(*) > 0`,
		key.TenantID, key.PeriodStart.String(), key.PeriodEnd.String(),
		key.TransactionType, key.CategoryID, key.AccountID, key.IsRecurring,
	)

	var (
		cents        int64
		count        int
		categoryName string
		accountName  string
	)
	err := row.Scan(&cents, &count, &categoryName, &accountName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cube cell: %w", err)
	}

	if categoryName == "" {
		categoryName = finance.UncategorizedName
	}
	return &finance.CubeCell{
		CubeKey:          key,
		TotalAmount:      finance.FromCents(cents),
		TransactionCount: count,
		CategoryName:     categoryName,
		AccountName:      accountName,
		UpdatedAt:        time.Now().UTC(),
	}, nil
}

// AggregatePeriod recomputes every cell of one period in a single grouped
// query. This is the backfill path; incremental maintenance goes through
// AggregateCell.
func (q *queries) AggregatePeriod(ctx context.Context, tenant finance.TenantID, p finance.Period, accountID string) ([]finance.CubeCell, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	query := `
		SELECT t.tx_type, t.category_id, t.account_id, t.is_recurring,
		       SUM(t.amount_cents), COUNT(*),
		       COALESCE(MIN(c.name), ''), MIN(a.name)
		FROM transactions t
		INNER JOIN accounts a ON a.tenant_id = t.tenant_id AND a.id = t.account_id
		LEFT JOIN categories c ON c.tenant_id = t.tenant_id AND c.id = t.category_id
		WHERE t.tenant_id = ? AND t.tx_date >= ? AND t.tx_date <= ?`
	args := []any{tenant, p.Start.String(), p.End.String()}

	if accountID != "" {
		query += " AND t.account_id = ?"
		args = append(args, accountID)
	}
	query += `
		GROUP BY t.tx_type, t.category_id, t.account_id, t.is_recurring
		HAVING COUNT(*) > 0`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate period: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	var cells []finance.CubeCell
	for rows.Next() {
		var (
			cell         finance.CubeCell
			cents        int64
			categoryName string
		)
		err := rows.Scan(&cell.TransactionType, &cell.CategoryID, &cell.AccountID,
			&cell.IsRecurring, &cents, &cell.TransactionCount,
			&categoryName, &cell.AccountName)
		if err != nil {
			return nil, err
		}
		cell.TenantID = tenant
		cell.PeriodType = p.Type
		cell.PeriodStart = p.Start
		cell.PeriodEnd = p.End
		cell.TotalAmount = finance.FromCents(cents)
		if categoryName == "" {
			categoryName = finance.UncategorizedName
		}
		cell.CategoryName = categoryName
		cell.UpdatedAt = now
		cells = append(cells, cell)
	}
	return cells, rows.Err()
}

func (q *queries) DeleteCellsForPeriod(ctx context.Context, tenant finance.TenantID, p finance.Period, accountID string) (int64, error) {
	if err := requireTenant(tenant); err != nil {
		return 0, err
	}

	query := "DELETE FROM cube_cells WHERE tenant_id = ? AND period_start = ? AND period_type = ?"
	args := []any{tenant, p.Start.String(), p.Type}
	if accountID != "" {
		query += " AND account_id = ?"
		args = append(args, accountID)
	}

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete period cells: %w", err)
	}
	return res.RowsAffected()
}

func (q *queries) DeleteCellsInRange(ctx context.Context, tenant finance.TenantID, from, to finance.Date, accountID string) (int64, error) {
	if err := requireTenant(tenant); err != nil {
		return 0, err
	}

	query := "DELETE FROM cube_cells WHERE tenant_id = ? AND period_start >= ? AND period_start <= ?"
	args := []any{tenant, from.String(), to.String()}
	if accountID != "" {
		query += " AND account_id = ?"
		args = append(args, accountID)
	}

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cell range: %w", err)
	}
	return res.RowsAffected()
}

func (q *queries) ClearCube(ctx context.Context, tenant finance.TenantID) (int64, error) {
	if err := requireTenant(tenant); err != nil {
		return 0, err
	}

	res, err := q.db.ExecContext(ctx,
		"DELETE FROM cube_cells WHERE tenant_id = ?", tenant)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cube: %w", err)
	}
	return res.RowsAffected()
}

// =============================================================================
// CUBE READS
// =============================================================================

const cellColumns = `tenant_id, period_type, period_start, period_end, tx_type,
	category_id, account_id, is_recurring, total_amount_cents, tx_count,
	category_name, account_name, updated_at`

// trendWhere renders a TrendFilter as a WHERE tail (tenant predicate first).
func trendWhere(tenant finance.TenantID, f finance.TrendFilter) (string, []any) {
	where := " WHERE tenant_id = ?"
	args := []any{tenant}

	if f.PeriodType != nil {
		where += " AND period_type = ?"
		args = append(args, *f.PeriodType)
	}
	if f.From != nil {
		where += " AND period_start >= ?"
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where += " AND period_start <= ?"
		args = append(args, f.To.String())
	}
	if f.TransactionType != nil {
		where += " AND tx_type = ?"
		args = append(args, *f.TransactionType)
	}
	if len(f.CategoryIDs) > 0 {
		where += " AND category_id IN (" + placeholders(len(f.CategoryIDs)) + ")"
		for _, id := range f.CategoryIDs {
			args = append(args, id)
		}
	}
	if len(f.AccountIDs) > 0 {
		where += " AND account_id IN (" + placeholders(len(f.AccountIDs)) + ")"
		for _, id := range f.AccountIDs {
			args = append(args, id)
		}
	}
	if f.IsRecurring != nil {
		where += " AND is_recurring = ?"
		args = append(args, *f.IsRecurring)
	}
	return where, args
}

func (q *queries) QueryCells(ctx context.Context, tenant finance.TenantID, f finance.TrendFilter) ([]finance.CubeCell, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	where, args := trendWhere(tenant, f)
	query := "SELECT " + cellColumns + " FROM cube_cells" + where +
		" ORDER BY period_start ASC, tx_type ASC, category_name ASC, account_name ASC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cube cells: %w", err)
	}
	defer rows.Close()

	var cells []finance.CubeCell
	for rows.Next() {
		var (
			cell        finance.CubeCell
			cents       int64
			periodStart string
			periodEnd   string
			updatedAt   string
		)
		err := rows.Scan(&cell.TenantID, &cell.PeriodType, &periodStart, &periodEnd,
			&cell.TransactionType, &cell.CategoryID, &cell.AccountID, &cell.IsRecurring,
			&cents, &cell.TransactionCount, &cell.CategoryName, &cell.AccountName,
			&updatedAt)
		if err != nil {
			return nil, err
		}
		cell.PeriodStart, _ = finance.ParseDate(periodStart)
		cell.PeriodEnd, _ = finance.ParseDate(periodEnd)
		cell.TotalAmount = finance.FromCents(cents)
		cell.UpdatedAt = parseTime(updatedAt)
		cells = append(cells, cell)
	}
	return cells, rows.Err()
}

// dimensionColumns maps each group-by dimension to its select list. Category
// and account carry their denormalized name alongside the id.
var dimensionColumns = map[finance.CubeDimension][]string{
	finance.DimPeriodType:      {"period_type"},
	finance.DimPeriodStart:     {"period_start"},
	finance.DimTransactionType: {"tx_type"},
	finance.DimCategory:        {"category_id", "MIN(category_name)"},
	finance.DimAccount:         {"account_id", "MIN(account_name)"},
	finance.DimIsRecurring:     {"is_recurring"},
}

func (q *queries) AggregateCube(ctx context.Context, tenant finance.TenantID, groupBy []finance.CubeDimension, f finance.TrendFilter) ([]finance.AggregateRow, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	if len(groupBy) == 0 {
		return nil, fmt.Errorf("aggregate cube: empty group-by")
	}

	var selectCols, groupCols []string
	for _, dim := range groupBy {
		cols, ok := dimensionColumns[dim]
		if !ok {
			return nil, fmt.Errorf("aggregate cube: invalid dimension %q", dim)
		}
		selectCols = append(selectCols, cols...)
		groupCols = append(groupCols, cols[0])
	}

	where, args := trendWhere(tenant, f)
	query := "SELECT " + strings.Join(selectCols, ", ") +
		", SUM(total_amount_cents), SUM(tx_count) FROM cube_cells" + where +
		" GROUP BY " + strings.Join(groupCols, ", ") +
		" ORDER BY " + strings.Join(groupCols, ", ")

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate cube: %w", err)
	}
	defer rows.Close()

	var result []finance.AggregateRow
	for rows.Next() {
		var (
			r           finance.AggregateRow
			cents       int64
			dests       []any
			periodStart string
		)
		for _, dim := range groupBy {
			switch dim {
			case finance.DimPeriodType:
				r.PeriodType = new(finance.PeriodType)
				dests = append(dests, r.PeriodType)
			case finance.DimPeriodStart:
				dests = append(dests, &periodStart)
			case finance.DimTransactionType:
				r.TransactionType = new(finance.TransactionType)
				dests = append(dests, r.TransactionType)
			case finance.DimCategory:
				r.CategoryID = new(string)
				r.CategoryName = new(string)
				dests = append(dests, r.CategoryID, r.CategoryName)
			case finance.DimAccount:
				r.AccountID = new(string)
				r.AccountName = new(string)
				dests = append(dests, r.AccountID, r.AccountName)
			case finance.DimIsRecurring:
				r.IsRecurring = new(bool)
				dests = append(dests, r.IsRecurring)
			}
		}
		dests = append(dests, &cents, &r.TransactionCount)

		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		if periodStart != "" {
			d, err := finance.ParseDate(periodStart)
			if err != nil {
				return nil, err
			}
			r.PeriodStart = &d
		}
		r.TotalAmount = finance.FromCents(cents)
		result = append(result, r)
	}
	return result, rows.Err()
}

func (q *queries) CubeStatistics(ctx context.Context, tenant finance.TenantID) (*finance.CubeStats, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN period_type = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN period_type = ? THEN 1 ELSE 0 END), 0),
		       MIN(period_start), MAX(period_start),
		       COUNT(DISTINCT account_id), COUNT(DISTINCT category_id),
		       MAX(updated_at)
		FROM cube_cells WHERE tenant_id = ?`,
		finance.PeriodWeekly, finance.PeriodMonthly, tenant)

	var (
		stats       finance.CubeStats
		earliest    sql.NullString
		latest      sql.NullString
		lastUpdated sql.NullString
	)
	err := row.Scan(&stats.TotalCells, &stats.WeeklyCells, &stats.MonthlyCells,
		&earliest, &latest, &stats.AccountCount, &stats.CategoryCount, &lastUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to load cube statistics: %w", err)
	}

	if earliest.Valid {
		d, err := finance.ParseDate(earliest.String)
		if err != nil {
			return nil, err
		}
		stats.EarliestPeriod = &d
	}
	if latest.Valid {
		d, err := finance.ParseDate(latest.String)
		if err != nil {
			return nil, err
		}
		stats.LatestPeriod = &d
	}
	if lastUpdated.Valid {
		t := parseTime(lastUpdated.String)
		stats.LastUpdated = &t
	}
	return &stats, nil
}

func (q *queries) CubeTotalsByPeriodType(ctx context.Context, tenant finance.TenantID) (map[finance.PeriodType]decimal.Decimal, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT period_type, COALESCE(SUM(total_amount_cents), 0)
		FROM cube_cells WHERE tenant_id = ?
		GROUP BY period_type`,
		tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load cube totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[finance.PeriodType]decimal.Decimal)
	for rows.Next() {
		var (
			pt    finance.PeriodType
			cents int64
		)
		if err := rows.Scan(&pt, &cents); err != nil {
			return nil, err
		}
		totals[pt] = finance.FromCents(cents)
	}
	return totals, rows.Err()
}
