/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements finance.Store and finance.TxStore using SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

TENANT ISOLATION:
  Every query binds tenant_id as its first parameter. Methods refuse calls
  with an empty tenant (finance.ErrTenantRequired); there is no query in
  this file without a tenant predicate.

MONEY:
  Amounts are persisted as INTEGER cents so SUM() stays in exact integer
  arithmetic. The adapter converts to decimal.Decimal at the boundary; no
  float ever touches money.

KEY TABLES:
  accounts:        ledger accounts with cached balance
  categories:      income/expense/transfer categories
  transactions:    the posting ledger (signed cents)
  balance_anchors: trusted point-in-time balance snapshots
  cube_cells:      the pre-aggregated financial cube

INDEXES:
  The cube's primary key leads with (tenant_id, period_start, period_type)
  and covers the full dimensional uniqueness constraint. Secondary indexes
  exist per filtering dimension. The transactions table is indexed for
  account-ordered replay and per-dimension aggregation.

TRANSACTIONS:
  WithTx(fn) hands fn a Store bound to one database transaction. Reads
  inside fn see uncommitted writes of the same transaction, which the cube
  regeneration step depends on.

WAL MODE:
  The database is opened with WAL and foreign keys on. database/sql is
  capped at a single open connection; SQLite serializes writers anyway and
  this keeps transaction scoping simple.

USAGE:
  store, err := sqlite.New("./data/fincube.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - finance/store.go: interface definitions
  - cube.go: cube-cell persistence and aggregation queries
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/fincube/finance"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so every query method works
// inside and outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements finance.Store over a DBTX.
type queries struct {
	db DBTX
}

// Store implements finance.TxStore over a SQLite database.
type Store struct {
	queries
	sqldb *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer, and in-memory databases
	// exist per connection.
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{db: db}, sqldb: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqldb.Close()
}

// WithTx executes fn within a database transaction. The Store passed to fn
// is bound to that transaction, reads included.
func (s *Store) WithTx(ctx context.Context, fn func(finance.Store) error) error {
	tx, err := s.sqldb.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts (cached balance; the balance engine is the source of truth)
	CREATE TABLE IF NOT EXISTS accounts (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		account_type TEXT NOT NULL,
		net_worth_category TEXT NOT NULL,
		balance_cents INTEGER NOT NULL DEFAULT 0,
		balance_date TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	-- No two ACTIVE accounts in a tenant share a name
	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_active_name
		ON accounts(tenant_id, name) WHERE is_active;

	-- Categories
	CREATE TABLE IF NOT EXISTS categories (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		category_type TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name_type
		ON categories(tenant_id, name, category_type);

	-- Transactions (postings). category_id '' = uncategorized.
	-- amount_cents carries the sign of the balance impact.
	CREATE TABLE IF NOT EXISTS transactions (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		category_id TEXT NOT NULL DEFAULT '',
		amount_cents INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		tx_date TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		is_recurring BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	-- Deterministic replay per account (hot path for balance reconstruction)
	CREATE INDEX IF NOT EXISTS idx_transactions_account_date
		ON transactions(tenant_id, account_id, tx_date, id);
	CREATE INDEX IF NOT EXISTS idx_transactions_category_date
		ON transactions(tenant_id, category_id, tx_date);
	CREATE INDEX IF NOT EXISTS idx_transactions_date
		ON transactions(tenant_id, tx_date);

	-- Balance anchors: trusted end-of-day snapshots
	CREATE TABLE IF NOT EXISTS balance_anchors (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		anchor_date TEXT NOT NULL,
		balance_cents INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_anchors_account_date
		ON balance_anchors(tenant_id, account_id, anchor_date);

	-- Financial cube. The primary key doubles as the dimensional uniqueness
	-- constraint and leads with (tenant, period_start, period_type).
	CREATE TABLE IF NOT EXISTS cube_cells (
		tenant_id TEXT NOT NULL,
		period_type TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		category_id TEXT NOT NULL DEFAULT '',
		account_id TEXT NOT NULL,
		is_recurring BOOLEAN NOT NULL,
		total_amount_cents INTEGER NOT NULL,
		tx_count INTEGER NOT NULL,
		category_name TEXT NOT NULL,
		account_name TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, period_start, period_type, tx_type, category_id, account_id, is_recurring)
	);

	CREATE INDEX IF NOT EXISTS idx_cube_category
		ON cube_cells(tenant_id, category_id, period_start);
	CREATE INDEX IF NOT EXISTS idx_cube_account
		ON cube_cells(tenant_id, account_id, period_start);
	CREATE INDEX IF NOT EXISTS idx_cube_type
		ON cube_cells(tenant_id, tx_type, period_start);
	CREATE INDEX IF NOT EXISTS idx_cube_recurring
		ON cube_cells(tenant_id, is_recurring, period_start);
	`

	_, err := s.sqldb.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `tenant_id, id, name, account_type, net_worth_category,
	balance_cents, balance_date, color, is_active, created_at, updated_at`

func (q *queries) InsertAccount(ctx context.Context, a *finance.Account) error {
	if err := requireTenant(a.TenantID); err != nil {
		return err
	}

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.db.ExecContext(ctx, query,
		a.TenantID, a.ID, a.Name, a.Type, a.NetWorth,
		finance.Cents(a.Balance), a.BalanceDate.String(), a.Color, a.IsActive,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrUniqueViolation
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (q *queries) GetAccount(ctx context.Context, tenant finance.TenantID, id string) (*finance.Account, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE tenant_id = ? AND id = ?",
		tenant, id)

	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (q *queries) ListAccounts(ctx context.Context, tenant finance.TenantID, f finance.AccountFilter) ([]finance.Account, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	query := "SELECT " + accountColumns + " FROM accounts WHERE tenant_id = ?"
	args := []any{tenant}

	if f.Type != nil {
		query += " AND account_type = ?"
		args = append(args, *f.Type)
	}
	if f.Active != nil {
		query += " AND is_active = ?"
		args = append(args, *f.Active)
	}
	if f.Search != "" {
		query += " AND name LIKE '%' || ? || '%' COLLATE NOCASE"
		args = append(args, f.Search)
	}
	query += " ORDER BY name ASC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []finance.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (q *queries) UpdateAccount(ctx context.Context, a *finance.Account) error {
	if err := requireTenant(a.TenantID); err != nil {
		return err
	}

	query := `
		UPDATE accounts
		SET name = ?, account_type = ?, net_worth_category = ?, balance_cents = ?,
		    balance_date = ?, color = ?, is_active = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	_, err := q.db.ExecContext(ctx, query,
		a.Name, a.Type, a.NetWorth, finance.Cents(a.Balance),
		a.BalanceDate.String(), a.Color, a.IsActive, formatTime(a.UpdatedAt),
		a.TenantID, a.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrUniqueViolation
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

func (q *queries) DeleteAccount(ctx context.Context, tenant finance.TenantID, id string) error {
	if err := requireTenant(tenant); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx,
		"DELETE FROM accounts WHERE tenant_id = ? AND id = ?", tenant, id)
	return err
}

func (q *queries) ActiveAccountNameExists(ctx context.Context, tenant finance.TenantID, name, excludeID string) (bool, error) {
	if err := requireTenant(tenant); err != nil {
		return false, err
	}

	var count int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM accounts
		WHERE tenant_id = ? AND name = ? AND is_active AND id <> ?`,
		tenant, name, excludeID).Scan(&count)
	return count > 0, err
}

func scanAccount(row scanner) (*finance.Account, error) {
	var (
		a           finance.Account
		cents       int64
		balanceDate string
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(&a.TenantID, &a.ID, &a.Name, &a.Type, &a.NetWorth,
		&cents, &balanceDate, &a.Color, &a.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.Balance = finance.FromCents(cents)
	a.BalanceDate, _ = finance.ParseDate(balanceDate)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

const categoryColumns = `tenant_id, id, name, category_type, color, created_at, updated_at`

func (q *queries) InsertCategory(ctx context.Context, c *finance.Category) error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.TenantID, c.ID, c.Name, c.Type, c.Color,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrUniqueViolation
		}
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

func (q *queries) GetCategory(ctx context.Context, tenant finance.TenantID, id string) (*finance.Category, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE tenant_id = ? AND id = ?",
		tenant, id)

	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (q *queries) ListCategories(ctx context.Context, tenant finance.TenantID) ([]finance.Category, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE tenant_id = ? ORDER BY category_type ASC, name ASC",
		tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []finance.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

func (q *queries) UpdateCategory(ctx context.Context, c *finance.Category) error {
	if err := requireTenant(c.TenantID); err != nil {
		return err
	}

	_, err := q.db.ExecContext(ctx, `
		UPDATE categories SET name = ?, category_type = ?, color = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		c.Name, c.Type, c.Color, formatTime(c.UpdatedAt), c.TenantID, c.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrUniqueViolation
		}
		return fmt.Errorf("failed to update category: %w", err)
	}
	return nil
}

func (q *queries) DeleteCategory(ctx context.Context, tenant finance.TenantID, id string) error {
	if err := requireTenant(tenant); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx,
		"DELETE FROM categories WHERE tenant_id = ? AND id = ?", tenant, id)
	return err
}

func (q *queries) CategoryNameExists(ctx context.Context, tenant finance.TenantID, name string, ctype finance.CategoryType, excludeID string) (bool, error) {
	if err := requireTenant(tenant); err != nil {
		return false, err
	}

	var count int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM categories
		WHERE tenant_id = ? AND name = ? AND category_type = ? AND id <> ?`,
		tenant, name, ctype, excludeID).Scan(&count)
	return count > 0, err
}

func scanCategory(row scanner) (*finance.Category, error) {
	var (
		c         finance.Category
		createdAt string
		updatedAt string
	)
	err := row.Scan(&c.TenantID, &c.ID, &c.Name, &c.Type, &c.Color, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const txColumns = `tenant_id, id, account_id, category_id, amount_cents,
	description, tx_date, tx_type, is_recurring, created_at, updated_at`

func (q *queries) InsertTransaction(ctx context.Context, t *finance.Transaction) error {
	if err := requireTenant(t.TenantID); err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (` + txColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := q.db.ExecContext(ctx, query,
		t.TenantID, t.ID, t.AccountID, t.CategoryID, finance.Cents(t.Amount),
		t.Description, t.Date.String(), t.Type, t.IsRecurring,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrUniqueViolation
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (q *queries) GetTransaction(ctx context.Context, tenant finance.TenantID, id string) (*finance.Transaction, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE tenant_id = ? AND id = ?",
		tenant, id)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (q *queries) ListTransactions(ctx context.Context, tenant finance.TenantID, f finance.TransactionFilter) ([]finance.TransactionDetail, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	query := `
		SELECT t.tenant_id, t.id, t.account_id, t.category_id, t.amount_cents,
		       t.description, t.tx_date, t.tx_type, t.is_recurring,
		       t.created_at, t.updated_at,
		       a.name, COALESCE(c.name, '')
		FROM transactions t
		INNER JOIN accounts a ON a.tenant_id = t.tenant_id AND a.id = t.account_id
		LEFT JOIN categories c ON c.tenant_id = t.tenant_id AND c.id = t.category_id
		WHERE t.tenant_id = ?`
	args := []any{tenant}

	if f.AccountID != "" {
		query += " AND t.account_id = ?"
		args = append(args, f.AccountID)
	}
	if f.CategoryID != "" {
		query += " AND t.category_id = ?"
		args = append(args, f.CategoryID)
	}
	if f.Type != nil {
		query += " AND t.tx_type = ?"
		args = append(args, *f.Type)
	}
	if f.From != nil {
		query += " AND t.tx_date >= ?"
		args = append(args, f.From.String())
	}
	if f.To != nil {
		query += " AND t.tx_date <= ?"
		args = append(args, f.To.String())
	}
	if f.IsRecurring != nil {
		query += " AND t.is_recurring = ?"
		args = append(args, *f.IsRecurring)
	}
	if f.Search != "" {
		query += " AND t.description LIKE '%' || ? || '%' COLLATE NOCASE"
		args = append(args, f.Search)
	}
	query += " ORDER BY t.tx_date DESC, t.id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var details []finance.TransactionDetail
	for rows.Next() {
		var (
			d            finance.TransactionDetail
			cents        int64
			txDate       string
			createdAt    string
			updatedAt    string
			categoryName string
		)
		err := rows.Scan(&d.TenantID, &d.ID, &d.AccountID, &d.CategoryID, &cents,
			&d.Description, &txDate, &d.Type, &d.IsRecurring,
			&createdAt, &updatedAt, &d.AccountName, &categoryName)
		if err != nil {
			return nil, err
		}
		d.Amount = finance.FromCents(cents)
		d.Date, _ = finance.ParseDate(txDate)
		d.CreatedAt = parseTime(createdAt)
		d.UpdatedAt = parseTime(updatedAt)
		if categoryName == "" {
			categoryName = finance.UncategorizedName
		}
		d.CategoryName = categoryName
		details = append(details, d)
	}
	return details, rows.Err()
}

func (q *queries) UpdateTransaction(ctx context.Context, t *finance.Transaction) error {
	if err := requireTenant(t.TenantID); err != nil {
		return err
	}

	query := `
		UPDATE transactions
		SET account_id = ?, category_id = ?, amount_cents = ?, description = ?,
		    tx_date = ?, tx_type = ?, is_recurring = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	_, err := q.db.ExecContext(ctx, query,
		t.AccountID, t.CategoryID, finance.Cents(t.Amount), t.Description,
		t.Date.String(), t.Type, t.IsRecurring, formatTime(t.UpdatedAt),
		t.TenantID, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (q *queries) DeleteTransaction(ctx context.Context, tenant finance.TenantID, id string) error {
	if err := requireTenant(tenant); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx,
		"DELETE FROM transactions WHERE tenant_id = ? AND id = ?", tenant, id)
	return err
}

func (q *queries) CountTransactionsByAccount(ctx context.Context, tenant finance.TenantID, accountID string) (int, error) {
	if err := requireTenant(tenant); err != nil {
		return 0, err
	}

	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE tenant_id = ? AND account_id = ?",
		tenant, accountID).Scan(&count)
	return count, err
}

func (q *queries) CountTransactionsByCategory(ctx context.Context, tenant finance.TenantID, categoryID string) (int, error) {
	if err := requireTenant(tenant); err != nil {
		return 0, err
	}

	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE tenant_id = ? AND category_id = ?",
		tenant, categoryID).Scan(&count)
	return count, err
}

// AccountTransactions returns postings in the deterministic replay order
// (date ASC, id ASC, description ASC). The balance engine relies on its
// stability for same-date entries.
func (q *queries) AccountTransactions(ctx context.Context, tenant finance.TenantID, accountID string, from, to *finance.Date) ([]finance.Transaction, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	query := "SELECT " + txColumns + " FROM transactions WHERE tenant_id = ? AND account_id = ?"
	args := []any{tenant, accountID}

	if from != nil {
		query += " AND tx_date >= ?"
		args = append(args, from.String())
	}
	if to != nil {
		query += " AND tx_date <= ?"
		args = append(args, to.String())
	}
	query += " ORDER BY tx_date ASC, id ASC, description ASC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load account transactions: %w", err)
	}
	defer rows.Close()

	var txs []finance.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (q *queries) Projections(ctx context.Context, tenant finance.TenantID, ids []string) ([]finance.TxProjection, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT account_id, category_id, amount_cents, tx_date, tx_type, is_recurring
		FROM transactions
		WHERE tenant_id = ? AND id IN (` + placeholders(len(ids)) + `)`

	rows, err := q.db.QueryContext(ctx, query, withTenant(tenant, ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load projections: %w", err)
	}
	defer rows.Close()

	var projections []finance.TxProjection
	for rows.Next() {
		var (
			p      finance.TxProjection
			cents  int64
			txDate string
		)
		if err := rows.Scan(&p.AccountID, &p.CategoryID, &cents, &txDate, &p.Type, &p.IsRecurring); err != nil {
			return nil, err
		}
		p.Amount = finance.FromCents(cents)
		p.Date, _ = finance.ParseDate(txDate)
		projections = append(projections, p)
	}
	return projections, rows.Err()
}

// bulkColumns maps the closed set of bulk-updatable fields to their columns.
var bulkColumns = map[finance.ChangedField]string{
	finance.FieldCategoryID:  "category_id",
	finance.FieldAccountID:   "account_id",
	finance.FieldType:        "tx_type",
	finance.FieldAmount:      "amount_cents",
	finance.FieldIsRecurring: "is_recurring",
}

func (q *queries) DistinctFieldValues(ctx context.Context, tenant finance.TenantID, ids []string, f finance.ChangedField) ([]string, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	column, ok := bulkColumns[f]
	if !ok {
		return nil, finance.ErrUnsupportedBulkField
	}

	query := `
		SELECT DISTINCT CAST(` + column + ` AS TEXT)
		FROM transactions
		WHERE tenant_id = ? AND id IN (` + placeholders(len(ids)) + `)
		ORDER BY 1`

	rows, err := q.db.QueryContext(ctx, query, withTenant(tenant, ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load distinct values: %w", err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (q *queries) ApplyBulkField(ctx context.Context, tenant finance.TenantID, ids []string, f finance.BulkField) (int64, error) {
	if err := requireTenant(tenant); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var (
		column string
		value  any
	)
	switch c := f.(type) {
	case finance.CategoryFieldChange:
		column, value = "category_id", c.New
	case finance.AccountFieldChange:
		column, value = "account_id", c.New
	case finance.TypeFieldChange:
		column, value = "tx_type", c.New
	case finance.AmountFieldChange:
		column, value = "amount_cents", finance.Cents(c.New)
	case finance.RecurringFieldChange:
		column, value = "is_recurring", c.New
	default:
		return 0, finance.ErrUnsupportedBulkField
	}

	query := `
		UPDATE transactions SET ` + column + ` = ?, updated_at = ?
		WHERE tenant_id = ? AND id IN (` + placeholders(len(ids)) + `)`

	args := []any{value, formatTime(time.Now().UTC()), tenant}
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to apply bulk update: %w", err)
	}
	return res.RowsAffected()
}

func (q *queries) DeleteTransactions(ctx context.Context, tenant finance.TenantID, ids []string) (int64, error) {
	if err := requireTenant(tenant); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	query := "DELETE FROM transactions WHERE tenant_id = ? AND id IN (" + placeholders(len(ids)) + ")"
	res, err := q.db.ExecContext(ctx, query, withTenant(tenant, ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions: %w", err)
	}
	return res.RowsAffected()
}

func (q *queries) LedgerTotal(ctx context.Context, tenant finance.TenantID) (decimal.Decimal, error) {
	if err := requireTenant(tenant); err != nil {
		return decimal.Zero, err
	}

	var cents int64
	err := q.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE tenant_id = ?",
		tenant).Scan(&cents)
	return finance.FromCents(cents), err
}

func (q *queries) LedgerDateRange(ctx context.Context, tenant finance.TenantID) (*finance.Date, *finance.Date, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, nil, err
	}

	var minStr, maxStr sql.NullString
	err := q.db.QueryRowContext(ctx,
		"SELECT MIN(tx_date), MAX(tx_date) FROM transactions WHERE tenant_id = ?",
		tenant).Scan(&minStr, &maxStr)
	if err != nil {
		return nil, nil, err
	}
	if !minStr.Valid || !maxStr.Valid {
		return nil, nil, nil
	}

	min, err := finance.ParseDate(minStr.String)
	if err != nil {
		return nil, nil, err
	}
	max, err := finance.ParseDate(maxStr.String)
	if err != nil {
		return nil, nil, err
	}
	return &min, &max, nil
}

func scanTransaction(row scanner) (*finance.Transaction, error) {
	var (
		t         finance.Transaction
		cents     int64
		txDate    string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&t.TenantID, &t.ID, &t.AccountID, &t.CategoryID, &cents,
		&t.Description, &txDate, &t.Type, &t.IsRecurring, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.Amount = finance.FromCents(cents)
	t.Date, _ = finance.ParseDate(txDate)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

// =============================================================================
// BALANCE ANCHORS
// =============================================================================

const anchorColumns = `tenant_id, id, account_id, anchor_date, balance_cents, description, created_at`

func (q *queries) UpsertAnchor(ctx context.Context, a *finance.BalanceAnchor) error {
	if err := requireTenant(a.TenantID); err != nil {
		return err
	}

	query := `
		INSERT INTO balance_anchors (` + anchorColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, account_id, anchor_date) DO UPDATE SET
			balance_cents = excluded.balance_cents,
			description = excluded.description
	`

	_, err := q.db.ExecContext(ctx, query,
		a.TenantID, a.ID, a.AccountID, a.AnchorDate.String(),
		finance.Cents(a.Balance), a.Description, formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert anchor: %w", err)
	}
	return nil
}

func (q *queries) AnchorsForAccount(ctx context.Context, tenant finance.TenantID, accountID string) ([]finance.BalanceAnchor, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx,
		"SELECT "+anchorColumns+" FROM balance_anchors WHERE tenant_id = ? AND account_id = ? ORDER BY anchor_date ASC",
		tenant, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load anchors: %w", err)
	}
	defer rows.Close()

	var anchors []finance.BalanceAnchor
	for rows.Next() {
		a, err := scanAnchor(rows)
		if err != nil {
			return nil, err
		}
		anchors = append(anchors, *a)
	}
	return anchors, rows.Err()
}

func (q *queries) LatestAnchorOnOrBefore(ctx context.Context, tenant finance.TenantID, accountID string, d finance.Date) (*finance.BalanceAnchor, error) {
	return q.anchorQuery(ctx, tenant, accountID,
		"anchor_date <= ? ORDER BY anchor_date DESC", d)
}

func (q *queries) EarliestAnchorOnOrAfter(ctx context.Context, tenant finance.TenantID, accountID string, d finance.Date) (*finance.BalanceAnchor, error) {
	return q.anchorQuery(ctx, tenant, accountID,
		"anchor_date >= ? ORDER BY anchor_date ASC", d)
}

func (q *queries) anchorQuery(ctx context.Context, tenant finance.TenantID, accountID, tail string, d finance.Date) (*finance.BalanceAnchor, error) {
	if err := requireTenant(tenant); err != nil {
		return nil, err
	}

	row := q.db.QueryRowContext(ctx,
		"SELECT "+anchorColumns+" FROM balance_anchors WHERE tenant_id = ? AND account_id = ? AND "+tail+" LIMIT 1",
		tenant, accountID, d.String())

	a, err := scanAnchor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (q *queries) DeleteAnchorsForAccount(ctx context.Context, tenant finance.TenantID, accountID string) error {
	if err := requireTenant(tenant); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx,
		"DELETE FROM balance_anchors WHERE tenant_id = ? AND account_id = ?",
		tenant, accountID)
	return err
}

func scanAnchor(row scanner) (*finance.BalanceAnchor, error) {
	var (
		a          finance.BalanceAnchor
		cents      int64
		anchorDate string
		createdAt  string
	)
	err := row.Scan(&a.TenantID, &a.ID, &a.AccountID, &anchorDate, &cents, &a.Description, &createdAt)
	if err != nil {
		return nil, err
	}
	a.Balance = finance.FromCents(cents)
	a.AnchorDate, _ = finance.ParseDate(anchorDate)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func requireTenant(tenant finance.TenantID) error {
	if tenant == "" {
		return finance.ErrTenantRequired
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func withTenant(tenant finance.TenantID, ids []string) []any {
	args := make([]any, 0, len(ids)+1)
	args = append(args, tenant)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
