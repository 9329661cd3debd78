/*
store.go - Persistence interfaces for the ledger, anchors, and cube

PURPOSE:
  Defines the interface between the engines and the database. One Store
  interface covers the five persisted tables (accounts, categories,
  transactions, balance anchors, cube cells); TxStore adds the single
  transactional primitive every mutation runs under.

TENANT ISOLATION:
  Every method takes the tenant as its first domain parameter, and the
  adapter refuses calls with an empty tenant (ErrTenantRequired). There is
  no cross-tenant query surface at all.

TRANSACTIONS:
  WithTx(fn) is the only transaction primitive. The ledger service wraps
  "ledger mutation + cube update" in one WithTx call; a failure in either
  rolls back both. The Store passed to fn is scoped to that transaction,
  reads included - the cube engine must see rows the surrounding mutation
  just wrote.

CUBE WRITES:
  Cube cells are written exclusively through the cube engine. Nothing else
  calls InsertCells / DeleteCells.

IMPLEMENTATIONS:
  - store/sqlite: production adapter (SQLite; the same SQL shapes apply to
    PostgreSQL with minor dialect changes)
*/
package finance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FILTERS
// =============================================================================

// AccountFilter narrows account listings. Nil fields are ignored.
type AccountFilter struct {
	Type   *AccountType
	Active *bool
	Search string // case-insensitive substring on name
}

// TransactionFilter narrows transaction listings. Nil fields are ignored.
type TransactionFilter struct {
	AccountID   string
	CategoryID  string
	Type        *TransactionType
	From        *Date
	To          *Date
	IsRecurring *bool
	Search      string // case-insensitive substring on description
	Limit       int    // 0 = no limit
}

// TrendFilter narrows cube queries. Nil fields are ignored.
type TrendFilter struct {
	PeriodType      *PeriodType
	From            *Date // inclusive lower bound on period_start
	To              *Date // inclusive upper bound on period_start
	TransactionType *TransactionType
	CategoryIDs     []string
	AccountIDs      []string
	IsRecurring     *bool
}

// CubeStats is the read-only statistics surface of the cube.
type CubeStats struct {
	TotalCells     int
	WeeklyCells    int
	MonthlyCells   int
	EarliestPeriod *Date
	LatestPeriod   *Date
	AccountCount   int
	CategoryCount  int
	LastUpdated    *time.Time
}

// =============================================================================
// STORE - Tenant-scoped access to the five tables
// =============================================================================

type Store interface {
	// --- accounts ---

	InsertAccount(ctx context.Context, a *Account) error
	// GetAccount returns (nil, nil) when the account does not exist in the
	// tenant; services map that to NotFoundError.
	GetAccount(ctx context.Context, tenant TenantID, id string) (*Account, error)
	ListAccounts(ctx context.Context, tenant TenantID, f AccountFilter) ([]Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
	DeleteAccount(ctx context.Context, tenant TenantID, id string) error
	// ActiveAccountNameExists checks the per-tenant active-name invariant,
	// ignoring the account with excludeID (for updates).
	ActiveAccountNameExists(ctx context.Context, tenant TenantID, name, excludeID string) (bool, error)

	// --- categories ---

	InsertCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, tenant TenantID, id string) (*Category, error)
	ListCategories(ctx context.Context, tenant TenantID) ([]Category, error)
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, tenant TenantID, id string) error
	CategoryNameExists(ctx context.Context, tenant TenantID, name string, ctype CategoryType, excludeID string) (bool, error)

	// --- transactions ---

	InsertTransaction(ctx context.Context, t *Transaction) error
	GetTransaction(ctx context.Context, tenant TenantID, id string) (*Transaction, error)
	ListTransactions(ctx context.Context, tenant TenantID, f TransactionFilter) ([]TransactionDetail, error)
	UpdateTransaction(ctx context.Context, t *Transaction) error
	DeleteTransaction(ctx context.Context, tenant TenantID, id string) error
	CountTransactionsByAccount(ctx context.Context, tenant TenantID, accountID string) (int, error)
	CountTransactionsByCategory(ctx context.Context, tenant TenantID, categoryID string) (int, error)

	// AccountTransactions returns an account's postings in the deterministic
	// order (date ASC, id ASC, description ASC). Nil bounds are open.
	AccountTransactions(ctx context.Context, tenant TenantID, accountID string, from, to *Date) ([]Transaction, error)

	// Projections returns the cube projections of the given postings.
	Projections(ctx context.Context, tenant TenantID, ids []string) ([]TxProjection, error)
	// DistinctFieldValues returns the distinct raw values of one bulk field
	// across the given postings (cents for amount, 0/1 for booleans).
	DistinctFieldValues(ctx context.Context, tenant TenantID, ids []string, f ChangedField) ([]string, error)
	// ApplyBulkField applies one UPDATE ... WHERE id IN (...) setting the
	// changed field to its new value. Returns rows affected.
	ApplyBulkField(ctx context.Context, tenant TenantID, ids []string, f BulkField) (int64, error)
	// DeleteTransactions deletes postings by id. Returns rows deleted.
	DeleteTransactions(ctx context.Context, tenant TenantID, ids []string) (int64, error)
	// LedgerTotal sums all posting amounts of the tenant.
	LedgerTotal(ctx context.Context, tenant TenantID) (decimal.Decimal, error)
	// LedgerDateRange returns the (min, max) posting dates, or (nil, nil)
	// for an empty ledger.
	LedgerDateRange(ctx context.Context, tenant TenantID) (*Date, *Date, error)

	// --- balance anchors ---

	// UpsertAnchor inserts or, on an (account, date) collision, replaces the
	// anchor's balance and description.
	UpsertAnchor(ctx context.Context, a *BalanceAnchor) error
	AnchorsForAccount(ctx context.Context, tenant TenantID, accountID string) ([]BalanceAnchor, error)
	// LatestAnchorOnOrBefore returns the newest anchor with anchor_date <= d,
	// or (nil, nil) when none exists.
	LatestAnchorOnOrBefore(ctx context.Context, tenant TenantID, accountID string, d Date) (*BalanceAnchor, error)
	// EarliestAnchorOnOrAfter returns the oldest anchor with anchor_date >= d,
	// or (nil, nil) when none exists.
	EarliestAnchorOnOrAfter(ctx context.Context, tenant TenantID, accountID string, d Date) (*BalanceAnchor, error)
	DeleteAnchorsForAccount(ctx context.Context, tenant TenantID, accountID string) error

	// --- cube (written only by the cube engine) ---

	// DeleteCells removes the cells with exactly the given dimensional keys.
	DeleteCells(ctx context.Context, keys []CubeKey) (int64, error)
	// UpsertCells writes regenerated cells, replacing facts on key collision.
	UpsertCells(ctx context.Context, cells []CubeCell) error
	// AggregateCell recomputes one target from the ledger; (nil, nil) when
	// no postings match (the cell must then not exist).
	AggregateCell(ctx context.Context, key CubeKey) (*CubeCell, error)
	// AggregatePeriod recomputes every cell of one period from the ledger,
	// optionally scoped to a single account.
	AggregatePeriod(ctx context.Context, tenant TenantID, p Period, accountID string) ([]CubeCell, error)
	// DeleteCellsForPeriod removes a period's cells, optionally scoped to an
	// account.
	DeleteCellsForPeriod(ctx context.Context, tenant TenantID, p Period, accountID string) (int64, error)
	// DeleteCellsInRange removes cells whose period_start falls in [from, to],
	// optionally scoped to an account.
	DeleteCellsInRange(ctx context.Context, tenant TenantID, from, to Date, accountID string) (int64, error)
	ClearCube(ctx context.Context, tenant TenantID) (int64, error)
	QueryCells(ctx context.Context, tenant TenantID, f TrendFilter) ([]CubeCell, error)
	AggregateCube(ctx context.Context, tenant TenantID, groupBy []CubeDimension, f TrendFilter) ([]AggregateRow, error)
	CubeStatistics(ctx context.Context, tenant TenantID) (*CubeStats, error)
	// CubeTotalsByPeriodType sums cube total_amount per period type.
	CubeTotalsByPeriodType(ctx context.Context, tenant TenantID) (map[PeriodType]decimal.Decimal, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with the transaction primitive. The Store given to fn
// is bound to the transaction; if fn returns an error the transaction is
// rolled back, otherwise committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
