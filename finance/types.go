/*
Package finance provides the core types shared by the ledger, balance, and
cube engines.

PURPOSE:
  This package contains the tenant-scoped entity model for a multi-tenant
  personal-finance backend: accounts, categories, transactions (postings),
  balance anchors, and pre-aggregated cube cells. Every entity is scoped by
  a TenantID; no cross-tenant read is ever permitted by the core.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account / Category / Transaction / BalanceAnchor: the ledger entities
  - CubeKey / CubeCell: the dimensional tuple and facts of the financial cube
  - Money helpers: exact decimal amounts with a fixed two-digit scale

SIGN CONVENTION:
  A transaction amount is stored with the sign that equals its balance
  impact. INCOME is positive, EXPENSE is negative (refund-like entries may
  be positive), TRANSFER carries its own sign (outgoing negative, incoming
  positive). The balance-impact function is the identity on the amount.

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere; amounts persist as integer cents
  2. Isolation: TenantID is the first parameter of every storage call
  3. Determinism: postings order by (date, id, description), nothing else

SEE ALSO:
  - date.go:   Date (UTC midnight) value type
  - period.go: weekly/monthly period calculation
  - change.go: change descriptors emitted by the ledger service
  - store.go:  storage interfaces implemented by store/sqlite
*/
package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TENANT
// =============================================================================

// TenantID is the isolation unit. Every query, index, and uniqueness
// constraint includes it first.
type TenantID string

// =============================================================================
// ACCOUNT
// =============================================================================

type AccountType string

const (
	AccountChecking              AccountType = "CHECKING"
	AccountSavings               AccountType = "SAVINGS"
	AccountCredit                AccountType = "CREDIT"
	AccountCreditCard            AccountType = "CREDIT_CARD"
	AccountInvestment            AccountType = "INVESTMENT"
	AccountLoan                  AccountType = "LOAN"
	AccountCash                  AccountType = "CASH"
	AccountTraditionalRetirement AccountType = "TRADITIONAL_RETIREMENT"
	AccountRothRetirement        AccountType = "ROTH_RETIREMENT"
)

// NetWorthCategory classifies how an account contributes to net worth.
type NetWorthCategory string

const (
	NetWorthAsset     NetWorthCategory = "ASSET"
	NetWorthLiability NetWorthCategory = "LIABILITY"
	NetWorthExcluded  NetWorthCategory = "EXCLUDED"
)

// DefaultNetWorthCategory returns the net-worth classification implied by an
// account type when none is given: credit and loan accounts are liabilities,
// everything else is an asset.
func DefaultNetWorthCategory(t AccountType) NetWorthCategory {
	switch t {
	case AccountCredit, AccountCreditCard, AccountLoan:
		return NetWorthLiability
	default:
		return NetWorthAsset
	}
}

// Account is a ledger account. Balance and BalanceDate are a cached view
// maintained by reconciliation and sync; the balance engine is the source
// of truth for computed balances.
type Account struct {
	ID       string
	TenantID TenantID
	Name     string
	Type     AccountType
	NetWorth NetWorthCategory
	Balance  decimal.Decimal
	// BalanceDate is the day the cached Balance was established.
	BalanceDate Date
	Color       string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// CATEGORY
// =============================================================================

type CategoryType string

const (
	CategoryIncome   CategoryType = "INCOME"
	CategoryExpense  CategoryType = "EXPENSE"
	CategoryTransfer CategoryType = "TRANSFER"
)

// Category names are unique per (tenant, name, type).
type Category struct {
	ID        string
	TenantID  TenantID
	Name      string
	Type      CategoryType
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UncategorizedName is the denormalized name captured on cube cells whose
// postings carry no category.
const UncategorizedName = "Uncategorized"

// =============================================================================
// TRANSACTION (POSTING)
// =============================================================================

type TransactionType string

const (
	TxIncome   TransactionType = "INCOME"
	TxExpense  TransactionType = "EXPENSE"
	TxTransfer TransactionType = "TRANSFER"
)

// Transaction is a single ledger posting with a signed amount.
// CategoryID is empty for uncategorized postings.
type Transaction struct {
	ID          string
	TenantID    TenantID
	AccountID   string
	CategoryID  string
	Amount      decimal.Decimal
	Description string
	Date        Date
	Type        TransactionType
	IsRecurring bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TransactionDetail is a posting joined with its account and category names,
// as returned by list queries.
type TransactionDetail struct {
	Transaction
	AccountName  string
	CategoryName string
}

// =============================================================================
// BALANCE ANCHOR
// =============================================================================

// BalanceAnchor is a trusted snapshot of an account's balance at the END of
// AnchorDate. (account_id, anchor_date) is unique within a tenant.
type BalanceAnchor struct {
	ID          string
	TenantID    TenantID
	AccountID   string
	AnchorDate  Date
	Balance     decimal.Decimal
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// CUBE CELL
// =============================================================================

type PeriodType string

const (
	PeriodWeekly  PeriodType = "WEEKLY"
	PeriodMonthly PeriodType = "MONTHLY"
)

// CubeKey is the dimensional identity of a cube cell: everything but the
// facts. It doubles as a regeneration target, a cell the cube engine plans
// to recompute from the ledger.
type CubeKey struct {
	TenantID        TenantID
	PeriodType      PeriodType
	PeriodStart     Date
	PeriodEnd       Date
	TransactionType TransactionType
	CategoryID      string // empty = uncategorized
	AccountID       string
	IsRecurring     bool
}

// CubeCell is a pre-aggregated row of the financial cube. Zero-sum cells
// (TotalAmount == 0 AND TransactionCount == 0) are never persisted.
// CategoryName and AccountName are denormalized snapshots captured at the
// last regeneration.
type CubeCell struct {
	CubeKey
	TotalAmount      decimal.Decimal
	TransactionCount int
	CategoryName     string
	AccountName      string
	UpdatedAt        time.Time
}

// =============================================================================
// MONEY - Exact decimal with two-digit scale, persisted as integer cents
// =============================================================================

// Epsilon is the tolerance for balance comparisons: half of the smallest
// representable amount. Differences at or below it are treated as equal.
var Epsilon = decimal.New(5, -3) // 0.005

// AmountsEqual reports whether two amounts agree within Epsilon.
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// Cents converts a decimal amount to integer cents, rounding half away from
// zero at the second fractional digit.
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// FromCents converts integer cents back to a two-digit decimal.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// MustDecimal parses a decimal literal; it returns zero on malformed input.
// Intended for constants and tests, mirroring decimal.RequireFromString
// without the panic.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
