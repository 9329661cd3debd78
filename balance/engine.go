/*
Package balance reconstructs account balances from anchors and postings.

PURPOSE:
  Computes (a) the balance of an account at an arbitrary date, (b) a daily
  series of (date, end-of-day balance, daily net) points, and (c) postings
  annotated with the running balance after each. The engine reads only the
  ledger and anchor tables; it never writes cube cells.

ANCHOR MODEL:
  An anchor is a trusted snapshot of the balance at the END of its date.
  Balance-at-date prefers the latest anchor at or before the target and
  replays forward; with no such anchor it replays backward from the
  earliest later anchor; with no anchors at all it sums the ledger from
  the beginning.

DETERMINISM:
  Postings order by (date ASC, id ASC, description ASC) and nothing else.
  Running-balance output is byte-identical across runs on the same data.

SIGN CONVENTION:
  Amounts already carry their balance impact; the engine only ever adds
  and subtracts them. No absolute values anywhere in a calculation.

SEE ALSO:
  - finance/store.go: AccountTransactions (deterministic order), anchors
  - ledger: reconciliation creates the anchors this engine consumes
*/
package balance

import (
	"context"
	"sort"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
	"github.com/warp/fincube/finance"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// Method tags how a balance was computed.
type Method string

const (
	MethodDirect         Method = "direct"
	MethodAnchorForward  Method = "anchor-forward"
	MethodAnchorBackward Method = "anchor-backward"
)

// Result is a computed balance with its provenance.
type Result struct {
	Balance decimal.Decimal
	Method  Method
	// Anchor is the anchor the computation was based on; nil for direct.
	Anchor *finance.BalanceAnchor
}

// AnnotatedPosting is a posting with the running balance after it applied.
type AnnotatedPosting struct {
	finance.Transaction
	Balance decimal.Decimal
}

// HistoryPoint is one day in a balance series.
type HistoryPoint struct {
	Date     finance.Date
	Balance  decimal.Decimal
	DailyNet decimal.Decimal
	Method   Method
}

// Summary condenses a balance series.
type Summary struct {
	StartingBalance  decimal.Decimal
	EndingBalance    decimal.Decimal
	NetChange        decimal.Decimal
	TransactionCount int
	MethodCounts     map[Method]int
}

// SyncResult reports a cached-balance sync.
type SyncResult struct {
	Old     decimal.Decimal
	New     decimal.Decimal
	Updated bool
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine computes balances over a Store. It is cheap to construct; the
// ledger service builds one over a transaction-scoped store when it needs
// a balance inside a mutation.
type Engine struct {
	store finance.Store
	log   *log.Logger
}

func New(store finance.Store) *Engine {
	return &Engine{store: store, log: &log.DefaultLogger}
}

// WithLogger replaces the engine's logger.
func (e *Engine) WithLogger(l *log.Logger) *Engine {
	e.log = l
	return e
}

// =============================================================================
// BALANCE AT DATE
// =============================================================================

// BalanceAt computes the account's balance at the end of target.
func (e *Engine) BalanceAt(ctx context.Context, tenant finance.TenantID, accountID string, target finance.Date) (*Result, error) {
	anchor, err := e.store.LatestAnchorOnOrBefore(ctx, tenant, accountID, target)
	if err != nil {
		return nil, err
	}
	if anchor != nil {
		from := anchor.AnchorDate.AddDays(1)
		sum, err := e.sumPostings(ctx, tenant, accountID, &from, &target)
		if err != nil {
			return nil, err
		}
		return &Result{
			Balance: anchor.Balance.Add(sum),
			Method:  MethodAnchorForward,
			Anchor:  anchor,
		}, nil
	}

	// No anchor at or before the target: replay backward from the earliest
	// later anchor, if any.
	next, err := e.store.EarliestAnchorOnOrAfter(ctx, tenant, accountID, target)
	if err != nil {
		return nil, err
	}
	if next != nil {
		sum, err := e.sumPostings(ctx, tenant, accountID, &target, &next.AnchorDate)
		if err != nil {
			return nil, err
		}
		return &Result{
			Balance: next.Balance.Sub(sum),
			Method:  MethodAnchorBackward,
			Anchor:  next,
		}, nil
	}

	sum, err := e.sumPostings(ctx, tenant, accountID, nil, &target)
	if err != nil {
		return nil, err
	}
	return &Result{Balance: sum, Method: MethodDirect}, nil
}

func (e *Engine) sumPostings(ctx context.Context, tenant finance.TenantID, accountID string, from, to *finance.Date) (decimal.Decimal, error) {
	txs, err := e.store.AccountTransactions(ctx, tenant, accountID, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, t := range txs {
		total = total.Add(t.Amount)
	}
	return total, nil
}

// =============================================================================
// RUNNING BALANCES
// =============================================================================

// RunningBalances annotates the given postings with the balance after each,
// returned newest-first. With an anchor, postings on or before the anchor
// date work backward from the anchor balance and later postings accumulate
// forward. Without one, a synthetic starting balance is derived so the final
// running balance matches the account's cached balance; a mismatch beyond
// tolerance logs a warning, never an error.
func (e *Engine) RunningBalances(ctx context.Context, tenant finance.TenantID, accountID string, postings []finance.Transaction) ([]AnnotatedPosting, error) {
	sorted := make([]finance.Transaction, len(postings))
	copy(sorted, postings)
	sortPostings(sorted)

	anchors, err := e.store.AnchorsForAccount(ctx, tenant, accountID)
	if err != nil {
		return nil, err
	}

	annotated := make([]AnnotatedPosting, len(sorted))

	if len(anchors) > 0 {
		anchor := anchors[len(anchors)-1]

		// Pre-anchor postings resolve backward from the anchor balance.
		split := 0
		for split < len(sorted) && sorted[split].Date.BeforeOrEqual(anchor.AnchorDate) {
			split++
		}

		run := anchor.Balance
		for i := split - 1; i >= 0; i-- {
			annotated[i] = AnnotatedPosting{Transaction: sorted[i], Balance: run}
			run = run.Sub(sorted[i].Amount)
		}

		run = anchor.Balance
		for i := split; i < len(sorted); i++ {
			run = run.Add(sorted[i].Amount)
			annotated[i] = AnnotatedPosting{Transaction: sorted[i], Balance: run}
		}
	} else {
		account, err := e.store.GetAccount(ctx, tenant, accountID)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, &finance.NotFoundError{Entity: "account", ID: accountID}
		}

		total := decimal.Zero
		for _, t := range sorted {
			total = total.Add(t.Amount)
		}
		if !finance.AmountsEqual(total, account.Balance) {
			e.log.Warn().
				Str("tenant", string(tenant)).
				Str("account", accountID).
				Str("cached_balance", account.Balance.String()).
				Str("ledger_sum", total.String()).
				Msg("cached balance not explained by postings; using synthetic start")
		}

		// Pin the final running balance to the cached balance.
		run := account.Balance.Sub(total)
		for i, t := range sorted {
			run = run.Add(t.Amount)
			annotated[i] = AnnotatedPosting{Transaction: t, Balance: run}
		}
	}

	// Newest first.
	for i, j := 0, len(annotated)-1; i < j; i, j = i+1, j-1 {
		annotated[i], annotated[j] = annotated[j], annotated[i]
	}
	return annotated, nil
}

// sortPostings applies the deterministic replay order.
func sortPostings(ps []finance.Transaction) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].Date.Equal(ps[j].Date) {
			return ps[i].Date.Before(ps[j].Date)
		}
		if ps[i].ID != ps[j].ID {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].Description < ps[j].Description
	})
}

// =============================================================================
// DAILY SERIES
// =============================================================================

// defaultHistoryDays is the lookback when no range is given.
const defaultHistoryDays = 30

// History returns one point per distinct posting date in [start, end],
// oldest first. Nil bounds default to the last 30 days ending today.
func (e *Engine) History(ctx context.Context, tenant finance.TenantID, accountID string, start, end *finance.Date) ([]HistoryPoint, error) {
	points, _, err := e.history(ctx, tenant, accountID, start, end)
	return points, err
}

func (e *Engine) history(ctx context.Context, tenant finance.TenantID, accountID string, start, end *finance.Date) ([]HistoryPoint, int, error) {
	from, to := resolveRange(start, end)

	txs, err := e.store.AccountTransactions(ctx, tenant, accountID, &from, &to)
	if err != nil {
		return nil, 0, err
	}

	// Distinct posting dates with their daily nets; txs arrive date-ascending.
	var (
		dates []finance.Date
		nets  = map[string]decimal.Decimal{}
	)
	for _, t := range txs {
		key := t.Date.String()
		if _, seen := nets[key]; !seen {
			dates = append(dates, t.Date)
			nets[key] = decimal.Zero
		}
		nets[key] = nets[key].Add(t.Amount)
	}

	points := make([]HistoryPoint, 0, len(dates))
	for _, d := range dates {
		res, err := e.BalanceAt(ctx, tenant, accountID, d)
		if err != nil {
			return nil, 0, err
		}
		points = append(points, HistoryPoint{
			Date:     d,
			Balance:  res.Balance,
			DailyNet: nets[d.String()],
			Method:   res.Method,
		})
	}
	return points, len(txs), nil
}

// Summarize folds a balance series into start/end/net figures plus method
// counters.
func (e *Engine) Summarize(ctx context.Context, tenant finance.TenantID, accountID string, start, end *finance.Date) (*Summary, error) {
	points, txCount, err := e.history(ctx, tenant, accountID, start, end)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		TransactionCount: txCount,
		MethodCounts:     map[Method]int{},
	}
	for _, p := range points {
		s.MethodCounts[p.Method]++
	}
	if len(points) > 0 {
		s.StartingBalance = points[0].Balance
		s.EndingBalance = points[len(points)-1].Balance
		s.NetChange = s.EndingBalance.Sub(s.StartingBalance)
	}
	return s, nil
}

func resolveRange(start, end *finance.Date) (finance.Date, finance.Date) {
	to := finance.Today()
	if end != nil {
		to = *end
	}
	from := to.AddDays(-defaultHistoryDays)
	if start != nil {
		from = *start
	}
	return from, to
}

// =============================================================================
// CACHED BALANCE SYNC
// =============================================================================

// SyncAccountBalance recomputes the balance as of today and, when it drifts
// from the cached value beyond tolerance, writes the computed value back.
func (e *Engine) SyncAccountBalance(ctx context.Context, tenant finance.TenantID, accountID string) (*SyncResult, error) {
	account, err := e.store.GetAccount(ctx, tenant, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, &finance.NotFoundError{Entity: "account", ID: accountID}
	}

	res, err := e.BalanceAt(ctx, tenant, accountID, finance.Today())
	if err != nil {
		return nil, err
	}

	out := &SyncResult{Old: account.Balance, New: res.Balance}
	if finance.AmountsEqual(account.Balance, res.Balance) {
		return out, nil
	}

	account.Balance = res.Balance
	account.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}
	out.Updated = true

	e.log.Info().
		Str("tenant", string(tenant)).
		Str("account", accountID).
		Str("old", out.Old.String()).
		Str("new", out.New.String()).
		Msg("synced cached account balance")
	return out, nil
}
