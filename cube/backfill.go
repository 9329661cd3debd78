/*
backfill.go - Full historical cube population

PURPOSE:
  Rebuilds the cube for a date range from the raw ledger: enumerate every
  weekly and monthly period intersecting the range, aggregate each with one
  grouped query, and upsert the resulting cells. Used for first-time
  population, consistency repair, and operator-driven rebuilds.

FAILURE POLICY:
  A failure on one period is logged and skipped; the rest of the backfill
  proceeds. Backfill is idempotent, so a partial run can simply be re-run.

PACING:
  Periods process in batches with a short pause between batches so a large
  rebuild does not monopolize the database.
*/
package cube

import (
	"context"
	"time"

	"github.com/warp/fincube/finance"
)

// BackfillOptions controls PopulateHistorical. Nil date bounds default to
// the tenant's full ledger envelope.
type BackfillOptions struct {
	Start         *finance.Date
	End           *finance.Date
	ClearExisting bool
	BatchSize     int    // 0 = default (100)
	AccountID     string // empty = all accounts
}

// BackfillResult reports what a backfill run did.
type BackfillResult struct {
	PeriodsProcessed  int
	CellsCreated      int
	AccountsProcessed int
	ElapsedMs         int64
}

// PopulateHistorical rebuilds cube cells for every period intersecting the
// requested range. An empty ledger yields an empty result, not an error.
func (e *Engine) PopulateHistorical(ctx context.Context, tenant finance.TenantID, opts BackfillOptions) (*BackfillResult, error) {
	started := time.Now()
	result := &BackfillResult{}

	start, end, ok, err := e.resolveEnvelope(ctx, tenant, opts)
	if err != nil {
		return nil, err
	}
	if !ok {
		return result, nil
	}

	periods := finance.PeriodsInRange(start, end)
	if len(periods) == 0 {
		return result, nil
	}

	if opts.ClearExisting {
		// Period starts can precede the requested range (a week or month
		// straddling the boundary), so clear from the earliest one.
		clearFrom := periods[0].Start
		for _, p := range periods {
			clearFrom = finance.MinDate(clearFrom, p.Start)
		}
		if _, err := e.store.DeleteCellsInRange(ctx, tenant, clearFrom, end, opts.AccountID); err != nil {
			return nil, err
		}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = e.batchSize
	}

	accounts := map[string]struct{}{}
	for i, p := range periods {
		if i > 0 && i%batchSize == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.pause):
			}
		}

		cells, err := e.rebuildPeriod(ctx, tenant, p, opts)
		if err != nil {
			e.log.Error().Err(err).
				Str("tenant", string(tenant)).
				Str("period", p.String()).
				Msg("backfill period failed; skipping")
			continue
		}

		result.PeriodsProcessed++
		result.CellsCreated += len(cells)
		for _, c := range cells {
			accounts[c.AccountID] = struct{}{}
		}
	}
	result.AccountsProcessed = len(accounts)
	result.ElapsedMs = time.Since(started).Milliseconds()

	e.log.Info().
		Str("tenant", string(tenant)).
		Int("periods", result.PeriodsProcessed).
		Int("cells", result.CellsCreated).
		Int64("elapsed_ms", result.ElapsedMs).
		Msg("historical cube backfill complete")
	return result, nil
}

func (e *Engine) resolveEnvelope(ctx context.Context, tenant finance.TenantID, opts BackfillOptions) (finance.Date, finance.Date, bool, error) {
	if opts.Start != nil && opts.End != nil {
		return *opts.Start, *opts.End, true, nil
	}

	min, max, err := e.store.LedgerDateRange(ctx, tenant)
	if err != nil {
		return finance.Date{}, finance.Date{}, false, err
	}
	if min == nil || max == nil {
		return finance.Date{}, finance.Date{}, false, nil
	}

	start, end := *min, *max
	if opts.Start != nil {
		start = *opts.Start
	}
	if opts.End != nil {
		end = *opts.End
	}
	return start, end, true, nil
}

// rebuildPeriod recomputes one period's cells with a single grouped query.
func (e *Engine) rebuildPeriod(ctx context.Context, tenant finance.TenantID, p finance.Period, opts BackfillOptions) ([]finance.CubeCell, error) {
	cells, err := e.store.AggregatePeriod(ctx, tenant, p, opts.AccountID)
	if err != nil {
		return nil, err
	}

	if !opts.ClearExisting {
		// Replace, not merge: stale cells for this period must not survive
		// when the range was not wiped up front.
		if _, err := e.store.DeleteCellsForPeriod(ctx, tenant, p, opts.AccountID); err != nil {
			return nil, err
		}
	}
	if len(cells) == 0 {
		return nil, nil
	}
	if err := e.store.UpsertCells(ctx, cells); err != nil {
		return nil, err
	}
	return cells, nil
}
