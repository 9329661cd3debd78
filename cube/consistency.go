/*
consistency.go - Cube-vs-ledger validation and repair

PURPOSE:
  The cube is derived state; the ledger is the source of truth. Validation
  checks that the cube's total per period type equals the ledger total
  within tolerance. Repair is a full rebuild of the affected range, never
  an in-place patch.
*/
package cube

import (
	"context"

	"github.com/warp/fincube/finance"
)

// ValidateConsistency checks that, for each period type, the summed cube
// amounts equal the summed ledger amounts within tolerance. An empty cube
// over an empty ledger is consistent.
func (e *Engine) ValidateConsistency(ctx context.Context, tenant finance.TenantID) (bool, error) {
	ledgerTotal, err := e.store.LedgerTotal(ctx, tenant)
	if err != nil {
		return false, err
	}

	cubeTotals, err := e.store.CubeTotalsByPeriodType(ctx, tenant)
	if err != nil {
		return false, err
	}

	for _, pt := range []finance.PeriodType{finance.PeriodWeekly, finance.PeriodMonthly} {
		// A missing period type reads as zero and must match too.
		total := cubeTotals[pt]
		if !finance.AmountsEqual(total, ledgerTotal) {
			e.log.Warn().
				Str("tenant", string(tenant)).
				Str("period_type", string(pt)).
				Str("cube_total", total.String()).
				Str("ledger_total", ledgerTotal.String()).
				Msg("cube totals disagree with ledger")
			return false, nil
		}
	}
	return true, nil
}

// Reconcile validates the cube and, when inconsistent, rebuilds it over the
// full ledger envelope with prior cells cleared.
func (e *Engine) Reconcile(ctx context.Context, tenant finance.TenantID) error {
	consistent, err := e.ValidateConsistency(ctx, tenant)
	if err != nil {
		return err
	}
	if consistent {
		return nil
	}

	e.log.Info().Str("tenant", string(tenant)).Msg("rebuilding inconsistent cube")
	_, err = e.PopulateHistorical(ctx, tenant, BackfillOptions{ClearExisting: true})
	return err
}
