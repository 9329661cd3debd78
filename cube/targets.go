/*
targets.go - Regeneration-target identification

PURPOSE:
  Translates change descriptors into the set of cube-cell keys that must be
  recomputed. A target is a dimensional key without facts; regeneration
  derives the facts from the ledger, so over-approximating the target set
  costs time but never correctness.

ALGORITHM:
  Every projection leg of a change (old and new for updates; one leg for
  inserts and deletes) lands in exactly two periods - the ISO week and the
  calendar month of its date. Each (leg, period) pair is one target. Bulk
  changes iterate the affected projections with the changed field pinned to
  its old and new value, which collapses under deduplication: a 500-row
  recategorization yields a handful of targets, not a thousand.

DEDUPLICATION:
  Targets dedup by the canonical JSON form of the full dimensional key.
*/
package cube

import (
	"encoding/json"

	"github.com/warp/fincube/finance"
)

// targetsForChange expands a single-row change into its regeneration targets.
func targetsForChange(ch finance.Change) []finance.CubeKey {
	var keys []finance.CubeKey
	for _, leg := range []*finance.TxProjection{ch.Old, ch.New} {
		if leg == nil {
			continue
		}
		keys = append(keys, legTargets(ch.TenantID, *leg)...)
	}
	return dedupTargets(keys)
}

// targetsForBulk expands a bulk change. For updates, each projection is
// already post-update; the changed field is re-pinned to both its old and
// new value so old-leg cells regenerate too. For deletes, the projections
// are the removed rows and contribute a single leg each.
func targetsForBulk(b finance.BulkChange) []finance.CubeKey {
	var keys []finance.CubeKey
	for _, p := range b.Projections {
		if b.IsDelete() {
			keys = append(keys, legTargets(b.TenantID, p)...)
			continue
		}
		keys = append(keys, legTargets(b.TenantID, b.Field.ApplyOld(p))...)
		keys = append(keys, legTargets(b.TenantID, b.Field.ApplyNew(p))...)
	}
	return dedupTargets(keys)
}

// legTargets emits one target per period containing the projection's date.
func legTargets(tenant finance.TenantID, p finance.TxProjection) []finance.CubeKey {
	periods := finance.PeriodsFor(p.Date)
	keys := make([]finance.CubeKey, 0, len(periods))
	for _, period := range periods {
		keys = append(keys, finance.CubeKey{
			TenantID:        tenant,
			PeriodType:      period.Type,
			PeriodStart:     period.Start,
			PeriodEnd:       period.End,
			TransactionType: p.Type,
			CategoryID:      p.CategoryID,
			AccountID:       p.AccountID,
			IsRecurring:     p.IsRecurring,
		})
	}
	return keys
}

// canonicalTarget is the dedup form of a dimensional key. Field order is
// fixed so the marshaled form is canonical.
type canonicalTarget struct {
	Tenant          string `json:"tenant"`
	PeriodType      string `json:"period_type"`
	PeriodStart     string `json:"period_start"`
	PeriodEnd       string `json:"period_end"`
	TransactionType string `json:"transaction_type"`
	CategoryID      string `json:"category_id"`
	AccountID       string `json:"account_id"`
	IsRecurring     bool   `json:"is_recurring"`
}

func canonicalKey(k finance.CubeKey) string {
	b, _ := json.Marshal(canonicalTarget{
		Tenant:          string(k.TenantID),
		PeriodType:      string(k.PeriodType),
		PeriodStart:     k.PeriodStart.String(),
		PeriodEnd:       k.PeriodEnd.String(),
		TransactionType: string(k.TransactionType),
		CategoryID:      k.CategoryID,
		AccountID:       k.AccountID,
		IsRecurring:     k.IsRecurring,
	})
	return string(b)
}

func dedupTargets(keys []finance.CubeKey) []finance.CubeKey {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		ck := canonicalKey(k)
		if _, dup := seen[ck]; dup {
			continue
		}
		seen[ck] = struct{}{}
		out = append(out, k)
	}
	return out
}
