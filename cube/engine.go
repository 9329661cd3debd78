/*
Package cube maintains the pre-aggregated financial cube.

PURPOSE:
  The cube is a dimensional pre-aggregation of the posting ledger: one cell
  per (period, transaction type, category, account, recurring flag) with
  SUM(amount) and COUNT(*) facts. This package owns every write to it.

DELTA-DRIVEN MAINTENANCE:
  The ledger service hands the engine a change descriptor inside the same
  storage transaction as the mutation itself. The engine identifies the
  affected cell keys (targets.go), deletes exactly those cells, and
  recomputes each from the raw ledger. Recomputing from the ledger rather
  than patching deltas means a target set may safely over-approximate.

ZERO-SUM SUPPRESSION:
  A cell whose postings have all vanished produces no aggregation row and
  is simply not re-inserted; the cube never stores zero rows.

ATOMICITY:
  The engine performs no transaction management of its own. Callers run it
  over a transaction-scoped Store, so a failure on any target rolls back
  the ledger mutation and the cube update together.

SEE ALSO:
  - targets.go:     target identification and dedup
  - backfill.go:    full historical population
  - consistency.go: cube-vs-ledger validation and repair
  - queries.go:     read-only trend and aggregation surface
*/
package cube

import (
	"context"
	"time"

	"github.com/phuslu/log"
	"github.com/warp/fincube/finance"
)

// Default backfill tuning.
const (
	defaultBatchSize  = 100
	defaultBatchPause = 100 * time.Millisecond
)

// Engine maintains cube cells over a Store. Construct one over a
// transaction-scoped store to run inside a surrounding mutation.
type Engine struct {
	store     finance.Store
	log       *log.Logger
	batchSize int
	pause     time.Duration
}

func New(store finance.Store) *Engine {
	return &Engine{
		store:     store,
		log:       &log.DefaultLogger,
		batchSize: defaultBatchSize,
		pause:     defaultBatchPause,
	}
}

// WithLogger replaces the engine's logger.
func (e *Engine) WithLogger(l *log.Logger) *Engine {
	e.log = l
	return e
}

// =============================================================================
// CHANGE APPLICATION
// =============================================================================

// Apply updates the cube for one ledger mutation.
func (e *Engine) Apply(ctx context.Context, ch finance.Change) error {
	return e.regenerate(ctx, targetsForChange(ch))
}

// ApplyBulk updates the cube for a bulk mutation in a single pass. The
// caller guarantees the bulk's uniform-old-value precondition; descriptors
// that violate it must be applied row by row through Apply instead.
func (e *Engine) ApplyBulk(ctx context.Context, b finance.BulkChange) error {
	return e.regenerate(ctx, targetsForBulk(b))
}

// regenerate deletes the targeted cells and recomputes each from the ledger.
func (e *Engine) regenerate(ctx context.Context, targets []finance.CubeKey) error {
	if len(targets) == 0 {
		return nil
	}

	if _, err := e.store.DeleteCells(ctx, targets); err != nil {
		return err
	}

	var cells []finance.CubeCell
	for _, key := range targets {
		cell, err := e.store.AggregateCell(ctx, key)
		if err != nil {
			return err
		}
		if cell == nil {
			// Zero-sum: the cell stays deleted.
			continue
		}
		cells = append(cells, *cell)
	}

	if len(cells) == 0 {
		return nil
	}
	return e.store.UpsertCells(ctx, cells)
}
