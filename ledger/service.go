/*
Package ledger is the mutation front door of the core.

PURPOSE:
  Tenant-validated CRUD for accounts, categories, and transactions, plus
  account reconciliation and the bulk transaction operations. Every
  successful ledger mutation produces a change descriptor that is handed to
  the cube engine synchronously, inside the same storage transaction - a
  failure in either rolls back both.

TENANT VALIDATION:
  Cross-references (a posting's account and category) must belong to the
  same tenant. A reference that exists in another tenant reports NotFound,
  never anything that would reveal its existence.

SEE ALSO:
  - cube:    consumes the change descriptors produced here
  - balance: computes the balances reconciliation anchors against
*/
package ledger

import (
	"context"

	"github.com/phuslu/log"
	"github.com/warp/fincube/cube"
	"github.com/warp/fincube/finance"
)

// Service exposes the ledger operations. All mutations run under WithTx
// together with their cube update.
type Service struct {
	store finance.TxStore
	log   *log.Logger
}

func New(store finance.TxStore) *Service {
	return &Service{store: store, log: &log.DefaultLogger}
}

// WithLogger replaces the service's logger.
func (s *Service) WithLogger(l *log.Logger) *Service {
	s.log = l
	return s
}

// mutate wraps fn in a storage transaction and hands it a cube engine bound
// to the same transaction.
func (s *Service) mutate(ctx context.Context, fn func(store finance.Store, cubes *cube.Engine) error) error {
	return s.store.WithTx(ctx, func(tx finance.Store) error {
		return fn(tx, cube.New(tx).WithLogger(s.log))
	})
}
