/*
reconcile.go - Account reconciliation

Reconciliation declares a trusted balance for an account at a date: it
writes (or replaces) the balance anchor for that date, synthesizes a single
adjustment posting when the declared balance deviates from the computed one
beyond tolerance, and updates the account's cached balance. Anchor write,
adjustment, cube update, and cached-balance update commit atomically.
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/fincube/balance"
	"github.com/warp/fincube/cube"
	"github.com/warp/fincube/finance"
)

// ReconcileInput declares the trusted balance. AdjustmentType overrides the
// sign-derived default (INCOME for a positive difference, EXPENSE for a
// negative one); TRANSFER must be requested explicitly.
type ReconcileInput struct {
	NewBalance     decimal.Decimal
	ReconcileDate  finance.Date
	AdjustmentType *finance.TransactionType
}

// ReconcileResult reports the updated account and the adjustment posting,
// if one was needed.
type ReconcileResult struct {
	Account    *finance.Account
	Adjustment *finance.Transaction
}

// ReconcileAccount anchors the account at the declared balance. Dates in
// the future (after today UTC) are rejected.
func (s *Service) ReconcileAccount(ctx context.Context, tenant finance.TenantID, accountID string, in ReconcileInput) (*ReconcileResult, error) {
	if in.ReconcileDate.After(finance.Today()) {
		return nil, finance.ErrFutureReconcileDate
	}

	result := &ReconcileResult{}
	err := s.mutate(ctx, func(tx finance.Store, cubes *cube.Engine) error {
		account, err := tx.GetAccount(ctx, tenant, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return &finance.NotFoundError{Entity: "account", ID: accountID}
		}

		computed, err := balance.New(tx).WithLogger(s.log).
			BalanceAt(ctx, tenant, accountID, in.ReconcileDate)
		if err != nil {
			return err
		}
		difference := in.NewBalance.Sub(computed.Balance)

		now := time.Now().UTC()
		anchor := &finance.BalanceAnchor{
			ID:          uuid.NewString(),
			TenantID:    tenant,
			AccountID:   accountID,
			AnchorDate:  in.ReconcileDate,
			Balance:     in.NewBalance,
			Description: "Reconciliation",
			CreatedAt:   now,
		}
		if err := tx.UpsertAnchor(ctx, anchor); err != nil {
			return err
		}

		if difference.Abs().GreaterThan(finance.Epsilon) {
			adjType := finance.TxIncome
			if difference.IsNegative() {
				adjType = finance.TxExpense
			}
			if in.AdjustmentType != nil {
				adjType = *in.AdjustmentType
			}

			adjustment := &finance.Transaction{
				ID:          uuid.NewString(),
				TenantID:    tenant,
				AccountID:   accountID,
				Amount:      difference,
				Description: "Balance adjustment (reconciliation)",
				Date:        in.ReconcileDate,
				Type:        adjType,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.InsertTransaction(ctx, adjustment); err != nil {
				return err
			}
			if err := cubes.Apply(ctx, finance.InsertChange(tenant, adjustment.ID, finance.ProjectTransaction(adjustment))); err != nil {
				return err
			}
			result.Adjustment = adjustment
		}

		account.Balance = in.NewBalance
		account.BalanceDate = in.ReconcileDate
		account.UpdatedAt = now
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}
		result.Account = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tenant", string(tenant)).
		Str("account", accountID).
		Str("balance", in.NewBalance.String()).
		Str("date", in.ReconcileDate.String()).
		Bool("adjusted", result.Adjustment != nil).
		Msg("account reconciled")
	return result, nil
}
