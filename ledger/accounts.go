/*
accounts.go - Account CRUD and lifecycle
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/fincube/finance"
)

// CreateAccountInput carries the fields of a new account. NetWorth defaults
// from the account type; IsActive defaults to true.
type CreateAccountInput struct {
	Name        string
	Type        finance.AccountType
	NetWorth    *finance.NetWorthCategory
	Balance     decimal.Decimal
	BalanceDate finance.Date
	Color       string
	IsActive    *bool
}

// UpdateAccountInput is a partial update; nil fields are left unchanged.
type UpdateAccountInput struct {
	Name        *string
	Type        *finance.AccountType
	NetWorth    *finance.NetWorthCategory
	Balance     *decimal.Decimal
	BalanceDate *finance.Date
	Color       *string
	IsActive    *bool
}

func (s *Service) ListAccounts(ctx context.Context, tenant finance.TenantID, f finance.AccountFilter) ([]finance.Account, error) {
	return s.store.ListAccounts(ctx, tenant, f)
}

func (s *Service) GetAccount(ctx context.Context, tenant finance.TenantID, id string) (*finance.Account, error) {
	account, err := s.store.GetAccount(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, &finance.NotFoundError{Entity: "account", ID: id}
	}
	return account, nil
}

func (s *Service) CreateAccount(ctx context.Context, tenant finance.TenantID, in CreateAccountInput) (*finance.Account, error) {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	netWorth := finance.DefaultNetWorthCategory(in.Type)
	if in.NetWorth != nil {
		netWorth = *in.NetWorth
	}

	if active {
		taken, err := s.store.ActiveAccountNameExists(ctx, tenant, in.Name, "")
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, &finance.UniqueViolationError{Entity: "account", Name: in.Name}
		}
	}

	now := time.Now().UTC()
	account := &finance.Account{
		ID:          uuid.NewString(),
		TenantID:    tenant,
		Name:        in.Name,
		Type:        in.Type,
		NetWorth:    netWorth,
		Balance:     in.Balance,
		BalanceDate: in.BalanceDate,
		Color:       in.Color,
		IsActive:    active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *Service) UpdateAccount(ctx context.Context, tenant finance.TenantID, id string, in UpdateAccountInput) (*finance.Account, error) {
	account, err := s.GetAccount(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		account.Name = *in.Name
	}
	if in.Type != nil {
		account.Type = *in.Type
	}
	if in.NetWorth != nil {
		account.NetWorth = *in.NetWorth
	}
	if in.Balance != nil {
		account.Balance = *in.Balance
	}
	if in.BalanceDate != nil {
		account.BalanceDate = *in.BalanceDate
	}
	if in.Color != nil {
		account.Color = *in.Color
	}
	if in.IsActive != nil {
		account.IsActive = *in.IsActive
	}

	if account.IsActive {
		taken, err := s.store.ActiveAccountNameExists(ctx, tenant, account.Name, account.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, &finance.UniqueViolationError{Entity: "account", Name: account.Name}
		}
	}

	account.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteAccount removes an account and its anchors. Fails with Conflict if
// any posting still references the account.
func (s *Service) DeleteAccount(ctx context.Context, tenant finance.TenantID, id string) error {
	if _, err := s.GetAccount(ctx, tenant, id); err != nil {
		return err
	}

	refs, err := s.store.CountTransactionsByAccount(ctx, tenant, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return &finance.ConflictError{Entity: "account", ID: id, References: refs}
	}

	return s.store.WithTx(ctx, func(tx finance.Store) error {
		if err := tx.DeleteAnchorsForAccount(ctx, tenant, id); err != nil {
			return err
		}
		return tx.DeleteAccount(ctx, tenant, id)
	})
}
