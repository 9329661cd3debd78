/*
transactions.go - Single-posting CRUD with synchronous cube maintenance

Every mutation here runs under one storage transaction that also carries
the cube update for the resulting change descriptor.
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/fincube/cube"
	"github.com/warp/fincube/finance"
)

// CreateTransactionInput carries a new posting. Amount is signed with its
// balance impact; CategoryID empty means uncategorized.
type CreateTransactionInput struct {
	AccountID   string
	CategoryID  string
	Amount      decimal.Decimal
	Description string
	Date        finance.Date
	Type        finance.TransactionType
	IsRecurring bool
}

// UpdateTransactionInput is a partial update; nil fields are left unchanged.
// CategoryID distinguishes "unset" (nil) from "clear" (pointer to "").
type UpdateTransactionInput struct {
	AccountID   *string
	CategoryID  *string
	Amount      *decimal.Decimal
	Description *string
	Date        *finance.Date
	Type        *finance.TransactionType
	IsRecurring *bool
}

func (s *Service) ListTransactions(ctx context.Context, tenant finance.TenantID, f finance.TransactionFilter) ([]finance.TransactionDetail, error) {
	return s.store.ListTransactions(ctx, tenant, f)
}

func (s *Service) GetTransaction(ctx context.Context, tenant finance.TenantID, id string) (*finance.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, &finance.NotFoundError{Entity: "transaction", ID: id}
	}
	return t, nil
}

// validateReferences checks the posting's account and optional category
// within the tenant. Cross-tenant references look absent.
func (s *Service) validateReferences(ctx context.Context, tenant finance.TenantID, accountID, categoryID string) error {
	account, err := s.store.GetAccount(ctx, tenant, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return &finance.NotFoundError{Entity: "account", ID: accountID}
	}
	if categoryID != "" {
		category, err := s.store.GetCategory(ctx, tenant, categoryID)
		if err != nil {
			return err
		}
		if category == nil {
			return &finance.NotFoundError{Entity: "category", ID: categoryID}
		}
	}
	return nil
}

func (s *Service) CreateTransaction(ctx context.Context, tenant finance.TenantID, in CreateTransactionInput) (*finance.Transaction, error) {
	if err := s.validateReferences(ctx, tenant, in.AccountID, in.CategoryID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &finance.Transaction{
		ID:          uuid.NewString(),
		TenantID:    tenant,
		AccountID:   in.AccountID,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Description: in.Description,
		Date:        in.Date,
		Type:        in.Type,
		IsRecurring: in.IsRecurring,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.mutate(ctx, func(tx finance.Store, cubes *cube.Engine) error {
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		return cubes.Apply(ctx, finance.InsertChange(tenant, t.ID, finance.ProjectTransaction(t)))
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) UpdateTransaction(ctx context.Context, tenant finance.TenantID, id string, in UpdateTransactionInput) (*finance.Transaction, error) {
	t, err := s.GetTransaction(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	old := finance.ProjectTransaction(t)

	if in.AccountID != nil {
		t.AccountID = *in.AccountID
	}
	if in.CategoryID != nil {
		t.CategoryID = *in.CategoryID
	}
	if in.Amount != nil {
		t.Amount = *in.Amount
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Date != nil {
		t.Date = *in.Date
	}
	if in.Type != nil {
		t.Type = *in.Type
	}
	if in.IsRecurring != nil {
		t.IsRecurring = *in.IsRecurring
	}

	if err := s.validateReferences(ctx, tenant, t.AccountID, t.CategoryID); err != nil {
		return nil, err
	}

	t.UpdatedAt = time.Now().UTC()
	err = s.mutate(ctx, func(tx finance.Store, cubes *cube.Engine) error {
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		return cubes.Apply(ctx, finance.UpdateChange(tenant, t.ID, old, finance.ProjectTransaction(t)))
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) DeleteTransaction(ctx context.Context, tenant finance.TenantID, id string) error {
	t, err := s.GetTransaction(ctx, tenant, id)
	if err != nil {
		return err
	}

	return s.mutate(ctx, func(tx finance.Store, cubes *cube.Engine) error {
		if err := tx.DeleteTransaction(ctx, tenant, id); err != nil {
			return err
		}
		return cubes.Apply(ctx, finance.DeleteChange(tenant, id, finance.ProjectTransaction(t)))
	})
}
