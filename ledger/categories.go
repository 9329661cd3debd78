/*
categories.go - Category CRUD
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/warp/fincube/finance"
)

type CreateCategoryInput struct {
	Name  string
	Type  finance.CategoryType
	Color string
}

// UpdateCategoryInput is a partial update; nil fields are left unchanged.
type UpdateCategoryInput struct {
	Name  *string
	Type  *finance.CategoryType
	Color *string
}

func (s *Service) ListCategories(ctx context.Context, tenant finance.TenantID) ([]finance.Category, error) {
	return s.store.ListCategories(ctx, tenant)
}

func (s *Service) GetCategory(ctx context.Context, tenant finance.TenantID, id string) (*finance.Category, error) {
	category, err := s.store.GetCategory(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, &finance.NotFoundError{Entity: "category", ID: id}
	}
	return category, nil
}

func (s *Service) CreateCategory(ctx context.Context, tenant finance.TenantID, in CreateCategoryInput) (*finance.Category, error) {
	taken, err := s.store.CategoryNameExists(ctx, tenant, in.Name, in.Type, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, &finance.UniqueViolationError{Entity: "category", Name: in.Name}
	}

	now := time.Now().UTC()
	category := &finance.Category{
		ID:        uuid.NewString(),
		TenantID:  tenant,
		Name:      in.Name,
		Type:      in.Type,
		Color:     in.Color,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertCategory(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *Service) UpdateCategory(ctx context.Context, tenant finance.TenantID, id string, in UpdateCategoryInput) (*finance.Category, error) {
	category, err := s.GetCategory(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		category.Name = *in.Name
	}
	if in.Type != nil {
		category.Type = *in.Type
	}
	if in.Color != nil {
		category.Color = *in.Color
	}

	taken, err := s.store.CategoryNameExists(ctx, tenant, category.Name, category.Type, category.ID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, &finance.UniqueViolationError{Entity: "category", Name: category.Name}
	}

	category.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateCategory(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

// DeleteCategory fails with Conflict if any posting references the category.
func (s *Service) DeleteCategory(ctx context.Context, tenant finance.TenantID, id string) error {
	if _, err := s.GetCategory(ctx, tenant, id); err != nil {
		return err
	}

	refs, err := s.store.CountTransactionsByCategory(ctx, tenant, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return &finance.ConflictError{Entity: "category", ID: id, References: refs}
	}
	return s.store.DeleteCategory(ctx, tenant, id)
}
