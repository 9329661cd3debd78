/*
bulk.go - Bulk transaction update and delete

A bulk update changes exactly one field across a set of postings with a
single UPDATE, and emits ONE bulk change descriptor instead of one per row.
The descriptor is only sound when the old value of the changed field is
uniform across the set; otherwise the call is refused before any row is
touched and the caller falls back to per-row updates.
*/
package ledger

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/warp/fincube/cube"
	"github.com/warp/fincube/finance"
)

// TxBulkPatch names the field to change. Exactly one field may be set; Date
// is present only so the rejection is explicit rather than silent.
type TxBulkPatch struct {
	CategoryID  *string
	AccountID   *string
	Type        *finance.TransactionType
	Amount      *decimal.Decimal
	IsRecurring *bool
	Date        *finance.Date // always rejected in bulk mode
}

// changedField resolves the patch to its single changed field.
func (p TxBulkPatch) changedField() (finance.ChangedField, error) {
	if p.Date != nil {
		return "", finance.ErrUnsupportedBulkField
	}

	var fields []finance.ChangedField
	if p.CategoryID != nil {
		fields = append(fields, finance.FieldCategoryID)
	}
	if p.AccountID != nil {
		fields = append(fields, finance.FieldAccountID)
	}
	if p.Type != nil {
		fields = append(fields, finance.FieldType)
	}
	if p.Amount != nil {
		fields = append(fields, finance.FieldAmount)
	}
	if p.IsRecurring != nil {
		fields = append(fields, finance.FieldIsRecurring)
	}
	if len(fields) != 1 {
		return "", finance.ErrUnsupportedBulkField
	}
	return fields[0], nil
}

// BulkUpdateTransactions applies a single-field update to the given postings
// and regenerates the cube through one bulk descriptor. Fails with
// NonUniformBulk, mutating nothing, when the old value varies across the set.
func (s *Service) BulkUpdateTransactions(ctx context.Context, tenant finance.TenantID, ids []string, patch TxBulkPatch) error {
	field, err := patch.changedField()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	// Validate the new reference outside the mutation; cross-tenant ids
	// look absent.
	switch field {
	case finance.FieldCategoryID:
		if *patch.CategoryID != "" {
			if _, err := s.GetCategory(ctx, tenant, *patch.CategoryID); err != nil {
				return err
			}
		}
	case finance.FieldAccountID:
		if _, err := s.GetAccount(ctx, tenant, *patch.AccountID); err != nil {
			return err
		}
	}

	return s.mutate(ctx, func(tx finance.Store, cubes *cube.Engine) error {
		oldValues, err := tx.DistinctFieldValues(ctx, tenant, ids, field)
		if err != nil {
			return err
		}
		if len(oldValues) == 0 {
			return nil
		}
		if len(oldValues) > 1 {
			return &finance.NonUniformBulkError{Field: field, Values: oldValues}
		}

		change, err := buildBulkField(patch, field, oldValues[0])
		if err != nil {
			return err
		}

		if _, err := tx.ApplyBulkField(ctx, tenant, ids, change); err != nil {
			return err
		}

		projections, err := tx.Projections(ctx, tenant, ids)
		if err != nil {
			return err
		}
		min, max := finance.EnvelopeOf(projections)
		return cubes.ApplyBulk(ctx, finance.BulkChange{
			TenantID:    tenant,
			TxIDs:       ids,
			Field:       change,
			Projections: projections,
			MinDate:     min,
			MaxDate:     max,
		})
	})
}

// buildBulkField pairs the uniform old value (raw storage text) with the
// patch's new value as a tagged variant.
func buildBulkField(patch TxBulkPatch, field finance.ChangedField, rawOld string) (finance.BulkField, error) {
	switch field {
	case finance.FieldCategoryID:
		return finance.CategoryFieldChange{Old: rawOld, New: *patch.CategoryID}, nil
	case finance.FieldAccountID:
		return finance.AccountFieldChange{Old: rawOld, New: *patch.AccountID}, nil
	case finance.FieldType:
		return finance.TypeFieldChange{Old: finance.TransactionType(rawOld), New: *patch.Type}, nil
	case finance.FieldAmount:
		cents, err := strconv.ParseInt(rawOld, 10, 64)
		if err != nil {
			return nil, err
		}
		return finance.AmountFieldChange{Old: finance.FromCents(cents), New: *patch.Amount}, nil
	case finance.FieldIsRecurring:
		return finance.RecurringFieldChange{Old: rawOld == "1", New: *patch.IsRecurring}, nil
	}
	return nil, finance.ErrUnsupportedBulkField
}

// BulkDeleteTransactions deletes the given postings and regenerates the cube
// from one bulk deletion descriptor carrying the removed projections.
func (s *Service) BulkDeleteTransactions(ctx context.Context, tenant finance.TenantID, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := s.mutate(ctx, func(tx finance.Store, cubes *cube.Engine) error {
		projections, err := tx.Projections(ctx, tenant, ids)
		if err != nil {
			return err
		}
		if len(projections) == 0 {
			return nil
		}

		deleted, err = tx.DeleteTransactions(ctx, tenant, ids)
		if err != nil {
			return err
		}

		min, max := finance.EnvelopeOf(projections)
		return cubes.ApplyBulk(ctx, finance.BulkChange{
			TenantID:    tenant,
			TxIDs:       ids,
			Projections: projections,
			MinDate:     min,
			MaxDate:     max,
		})
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
