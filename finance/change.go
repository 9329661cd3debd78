/*
change.go - Change descriptors handed from the ledger service to the cube

PURPOSE:
  Every successful ledger mutation produces a descriptor sufficient for the
  cube engine to identify every cell potentially affected. Descriptors are
  in-memory values, never persisted; they travel inside the same storage
  transaction as the mutation they describe.

BULK FIELD CHANGES:
  Bulk updates change exactly one field of a closed set. The field is a
  tagged variant (one concrete type per field) rather than an untyped map,
  so a date change in bulk mode is unrepresentable. Each variant knows how
  to pin its old and new value onto a projection, which is all the target
  identification step needs.

SEE ALSO:
  - cube: consumes descriptors to compute regeneration targets
  - ledger: produces descriptors alongside each mutation
*/
package finance

import "github.com/shopspring/decimal"

// =============================================================================
// PROJECTION - The cube-relevant slice of a posting
// =============================================================================

// TxProjection carries the fields of a posting that determine which cube
// cells it contributes to, plus the amount for completeness.
type TxProjection struct {
	AccountID   string
	CategoryID  string
	Amount      decimal.Decimal
	Date        Date
	Type        TransactionType
	IsRecurring bool
}

// ProjectTransaction extracts the cube-relevant projection of a posting.
func ProjectTransaction(t *Transaction) TxProjection {
	return TxProjection{
		AccountID:   t.AccountID,
		CategoryID:  t.CategoryID,
		Amount:      t.Amount,
		Date:        t.Date,
		Type:        t.Type,
		IsRecurring: t.IsRecurring,
	}
}

// =============================================================================
// SINGLE-ROW CHANGE DESCRIPTOR
// =============================================================================

type ChangeOp int

const (
	OpInsert ChangeOp = iota
	OpUpdate
	OpDelete
)

// Change describes one ledger mutation. Old is nil for inserts, New is nil
// for deletes; updates carry both.
type Change struct {
	Op       ChangeOp
	TenantID TenantID
	TxID     string
	Old      *TxProjection
	New      *TxProjection
}

func InsertChange(tenant TenantID, txID string, next TxProjection) Change {
	return Change{Op: OpInsert, TenantID: tenant, TxID: txID, New: &next}
}

func UpdateChange(tenant TenantID, txID string, prev, next TxProjection) Change {
	return Change{Op: OpUpdate, TenantID: tenant, TxID: txID, Old: &prev, New: &next}
}

func DeleteChange(tenant TenantID, txID string, prev TxProjection) Change {
	return Change{Op: OpDelete, TenantID: tenant, TxID: txID, Old: &prev}
}

// =============================================================================
// BULK FIELD VARIANTS - Closed set; date excluded at the type level
// =============================================================================

// ChangedField names the bulk-updatable fields.
type ChangedField string

const (
	FieldCategoryID  ChangedField = "category_id"
	FieldAccountID   ChangedField = "account_id"
	FieldType        ChangedField = "type"
	FieldAmount      ChangedField = "amount"
	FieldIsRecurring ChangedField = "is_recurring"
)

// BulkField is the tagged variant of a single-field bulk change. ApplyOld
// and ApplyNew pin the changed field to its old or new value on a projection;
// the remaining dimensions pass through unchanged.
type BulkField interface {
	Field() ChangedField
	ApplyOld(p TxProjection) TxProjection
	ApplyNew(p TxProjection) TxProjection
}

type CategoryFieldChange struct{ Old, New string }

func (c CategoryFieldChange) Field() ChangedField { return FieldCategoryID }
func (c CategoryFieldChange) ApplyOld(p TxProjection) TxProjection {
	p.CategoryID = c.Old
	return p
}
func (c CategoryFieldChange) ApplyNew(p TxProjection) TxProjection {
	p.CategoryID = c.New
	return p
}

type AccountFieldChange struct{ Old, New string }

func (c AccountFieldChange) Field() ChangedField { return FieldAccountID }
func (c AccountFieldChange) ApplyOld(p TxProjection) TxProjection {
	p.AccountID = c.Old
	return p
}
func (c AccountFieldChange) ApplyNew(p TxProjection) TxProjection {
	p.AccountID = c.New
	return p
}

type TypeFieldChange struct{ Old, New TransactionType }

func (c TypeFieldChange) Field() ChangedField { return FieldType }
func (c TypeFieldChange) ApplyOld(p TxProjection) TxProjection {
	p.Type = c.Old
	return p
}
func (c TypeFieldChange) ApplyNew(p TxProjection) TxProjection {
	p.Type = c.New
	return p
}

type AmountFieldChange struct{ Old, New decimal.Decimal }

func (c AmountFieldChange) Field() ChangedField { return FieldAmount }
func (c AmountFieldChange) ApplyOld(p TxProjection) TxProjection {
	p.Amount = c.Old
	return p
}
func (c AmountFieldChange) ApplyNew(p TxProjection) TxProjection {
	p.Amount = c.New
	return p
}

type RecurringFieldChange struct{ Old, New bool }

func (c RecurringFieldChange) Field() ChangedField { return FieldIsRecurring }
func (c RecurringFieldChange) ApplyOld(p TxProjection) TxProjection {
	p.IsRecurring = c.Old
	return p
}
func (c RecurringFieldChange) ApplyNew(p TxProjection) TxProjection {
	p.IsRecurring = c.New
	return p
}

// =============================================================================
// BULK CHANGE DESCRIPTOR
// =============================================================================

// BulkChange describes a bulk mutation of many postings at once. For bulk
// updates, Field is the single changed field and Projections holds the
// post-update cube projections of every affected row. For bulk deletes,
// Field is nil and Projections holds the old (deleted) projections.
//
// MinDate/MaxDate is the date envelope of the affected postings; dates never
// change in bulk mode, so the envelope is the same before and after.
type BulkChange struct {
	TenantID    TenantID
	TxIDs       []string
	Field       BulkField
	Projections []TxProjection
	MinDate     Date
	MaxDate     Date
}

// IsDelete reports whether the descriptor records a bulk deletion.
func (b BulkChange) IsDelete() bool { return b.Field == nil }

// EnvelopeOf computes the date envelope of a projection set.
func EnvelopeOf(projections []TxProjection) (min, max Date) {
	for i, p := range projections {
		if i == 0 {
			min, max = p.Date, p.Date
			continue
		}
		min = MinDate(min, p.Date)
		max = MaxDate(max, p.Date)
	}
	return min, max
}
