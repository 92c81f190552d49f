package ports

import (
	"iter"

	"dataguard/domain/contract"
)

// TabularDataset is a read-only handle to one ingested batch. The
// snapshot is immutable: every assessment step reads the same data and
// nothing here mutates shared state. Implementations live with the
// storage substrate; the engines only consume this interface.
type TabularDataset interface {
	// RowCount returns the number of records in the batch.
	RowCount() int

	// FieldDescriptors returns the batch's observed schema.
	FieldDescriptors() []contract.FieldDescriptor

	// ColumnValues returns a finite, restartable sequence over one
	// column's raw values. Missing values appear as nil.
	ColumnValues(field string) (iter.Seq[any], error)

	// CountWhere counts records whose value for field satisfies pred.
	CountWhere(field string, pred func(any) bool) (int, error)

	// DistinctCount returns the number of distinct values in field.
	DistinctCount(field string) (int, error)

	// Percentile returns the q-th percentile (0-100) of field's numeric
	// values.
	Percentile(field string, q float64) (float64, error)

	// GroupCount returns record counts grouped by the given fields.
	// Keys are the group values joined in field order.
	GroupCount(fields ...string) (map[string]int, error)
}
