// Package dataset provides an in-memory columnar implementation of the
// TabularDataset port. It backs tests, the excel adapter and callers
// that already hold a batch in memory.
package dataset

import (
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/spf13/cast"

	"dataguard/domain/contract"
)

// Memory is a slice-backed batch snapshot. It is immutable after
// construction and safe for concurrent reads.
type Memory struct {
	fields  []contract.FieldDescriptor
	columns map[string][]any
	rows    int
}

// NewMemory builds a dataset from field descriptors and matching
// columns. Every column must have the same length.
func NewMemory(fields []contract.FieldDescriptor, columns map[string][]any) (*Memory, error) {
	rows := -1
	for _, f := range fields {
		col, ok := columns[f.Name]
		if !ok {
			return nil, fmt.Errorf("missing column for field %q", f.Name)
		}
		if rows == -1 {
			rows = len(col)
		} else if len(col) != rows {
			return nil, fmt.Errorf("column %q has %d values, expected %d", f.Name, len(col), rows)
		}
	}
	if rows == -1 {
		rows = 0
	}
	return &Memory{fields: fields, columns: columns, rows: rows}, nil
}

// FromRecords builds a dataset from row-oriented records, inferring
// field descriptors from the observed values when fields is nil.
func FromRecords(records []map[string]any, fields []contract.FieldDescriptor) (*Memory, error) {
	if fields == nil {
		fields = inferFields(records)
	}
	columns := make(map[string][]any, len(fields))
	for _, f := range fields {
		col := make([]any, len(records))
		for i, rec := range records {
			col[i] = rec[f.Name]
		}
		columns[f.Name] = col
	}
	return NewMemory(fields, columns)
}

func inferFields(records []map[string]any) []contract.FieldDescriptor {
	names := map[string]bool{}
	var ordered []string
	for _, rec := range records {
		for name := range rec {
			if !names[name] {
				names[name] = true
				ordered = append(ordered, name)
			}
		}
	}
	sort.Strings(ordered)

	fields := make([]contract.FieldDescriptor, 0, len(ordered))
	for _, name := range ordered {
		var sample any
		nullable := false
		for _, rec := range records {
			v, ok := rec[name]
			if !ok || contract.IsNull(v) {
				nullable = true
				continue
			}
			if sample == nil {
				sample = v
			}
		}
		fields = append(fields, contract.FieldDescriptor{
			Name:     name,
			Type:     InferType(sample),
			Nullable: nullable,
		})
	}
	return fields
}

// InferType maps a sample Go value onto a declared field type.
func InferType(sample any) contract.FieldType {
	switch sample.(type) {
	case nil:
		return contract.FieldTypeUnknown
	case bool:
		return contract.FieldTypeBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return contract.FieldTypeInt
	case float32, float64:
		return contract.FieldTypeFloat
	case string:
		return contract.FieldTypeString
	}
	if _, err := cast.ToTimeE(sample); err == nil {
		return contract.FieldTypeTimestamp
	}
	return contract.FieldTypeUnknown
}

// RowCount returns the number of records in the batch.
func (m *Memory) RowCount() int { return m.rows }

// FieldDescriptors returns the batch schema.
func (m *Memory) FieldDescriptors() []contract.FieldDescriptor {
	out := make([]contract.FieldDescriptor, len(m.fields))
	copy(out, m.fields)
	return out
}

func (m *Memory) column(field string) ([]any, error) {
	col, ok := m.columns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contract.ErrUnknownField, field)
	}
	return col, nil
}

// ColumnValues returns a restartable sequence over one column.
func (m *Memory) ColumnValues(field string) (iter.Seq[any], error) {
	col, err := m.column(field)
	if err != nil {
		return nil, err
	}
	return func(yield func(any) bool) {
		for _, v := range col {
			if !yield(v) {
				return
			}
		}
	}, nil
}

// CountWhere counts records whose value satisfies pred.
func (m *Memory) CountWhere(field string, pred func(any) bool) (int, error) {
	col, err := m.column(field)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, v := range col {
		if pred(v) {
			count++
		}
	}
	return count, nil
}

// DistinctCount returns the number of distinct values in a column.
// Values are compared by their string form, which matches how batch
// sources deliver mixed-type columns.
func (m *Memory) DistinctCount(field string) (int, error) {
	col, err := m.column(field)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(col))
	for _, v := range col {
		seen[cast.ToString(v)] = struct{}{}
	}
	return len(seen), nil
}

// Percentile returns the q-th percentile of the column's numeric
// values; non-numeric and null values are excluded.
func (m *Memory) Percentile(field string, q float64) (float64, error) {
	col, err := m.column(field)
	if err != nil {
		return 0, err
	}
	numeric := make([]float64, 0, len(col))
	for _, v := range col {
		if contract.IsNull(v) {
			continue
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			continue
		}
		numeric = append(numeric, f)
	}
	if len(numeric) == 0 {
		return 0, fmt.Errorf("%w: no numeric values in %s", contract.ErrInsufficientData, field)
	}
	return stats.Percentile(numeric, q)
}

// GroupCount returns record counts grouped by the given fields.
func (m *Memory) GroupCount(fields ...string) (map[string]int, error) {
	cols := make([][]any, len(fields))
	for i, f := range fields {
		col, err := m.column(f)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	counts := make(map[string]int)
	for row := 0; row < m.rows; row++ {
		parts := make([]string, len(cols))
		for i, col := range cols {
			parts[i] = cast.ToString(col[row])
		}
		counts[strings.Join(parts, "|")]++
	}
	return counts, nil
}
