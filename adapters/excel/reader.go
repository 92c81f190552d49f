// Package excel loads batch snapshots from Excel and CSV files into
// the in-memory dataset used by the assessment pipeline.
package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"dataguard/domain/contract"
	"dataguard/internal/dataset"
)

// typeSampleSize caps how many rows per column are inspected for type
// inference.
const typeSampleSize = 500

// BatchReader reads one worksheet or CSV file as an immutable batch.
type BatchReader struct {
	filePath string
	sheet    string
	log      *zap.Logger
}

// NewBatchReader creates a reader for the given file. The sheet name is
// only used for .xlsx files; empty means "Sheet1".
func NewBatchReader(filePath, sheet string, log *zap.Logger) *BatchReader {
	if sheet == "" {
		sheet = "Sheet1"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BatchReader{filePath: filePath, sheet: sheet, log: log}
}

// Read loads the file into a columnar dataset. Cell values are coerced
// to the per-column inferred type; cells that do not coerce stay nil so
// completeness rules can see them.
func (r *BatchReader) Read() (*dataset.Memory, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("batch file not found: %s", r.filePath)
	}

	start := time.Now()
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(r.filePath)) {
	case ".csv":
		rows, err = r.readCSV()
	default:
		rows, err = r.readSheet()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("batch file %s needs a header row and at least one data row", r.filePath)
	}

	ds, err := r.toDataset(rows)
	if err != nil {
		return nil, err
	}
	r.log.Info("batch file loaded",
		zap.String("file", r.filePath),
		zap.Int("records", ds.RowCount()),
		zap.Int("fields", len(ds.FieldDescriptors())),
		zap.Duration("elapsed", time.Since(start)))
	return ds, nil
}

func (r *BatchReader) readSheet() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(r.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", r.sheet, err)
	}
	return rows, nil
}

func (r *BatchReader) readCSV() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// toDataset turns raw string rows into typed columns. The header row
// names the fields; each column's type comes from a strided sample of
// its values.
func (r *BatchReader) toDataset(rows [][]string) (*dataset.Memory, error) {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	raw := make([][]string, len(headers))
	for _, row := range rows[1:] {
		for c := range headers {
			cell := ""
			if c < len(row) {
				cell = strings.TrimSpace(row[c])
			}
			raw[c] = append(raw[c], cell)
		}
	}

	fields := make([]contract.FieldDescriptor, len(headers))
	columns := make(map[string][]any, len(headers))
	for c, name := range headers {
		ft := inferColumnType(raw[c])
		col := make([]any, len(raw[c]))
		nullable := false
		for i, cell := range raw[c] {
			v := coerceCell(cell, ft)
			if v == nil {
				nullable = true
			}
			col[i] = v
		}
		fields[c] = contract.FieldDescriptor{Name: name, Type: ft, Nullable: nullable}
		columns[name] = col
	}
	return dataset.NewMemory(fields, columns)
}

// inferColumnType picks the dominant type over a strided sample. A
// column counts as typed when at least 90% of its non-empty samples
// parse as that type; everything else stays string.
func inferColumnType(cells []string) contract.FieldType {
	stride := 1
	if len(cells) > typeSampleSize {
		stride = len(cells) / typeSampleSize
	}

	total, ints, floats, bools, times := 0, 0, 0, 0, 0
	for i := 0; i < len(cells); i += stride {
		cell := cells[i]
		if cell == "" {
			continue
		}
		total++
		// cast.ToInt64E parses "1.5" as 1, so integers go through strconv.
		if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
			ints++
			floats++
			continue
		}
		if _, err := cast.ToFloat64E(cell); err == nil {
			floats++
			continue
		}
		if _, err := cast.ToBoolE(cell); err == nil {
			bools++
			continue
		}
		if _, err := cast.StringToDateInDefaultLocation(cell, time.UTC); err == nil {
			times++
		}
	}
	if total == 0 {
		return contract.FieldTypeString
	}

	threshold := int(0.9 * float64(total))
	switch {
	case ints >= total:
		return contract.FieldTypeInt
	case floats > threshold:
		return contract.FieldTypeFloat
	case bools > threshold:
		return contract.FieldTypeBool
	case times > threshold:
		return contract.FieldTypeTimestamp
	}
	return contract.FieldTypeString
}

// coerceCell converts one trimmed cell into the column's type. Empty
// cells and coercion failures become nil.
func coerceCell(cell string, ft contract.FieldType) any {
	if cell == "" {
		return nil
	}
	switch ft {
	case contract.FieldTypeInt:
		if v, err := strconv.ParseInt(cell, 10, 64); err == nil {
			return v
		}
	case contract.FieldTypeFloat:
		if v, err := cast.ToFloat64E(cell); err == nil {
			return v
		}
	case contract.FieldTypeBool:
		if v, err := cast.ToBoolE(cell); err == nil {
			return v
		}
	case contract.FieldTypeTimestamp:
		if v, err := cast.StringToDateInDefaultLocation(cell, time.UTC); err == nil {
			return v
		}
	default:
		return cell
	}
	return nil
}
