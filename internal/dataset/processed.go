package dataset

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SamMebarek/mlopstest/internal/features"
)

// Row is one line of the processed (model-ready) dataset
type Row struct {
	SKU       string
	Timestamp time.Time
	Price     float64
	HasPrice  bool
	Features  features.Vector
}

// DefaultProcessedColumns is the processed file layout when params do not
// override it: identifiers, target, then the model feature columns.
func DefaultProcessedColumns() []string {
	return append([]string{ColSKU, ColTimestamp, ColPrice}, features.Columns()...)
}

// RowFromObservation builds the processed row using the shared encoder
func RowFromObservation(o features.Observation) Row {
	return Row{
		SKU:       o.SKU,
		Timestamp: o.Timestamp,
		Price:     o.Price,
		HasPrice:  o.HasPrice,
		Features:  features.RowVector(o),
	}
}

// ValidateColumns checks that every requested column is known
func ValidateColumns(columns []string) error {
	known := make(map[string]bool)
	for _, c := range DefaultProcessedColumns() {
		known[c] = true
	}
	for _, c := range columns {
		name, ok := CanonicalColumn(c)
		if !ok || !known[name] {
			return fmt.Errorf("unknown column %q", c)
		}
	}
	return nil
}

// WriteProcessed writes rows with the given columns, in that order
func WriteProcessed(w io.Writer, rows []Row, columns []string) error {
	if err := ValidateColumns(columns); err != nil {
		return err
	}

	t := &Table{Header: make([]string, len(columns))}
	for i, c := range columns {
		t.Header[i], _ = CanonicalColumn(c)
	}

	for _, r := range rows {
		named := r.Features.Named()
		rec := make([]string, len(t.Header))
		for i, c := range t.Header {
			switch c {
			case ColSKU:
				rec[i] = r.SKU
			case ColTimestamp:
				rec[i] = r.Timestamp.Format(TimestampLayout)
			case ColPrice:
				if r.HasPrice {
					rec[i] = formatFloat(r.Price)
				}
			default:
				rec[i] = formatFloat(named[c])
			}
		}
		t.Records = append(t.Records, rec)
	}

	return t.Write(w)
}

// WriteProcessedFile writes the processed dataset to path
func WriteProcessedFile(path string, rows []Row, columns []string) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteProcessed(w, rows, columns)
	})
}

// ReadProcessed reads a processed dataset. Feature columns are matched by
// name, so their order in the file does not matter.
func ReadProcessed(r io.Reader) ([]Row, error) {
	t, err := ReadTable(r)
	if err != nil {
		return nil, err
	}

	cols := features.Columns()
	featIdx := make([]int, len(cols))
	for i, name := range cols {
		featIdx[i] = t.Index(name)
		if featIdx[i] < 0 {
			return nil, fmt.Errorf("processed data missing feature column %s", name)
		}
	}
	skuIdx := t.Index(ColSKU)
	tsIdx := t.Index(ColTimestamp)
	priceIdx := t.Index(ColPrice)

	rows := make([]Row, 0, len(t.Records))
	for n, rec := range t.Records {
		line := n + 2
		var row Row

		for i, idx := range featIdx {
			v, err := ParseFloat(cell(rec, idx))
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, cols[i], err)
			}
			row.Features[i] = v
		}
		if skuIdx >= 0 {
			row.SKU = strings.TrimSpace(cell(rec, skuIdx))
		}
		if tsIdx >= 0 {
			if ts, err := ParseTimestamp(cell(rec, tsIdx), time.Local); err == nil {
				row.Timestamp = ts
			}
		}
		if priceIdx >= 0 && strings.TrimSpace(cell(rec, priceIdx)) != "" {
			price, err := ParseFloat(cell(rec, priceIdx))
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, ColPrice, err)
			}
			row.Price = price
			row.HasPrice = true
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// ReadProcessedFile reads a processed dataset from disk
func ReadProcessedFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadProcessed(f)
}

// XY splits labelled rows into a feature matrix and target vector.
// Rows without a price are skipped.
func XY(rows []Row) ([]features.Vector, []float64) {
	x := make([]features.Vector, 0, len(rows))
	y := make([]float64, 0, len(rows))
	for _, r := range rows {
		if !r.HasPrice {
			continue
		}
		x = append(x, r.Features)
		y = append(y, r.Price)
	}
	return x, y
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
