package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/SamMebarek/mlopstest/internal/features"
)

// Raw column names as produced by the upstream pricing export, with the
// English aliases accepted on input.
const (
	ColSKU       = "SKU"
	ColTimestamp = "Timestamp"
	ColPrice     = "Price"
)

var columnAliases = map[string]string{
	"SKU":               ColSKU,
	"Timestamp":         ColTimestamp,
	"Prix":              ColPrice,
	"Price":             ColPrice,
	"PrixInitial":       features.ColInitialPrice,
	"InitialPrice":      features.ColInitialPrice,
	"AgeProduitEnJours": features.ColAgeInDays,
	"AgeInDays":         features.ColAgeInDays,
	"QuantiteVendue":    features.ColQuantitySold,
	"QuantitySold":      features.ColQuantitySold,
	"UtiliteProduit":    features.ColUtilityScore,
	"UtilityScore":      features.ColUtilityScore,
	"ElasticitePrix":    features.ColPriceElasticity,
	"PriceElasticity":   features.ColPriceElasticity,
	"Remise":            features.ColDiscount,
	"Discount":          features.ColDiscount,
	"Qualite":           features.ColQuality,
	"Quality":           features.ColQuality,
	"Mois_sin":          features.ColMonthSin,
	"MonthSin":          features.ColMonthSin,
	"Mois_cos":          features.ColMonthCos,
	"MonthCos":          features.ColMonthCos,
	"Heure_sin":         features.ColHourSin,
	"HourSin":           features.ColHourSin,
	"Heure_cos":         features.ColHourCos,
	"HourCos":           features.ColHourCos,
}

// CanonicalColumn resolves an input header to its canonical name
func CanonicalColumn(header string) (string, bool) {
	name, ok := columnAliases[strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))]
	return name, ok
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// TimestampLayout is the layout used when writing timestamps
const TimestampLayout = "2006-01-02 15:04:05"

// ErrBadTimestamp is returned for unparseable timestamp cells
var ErrBadTimestamp = errors.New("unparseable timestamp")

// ParseTimestamp accepts RFC3339 and the common pandas/ISO layouts.
// Values without a zone are interpreted in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty value: %w", ErrBadTimestamp)
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timestampLayouts {
		if layout == time.RFC3339Nano {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q: %w", s, ErrBadTimestamp)
}

// Table is a raw CSV file: a header and string records
type Table struct {
	Header  []string
	Records [][]string
}

// ReadTable reads a whole CSV document
func ReadTable(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("CSV has no header")
	}

	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return &Table{Header: header, Records: rows[1:]}, nil
}

// ReadTableFile reads a CSV file from disk
func ReadTableFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTable(f)
}

// Index returns the position of the canonical column name, or -1
func (t *Table) Index(canonical string) int {
	for i, h := range t.Header {
		if name, ok := CanonicalColumn(h); ok && name == canonical {
			return i
		}
	}
	return -1
}

// Write writes the table as CSV
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Records); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFile writes the table to path, creating parent directories
func (t *Table) WriteFile(path string) error {
	return writeFile(path, t.Write)
}

// ParseOptions controls observation parsing
type ParseOptions struct {
	// DropBadTimestamps skips rows whose timestamp cannot be parsed
	// instead of failing.
	DropBadTimestamps bool
	Location          *time.Location
}

// ParseStats reports what parsing skipped
type ParseStats struct {
	Rows                int
	DroppedBadTimestamp int
}

// ParseObservations converts a raw table into observations. All seven
// predictor columns are required; the price column is optional.
func ParseObservations(t *Table, opts ParseOptions) (features.History, ParseStats, error) {
	var stats ParseStats

	skuIdx := t.Index(ColSKU)
	tsIdx := t.Index(ColTimestamp)
	if skuIdx < 0 || tsIdx < 0 {
		return nil, stats, fmt.Errorf("missing required columns %s/%s", ColSKU, ColTimestamp)
	}

	var predIdx [features.NumPredictors]int
	for i, name := range features.PredictorColumns {
		predIdx[i] = t.Index(name)
		if predIdx[i] < 0 {
			return nil, stats, fmt.Errorf("missing predictor column %s", name)
		}
	}
	priceIdx := t.Index(ColPrice)

	history := make(features.History, 0, len(t.Records))
	for n, rec := range t.Records {
		line := n + 2

		ts, err := ParseTimestamp(cell(rec, tsIdx), opts.Location)
		if err != nil {
			if opts.DropBadTimestamps {
				stats.DroppedBadTimestamp++
				continue
			}
			return nil, stats, fmt.Errorf("line %d: %w", line, err)
		}

		sku := strings.TrimSpace(cell(rec, skuIdx))
		if sku == "" {
			return nil, stats, fmt.Errorf("line %d: empty %s", line, ColSKU)
		}

		var p features.Predictors
		for i, idx := range predIdx {
			v, err := ParseFloat(cell(rec, idx))
			if err != nil {
				return nil, stats, fmt.Errorf("line %d column %s: %w", line, features.PredictorColumns[i], err)
			}
			p[i] = v
		}

		o := features.Observation{
			SKU:             sku,
			Timestamp:       ts,
			InitialPrice:    p[0],
			AgeInDays:       p[1],
			QuantitySold:    p[2],
			UtilityScore:    p[3],
			PriceElasticity: p[4],
			Discount:        p[5],
			Quality:         p[6],
		}
		if priceIdx >= 0 && strings.TrimSpace(cell(rec, priceIdx)) != "" {
			price, err := ParseFloat(cell(rec, priceIdx))
			if err != nil {
				return nil, stats, fmt.Errorf("line %d column %s: %w", line, ColPrice, err)
			}
			o.Price = price
			o.HasPrice = true
		}

		history = append(history, o)
	}

	stats.Rows = len(history)
	return history, stats, nil
}

// ReadObservations parses a CSV stream strictly
func ReadObservations(r io.Reader) (features.History, error) {
	t, err := ReadTable(r)
	if err != nil {
		return nil, err
	}
	h, _, err := ParseObservations(t, ParseOptions{})
	return h, err
}

// ReadObservationsFile parses a CSV file strictly
func ReadObservationsFile(path string) (features.History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadObservations(f)
}

func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}

// ParseFloat parses a trimmed numeric cell
func ParseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("not numeric: %q", s)
	}
	return v, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
