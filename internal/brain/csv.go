package brain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformedTable is returned for volumetric tables that cannot be scored.
var ErrMalformedTable = errors.New("malformed measurement table")

// CSV column headers.
const (
	colStructure  = "Structure"
	colVolume     = "Volume_mm3"
	colNormalized = "Normalized_Volume"
)

// ParseCSV reads a volumetric table with Structure, Volume_mm3 and
// Normalized_Volume columns. Column order is free; extra columns are ignored.
func ParseCSV(r io.Reader) (Measurements, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty table", ErrMalformedTable)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := map[string]int{colStructure: -1, colVolume: -1, colNormalized: -1}
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, ok := idx[h]; ok {
			idx[h] = i
		}
	}
	for name, i := range idx {
		if i < 0 {
			return nil, fmt.Errorf("%w: missing column %q", ErrMalformedTable, name)
		}
	}

	m := make(Measurements)
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++

		field := func(col string) (string, error) {
			i := idx[col]
			if i >= len(rec) {
				return "", fmt.Errorf("%w: line %d: missing %s", ErrMalformedTable, line, col)
			}
			return strings.TrimSpace(rec[i]), nil
		}

		name, err := field(colStructure)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}
		var vals [2]float64
		for j, col := range []string{colVolume, colNormalized} {
			raw, err := field(col)
			if err != nil {
				return nil, err
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %s %q is not a number", ErrMalformedTable, line, col, raw)
			}
			if invalid(v) {
				return nil, fmt.Errorf("%w: line %d: %s %v out of range", ErrMalformedTable, line, col, v)
			}
			vals[j] = v
		}
		m[name] = Measurement{Volume: vals[0], Normalized: vals[1]}
	}
	return m, nil
}
