// Package dates normalizes heterogeneous date representations from source
// exports into time.Time cells. Unparseable values become null and are
// counted, never raised as errors; a bad cell costs one null, not the run.
package dates

import (
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
)

// DefaultLayouts is the ordered layout list applied when config leaves
// layouts empty: ISO-8601 first, then day-first, then month-first, then
// dot-separated variants. Order decides ambiguous strings (03/04/2021
// parses day-first), so the list is explicit configuration, not inference.
var DefaultLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
	"02/01/2006 15:04:05",
	"02-01-2006",
	"01/02/2006",
	"02.01.2006",
	"2006.01.02",
}

// excelEpoch is the spreadsheet serial-date epoch. Day 1 is 1899-12-31;
// the epoch sits one day earlier to absorb the historical leap-year-1900
// offset carried by exported workbooks.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// maxExcelSerial is the serial for 9999-12-31, the spreadsheet date ceiling.
const maxExcelSerial = 2958465

// Config controls normalization behavior.
type Config struct {
	// Layouts are tried in order. Empty means DefaultLayouts.
	Layouts []string
	// ExcelSerial enables interpreting numeric cells as spreadsheet
	// serial dates.
	ExcelSerial bool
}

// ColumnStats counts outcomes for one normalized column.
type ColumnStats struct {
	Parsed int `json:"parsed"`
	Failed int `json:"failed"`
	Blank  int `json:"blank"`
}

// Normalizer converts cell values to time.Time according to an ordered
// layout list.
type Normalizer struct {
	layouts     []string
	excelSerial bool
}

// New creates a Normalizer. An empty layout list falls back to
// DefaultLayouts.
func New(cfg Config) *Normalizer {
	layouts := cfg.Layouts
	if len(layouts) == 0 {
		layouts = DefaultLayouts
	}
	return &Normalizer{
		layouts:     append([]string(nil), layouts...),
		excelSerial: cfg.ExcelSerial,
	}
}

// Normalize converts a single cell value to a time.Time. ok is false when
// the value is blank or unparseable; there is no error path.
func (n *Normalizer) Normalize(v any) (time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return val, true
	case float64:
		if !n.excelSerial {
			return time.Time{}, false
		}
		return fromExcelSerial(val)
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range n.layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		if n.excelSerial {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return fromExcelSerial(f)
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// NormalizeColumn rewrites every cell of the column to a time.Time or nil
// and returns per-column counts. The table is modified; callers pass their
// own copy (pipeline stages operate on a cloned snapshot).
func (n *Normalizer) NormalizeColumn(t *dataset.Table, column string) ColumnStats {
	var stats ColumnStats
	for _, row := range t.Rows {
		v, present := row[column]
		if !present || v == nil || isBlankString(v) {
			row[column] = nil
			stats.Blank++
			continue
		}
		parsed, ok := n.Normalize(v)
		if !ok {
			row[column] = nil
			stats.Failed++
			continue
		}
		row[column] = parsed
		stats.Parsed++
	}
	return stats
}

func isBlankString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// fromExcelSerial converts a spreadsheet serial number to a date.
// Serials outside (0, maxExcelSerial] are rejected.
func fromExcelSerial(serial float64) (time.Time, bool) {
	if serial <= 0 || serial > maxExcelSerial {
		return time.Time{}, false
	}
	days := int(serial)
	frac := serial - float64(days)
	t := excelEpoch.AddDate(0, 0, days)
	if frac > 0 {
		t = t.Add(time.Duration(frac * float64(24*time.Hour)))
	}
	return t, true
}
