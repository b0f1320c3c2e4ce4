// Package ingest loads reconciliation source tables from CSV exports.
//
// Sources come from local files or from a fleet platform API (see
// Client). Cells stay raw strings so downstream stages own all parsing;
// the only transformations applied here are header trimming and mapping
// empty cells to nil.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
)

// ErrMissingHeader indicates a CSV file with no header row.
var ErrMissingHeader = errors.New("csv file has no header row")

// Sources bundles the three raw tables of a reconciliation run.
type Sources struct {
	Installations *dataset.Table
	Incidents     *dataset.Table
	Returns       *dataset.Table
}

// LoadSources reads the three source files named by cfg.
func LoadSources(cfg config.IngestConfig) (*Sources, error) {
	installations, err := LoadTable(cfg.Installations)
	if err != nil {
		return nil, fmt.Errorf("load installations: %w", err)
	}
	incidents, err := LoadTable(cfg.Incidents)
	if err != nil {
		return nil, fmt.Errorf("load incidents: %w", err)
	}
	returns, err := LoadTable(cfg.Returns)
	if err != nil {
		return nil, fmt.Errorf("load returns: %w", err)
	}
	return &Sources{
		Installations: installations,
		Incidents:     incidents,
		Returns:       returns,
	}, nil
}

// LoadTable reads one CSV file into a table.
func LoadTable(path string) (*dataset.Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeTable(b)
}

// ReadTable decodes CSV content from r into a table.
func ReadTable(r io.Reader) (*dataset.Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return DecodeTable(b)
}

// DecodeTable decodes raw CSV bytes into a table. The first record is
// the header row; header names are whitespace-trimmed and must be
// unique. Rows shorter than the header are padded with nil cells and
// cells beyond the header are dropped. Empty cells become nil.
func DecodeTable(b []byte) (*dataset.Table, error) {
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingHeader
		}
		return nil, err
	}

	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, dup := seen[name]; dup && name != "" {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		seen[name] = struct{}{}
		columns[i] = name
	}

	table := &dataset.Table{Columns: columns}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(dataset.Row, len(columns))
		for i, col := range columns {
			if i < len(rec) && rec[i] != "" {
				row[col] = rec[i]
			} else {
				row[col] = nil
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
