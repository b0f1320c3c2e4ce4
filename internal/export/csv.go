package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
	"github.com/fyrsmithlabs/fleetrecon/internal/pipeline"
)

// writeCSV writes merged.csv, one by_*.csv per aggregation, and
// summary.csv into the export directory.
func (w *Writer) writeCSV(res *pipeline.Result) ([]string, error) {
	merged := res.Merged
	if merged == nil {
		merged = pipeline.MaterializeMerged(res.Records)
	}

	var files []string
	write := func(name string, table *dataset.Table) error {
		path := filepath.Join(w.cfg.Dir, name)
		if err := writeTableCSV(path, table); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		files = append(files, path)
		return nil
	}

	if err := write("merged.csv", merged); err != nil {
		return nil, err
	}
	for _, g := range res.Groups {
		if err := write(groupingFileName(g.Dimensions), pipeline.MaterializeBuckets(g)); err != nil {
			return nil, err
		}
	}
	if err := write("summary.csv", pipeline.MaterializeSummary(res.Summary)); err != nil {
		return nil, err
	}
	return files, nil
}

func writeTableCSV(path string, table *dataset.Table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(table.Columns); err != nil {
		return err
	}
	rec := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i, col := range table.Columns {
			rec[i] = formatCell(row[col])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return f.Close()
}

// formatCell renders one cell for CSV output. Midnight UTC timestamps
// render as bare dates; anything with a time of day keeps RFC 3339.
func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return formatTime(t)
	default:
		return fmt.Sprint(t)
	}
}

func formatTime(t time.Time) string {
	if h, m, s := t.Clock(); h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}
