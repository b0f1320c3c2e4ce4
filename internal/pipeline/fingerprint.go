package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
)

// fingerprint hashes the run inputs together with every configuration knob
// that can change the output. Two runs with equal fingerprints compute
// equal results, except for wall-clock age drift when AsOf is unset; the
// cache TTL bounds that drift.
func (s *service) fingerprint(req *RunRequest) string {
	h := sha256.New()

	writeBinding(h, "installations", s.cfg.Fields.Installations)
	writeBinding(h, "incidents", s.cfg.Fields.Incidents)
	writeBinding(h, "returns", s.cfg.Fields.Returns)

	fmt.Fprintf(h, "dates:%v|%t;", s.cfg.Dates.Layouts, s.cfg.Dates.ExcelSerial)
	fmt.Fprintf(h, "serial:%+v;", s.cfg.Serial)
	fmt.Fprintf(h, "dedupe:%v;", s.cfg.DedupeKeys)
	fmt.Fprintf(h, "dims:%v;", s.cfg.Dimensions)
	fmt.Fprintf(h, "longtail:%+v;", s.cfg.LongTail)
	fmt.Fprintf(h, "scrub:%t;", s.cfg.ScrubDescriptions)
	fmt.Fprintf(h, "asof:%s;", s.cfg.AsOf.UTC().Format(time.RFC3339))

	writeTable(h, "installations", req.Installations)
	writeTable(h, "incidents", req.Incidents)
	writeTable(h, "returns", req.Returns)

	return hex.EncodeToString(h.Sum(nil))
}

func writeBinding(w io.Writer, name string, b dataset.Binding) {
	fields := make([]string, 0, len(b))
	for field := range b {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	fmt.Fprintf(w, "binding:%s{", name)
	for _, field := range fields {
		fmt.Fprintf(w, "%s=%s;", field, b[field])
	}
	fmt.Fprint(w, "}")
}

func writeTable(w io.Writer, name string, t *dataset.Table) {
	if t == nil {
		fmt.Fprintf(w, "table:%s:nil;", name)
		return
	}

	fmt.Fprintf(w, "table:%s:%d{", name, t.Len())
	for _, col := range t.Columns {
		fmt.Fprintf(w, "%s,", col)
	}
	fmt.Fprint(w, "}")

	for _, row := range t.Rows {
		for _, col := range t.Columns {
			writeCell(w, row[col])
		}
		fmt.Fprint(w, "\x1e")
	}
}

func writeCell(w io.Writer, v any) {
	switch c := v.(type) {
	case nil:
		fmt.Fprint(w, "\x00\x1f")
	case string:
		fmt.Fprintf(w, "s%s\x1f", c)
	case float64:
		fmt.Fprintf(w, "f%s\x1f", strconv.FormatFloat(c, 'g', -1, 64))
	case time.Time:
		fmt.Fprintf(w, "t%s\x1f", c.UTC().Format(time.RFC3339Nano))
	default:
		fmt.Fprintf(w, "?%v\x1f", c)
	}
}
