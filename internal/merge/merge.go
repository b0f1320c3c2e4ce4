// Package merge joins the three source tables into one record per
// installation row. Incidents and returns are pre-aggregated per serial
// before the join, so duplicate serials on the right side can never fan
// out the left side: output length always equals installation length.
package merge

import (
	"strings"
	"time"

	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
	"github.com/fyrsmithlabs/fleetrecon/internal/serial"
)

// Device is the installation-side record. Serial is the join key.
// Date fields are nil when the source cell was blank or unparseable.
type Device struct {
	Serial         string     `json:"serial"`
	Model          string     `json:"model"`
	Subsidiary     string     `json:"subsidiary"`
	Fabrication    *time.Time `json:"fabrication_date"`
	Installation   *time.Time `json:"installation_date"`
	LastConnection *time.Time `json:"last_connection_date"`
}

// IncidentSummary aggregates all incident rows for one serial.
// LastDescription follows the latest dated incident row; it stays empty
// when no incident row carries a date.
type IncidentSummary struct {
	Count           int        `json:"count"`
	LastDate        *time.Time `json:"last_date"`
	LastDescription string     `json:"last_description"`
}

// ReturnSummary aggregates all return rows for one serial.
type ReturnSummary struct {
	Count    int        `json:"count"`
	LastDate *time.Time `json:"last_date"`
	LastRMA  string     `json:"last_rma"`
}

// Merged is one joined record: the installation row plus per-serial
// summaries. Code is decoded from the serial by the pipeline after the
// join; lifecycle metrics build on top of this.
type Merged struct {
	Device    Device          `json:"device"`
	Incidents IncidentSummary `json:"incidents"`
	Returns   ReturnSummary   `json:"returns"`
	Code      serial.Code     `json:"serial_code"`
}

// SummarizeIncidents groups incident rows by serial. The binding supplies
// the serial, date, and description columns. Rows with a blank serial are
// skipped; date cells must already be normalized (time.Time or nil).
func SummarizeIncidents(t *dataset.Table, b dataset.Binding) map[string]IncidentSummary {
	serialCol := b.Column("serial")
	dateCol := b.Column("date")
	descCol := b.Column("description")

	out := make(map[string]IncidentSummary)
	for _, row := range t.Rows {
		key, ok := rowKey(row, serialCol)
		if !ok {
			continue
		}
		sum := out[key]
		sum.Count++
		if d, ok := row.Time(dateCol); ok {
			// First occurrence wins ties so summaries are stable
			// under source row order.
			if sum.LastDate == nil || d.After(*sum.LastDate) {
				latest := d
				sum.LastDate = &latest
				sum.LastDescription = ""
				if desc, ok := row.String(descCol); ok {
					sum.LastDescription = strings.TrimSpace(desc)
				}
			}
		}
		out[key] = sum
	}
	return out
}

// SummarizeReturns groups return rows by serial. The binding supplies the
// serial, date, and rma columns.
func SummarizeReturns(t *dataset.Table, b dataset.Binding) map[string]ReturnSummary {
	serialCol := b.Column("serial")
	dateCol := b.Column("date")
	rmaCol := b.Column("rma")

	out := make(map[string]ReturnSummary)
	for _, row := range t.Rows {
		key, ok := rowKey(row, serialCol)
		if !ok {
			continue
		}
		sum := out[key]
		sum.Count++
		if d, ok := row.Time(dateCol); ok {
			if sum.LastDate == nil || d.After(*sum.LastDate) {
				latest := d
				sum.LastDate = &latest
				sum.LastRMA = ""
				if rma, ok := row.String(rmaCol); ok {
					sum.LastRMA = strings.TrimSpace(rma)
				}
			}
		}
		out[key] = sum
	}
	return out
}

// Merge left-joins the pre-aggregated summaries onto the installation
// table. Serials without incidents or returns get zero counts and nil
// dates. Row order and row count of the installation table are preserved.
func Merge(installations *dataset.Table, b dataset.Binding, incidents map[string]IncidentSummary, returns map[string]ReturnSummary) []Merged {
	out := make([]Merged, 0, installations.Len())
	for _, row := range installations.Rows {
		m := Merged{Device: readDevice(row, b)}
		if sum, ok := incidents[m.Device.Serial]; ok {
			m.Incidents = sum
		}
		if sum, ok := returns[m.Device.Serial]; ok {
			m.Returns = sum
		}
		out = append(out, m)
	}
	return out
}

// readDevice materializes the installation-side record through the binding.
func readDevice(row dataset.Row, b dataset.Binding) Device {
	d := Device{}
	if s, ok := row.String(b.Column("serial")); ok {
		d.Serial = strings.TrimSpace(s)
	}
	if s, ok := row.String(b.Column("model")); ok {
		d.Model = strings.TrimSpace(s)
	}
	if s, ok := row.String(b.Column("subsidiary")); ok {
		d.Subsidiary = strings.TrimSpace(s)
	}
	d.Fabrication = timePtr(row, b.Column("fabrication_date"))
	d.Installation = timePtr(row, b.Column("installation_date"))
	d.LastConnection = timePtr(row, b.Column("last_connection"))
	return d
}

// rowKey extracts the trimmed serial join key, skipping blank cells.
func rowKey(row dataset.Row, column string) (string, bool) {
	s, ok := row.String(column)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func timePtr(row dataset.Row, column string) *time.Time {
	if t, ok := row.Time(column); ok {
		return &t
	}
	return nil
}
