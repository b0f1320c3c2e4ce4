package pipeline

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/fleetrecon/internal/aggregate"
	"github.com/fyrsmithlabs/fleetrecon/internal/dataset"
	"github.com/fyrsmithlabs/fleetrecon/internal/lifecycle"
	"github.com/fyrsmithlabs/fleetrecon/internal/serial"
)

// MergedColumns is the stable column order of the materialized merged
// table. Exports and API responses rely on this order never changing
// between runs of the same version.
var MergedColumns = []string{
	"serial",
	"model",
	"subsidiary",
	"fabrication_date",
	"installation_date",
	"last_connection_date",
	"serial_valid",
	"serial_reason",
	"derived_fabrication_date",
	"incident_count",
	"last_incident_date",
	"last_incident_description",
	"return_count",
	"last_return_date",
	"last_rma",
	"time_to_failure_days",
	"time_to_failure_months",
	"ttf_anomalous",
	"age_since_installation_days",
	"age_since_fabrication_days",
	"stock_duration_days",
	"inactivity_days",
	"incident_without_return",
}

// bucketStatColumns follow the dimension columns in aggregation tables.
var bucketStatColumns = []string{
	"count",
	"mean_ttf_days",
	"min_ttf_days",
	"max_ttf_days",
	"mean_age_days",
}

// MaterializeMerged renders reconciled records as a table in MergedColumns
// order. Boolean flags render as "true"/"false" strings; absent values
// render as nil cells.
func MaterializeMerged(records []lifecycle.Record) *dataset.Table {
	t := dataset.New(MergedColumns...)
	for _, rec := range records {
		t.Append(dataset.Row{
			"serial":                      rec.Device.Serial,
			"model":                       rec.Device.Model,
			"subsidiary":                  rec.Device.Subsidiary,
			"fabrication_date":            cellTime(rec.Device.Fabrication),
			"installation_date":           cellTime(rec.Device.Installation),
			"last_connection_date":        cellTime(rec.Device.LastConnection),
			"serial_valid":                cellBool(rec.Code.Valid),
			"serial_reason":               cellReason(rec.Code.Reason),
			"derived_fabrication_date":    cellFabricated(rec.Code),
			"incident_count":              float64(rec.Incidents.Count),
			"last_incident_date":          cellTime(rec.Incidents.LastDate),
			"last_incident_description":   cellString(rec.Incidents.LastDescription),
			"return_count":                float64(rec.Returns.Count),
			"last_return_date":            cellTime(rec.Returns.LastDate),
			"last_rma":                    cellString(rec.Returns.LastRMA),
			"time_to_failure_days":        cellInt(rec.TimeToFailureDays),
			"time_to_failure_months":      cellFloat(rec.TimeToFailureMonths),
			"ttf_anomalous":               cellBool(rec.TTFAnomalous),
			"age_since_installation_days": cellInt(rec.AgeSinceInstallationDays),
			"age_since_fabrication_days":  cellInt(rec.AgeSinceFabricationDays),
			"stock_duration_days":         cellInt(rec.StockDurationDays),
			"inactivity_days":             cellInt(rec.InactivityDays),
			"incident_without_return":     cellBool(rec.IncidentWithoutReturn),
		})
	}
	return t
}

// MaterializeBuckets renders one grouping as a table: the dimension
// columns in configured order, then the bucket statistics.
func MaterializeBuckets(g Grouping) *dataset.Table {
	columns := make([]string, 0, len(g.Dimensions)+len(bucketStatColumns))
	columns = append(columns, g.Dimensions...)
	columns = append(columns, bucketStatColumns...)

	t := dataset.New(columns...)
	for _, b := range g.Buckets {
		row := dataset.Row{}
		for i, dim := range g.Dimensions {
			if i < len(b.Key) {
				row[dim] = b.Key[i]
			} else {
				row[dim] = nil
			}
		}
		row["count"] = float64(b.Count)
		row["mean_ttf_days"] = cellFloat(b.MeanTTFDays)
		row["min_ttf_days"] = cellInt(b.MinTTFDays)
		row["max_ttf_days"] = cellInt(b.MaxTTFDays)
		row["mean_age_days"] = cellFloat(b.MeanAgeDays)
		t.Append(row)
	}
	return t
}

// MaterializeSummary renders the run summary as a metric/value table for
// tabular exports. The JSON export uses the Summary struct directly.
func MaterializeSummary(s aggregate.Summary) *dataset.Table {
	t := dataset.New("metric", "value")
	add := func(metric string, value any) {
		t.Append(dataset.Row{"metric": metric, "value": value})
	}

	add("total_devices", float64(s.TotalDevices))
	add("devices_with_incident", float64(s.DevicesWithIncident))
	add("devices_with_return", float64(s.DevicesWithReturn))
	add("incident_rate", s.IncidentRate)
	add("return_rate", s.ReturnRate)
	add("mean_ttf_days", cellFloat(s.MeanTTFDays))
	add("max_ttf_days", cellInt(s.MaxTTFDays))
	add("mttf_days", cellFloat(s.MTTFDays))
	add("mean_age_days", cellFloat(s.MeanAgeDays))
	add("anomalous_ttf", float64(s.AnomalousTTF))
	add("invalid_serials", float64(s.InvalidSerials))
	add("incidents_without_return", float64(s.IncidentsWithoutReturn))
	for i, d := range s.TopIncidentDescriptions {
		add(fmt.Sprintf("top_incident_%d", i+1), fmt.Sprintf("%s (%d)", d.Description, d.Count))
	}
	return t
}

func cellTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func cellInt(v *int) any {
	if v == nil {
		return nil
	}
	return float64(*v)
}

func cellFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func cellString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func cellBool(b bool) any {
	return strconv.FormatBool(b)
}

func cellReason(r serial.Reason) any {
	if r == serial.ReasonNone {
		return nil
	}
	return string(r)
}

func cellFabricated(c serial.Code) any {
	if !c.Valid {
		return nil
	}
	return c.Fabricated
}
