// Package lifecycle derives per-device metrics from merged records: time
// to failure, device ages, stock duration, inactivity, and the
// incident-without-return flag. The reference clock is injected so runs
// are reproducible; Compute itself never reads system time.
package lifecycle

import (
	"time"

	"github.com/fyrsmithlabs/fleetrecon/internal/merge"
)

// DaysPerMonth is the average month length used for month-unit figures.
const DaysPerMonth = 30.44

// Config controls metric computation.
type Config struct {
	// Now is the reference clock for age and inactivity metrics. Zero
	// means the current time, fixed once at construction.
	Now time.Time
}

// Record is one merged record extended with derived metrics. Nil metric
// pointers mean the operand dates were absent; they are exported as null,
// never as zero.
type Record struct {
	merge.Merged

	TimeToFailureDays   *int     `json:"time_to_failure_days"`
	TimeToFailureMonths *float64 `json:"time_to_failure_months"`
	// TTFAnomalous marks a negative TTF: the incident predates the
	// reference date. The value is kept, not clamped.
	TTFAnomalous bool `json:"ttf_anomalous"`

	AgeSinceInstallationDays *int `json:"age_since_installation_days"`
	AgeSinceFabricationDays  *int `json:"age_since_fabrication_days"`
	StockDurationDays        *int `json:"stock_duration_days"`
	InactivityDays           *int `json:"inactivity_days"`

	IncidentWithoutReturn bool `json:"incident_without_return"`
}

// Calculator computes lifecycle metrics against a fixed reference clock.
type Calculator struct {
	now time.Time
}

// New creates a Calculator. A zero Config.Now is replaced with the current
// time once, here; Compute never consults the system clock.
func New(cfg Config) *Calculator {
	now := cfg.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return &Calculator{now: now}
}

// Now returns the calculator's reference clock.
func (c *Calculator) Now() time.Time {
	return c.now
}

// Compute derives metrics for one record.
//
// The TTF reference date is the installation date when present, else the
// fabrication date. TTF exists only when an incident date exists (and a
// reference to measure from); negative TTF is recorded and flagged.
func (c *Calculator) Compute(m merge.Merged) Record {
	r := Record{Merged: m}

	ref := m.Device.Installation
	if ref == nil {
		ref = m.Device.Fabrication
	}

	if inc := m.Incidents.LastDate; inc != nil && ref != nil {
		days := daysBetween(*ref, *inc)
		months := float64(days) / DaysPerMonth
		r.TimeToFailureDays = &days
		r.TimeToFailureMonths = &months
		r.TTFAnomalous = days < 0
	}

	if d := m.Device.Installation; d != nil {
		age := daysBetween(*d, c.now)
		r.AgeSinceInstallationDays = &age
	}
	if d := m.Device.Fabrication; d != nil {
		age := daysBetween(*d, c.now)
		r.AgeSinceFabricationDays = &age
	}
	if m.Device.Installation != nil && m.Device.Fabrication != nil {
		stock := daysBetween(*m.Device.Fabrication, *m.Device.Installation)
		r.StockDurationDays = &stock
	}
	if d := m.Device.LastConnection; d != nil {
		idle := daysBetween(*d, c.now)
		r.InactivityDays = &idle
	}

	r.IncidentWithoutReturn = m.Incidents.Count > 0 && m.Returns.Count == 0

	return r
}

// ComputeAll derives metrics for every record, preserving order.
func (c *Calculator) ComputeAll(records []merge.Merged) []Record {
	out := make([]Record, len(records))
	for i, m := range records {
		out[i] = c.Compute(m)
	}
	return out
}

// daysBetween returns whole days from a to b, negative when b precedes a.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
