package aggregate

import (
	"sort"

	"github.com/fyrsmithlabs/fleetrecon/internal/lifecycle"
)

// topDescriptionLimit caps the incident-description ranking in Summary.
const topDescriptionLimit = 5

// DescriptionCount is one entry of the incident-description ranking.
type DescriptionCount struct {
	Description string `json:"description"`
	Count       int    `json:"count"`
}

// Summary holds whole-run statistics over the reconciled fleet.
type Summary struct {
	TotalDevices        int `json:"total_devices"`
	DevicesWithIncident int `json:"devices_with_incident"`
	DevicesWithReturn   int `json:"devices_with_return"`

	// IncidentRate and ReturnRate are fractions of TotalDevices, zero
	// when the fleet is empty.
	IncidentRate float64 `json:"incident_rate"`
	ReturnRate   float64 `json:"return_rate"`

	MeanTTFDays *float64 `json:"mean_ttf_days"`
	MaxTTFDays  *int     `json:"max_ttf_days"`

	// MTTFDays is the mean of per-serial TTF over unique serials, so a
	// serial surviving deduplication more than once still weighs once.
	MTTFDays *float64 `json:"mttf_days"`

	MeanAgeDays *float64 `json:"mean_age_days"`

	AnomalousTTF           int `json:"anomalous_ttf"`
	InvalidSerials         int `json:"invalid_serials"`
	IncidentsWithoutReturn int `json:"incidents_without_return"`

	TopIncidentDescriptions []DescriptionCount `json:"top_incident_descriptions"`
}

// Summarize computes the whole-run statistics for records.
func Summarize(records []lifecycle.Record) Summary {
	s := Summary{TotalDevices: len(records)}

	var ttfSum float64
	var ttfCount int
	var ageSum float64
	var ageCount int

	perSerialTTF := make(map[string]float64)
	perSerialCount := make(map[string]int)
	descCounts := make(map[string]int)

	for _, rec := range records {
		if rec.Incidents.Count > 0 {
			s.DevicesWithIncident++
		}
		if rec.Returns.Count > 0 {
			s.DevicesWithReturn++
		}
		if rec.TTFAnomalous {
			s.AnomalousTTF++
		}
		if !rec.Code.Valid {
			s.InvalidSerials++
		}
		if rec.IncidentWithoutReturn {
			s.IncidentsWithoutReturn++
		}
		if desc := rec.Incidents.LastDescription; desc != "" {
			descCounts[desc]++
		}
		if ttf := rec.TimeToFailureDays; ttf != nil {
			ttfSum += float64(*ttf)
			ttfCount++
			if s.MaxTTFDays == nil || *ttf > *s.MaxTTFDays {
				v := *ttf
				s.MaxTTFDays = &v
			}
			if serial := rec.Device.Serial; serial != "" {
				perSerialTTF[serial] += float64(*ttf)
				perSerialCount[serial]++
			}
		}
		if age := rec.AgeSinceInstallationDays; age != nil {
			ageSum += float64(*age)
			ageCount++
		}
	}

	if s.TotalDevices > 0 {
		s.IncidentRate = float64(s.DevicesWithIncident) / float64(s.TotalDevices)
		s.ReturnRate = float64(s.DevicesWithReturn) / float64(s.TotalDevices)
	}
	if ttfCount > 0 {
		mean := ttfSum / float64(ttfCount)
		s.MeanTTFDays = &mean
	}
	if len(perSerialTTF) > 0 {
		var sum float64
		for serial, total := range perSerialTTF {
			sum += total / float64(perSerialCount[serial])
		}
		mttf := sum / float64(len(perSerialTTF))
		s.MTTFDays = &mttf
	}
	if ageCount > 0 {
		mean := ageSum / float64(ageCount)
		s.MeanAgeDays = &mean
	}

	s.TopIncidentDescriptions = topDescriptions(descCounts, topDescriptionLimit)
	return s
}

// topDescriptions ranks descriptions by count descending, ties by
// description ascending, capped at limit.
func topDescriptions(counts map[string]int, limit int) []DescriptionCount {
	if len(counts) == 0 {
		return nil
	}
	ranked := make([]DescriptionCount, 0, len(counts))
	for desc, count := range counts {
		ranked = append(ranked, DescriptionCount{Description: desc, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Description < ranked[j].Description
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
