package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/fleetrecon/internal/merge"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

var testNow = day(2024, 6, 1)

func TestCompute_TTFFromInstallation(t *testing.T) {
	c := New(Config{Now: testNow})

	rec := c.Compute(merge.Merged{
		Device: merge.Device{
			Serial:       "0118001",
			Installation: ptr(day(2018, 2, 1)),
			Fabrication:  ptr(day(2018, 1, 1)),
		},
		Incidents: merge.IncidentSummary{Count: 1, LastDate: ptr(day(2019, 6, 1))},
	})

	require.NotNil(t, rec.TimeToFailureDays)
	assert.Equal(t, 485, *rec.TimeToFailureDays, "reference is installation when present")
	require.NotNil(t, rec.TimeToFailureMonths)
	assert.InDelta(t, 485.0/30.44, *rec.TimeToFailureMonths, 1e-9)
	assert.False(t, rec.TTFAnomalous)
}

func TestCompute_TTFFallsBackToFabrication(t *testing.T) {
	c := New(Config{Now: testNow})

	rec := c.Compute(merge.Merged{
		Device: merge.Device{
			Fabrication: ptr(day(2018, 1, 1)),
		},
		Incidents: merge.IncidentSummary{Count: 1, LastDate: ptr(day(2018, 1, 31))},
	})

	require.NotNil(t, rec.TimeToFailureDays)
	assert.Equal(t, 30, *rec.TimeToFailureDays)
}

func TestCompute_TTFNullWithoutIncident(t *testing.T) {
	c := New(Config{Now: testNow})

	rec := c.Compute(merge.Merged{
		Device: merge.Device{
			Installation: ptr(day(2018, 2, 1)),
		},
	})

	assert.Nil(t, rec.TimeToFailureDays)
	assert.Nil(t, rec.TimeToFailureMonths)
	assert.False(t, rec.TTFAnomalous)
	assert.False(t, rec.IncidentWithoutReturn)
}

func TestCompute_TTFNullWithoutReference(t *testing.T) {
	c := New(Config{Now: testNow})

	rec := c.Compute(merge.Merged{
		Incidents: merge.IncidentSummary{Count: 1, LastDate: ptr(day(2019, 6, 1))},
	})

	assert.Nil(t, rec.TimeToFailureDays, "no installation or fabrication date to measure from")
}

func TestCompute_NegativeTTFKeptAndFlagged(t *testing.T) {
	c := New(Config{Now: testNow})

	rec := c.Compute(merge.Merged{
		Device: merge.Device{
			Installation: ptr(day(2020, 6, 1)),
		},
		Incidents: merge.IncidentSummary{Count: 1, LastDate: ptr(day(2020, 5, 1))},
	})

	require.NotNil(t, rec.TimeToFailureDays)
	assert.Equal(t, -31, *rec.TimeToFailureDays, "negative value kept, not clamped")
	assert.True(t, rec.TTFAnomalous)
}

func TestCompute_Ages(t *testing.T) {
	c := New(Config{Now: testNow})

	rec := c.Compute(merge.Merged{
		Device: merge.Device{
			Fabrication:    ptr(day(2024, 1, 1)),
			Installation:   ptr(day(2024, 3, 1)),
			LastConnection: ptr(day(2024, 5, 22)),
		},
	})

	require.NotNil(t, rec.AgeSinceInstallationDays)
	assert.Equal(t, 92, *rec.AgeSinceInstallationDays)
	require.NotNil(t, rec.AgeSinceFabricationDays)
	assert.Equal(t, 152, *rec.AgeSinceFabricationDays)
	require.NotNil(t, rec.StockDurationDays)
	assert.Equal(t, 60, *rec.StockDurationDays)
	require.NotNil(t, rec.InactivityDays)
	assert.Equal(t, 10, *rec.InactivityDays)
}

func TestCompute_NullOperandsStayNull(t *testing.T) {
	c := New(Config{Now: testNow})

	rec := c.Compute(merge.Merged{
		Device: merge.Device{Serial: "0118001"},
	})

	assert.Nil(t, rec.AgeSinceInstallationDays)
	assert.Nil(t, rec.AgeSinceFabricationDays)
	assert.Nil(t, rec.StockDurationDays)
	assert.Nil(t, rec.InactivityDays)
}

func TestCompute_StockDurationNeedsBothDates(t *testing.T) {
	c := New(Config{Now: testNow})

	rec := c.Compute(merge.Merged{
		Device: merge.Device{Installation: ptr(day(2024, 3, 1))},
	})
	assert.Nil(t, rec.StockDurationDays)

	rec = c.Compute(merge.Merged{
		Device: merge.Device{Fabrication: ptr(day(2024, 1, 1))},
	})
	assert.Nil(t, rec.StockDurationDays)
}

func TestCompute_IncidentWithoutReturn(t *testing.T) {
	c := New(Config{Now: testNow})

	tests := []struct {
		name      string
		incidents int
		returns   int
		want      bool
	}{
		{"incidents no returns", 3, 0, true},
		{"incidents and returns", 3, 1, false},
		{"no incidents", 0, 0, false},
		{"returns only", 0, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.Compute(merge.Merged{
				Incidents: merge.IncidentSummary{Count: tt.incidents},
				Returns:   merge.ReturnSummary{Count: tt.returns},
			})
			assert.Equal(t, tt.want, rec.IncidentWithoutReturn)
		})
	}
}

func TestComputeAll_PreservesOrder(t *testing.T) {
	c := New(Config{Now: testNow})

	records := []merge.Merged{
		{Device: merge.Device{Serial: "B"}},
		{Device: merge.Device{Serial: "A"}},
	}

	got := c.ComputeAll(records)

	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Device.Serial)
	assert.Equal(t, "A", got[1].Device.Serial)
}

func TestNew_ZeroNowDefaults(t *testing.T) {
	before := time.Now().UTC()
	c := New(Config{})
	after := time.Now().UTC()

	assert.False(t, c.Now().Before(before))
	assert.False(t, c.Now().After(after))
}
