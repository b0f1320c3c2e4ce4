package serial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ValidSerial(t *testing.T) {
	p := New(Config{})

	code := p.Parse("0118001")

	require.True(t, code.Valid)
	assert.Equal(t, ReasonNone, code.Reason)
	assert.Equal(t, "0118001", code.Normalized)
	assert.Equal(t, 1, code.Month)
	assert.Equal(t, 18, code.Year)
	assert.Equal(t, time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC), code.Fabricated)
}

func TestParse_MonthGranularity(t *testing.T) {
	p := New(Config{})

	code := p.Parse("1226999")

	require.True(t, code.Valid)
	assert.Equal(t, 12, code.Month)
	assert.Equal(t, 26, code.Year)
	// Fabrication date is always the first of the month.
	assert.Equal(t, time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC), code.Fabricated)
}

func TestParse_Length(t *testing.T) {
	p := New(Config{})

	tests := []struct {
		name string
		raw  string
	}{
		{"too short", "011800"},
		{"too long", "01180012"},
		{"empty", ""},
		{"spaces only", "   "},
		{"non-digit", "01A8001"},
		{"embedded space", "011 001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := p.Parse(tt.raw)
			assert.False(t, code.Valid)
			assert.Equal(t, ReasonLength, code.Reason)
			assert.True(t, code.Fabricated.IsZero())
		})
	}
}

func TestParse_MonthWindow(t *testing.T) {
	p := New(Config{})

	tests := []struct {
		name   string
		raw    string
		reason Reason
	}{
		{"month zero", "0018001", ReasonMonth},
		{"month thirteen", "1318001", ReasonMonth},
		{"month twelve ok", "1218001", ReasonNone},
		{"month one ok", "0118001", ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := p.Parse(tt.raw)
			assert.Equal(t, tt.reason, code.Reason)
			assert.Equal(t, tt.reason == ReasonNone, code.Valid)
		})
	}
}

func TestParse_YearWindow(t *testing.T) {
	p := New(Config{})

	tests := []struct {
		name   string
		raw    string
		reason Reason
	}{
		{"below window", "0116001", ReasonYearWindow},
		{"above window", "0127001", ReasonYearWindow},
		{"window floor", "0117001", ReasonNone},
		{"window ceiling", "0126001", ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := p.Parse(tt.raw)
			assert.Equal(t, tt.reason, code.Reason)
			assert.Equal(t, tt.reason == ReasonNone, code.Valid)
		})
	}
}

func TestParse_SuperscriptSubscriptDigits(t *testing.T) {
	p := New(Config{})

	tests := []struct {
		name string
		raw  string
	}{
		{"superscript", "⁰¹¹⁸⁰⁰¹"},
		{"subscript", "₀₁₁₈₀₀₁"},
		{"mixed", "0¹1₈00¹"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := p.Parse(tt.raw)
			require.True(t, code.Valid, "normalized %q", code.Normalized)
			assert.Equal(t, "0118001", code.Normalized)
			assert.Equal(t, time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC), code.Fabricated)
		})
	}
}

func TestParse_TrimsSpace(t *testing.T) {
	p := New(Config{})

	code := p.Parse("  0118001  ")

	require.True(t, code.Valid)
	assert.Equal(t, "0118001", code.Normalized)
	assert.Equal(t, "  0118001  ", code.Raw)
}

func TestParse_CustomWindow(t *testing.T) {
	p := New(Config{YearMin: 17, YearMax: 30})

	code := p.Parse("0128001")
	require.True(t, code.Valid)
	assert.Equal(t, time.Date(2028, time.January, 1, 0, 0, 0, 0, time.UTC), code.Fabricated)

	code = p.Parse("0131001")
	assert.Equal(t, ReasonYearWindow, code.Reason)
}

func TestParse_FourDigitWindow(t *testing.T) {
	// Four-digit bounds compare against century base plus year code.
	p := New(Config{YearMin: 2017, YearMax: 2030})

	code := p.Parse("0128001")
	require.True(t, code.Valid)
	assert.Equal(t, 2028, code.Fabricated.Year())

	code = p.Parse("0131001")
	assert.Equal(t, ReasonYearWindow, code.Reason)

	code = p.Parse("0116001")
	assert.Equal(t, ReasonYearWindow, code.Reason)
}

func TestParse_CustomLength(t *testing.T) {
	p := New(Config{Length: 9})

	code := p.Parse("011800100")
	require.True(t, code.Valid)

	code = p.Parse("0118001")
	assert.Equal(t, ReasonLength, code.Reason)
}

func TestParse_CustomCenturyBase(t *testing.T) {
	p := New(Config{CenturyBase: 1900, YearMin: 90, YearMax: 99})

	code := p.Parse("0695001")
	require.True(t, code.Valid)
	assert.Equal(t, time.Date(1995, time.June, 1, 0, 0, 0, 0, time.UTC), code.Fabricated)
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{})

	assert.Equal(t, 7, p.cfg.Length)
	assert.Equal(t, 17, p.cfg.YearMin)
	assert.Equal(t, 26, p.cfg.YearMax)
	assert.Equal(t, 2000, p.cfg.CenturyBase)
}
