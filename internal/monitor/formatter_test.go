package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRunDuration(t *testing.T) {
	tests := []struct {
		name string
		ms   int64
		want string
	}{
		{"milliseconds", 850, "850ms"},
		{"zero", 0, "0ms"},
		{"seconds", 1500, "1.5s"},
		{"many seconds", 42300, "42.3s"},
		{"minutes", 125000, "2m 5s"},
		{"exact minute", 60000, "1m 0s"},
		{"long run", 3725000, "62m 5s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatRunDuration(tt.ms))
		})
	}
}

func TestFormatPercentage(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  string
	}{
		{"normal", 0.985, "98.5%"},
		{"zero", 0.0, "0.0%"},
		{"one", 1.0, "100.0%"},
		{"small", 0.012, "1.2%"},
		{"very small", 0.0003, "0.0%"},
		{"over hundred", 1.5, "150.0%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPercentage(tt.ratio))
		})
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want string
	}{
		{"small", 7, "7"},
		{"hundreds", 482, "482"},
		{"thousands", 1500, "1,500"},
		{"millions", 1234567, "1,234,567"},
		{"zero", 0, "0"},
		{"negative", -2500, "-2,500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCount(tt.n))
		})
	}
}

func TestFormatDays(t *testing.T) {
	mttf := 417.5
	zero := 0.0

	tests := []struct {
		name string
		days *float64
		want string
	}{
		{"present", &mttf, "417.5 days"},
		{"zero", &zero, "0.0 days"},
		{"absent", nil, "n/a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDays(tt.days))
		})
	}
}
