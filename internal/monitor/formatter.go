package monitor

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatRunDuration formats a run duration in milliseconds as "Xms",
// "X.Xs" or "Xm Ys"
func FormatRunDuration(durationMS int64) string {
	if durationMS < 1000 {
		return fmt.Sprintf("%dms", durationMS)
	}
	seconds := float64(durationMS) / 1000
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	return fmt.Sprintf("%dm %ds", int64(seconds)/60, int64(seconds)%60)
}

// FormatPercentage renders a 0-1 ratio as a percentage with one decimal.
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatCount formats an integer with thousands separators
func FormatCount(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(s[i])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// FormatDays formats a day statistic, using "n/a" when the value is absent
func FormatDays(days *float64) string {
	if days == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f days", *days)
}
