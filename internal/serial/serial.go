// Package serial decodes fabrication metadata embedded in device serial
// numbers. A serial carries a two-digit month code and a two-digit year
// code; valid codes derive a fabrication date at month granularity.
// Parsing never fails a record: malformed serials are tagged with a reason
// and flow through the pipeline unchanged.
package serial

import (
	"strings"
	"time"
)

// Reason classifies why a serial failed validation.
type Reason string

const (
	// ReasonNone marks a valid serial.
	ReasonNone Reason = ""
	// ReasonLength marks a serial that is not exactly Length digits.
	ReasonLength Reason = "length"
	// ReasonMonth marks a month code outside 1-12.
	ReasonMonth Reason = "month"
	// ReasonYearWindow marks a year code outside the configured window.
	ReasonYearWindow Reason = "year_window"
)

// Code is the decoded form of one serial number.
type Code struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized"` // superscript/subscript digits folded to ASCII, trimmed
	Month      int    `json:"month"`      // month code, digits 1-2
	Year       int    `json:"year"`       // year code, digits 3-4
	Valid      bool   `json:"valid"`
	Reason     Reason `json:"reason,omitempty"`
	// Fabricated is the first of the coded month; zero unless Valid.
	Fabricated time.Time `json:"fabricated,omitzero"`
}

// Config controls serial decoding.
type Config struct {
	// Length is the required digit count. Default 7.
	Length int
	// YearMin and YearMax bound the year code window, inclusive. Two-digit
	// bounds (17, 26) compare against the raw year code; four-digit bounds
	// (2017, 2030) compare against CenturyBase plus the code. Default 17-26.
	YearMin int
	YearMax int
	// CenturyBase anchors two-digit year codes. Default 2000.
	CenturyBase int
}

// Parser decodes serial numbers according to a fixed format config.
type Parser struct {
	cfg Config
}

// New creates a Parser, applying defaults for zero config fields.
func New(cfg Config) *Parser {
	if cfg.Length == 0 {
		cfg.Length = 7
	}
	if cfg.YearMin == 0 && cfg.YearMax == 0 {
		cfg.YearMin, cfg.YearMax = 17, 26
	}
	if cfg.CenturyBase == 0 {
		cfg.CenturyBase = 2000
	}
	return &Parser{cfg: cfg}
}

// Parse decodes one raw serial. It never returns an error; failed
// validation yields Valid=false with the specific Reason.
func (p *Parser) Parse(raw string) Code {
	code := Code{
		Raw:        raw,
		Normalized: normalizeDigits(raw),
	}

	if len(code.Normalized) != p.cfg.Length || !allDigits(code.Normalized) {
		code.Reason = ReasonLength
		return code
	}

	code.Month = digitsToInt(code.Normalized[0:2])
	code.Year = digitsToInt(code.Normalized[2:4])

	if code.Month < 1 || code.Month > 12 {
		code.Reason = ReasonMonth
		return code
	}

	if !p.yearInWindow(code.Year) {
		code.Reason = ReasonYearWindow
		return code
	}

	code.Valid = true
	code.Fabricated = time.Date(p.cfg.CenturyBase+code.Year, time.Month(code.Month), 1, 0, 0, 0, 0, time.UTC)
	return code
}

// yearInWindow checks the year code against the configured window,
// handling both two-digit and four-digit bounds.
func (p *Parser) yearInWindow(year int) bool {
	min, max := p.cfg.YearMin, p.cfg.YearMax
	if min > 99 || max > 99 {
		full := p.cfg.CenturyBase + year
		return full >= min && full <= max
	}
	return year >= min && year <= max
}

// digitFolds maps superscript and subscript digit runes to ASCII.
var digitFolds = map[rune]rune{
	'⁰': '0', '¹': '1', '²': '2', '³': '3', '⁴': '4',
	'⁵': '5', '⁶': '6', '⁷': '7', '⁸': '8', '⁹': '9',
	'₀': '0', '₁': '1', '₂': '2', '₃': '3', '₄': '4',
	'₅': '5', '₆': '6', '₇': '7', '₈': '8', '₉': '9',
}

// normalizeDigits trims surrounding space and folds superscript/subscript
// digits, which appear in spreadsheet exports where cells picked up rich
// text formatting.
func normalizeDigits(raw string) string {
	trimmed := strings.TrimSpace(raw)
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		if folded, ok := digitFolds[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// digitsToInt converts an all-digit substring. Callers validate digits
// first; no error path.
func digitsToInt(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
