package scrub

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"

	"github.com/fyrsmithlabs/fleetrecon/internal/lifecycle"
)

// Finding is one detected secret and where it sits in the content.
type Finding struct {
	RuleID   string // gitleaks rule that fired
	RuleDesc string
	Line     int // 1-based
	StartCol int
	EndCol   int
	Match    string // the secret value, used for marker previews only
}

// Options locates the allowlists applied on top of the default Gitleaks
// ruleset.
type Options struct {
	ProjectPath string // Directory containing .gitleaks.toml (empty to skip)
	UserPath    string // Full path to the user allowlist.toml (empty to skip)
}

// Result contains scrubbed content and audit information.
type Result struct {
	Content string   // Scrubbed content with markers
	Audit   AuditLog // Audit trail of redactions
}

// Scrubber detects and redacts secrets. The Gitleaks detector is built once
// at construction; cell-by-cell scrubbing of a full run would otherwise
// recompile the default ruleset per cell.
type Scrubber struct {
	detector *detect.Detector
}

// New builds a Scrubber with the default Gitleaks config and the allowlists
// named in opts merged in.
func New(opts Options) (*Scrubber, error) {
	allowlist, err := LoadAllowlists(opts.ProjectPath, opts.UserPath)
	if err != nil {
		return nil, fmt.Errorf("loading allowlists: %w", err)
	}

	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("building detector: %w", err)
	}
	applyAllowlist(&detector.Config, allowlist)

	return &Scrubber{detector: detector}, nil
}

// Detect scans content and returns findings with position information.
func (s *Scrubber) Detect(content string) []Finding {
	gitleaksFindings := s.detector.DetectString(content)

	result := make([]Finding, 0, len(gitleaksFindings))
	for _, f := range gitleaksFindings {
		result = append(result, Finding{
			RuleID:   f.RuleID,
			RuleDesc: f.Description,
			Line:     f.StartLine,
			StartCol: f.StartColumn,
			EndCol:   f.EndColumn,
			Match:    f.Secret,
		})
	}

	return result
}

// Scrub detects and redacts secrets from content. Detected secrets are
// replaced with [REDACTED:rule-id:preview] markers; the marker preserves
// enough context for a reader to recognize what was removed without
// exposing the value.
func (s *Scrubber) Scrub(content string) Result {
	startTime := time.Now()

	findings := s.Detect(content)
	audit := buildAuditLog(findings, time.Since(startTime))

	if len(findings) == 0 {
		return Result{Content: content, Audit: audit}
	}

	return Result{
		Content: replaceFindings(content, findings),
		Audit:   audit,
	}
}

// ScrubRecords scrubs the free-text fields of merged records (incident
// description, RMA reference) and returns a new slice plus the total number
// of findings. The input slice is never mutated.
func (s *Scrubber) ScrubRecords(records []lifecycle.Record) ([]lifecycle.Record, int) {
	out := make([]lifecycle.Record, len(records))
	copy(out, records)

	total := 0
	for i := range out {
		if desc := out[i].Incidents.LastDescription; desc != "" {
			if findings := s.Detect(desc); len(findings) > 0 {
				out[i].Incidents.LastDescription = replaceFindings(desc, findings)
				total += len(findings)
			}
		}
		if rma := out[i].Returns.LastRMA; rma != "" {
			if findings := s.Detect(rma); len(findings) > 0 {
				out[i].Returns.LastRMA = replaceFindings(rma, findings)
				total += len(findings)
			}
		}
	}

	return out, total
}

// replaceFindings splices redaction markers over the findings. Findings on
// the same line are replaced right to left so earlier column offsets stay
// valid.
func replaceFindings(content string, findings []Finding) string {
	perLine := make(map[int][]Finding, len(findings))
	for _, f := range findings {
		perLine[f.Line] = append(perLine[f.Line], f)
	}

	lines := strings.Split(content, "\n")
	for num, onLine := range perLine {
		if num < 1 || num > len(lines) {
			continue
		}
		sort.Slice(onLine, func(i, j int) bool {
			return onLine[i].StartCol > onLine[j].StartCol
		})

		line := lines[num-1]
		for _, f := range onLine {
			if f.StartCol < 0 || f.EndCol > len(line) {
				continue
			}
			marker := fmt.Sprintf("[REDACTED:%s:%s]", f.RuleID, extractPreview(f.Match, 4))
			line = line[:f.StartCol] + marker + line[f.EndCol:]
		}
		lines[num-1] = line
	}

	return strings.Join(lines, "\n")
}

// extractPreview truncates a match for safe display.
func extractPreview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// applyAllowlist merges allowlist patterns into the Gitleaks config.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	if allowlist == nil || (len(allowlist.Paths) == 0 && len(allowlist.Regexes) == 0) {
		return
	}

	entry := &gitleaksConfig.Allowlist{
		Description: "fleetrecon project/user allowlist",
		Paths:       compiled(allowlist.Paths),
		Regexes:     compiled(allowlist.Regexes),
	}
	entry.StopWords = append(entry.StopWords, allowlist.Regexes...)

	cfg.Allowlists = append(cfg.Allowlists, entry)
}

// compiled builds gitleaks regexes from patterns readAllowlist already
// validated. A failure here means validation was bypassed.
func compiled(patterns []string) []*gitleaksRegexp.Regexp {
	out := make([]*gitleaksRegexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			panic("scrub: unvalidated allowlist pattern " + p + ": " + err.Error())
		}
		out = append(out, (*gitleaksRegexp.Regexp)(re))
	}
	return out
}
