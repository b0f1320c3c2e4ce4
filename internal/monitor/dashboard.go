// Package monitor renders the frc terminal dashboard over the fleetrecond
// stats API.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	httpapi "github.com/fyrsmithlabs/fleetrecon/internal/http"
)

const (
	sparkWidth  = 32
	sparkHeight = 3

	// historySize matches the duration window the daemon keeps.
	historySize = 32

	barWidth = 36
)

// theme groups the dashboard styles. One place to retune the palette.
type theme struct {
	header    lipgloss.Style
	section   lipgloss.Style
	label     lipgloss.Style
	value     lipgloss.Style
	dim       lipgloss.Style
	ok        lipgloss.Style
	warn      lipgloss.Style
	bad       lipgloss.Style
	container lipgloss.Style
	footer    lipgloss.Style
	footerKey lipgloss.Style
	spark     lipgloss.Style
}

func newTheme() theme {
	return theme{
		header:    lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("25")).Bold(true).Padding(0, 1),
		section:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true).MarginTop(1),
		label:     lipgloss.NewStyle().Foreground(lipgloss.Color("110")),
		value:     lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true),
		dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		ok:        lipgloss.NewStyle().Foreground(lipgloss.Color("77")).Bold(true),
		warn:      lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		bad:       lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		container: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(1, 2),
		footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("243")).MarginTop(1),
		footerKey: lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		spark:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
}

var ui = newTheme()

// severity drives badge coloring.
type severity int

const (
	sevOK severity = iota
	sevWarn
	sevBad
)

func (s severity) style() lipgloss.Style {
	switch s {
	case sevWarn:
		return ui.warn
	case sevBad:
		return ui.bad
	default:
		return ui.ok
	}
}

func (s severity) mark() string {
	switch s {
	case sevWarn:
		return "!"
	case sevBad:
		return "✗"
	default:
		return "✓"
	}
}

func badge(s severity) string {
	return s.style().Render("[" + s.mark() + "]")
}

// ratioSeverity grades part/total: zero is fine, under warnBelow is a
// warning, anything above is bad.
func ratioSeverity(part, total int, warnBelow float64) severity {
	if total == 0 || part == 0 {
		return sevOK
	}
	if float64(part)/float64(total) < warnBelow {
		return sevWarn
	}
	return sevBad
}

// statusBadge renders the overall daemon status from the failure ratio.
func statusBadge(failed, total int) string {
	switch ratioSeverity(failed, total, 0.25) {
	case sevWarn:
		return ui.warn.Render("● DEGRADED")
	case sevBad:
		return ui.bad.Render("● FAILING")
	default:
		return ui.ok.Render("● OK")
	}
}

// durationSeverity flags slow runs: over 5s warns, over 30s is bad.
func durationSeverity(ms int64) severity {
	switch {
	case ms < 5000:
		return sevOK
	case ms < 30000:
		return sevWarn
	default:
		return sevBad
	}
}

// Model is the bubbletea model behind frc board.
type Model struct {
	serverURL  string
	interval   time.Duration
	lastUpdate time.Time
	stats      httpapi.StatsResponse
	history    []float64
	err        error
	quitting   bool

	validityBar progress.Model
	incidentBar progress.Model
}

// NewModel creates a dashboard model polling the daemon at serverURL.
func NewModel(serverURL string, interval time.Duration) Model {
	return Model{
		serverURL:   serverURL,
		interval:    interval,
		history:     make([]float64, 0, historySize),
		validityBar: progress.New(progress.WithGradient("#16a34a", "#facc15"), progress.WithWidth(barWidth)),
		incidentBar: progress.New(progress.WithGradient("#0ea5e9", "#f43f5e"), progress.WithWidth(barWidth)),
	}
}

type tickMsg time.Time

type statsMsg httpapi.StatsResponse

type statsErrMsg struct{ err error }

// Init starts the poll loop and fires an immediate fetch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(scheduleTick(m.interval), refreshStats(m.serverURL))
}

func scheduleTick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func refreshStats(serverURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		stats, err := NewStatsClient(serverURL).FetchStats(ctx)
		if err != nil {
			return statsErrMsg{err: err}
		}
		return statsMsg(stats)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, refreshStats(m.serverURL)
		}

	case tea.WindowSizeMsg:
		// Keep the bars inside narrow terminals.
		w := barWidth
		if avail := msg.Width - 24; avail < w {
			w = avail
		}
		if w < 10 {
			w = 10
		}
		m.validityBar.Width = w
		m.incidentBar.Width = w

	case tickMsg:
		return m, tea.Batch(scheduleTick(m.interval), refreshStats(m.serverURL))

	case statsMsg:
		m.stats = httpapi.StatsResponse(msg)
		m.history = durationHistory(m.stats.RecentDurationsMS)
		m.lastUpdate = time.Now()
		m.err = nil

	case statsErrMsg:
		m.err = msg.err
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.errorView()
	}
	return m.dashboardView()
}

func (m Model) errorView() string {
	var b strings.Builder
	b.WriteString(ui.header.Render("fleetrecond Dashboard") + "\n\n")
	b.WriteString(ui.bad.Render("✗ Cannot reach fleetrecond") + "\n\n")
	b.WriteString(kv("URL", m.serverURL) + "\n")
	b.WriteString(ui.dim.Render("  Error: ") + ui.bad.Render(m.err.Error()) + "\n\n")
	b.WriteString(ui.dim.Render("  Check that fleetrecond is running and the stats") + "\n")
	b.WriteString(ui.dim.Render("  API is reachable at the URL above.") + "\n")
	b.WriteString(m.footerView())
	return ui.container.Render(b.String())
}

// kv renders an indented label: value pair.
func kv(label, value string) string {
	return ui.label.Render("  "+label+": ") + ui.value.Render(value)
}

func (m Model) footerView() string {
	return "\n" + ui.footerKey.Render("[q]") + ui.footer.Render(" quit  ") +
		ui.footerKey.Render("[r]") + ui.footer.Render(" refresh  ") +
		ui.footer.Render(fmt.Sprintf("Auto: %v", m.interval))
}

func (m Model) dashboardView() string {
	var b strings.Builder

	updated := "never"
	if !m.lastUpdate.IsZero() {
		updated = m.lastUpdate.Format("15:04:05")
	}
	b.WriteString(ui.header.Render(" fleetrecond ") + "\n")
	b.WriteString(fmt.Sprintf("%s   %s %s   %s\n",
		statusBadge(m.stats.FailedRuns, m.stats.TotalRuns),
		ui.dim.Render("Runs:"),
		ui.value.Render(FormatCount(m.stats.TotalRuns)),
		ui.dim.Render(updated)))

	m.writeRunsSection(&b)

	if run := m.stats.LastRun; run != nil {
		m.writeLastRunSection(&b, run)
		m.writeFleetSection(&b, run)
	} else {
		b.WriteString("\n" + ui.dim.Render("  No completed runs yet.") + "\n")
	}

	b.WriteString(m.footerView())
	return ui.container.Render(b.String())
}

func (m Model) writeRunsSection(b *strings.Builder) {
	b.WriteString("\n" + ui.section.Render("┃ Runs") + "\n")

	completed := m.stats.TotalRuns - m.stats.FailedRuns
	failedSev := sevOK
	if m.stats.FailedRuns > 0 {
		failedSev = sevBad
	}
	b.WriteString(kv("Completed", FormatCount(completed)) +
		"  " + kv("Failed", FormatCount(m.stats.FailedRuns)) +
		" " + badge(failedSev) + "\n")

	cacheRatio := 0.0
	if m.stats.TotalRuns > 0 {
		cacheRatio = float64(m.stats.CacheHits) / float64(m.stats.TotalRuns)
	}
	b.WriteString(kv("Cache hits", FormatCount(m.stats.CacheHits)) +
		" " + ui.dim.Render("("+FormatPercentage(cacheRatio)+")") + "\n")

	b.WriteString(ui.label.Render("  Durations: ") + sparkView(m.history) + "\n")
}

func (m Model) writeLastRunSection(b *strings.Builder, run *httpapi.RunStats) {
	b.WriteString("\n" + ui.section.Render("┃ Last Run") + "\n")

	line := kv("Run", run.RunID) + " " + ui.dim.Render("("+run.Trigger+")")
	if run.CacheHit {
		line += " " + ui.ok.Render("[cache]")
	}
	b.WriteString(line + "\n")

	b.WriteString(kv("Finished", run.Finished.Format("15:04:05")) +
		"  " + kv("Duration", FormatRunDuration(run.DurationMS)) +
		" " + badge(durationSeverity(run.DurationMS)) + "\n")

	b.WriteString(kv("Sources", fmt.Sprintf("%d installations, %d incidents, %d returns",
		run.SourceRows.Installations, run.SourceRows.Incidents, run.SourceRows.Returns)) + "\n")
}

func (m Model) writeFleetSection(b *strings.Builder, run *httpapi.RunStats) {
	s := run.Summary
	b.WriteString("\n" + ui.section.Render("┃ Fleet") + "\n")

	b.WriteString(kv("Devices", FormatCount(s.TotalDevices)) +
		"  " + kv("Invalid serials", FormatCount(run.InvalidSerials)) +
		" " + badge(ratioSeverity(s.InvalidSerials, s.TotalDevices, 0.05)) +
		"  " + kv("Duplicates removed", FormatCount(run.DuplicatesRemoved)) + "\n")

	validRatio := 1.0
	if s.TotalDevices > 0 {
		validRatio = float64(s.TotalDevices-s.InvalidSerials) / float64(s.TotalDevices)
	}
	b.WriteString(ui.label.Render("  Validity:  ") + m.validityBar.ViewAs(validRatio) +
		" " + ui.dim.Render(FormatPercentage(validRatio)) + "\n")
	b.WriteString(ui.label.Render("  Incidents: ") + m.incidentBar.ViewAs(s.IncidentRate) +
		" " + ui.dim.Render(FormatPercentage(s.IncidentRate)) + "\n")

	b.WriteString(kv("With incident", FormatCount(s.DevicesWithIncident)) +
		"  " + kv("With return", FormatCount(s.DevicesWithReturn)) +
		" " + ui.dim.Render("("+FormatPercentage(s.ReturnRate)+")") + "\n")

	b.WriteString(kv("MTTF", FormatDays(s.MTTFDays)) +
		"  " + kv("Mean age", FormatDays(s.MeanAgeDays)) + "\n")

	b.WriteString(kv("Anomalous TTF", FormatCount(s.AnomalousTTF)) +
		"  " + kv("Unreturned incidents", FormatCount(s.IncidentsWithoutReturn)) + "\n")
}

// durationHistory converts recent run durations to seconds for the
// sparkline, keeping only the newest historySize points.
func durationHistory(durationsMS []int64) []float64 {
	if len(durationsMS) > historySize {
		durationsMS = durationsMS[len(durationsMS)-historySize:]
	}
	out := make([]float64, len(durationsMS))
	for i, ms := range durationsMS {
		out[i] = float64(ms) / 1000
	}
	return out
}

func sparkView(data []float64) string {
	if len(data) == 0 {
		return ui.dim.Render(fmt.Sprintf("%*s", sparkWidth, "no data"))
	}

	spark := sparkline.New(sparkWidth, sparkHeight)
	for _, v := range data {
		spark.Push(v)
	}
	return ui.spark.Render(spark.View())
}
