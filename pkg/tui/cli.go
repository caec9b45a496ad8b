// Package tui provides the styled CLI output surface.
// Simple, streaming, no complex TUI - just clean prompts and output.
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/tripflow/tripflow/internal/model"
	"github.com/tripflow/tripflow/pkg/metrics"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// PrintHeader prints the tool banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("TRIPFLOW") + mutedStyle.Render("  hot-path CEP engine  v"+version))
	fmt.Println()
}

// Section prints a section divider.
func Section(name string) {
	fmt.Println(accentStyle.Render("▸ " + name))
}

// Success prints a success line.
func Success(msg string) {
	fmt.Println(successStyle.Render("✓ ") + msg)
}

// Info prints a muted detail line.
func Info(msg string) {
	fmt.Println(mutedStyle.Render("  " + msg))
}

// Fail prints a failure line.
func Fail(msg string) {
	fmt.Println(accentStyle.Render("✗ ") + msg)
}

// NewIngestBar creates a progress bar for event ingestion. Pass -1 when
// the total is unknown (follow mode).
func NewIngestBar(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// PrintCounters renders the end-of-run counter block.
func PrintCounters(c model.Counters) {
	Section("COUNTERS")
	Info(fmt.Sprintf("ingested     %8d", c.Ingested))
	Info(fmt.Sprintf("forwarded    %8d", c.Forwarded))
	Info(fmt.Sprintf("dropped      %8d", c.Dropped))
	Info(fmt.Sprintf("malformed    %8d", c.Malformed))
	Info(fmt.Sprintf("out of order %8d", c.OutOfOrder))
	Info(fmt.Sprintf("matches      %8d", c.Matches))
	Info(fmt.Sprintf("evicted      %8d", c.Evicted))
	Info(fmt.Sprintf("pruned       %8d", c.Pruned))
}

// PrintLatency renders the latency summary block.
func PrintLatency(s metrics.Summary) {
	Section("LATENCY (ms)")
	if s.Count == 0 {
		Info("no samples")
		return
	}
	Info(fmt.Sprintf("count %d", s.Count))
	Info(fmt.Sprintf("p50   %8.3f", s.P50))
	Info(fmt.Sprintf("p95   %8.3f", s.P95))
	Info(fmt.Sprintf("avg   %8.3f", s.Avg))
	Info(fmt.Sprintf("min   %8.3f", s.Min))
	Info(fmt.Sprintf("max   %8.3f", s.Max))
}
