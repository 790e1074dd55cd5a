package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Summary styling reuses the house terminal theme.
var (
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff9f"))
	styleDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
	styleFail  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff6b6b"))
)

// renderSummary formats the per-pipe results and an aggregate line.
func renderSummary(scenario Scenario, results []pipeResult, elapsed time.Duration) string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("pipebench"))
	b.WriteString(styleDim.Render(fmt.Sprintf("  %d pipes x %s, capacity %s, chunk %s",
		scenario.Pipes, formatBytes(scenario.Bytes),
		formatBytes(int64(scenario.Capacity)), formatBytes(int64(scenario.Chunk)))))
	b.WriteString("\n")

	var total int64
	for i, r := range results {
		total += r.bytes
		b.WriteString(fmt.Sprintf("  pipe %-3d %10s %10s %12s  ",
			i, formatBytes(r.bytes), formatDuration(r.elapsed), formatRate(r.bytes, r.elapsed)))
		if r.err != nil {
			b.WriteString(styleFail.Render(r.err.Error()))
		} else {
			b.WriteString(styleOK.Render("ok"))
		}
		b.WriteString("\n")
	}

	b.WriteString(styleDim.Render(fmt.Sprintf("  total    %10s %10s %12s",
		formatBytes(total), formatDuration(elapsed), formatRate(total, elapsed))))
	return b.String()
}

// formatBytes formats a byte count to a human readable string.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration with millisecond precision.
func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// formatRate formats a transfer rate in bytes per second.
func formatRate(n int64, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return formatBytes(int64(float64(n)/d.Seconds())) + "/s"
}
