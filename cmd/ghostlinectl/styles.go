package main

import "github.com/charmbracelet/lipgloss"

// Status colors, grounded on the teacher's cmd/nerd/ui/styles.go semantic
// palette (Destructive/Success/Warning/Info), trimmed to what a
// line-oriented status CLI needs.
var (
	colorSuccess = lipgloss.Color("#8BC34A")
	colorWarning = lipgloss.Color("#FFC107")
	colorError   = lipgloss.Color("#e53935")
	colorInfo    = lipgloss.Color("#2196F3")
	colorMuted   = lipgloss.Color("#6b7280")

	styleHeading = lipgloss.NewStyle().Bold(true).Foreground(colorInfo)
	styleLabel   = lipgloss.NewStyle().Foreground(colorMuted)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "completed":
		return styleSuccess
	case "failed", "cancelled":
		return styleError
	case "paused":
		return styleWarning
	default:
		return styleHeading
	}
}

func progressBar(progress int, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	filled := width * progress / 100
	bar := lipgloss.NewStyle().Foreground(colorSuccess).Render(repeat("#", filled)) +
		lipgloss.NewStyle().Foreground(colorMuted).Render(repeat("-", width-filled))
	return "[" + bar + "]"
}

func repeat(s string, n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
