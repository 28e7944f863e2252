package theme

import (
	"fmt"
	"image/color"

	"charm.land/lipgloss/v2"
)

// Color palette, muted so long review sessions stay readable
var (
	Primary   = lipgloss.Color("#6366F1") // Indigo
	Secondary = lipgloss.Color("#14B8A6") // Teal
	Accent    = lipgloss.Color("#F59E0B") // Amber
	Success   = lipgloss.Color("#22C55E") // Green
	Error     = lipgloss.Color("#F43F5E") // Rose
	Text      = lipgloss.Color("#F8FAFC") // White
	TextDim   = lipgloss.Color("#94A3B8") // Slate
	BgCard    = lipgloss.Color("#1E293B") // Dark Slate
	Border    = lipgloss.Color("#334155") // Slate
)

// Typography
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Body = lipgloss.NewStyle().
		Foreground(Text)

	Hint = lipgloss.NewStyle().
		Foreground(TextDim).
		Italic(true)

	Label = lipgloss.NewStyle().
		Foreground(TextDim).
		Width(12)
)

// Layout
var (
	Card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(0, 1)
)

// States
var (
	Selected = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	Unselected = lipgloss.NewStyle().
			Foreground(Text)

	Accepted = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	Corrected = lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true)

	Failed = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)
)

// bucketColors gives each PARA bucket a stable color.
var bucketColors = map[string]color.Color{
	"Inbox":     TextDim,
	"Projects":  Primary,
	"Areas":     Secondary,
	"Resources": Accent,
	"Archive":   Border,
}

// Bucket renders a bucket name in its color.
func Bucket(name string) string {
	c, ok := bucketColors[name]
	if !ok {
		c = Text
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(name)
}

// Confidence renders a confidence value in red when it is below threshold.
func Confidence(v, threshold float64) string {
	style := lipgloss.NewStyle().Foreground(Success)
	if v < threshold {
		style = lipgloss.NewStyle().Foreground(Error)
	}
	return style.Render(fmt.Sprintf("%3.0f%%", v*100))
}
