package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	// Palette
	colorLeaf  = lipgloss.Color("#16A34A")
	colorSoil  = lipgloss.Color("#A16207")
	colorAlert = lipgloss.Color("#DC2626")
	colorFog   = lipgloss.Color("#9CA3AF")
	colorChalk = lipgloss.Color("#F9FAFB")
	colorSlate = lipgloss.Color("#374151")
	colorNight = lipgloss.Color("#111827")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorLeaf).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(colorLeaf)
	warningStyle = lipgloss.NewStyle().Foreground(colorSoil).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorFog)

	// Table list
	selectedItemStyle   = lipgloss.NewStyle().Foreground(colorLeaf).Bold(true).PaddingLeft(1)
	unselectedItemStyle = lipgloss.NewStyle().Foreground(colorChalk).PaddingLeft(3)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSlate).
			Padding(1, 3)

	// Confirmation buttons
	activeButtonStyle   = lipgloss.NewStyle().Foreground(colorNight).Background(colorLeaf).Padding(0, 2).Bold(true)
	inactiveButtonStyle = lipgloss.NewStyle().Foreground(colorFog).Background(colorSlate).Padding(0, 2)

	helpStyle    = lipgloss.NewStyle().Foreground(colorFog).MarginTop(1)
	helpKeyStyle = lipgloss.NewStyle().Foreground(colorLeaf).Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorAlert).
			Border(lipgloss.ThickBorder(), false, false, false, true).
			BorderForeground(colorAlert).
			PaddingLeft(2)

	// Rows table
	tableHeaderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colorSlate).
				BorderBottom(true).
				Bold(true).
				Foreground(colorLeaf).
				Padding(0, 1)
	tableSelectedStyle = lipgloss.NewStyle().Foreground(colorNight).Background(colorLeaf)
)

// statusCell prefixes a status label with an indicator. Table cells stay
// unstyled so the table can measure and truncate them.
func statusCell(label string, active bool) string {
	if active {
		return "● " + label
	}
	return "○ " + label
}

// FormatKey formats a help key
func FormatKey(key, description string) string {
	return helpKeyStyle.Render(key) + " " + mutedStyle.Render(description)
}
