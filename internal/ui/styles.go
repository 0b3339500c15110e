package ui

import "github.com/charmbracelet/lipgloss"

// Color palette. A single blue accent keeps the indexer and search
// views visually consistent.
const (
	ColorBlue     = "39"  // Primary accent - deep sky blue
	ColorBlueDim  = "31"  // Dimmed blue for inactive elements
	ColorWhite    = "255" // Headers, important text
	ColorGray     = "245" // Secondary text, labels
	ColorDarkGray = "238" // Box borders, separators
	ColorRed      = "196" // Errors
	ColorYellow   = "220" // Warnings, fallback badge
)

// Styles holds all UI styles for TUI rendering.
type Styles struct {
	// Text styles
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Active  lipgloss.Style
	Label   lipgloss.Style
	Speed   lipgloss.Style

	// Panel/layout styles
	Border    lipgloss.Style
	Sparkline lipgloss.Style

	// Search view styles
	Prompt   lipgloss.Style
	Title    lipgloss.Style
	Selected lipgloss.Style
	Meta     lipgloss.Style
	Badge    lipgloss.Style
	Fallback lipgloss.Style
	Mark     lipgloss.Style
}

// DefaultStyles returns styled components for TUI mode.
func DefaultStyles() Styles {
	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorBlue)),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlue)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorBlue)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Speed:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),

		Border:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorDarkGray)),
		Sparkline: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlue)),

		Prompt:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorBlue)),
		Title:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWhite)),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorBlue)),
		Meta:     lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Badge:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBlueDim)),
		Fallback: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)),
		Mark:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorBlue)),
	}
}

// NoColorStyles returns unstyled components for plain mode.
func NoColorStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle(),
		Success:   lipgloss.NewStyle(),
		Warning:   lipgloss.NewStyle(),
		Error:     lipgloss.NewStyle(),
		Dim:       lipgloss.NewStyle(),
		Active:    lipgloss.NewStyle(),
		Label:     lipgloss.NewStyle(),
		Speed:     lipgloss.NewStyle(),
		Border:    lipgloss.NewStyle(),
		Sparkline: lipgloss.NewStyle(),
		Prompt:    lipgloss.NewStyle(),
		Title:     lipgloss.NewStyle(),
		Selected:  lipgloss.NewStyle(),
		Meta:      lipgloss.NewStyle(),
		Badge:     lipgloss.NewStyle(),
		Fallback:  lipgloss.NewStyle(),
		Mark:      lipgloss.NewStyle(),
	}
}

// GetStyles returns the appropriate styles based on color preference.
func GetStyles(noColor bool) Styles {
	if noColor {
		return NoColorStyles()
	}
	return DefaultStyles()
}
