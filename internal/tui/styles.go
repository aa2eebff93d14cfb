package tui

import "github.com/charmbracelet/lipgloss"

// Color constants matching the dark terminal theme
const (
	ColorBg     = "#0d1117"
	ColorCard   = "#161b22"
	ColorBorder = "#30363d"
	ColorBlue   = "#58a6ff"
	ColorGreen  = "#3fb950"
	ColorRed    = "#f85149"
	ColorYellow = "#d29922"
	ColorGray   = "#8b949e"
	ColorText   = "#c9d1d9"
	ColorBright = "#f0f6fc"
)

// Styles holds all lipgloss styles for the TUI
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Help     lipgloss.Style
	Question lipgloss.Style

	// Status badges
	BadgeLive     lipgloss.Style
	BadgeCached   lipgloss.Style
	BadgeDegraded lipgloss.Style
	BadgeError    lipgloss.Style

	Answer   lipgloss.Style
	SourceID lipgloss.Style
	Excerpt  lipgloss.Style

	Border       lipgloss.Style
	ActiveBorder lipgloss.Style

	Tab       lipgloss.Style
	ActiveTab lipgloss.Style

	Spinner lipgloss.Style
}

func badge(bg string) lipgloss.Style {
	return lipgloss.NewStyle().
		Background(lipgloss.Color(bg)).
		Foreground(lipgloss.Color(ColorBg)).
		Padding(0, 1).
		Bold(true)
}

// DefaultStyles creates the default style set
func DefaultStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorBright)).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorText)).
			MarginBottom(1),

		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Italic(true),

		Question: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)).
			Bold(true),

		BadgeLive:     badge(ColorGreen),
		BadgeCached:   badge(ColorBlue),
		BadgeDegraded: badge(ColorYellow),
		BadgeError:    badge(ColorRed),

		Answer: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorText)).
			Padding(0, 1),

		SourceID: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)).
			Bold(true),

		Excerpt: lipgloss.NewStyle().
			Background(lipgloss.Color(ColorCard)).
			Foreground(lipgloss.Color(ColorText)).
			Padding(0, 1),

		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1),

		ActiveBorder: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBlue)).
			Padding(0, 1),

		Tab: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Padding(0, 2),

		ActiveTab: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)).
			Bold(true).
			Padding(0, 2).
			BorderStyle(lipgloss.Border{Bottom: "─"}).
			BorderBottom(true).
			BorderForeground(lipgloss.Color(ColorBlue)),

		Spinner: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)),
	}
}

// ScoreColor returns a badge style for a retrieval score.
// Green for >=0.6, yellow for >=0.35, red below.
func ScoreColor(score float64) lipgloss.Style {
	switch {
	case score >= 0.6:
		return badge(ColorGreen)
	case score >= 0.35:
		return badge(ColorYellow)
	default:
		return badge(ColorRed)
	}
}
