package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SummaryModel displays session statistics after the user quits.
type SummaryModel struct {
	session  *Session
	styles   *Styles
	width    int
	height   int
	quitting bool
}

func NewSummaryModel(session *Session) SummaryModel {
	return SummaryModel{
		session: session,
		styles:  DefaultStyles(),
	}
}

func (m SummaryModel) Init() tea.Cmd {
	return nil
}

func (m SummaryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "enter", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m SummaryModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Session Summary"))
	b.WriteString("\n\n")

	st := m.session.Stats()
	b.WriteString(m.renderStatsTable(st))
	b.WriteString("\n")

	if st.Questions > 0 && st.Errors < st.Questions {
		label := fmt.Sprintf("Average score: %.2f", st.AvgScore)
		b.WriteString(ScoreColor(st.AvgScore).Render(label))
		b.WriteString("\n\n")
	}

	var attention []*Turn
	for _, t := range m.session.Turns {
		if t.Err != nil || t.Rating == NotHelpful || t.NotFound() {
			attention = append(attention, t)
		}
	}
	if len(attention) > 0 {
		b.WriteString(m.styles.Subtitle.Render("Questions Needing Attention:"))
		b.WriteString("\n")
		for _, t := range attention {
			b.WriteString(m.renderTurn(t))
		}
		b.WriteString("\n")
	}

	b.WriteString(m.styles.Help.Render("Press enter to exit"))
	return b.String()
}

func (m SummaryModel) renderStatsTable(st Stats) string {
	green := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGreen)).Bold(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorRed)).Bold(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorYellow)).Bold(true)
	gray := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray))

	var b strings.Builder
	fmt.Fprintf(&b, "  Questions:          %d\n", st.Questions)
	fmt.Fprintf(&b, "  From cache:         %s\n", gray.Render(fmt.Sprint(st.Cached)))
	fmt.Fprintf(&b, "  Degraded answers:   %s\n", yellow.Render(fmt.Sprint(st.Degraded)))
	fmt.Fprintf(&b, "  Not found:          %s\n", yellow.Render(fmt.Sprint(st.NotFound)))
	fmt.Fprintf(&b, "  Errors:             %s\n", red.Render(fmt.Sprint(st.Errors)))
	fmt.Fprintf(&b, "  Rated helpful:      %s\n", green.Render(fmt.Sprint(st.Helpful)))
	fmt.Fprintf(&b, "  Rated not helpful:  %s\n", red.Render(fmt.Sprint(st.NotHelpful)))
	fmt.Fprintf(&b, "  Average latency:    %s\n", st.AvgLatency)
	return b.String()
}

func (m SummaryModel) renderTurn(t *Turn) string {
	var badge string
	switch {
	case t.Err != nil:
		badge = m.styles.BadgeError.Render("ERROR")
	case t.NotFound():
		badge = m.styles.BadgeDegraded.Render("NOT FOUND")
	default:
		badge = m.styles.BadgeDegraded.Render("NOT HELPFUL")
	}
	return fmt.Sprintf("  %s %s\n", badge, t.Question)
}
