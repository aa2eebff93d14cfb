package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/efebarandurmaz/hrrag/internal/rag"
)

type Pane int

const (
	PaneAnswer Pane = iota
	PaneSources
)

// answerMsg carries a finished query back into the update loop.
type answerMsg struct {
	turn *Turn
}

type AskModel struct {
	ctx        context.Context
	querier    Querier
	session    *Session
	styles     *Styles
	cursor     int // index of the displayed turn
	input      textinput.Model
	spinner    spinner.Model
	viewport   viewport.Model
	activePane Pane
	loading    bool
	notice     string
	width      int
	height     int
	quitting   bool
	help       help.Model
	keys       keyMap
}

type keyMap struct {
	Ask        key.Binding
	Submit     key.Binding
	Up         key.Binding
	Down       key.Binding
	Tab        key.Binding
	Helpful    key.Binding
	NotHelpful key.Binding
	Escape     key.Binding
	Quit       key.Binding
}

func (km keyMap) ShortHelp() []key.Binding {
	return []key.Binding{km.Ask, km.Up, km.Down, km.Tab, km.Helpful, km.NotHelpful, km.Quit}
}

func (km keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{km.Ask, km.Submit, km.Escape},
		{km.Up, km.Down, km.Tab},
		{km.Helpful, km.NotHelpful, km.Quit},
	}
}

func newKeyMap() keyMap {
	return keyMap{
		Ask: key.NewBinding(
			key.WithKeys("i", "/"),
			key.WithHelp("i", "ask"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "submit"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch pane"),
		),
		Helpful: key.NewBinding(
			key.WithKeys("+"),
			key.WithHelp("+", "helpful"),
		),
		NotHelpful: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "not helpful"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "leave input"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// NewAskModel builds the question screen. The input starts focused.
func NewAskModel(ctx context.Context, q Querier, session *Session) AskModel {
	ti := textinput.New()
	ti.Placeholder = "Ask about the HR policy..."
	ti.CharLimit = 500
	ti.Width = 60
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := DefaultStyles()
	sp.Style = styles.Spinner

	return AskModel{
		ctx:      ctx,
		querier:  q,
		session:  session,
		styles:   styles,
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(0, 0),
		width:    80,
		height:   24,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

func (m AskModel) Session() *Session { return m.session }

func (m AskModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m AskModel) ask(question string) tea.Cmd {
	ctx, q, topK := m.ctx, m.querier, m.session.TopK
	return func() tea.Msg {
		turn := &Turn{Question: question, AskedAt: time.Now()}
		turn.Response, turn.Err = q.Query(ctx, question, topK)
		return answerMsg{turn: turn}
	}
}

func (m AskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width/2 - 4
		m.viewport.Height = msg.Height - 12
		m.refreshSources()
		return m, nil

	case answerMsg:
		m.loading = false
		m.session.Turns = append(m.session.Turns, msg.turn)
		m.cursor = len(m.session.Turns) - 1
		m.notice = ""
		m.refreshSources()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		if m.input.Focused() {
			switch {
			case key.Matches(msg, m.keys.Submit):
				return m.submit()
			case key.Matches(msg, m.keys.Escape):
				m.input.Blur()
				return m, nil
			}
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Ask):
			cmd = m.input.Focus()
			return m, cmd
		case key.Matches(msg, m.keys.Tab):
			if m.activePane == PaneAnswer {
				m.activePane = PaneSources
			} else {
				m.activePane = PaneAnswer
			}
			return m, nil
		case key.Matches(msg, m.keys.Up):
			if m.activePane == PaneSources {
				m.viewport.LineUp(1)
			} else if m.cursor > 0 {
				m.cursor--
				m.refreshSources()
			}
			return m, nil
		case key.Matches(msg, m.keys.Down):
			if m.activePane == PaneSources {
				m.viewport.LineDown(1)
			} else if m.cursor < len(m.session.Turns)-1 {
				m.cursor++
				m.refreshSources()
			}
			return m, nil
		case key.Matches(msg, m.keys.Helpful):
			m.rate(Helpful)
			return m, nil
		case key.Matches(msg, m.keys.NotHelpful):
			m.rate(NotHelpful)
			return m, nil
		}
	}

	return m, nil
}

func (m AskModel) submit() (tea.Model, tea.Cmd) {
	if m.loading {
		return m, nil
	}
	question := strings.TrimSpace(m.input.Value())
	if question == "" {
		m.notice = "Empty query"
		return m, nil
	}
	m.input.SetValue("")
	m.loading = true
	m.notice = ""
	return m, tea.Batch(m.ask(question), m.spinner.Tick)
}

func (m *AskModel) rate(r Rating) {
	if t := m.current(); t != nil {
		t.Rating = r
	}
}

func (m AskModel) current() *Turn {
	if m.cursor < 0 || m.cursor >= len(m.session.Turns) {
		return nil
	}
	return m.session.Turns[m.cursor]
}

func (m *AskModel) refreshSources() {
	t := m.current()
	if t == nil {
		m.viewport.SetContent("")
		return
	}
	m.viewport.SetContent(m.renderSources(t))
	m.viewport.GotoTop()
}

func (m AskModel) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{m.renderTopBar()}
	if t := m.current(); t != nil {
		sections = append(sections, m.renderTurnHeader(t), m.renderPanels(t))
	} else {
		sections = append(sections, m.styles.Subtitle.Render("Ask a question to get started."))
	}
	sections = append(sections, m.renderInput(), m.renderBottom())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m AskModel) renderTopBar() string {
	title := m.styles.Title.Render("HR Policy Assistant")
	info := m.styles.Help.Render(fmt.Sprintf("top_k=%d  questions=%d", m.session.TopK, len(m.session.Turns)))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", info)
}

func (m AskModel) renderTurnHeader(t *Turn) string {
	parts := []string{
		fmt.Sprintf("[%d/%d]", m.cursor+1, len(m.session.Turns)),
		m.styles.Question.Render(t.Question),
		m.statusBadge(t),
	}
	if t.Err == nil {
		parts = append(parts,
			ScoreColor(t.Response.Score).Render(fmt.Sprintf("%.2f", t.Response.Score)),
			m.styles.Help.Render(fmt.Sprintf("%dms", t.Response.Meta.LatencyMS)),
		)
	}
	if t.Rating != Unrated {
		parts = append(parts, m.styles.Help.Render(t.Rating.String()))
	}
	return strings.Join(parts, "  ")
}

func (m AskModel) statusBadge(t *Turn) string {
	switch {
	case t.Err != nil:
		return m.styles.BadgeError.Render("ERROR")
	case t.Response.Meta.Cached:
		return m.styles.BadgeCached.Render("CACHED")
	case t.Degraded():
		return m.styles.BadgeDegraded.Render("DEGRADED")
	default:
		return m.styles.BadgeLive.Render("LIVE")
	}
}

func (m AskModel) renderPanels(t *Turn) string {
	panelWidth := (m.width - 6) / 2
	if panelWidth < 20 {
		panelWidth = 20
	}

	body := t.Response.Answer
	if t.Err != nil {
		body = t.Err.Error()
	}
	left := m.panel("Answer", m.styles.Answer.Width(panelWidth-4).Render(body), m.activePane == PaneAnswer)
	right := m.panel(fmt.Sprintf("Sources (%d)", len(t.Response.Sources)), m.viewport.View(), m.activePane == PaneSources)

	left = lipgloss.NewStyle().Width(panelWidth).Render(left)
	right = lipgloss.NewStyle().Width(panelWidth).Render(right)
	return lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
}

func (m AskModel) panel(title, content string, active bool) string {
	style, tab := m.styles.Border, m.styles.Tab
	if active {
		style, tab = m.styles.ActiveBorder, m.styles.ActiveTab
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, tab.Render(title), content))
}

func (m AskModel) renderSources(t *Turn) string {
	if len(t.Response.Sources) == 0 {
		return m.styles.Help.Render("No sources")
	}
	width := m.viewport.Width - 2
	if width < 20 {
		width = 20
	}
	var b strings.Builder
	for i, s := range t.Response.Sources {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s  page %d  %.3f\n", m.styles.SourceID.Render(s.ID), s.Page, s.Score)
		b.WriteString(m.styles.Excerpt.Width(width).Render(excerpt(s, 280)))
		b.WriteString("\n")
	}
	return b.String()
}

func excerpt(s rag.Source, max int) string {
	text := strings.Join(strings.Fields(s.Text), " ")
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max-3]) + "..."
}

func (m AskModel) renderInput() string {
	line := m.input.View()
	if m.loading {
		line = m.spinner.View() + " Searching the policy..."
	}
	if m.notice != "" {
		line += "  " + m.styles.BadgeError.Render(m.notice)
	}
	return line
}

func (m AskModel) renderBottom() string {
	if m.input.Focused() {
		return m.styles.Help.Render(m.help.ShortHelpView([]key.Binding{m.keys.Submit, m.keys.Escape}))
	}
	return m.styles.Help.Render(m.help.ShortHelpView(m.keys.ShortHelp()))
}
