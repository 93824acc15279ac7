// Package tui is the terminal dashboard. It polls the session's stats
// snapshots on a timer and renders the quote, the trade tape, the news
// tape, the portfolio leaderboard and a phase status bar. It is a pure
// observer; closing it never disturbs the market.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pchave/agentmarket/internal/market/ledger"
	"github.com/pchave/agentmarket/internal/session"
	"github.com/pchave/agentmarket/tui/panels"
	"github.com/pchave/agentmarket/tui/styles"
)

const refreshInterval = 250 * time.Millisecond

type refreshMsg time.Time

type keyMap struct {
	Quit   key.Binding
	Freeze key.Binding
}

var keys = keyMap{
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c")),
	Freeze: key.NewBinding(key.WithKeys("f", " ")),
}

// Model is the main TUI application model.
type Model struct {
	sess *session.Session

	quotePanel *panels.QuotePanel
	tapePanel  *panels.TapePanel
	newsPanel  *panels.NewsPanel
	boardPanel *panels.LeaderboardPanel

	width  int
	height int
	ready  bool
	frozen bool
}

// NewModel creates the dashboard over a running session.
func NewModel(sess *session.Session, symbol string) *Model {
	return &Model{
		sess:       sess,
		quotePanel: panels.NewQuotePanel(),
		tapePanel:  panels.NewTapePanel(12),
		newsPanel:  panels.NewNewsPanel(8),
		boardPanel: panels.NewLeaderboardPanel(symbol, 8),
	}
}

// Init starts the refresh timer.
func (m *Model) Init() tea.Cmd {
	return m.refresh()
}

func (m *Model) refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Freeze):
			m.frozen = !m.frozen
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.quotePanel.SetSize(msg.Width / 2)
		m.ready = true

	case refreshMsg:
		if !m.frozen {
			m.pull()
		}
		return m, m.refresh()
	}
	return m, nil
}

// pull refreshes every panel from the session's observer surfaces.
func (m *Model) pull() {
	snap := m.sess.Stats.Snapshot()
	m.quotePanel.SetSnapshot(snap)
	m.tapePanel.SetTrades(snap.Trades)
	m.newsPanel.SetNews(snap.News)

	portfolios := make([]ledger.Portfolio, 0)
	for _, p := range m.sess.Maker.Ledger().Snapshot() {
		if p.Owner == m.sess.MakerAID {
			continue
		}
		portfolios = append(portfolios, p)
	}
	m.boardPanel.SetPortfolios(portfolios, snap.LastQuote.Mid)
}

// View renders the dashboard.
func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		m.quotePanel.View(),
		m.boardPanel.View(),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.tapePanel.View(),
		m.newsPanel.View(),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusBar())
}

func (m *Model) statusBar() string {
	now := time.Now()
	progress := m.sess.Scenario.Progress(now)
	status := fmt.Sprintf("phase %s", m.sess.Scenario.Phase())
	bar := fmt.Sprintf(" | session %3.0f%% | delivered %d | dropped %d | f freeze | q quit",
		progress*100, m.sess.Runtime.Delivered(), m.sess.Runtime.Dropped())
	if m.frozen {
		bar += " | FROZEN"
	}
	return styles.StatusBarStyle.Render(styles.StatusStyle.Render(status) + bar)
}
