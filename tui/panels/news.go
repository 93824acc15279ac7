package panels

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pchave/agentmarket/internal/wire"
	"github.com/pchave/agentmarket/tui/styles"
)

// NewsPanel shows the news tape, newest first.
type NewsPanel struct {
	flashes []wire.NewsFlash
	rows    int
}

// NewNewsPanel creates a news panel showing up to rows flashes.
func NewNewsPanel(rows int) *NewsPanel {
	if rows <= 0 {
		rows = 8
	}
	return &NewsPanel{rows: rows}
}

// SetNews replaces the displayed tape.
func (p *NewsPanel) SetNews(flashes []wire.NewsFlash) { p.flashes = flashes }

func sentimentStyle(s wire.Sentiment) lipgloss.Style {
	switch s {
	case wire.SentimentPositive:
		return styles.PositiveStyle
	case wire.SentimentNegative:
		return styles.NegativeStyle
	}
	return styles.NeutralStyle
}

func sentimentGlyph(s wire.Sentiment) string {
	switch s {
	case wire.SentimentPositive:
		return "+"
	case wire.SentimentNegative:
		return "-"
	}
	return "="
}

// View renders the panel.
func (p *NewsPanel) View() string {
	var content strings.Builder
	content.WriteString(styles.TitleStyle.Render("News"))
	content.WriteString("\n")

	if len(p.flashes) == 0 {
		content.WriteString(styles.MutedStyle.Render("quiet out there"))
		return styles.PanelStyle.Render(content.String())
	}

	shown := p.flashes
	if len(shown) > p.rows {
		shown = shown[len(shown)-p.rows:]
	}
	for i := len(shown) - 1; i >= 0; i-- {
		f := shown[i]
		style := sentimentStyle(f.Sentiment)
		content.WriteString(style.Render(sentimentGlyph(f.Sentiment) + " " + f.Headline))
		if f.Impact == wire.ImpactHigh {
			content.WriteString(styles.StatusStyle.Render(" !"))
		}
		if i > 0 {
			content.WriteString("\n")
		}
	}
	return styles.PanelStyle.Render(content.String())
}
