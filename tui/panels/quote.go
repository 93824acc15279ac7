package panels

import (
	"fmt"
	"strings"

	"github.com/pchave/agentmarket/internal/stats"
	"github.com/pchave/agentmarket/tui/styles"
)

// QuotePanel shows the live quote and the session's candle history.
type QuotePanel struct {
	snap  stats.Snapshot
	width int
}

// NewQuotePanel creates an empty quote panel.
func NewQuotePanel() *QuotePanel { return &QuotePanel{} }

// SetSnapshot replaces the displayed data.
func (p *QuotePanel) SetSnapshot(s stats.Snapshot) { p.snap = s }

// SetSize updates the panel's width budget.
func (p *QuotePanel) SetSize(width int) { p.width = width }

// View renders the panel.
func (p *QuotePanel) View() string {
	var content strings.Builder
	content.WriteString(styles.TitleStyle.Render("Market"))
	content.WriteString("\n")

	q := p.snap.LastQuote
	if q.Symbol == "" {
		content.WriteString(styles.MutedStyle.Render("waiting for first quote..."))
		return styles.PanelStyle.Render(content.String())
	}

	content.WriteString(styles.HeaderStyle.Render(
		fmt.Sprintf("%-8s %10s %10s %10s %8s %8s", "Symbol", "Bid", "Mid", "Ask", "Vol", "Sigma")))
	content.WriteString("\n")
	content.WriteString(styles.RowStyle.Render(
		fmt.Sprintf("%-8s %10s %10s %10s %8d %8.4f",
			q.Symbol, q.Bid.StringFixed(2), q.Mid.StringFixed(2), q.Ask.StringFixed(2),
			p.snap.TotalVolume, q.Volatility)))
	content.WriteString("\n\n")

	content.WriteString(styles.HeaderStyle.Render(
		fmt.Sprintf("%-8s %8s %8s %8s %8s %6s", "Candle", "Open", "High", "Low", "Close", "Vol")))
	content.WriteString("\n")

	candles := p.snap.Candles
	const show = 8
	if len(candles) > show {
		candles = candles[len(candles)-show:]
	}
	for _, c := range candles {
		style := styles.PositiveStyle
		if c.Close.LessThan(c.Open) {
			style = styles.NegativeStyle
		}
		content.WriteString(style.Render(
			fmt.Sprintf("%-8s %8s %8s %8s %8s %6d",
				c.Start.Format("15:04:05"),
				c.Open.StringFixed(2), c.High.StringFixed(2),
				c.Low.StringFixed(2), c.Close.StringFixed(2), c.Volume)))
		content.WriteString("\n")
	}
	if !p.snap.Live.Start.IsZero() {
		content.WriteString(styles.MutedStyle.Render(
			fmt.Sprintf("%-8s %8s %8s %8s %8s %6d",
				"live",
				p.snap.Live.Open.StringFixed(2), p.snap.Live.High.StringFixed(2),
				p.snap.Live.Low.StringFixed(2), p.snap.Live.Close.StringFixed(2), p.snap.Live.Volume)))
	}

	return styles.PanelStyle.Render(content.String())
}
