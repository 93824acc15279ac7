package panels

import (
	"fmt"
	"strings"

	"github.com/pchave/agentmarket/internal/market"
	"github.com/pchave/agentmarket/internal/wire"
	"github.com/pchave/agentmarket/tui/styles"
)

// TapePanel shows the most recent trades, newest first.
type TapePanel struct {
	trades []wire.TradeNotice
	rows   int
}

// NewTapePanel creates a tape showing up to rows trades.
func NewTapePanel(rows int) *TapePanel {
	if rows <= 0 {
		rows = 10
	}
	return &TapePanel{rows: rows}
}

// SetTrades replaces the displayed tape.
func (p *TapePanel) SetTrades(trades []wire.TradeNotice) { p.trades = trades }

// View renders the panel.
func (p *TapePanel) View() string {
	var content strings.Builder
	content.WriteString(styles.TitleStyle.Render("Trades"))
	content.WriteString("\n")
	content.WriteString(styles.HeaderStyle.Render(
		fmt.Sprintf("%-4s %6s %10s  %s", "Side", "Qty", "Price", "Trader")))
	content.WriteString("\n")

	if len(p.trades) == 0 {
		content.WriteString(styles.MutedStyle.Render("no trades yet"))
		return styles.PanelStyle.Render(content.String())
	}

	shown := p.trades
	if len(shown) > p.rows {
		shown = shown[len(shown)-p.rows:]
	}
	for i := len(shown) - 1; i >= 0; i-- {
		t := shown[i]
		style := styles.BuyStyle
		if t.Side == market.SideSell {
			style = styles.SellStyle
		}
		content.WriteString(style.Render(
			fmt.Sprintf("%-4s %6d %10s", t.Side, t.Quantity, t.Price.StringFixed(2))))
		content.WriteString(styles.MutedStyle.Render("  " + t.TraderID))
		if i > 0 {
			content.WriteString("\n")
		}
	}
	return styles.PanelStyle.Render(content.String())
}
