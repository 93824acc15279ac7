package panels

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pchave/agentmarket/internal/market/ledger"
	"github.com/pchave/agentmarket/tui/styles"
)

// LeaderboardPanel ranks trader portfolios by mark-to-market equity.
type LeaderboardPanel struct {
	symbol     string
	portfolios []ledger.Portfolio
	mid        decimal.Decimal
	rows       int
}

// NewLeaderboardPanel creates a leaderboard for the traded symbol.
func NewLeaderboardPanel(symbol string, rows int) *LeaderboardPanel {
	if rows <= 0 {
		rows = 8
	}
	return &LeaderboardPanel{symbol: symbol, rows: rows}
}

// SetPortfolios replaces the displayed accounts; mid prices the share
// positions.
func (p *LeaderboardPanel) SetPortfolios(portfolios []ledger.Portfolio, mid decimal.Decimal) {
	p.portfolios = portfolios
	p.mid = mid
}

// View renders the panel.
func (p *LeaderboardPanel) View() string {
	var content strings.Builder
	content.WriteString(styles.TitleStyle.Render("Portfolios"))
	content.WriteString("\n")
	content.WriteString(styles.HeaderStyle.Render(
		fmt.Sprintf("%-14s %12s %8s %12s", "Trader", "Cash", "Shares", "Equity")))
	content.WriteString("\n")

	if len(p.portfolios) == 0 {
		content.WriteString(styles.MutedStyle.Render("no accounts yet"))
		return styles.PanelStyle.Render(content.String())
	}

	type row struct {
		name   string
		cash   decimal.Decimal
		shares int64
		equity decimal.Decimal
	}
	rows := make([]row, 0, len(p.portfolios))
	for _, pf := range p.portfolios {
		shares := pf.Shares[p.symbol]
		equity := pf.Cash.Add(p.mid.Mul(decimal.NewFromInt(shares)))
		rows = append(rows, row{name: pf.Owner.Name, cash: pf.Cash, shares: shares, equity: equity})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].equity.GreaterThan(rows[j].equity) })

	shown := rows
	if len(shown) > p.rows {
		shown = shown[:p.rows]
	}
	for i, r := range shown {
		content.WriteString(styles.RowStyle.Render(
			fmt.Sprintf("%-14s %12s %8d %12s",
				r.name, r.cash.StringFixed(2), r.shares, r.equity.StringFixed(2))))
		if i < len(shown)-1 {
			content.WriteString("\n")
		}
	}
	return styles.PanelStyle.Render(content.String())
}
