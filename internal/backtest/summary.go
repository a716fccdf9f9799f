package backtest

import (
	"fmt"
	"strings"
)

// Summary renders the result as the boxed report printed by the CLIs.
func (r Result) Summary() string {
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "║  %-18s %-16s ║\n", label, value)
	}

	b.WriteString("╔══════════════════════════════════════╗\n")
	b.WriteString("║        BACKTEST COMPLETE             ║\n")
	b.WriteString("╠══════════════════════════════════════╣\n")
	if r.Strategy != "" {
		row("Strategy:", truncate(r.Strategy, 16))
	}
	row("Bars evaluated:", fmt.Sprintf("%d", len(r.Equity)))
	row("Initial capital:", fmt.Sprintf("%.2f", r.Config.InitialCapital))
	row("Final equity:", fmt.Sprintf("%.2f", r.Metrics.FinalEquity))
	row("Total return:", fmt.Sprintf("%.2f%%", r.Metrics.TotalReturnPct))
	row("Trades:", fmt.Sprintf("%d", r.Metrics.TradeCount))
	row("Win rate:", fmt.Sprintf("%.2f%%", r.Metrics.WinRatePct))
	row("Max drawdown:", fmt.Sprintf("%.2f%%", r.Metrics.MaxDrawdownPct))
	row("Sharpe ratio:", fmt.Sprintf("%.4f", r.Metrics.SharpeRatio))
	row("Position:", r.Position.State.String())
	b.WriteString("╚══════════════════════════════════════╝\n")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
