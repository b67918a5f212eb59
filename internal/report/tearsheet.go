package report

import (
	"fmt"
	"strings"
	"time"
)

// TearSheet renders the metrics as a human-readable text report grouped by
// concern. The layout is stable so diffs between runs stay readable.
func TearSheet(m *Metrics) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Performance Tear Sheet: %s\n", m.Symbol)
	fmt.Fprintf(&b, "Run %s | %s to %s\n\n",
		m.RunID,
		m.StartTime.Format("2006-01-02 15:04"),
		m.EndTime.Format("2006-01-02 15:04"))

	b.WriteString("Returns\n")
	fmt.Fprintf(&b, "  Total Return        %10.2f%%\n", m.TotalReturn*100)
	fmt.Fprintf(&b, "  Annualized Return   %10.2f%%\n", m.AnnualizedReturn*100)
	fmt.Fprintf(&b, "  Initial Equity      %12.2f\n", m.InitialEquity)
	fmt.Fprintf(&b, "  Final Equity        %12.2f\n\n", m.FinalEquity)

	b.WriteString("Risk-Adjusted\n")
	fmt.Fprintf(&b, "  Volatility (ann.)   %10.2f%%\n", m.Volatility*100)
	fmt.Fprintf(&b, "  Sharpe Ratio        %10.2f\n", m.Sharpe)
	fmt.Fprintf(&b, "  Sortino Ratio       %10.2f\n", m.Sortino)
	fmt.Fprintf(&b, "  Calmar Ratio        %10.2f\n", m.Calmar)
	fmt.Fprintf(&b, "  Skewness            %10.2f\n", m.Skewness)
	fmt.Fprintf(&b, "  Excess Kurtosis     %10.2f\n", m.Kurtosis)
	fmt.Fprintf(&b, "  VaR 95%%             %10.4f\n", m.VaR95)
	fmt.Fprintf(&b, "  CVaR 95%%            %10.4f\n\n", m.CVaR95)

	b.WriteString("Drawdown\n")
	fmt.Fprintf(&b, "  Max Drawdown        %10.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(&b, "  Drawdown Duration   %10s\n\n", formatDuration(m.MaxDrawdownDuration))

	b.WriteString("Trading\n")
	fmt.Fprintf(&b, "  Fills               %10d\n", m.NumTrades)
	fmt.Fprintf(&b, "  Round Trips         %10d\n", m.RoundTrips)
	fmt.Fprintf(&b, "  Win Rate            %10.2f%%\n", m.WinRate*100)
	fmt.Fprintf(&b, "  Avg Win             %12.2f\n", m.AvgWin)
	fmt.Fprintf(&b, "  Avg Loss            %12.2f\n", m.AvgLoss)
	fmt.Fprintf(&b, "  Profit Factor       %10.2f\n", m.ProfitFactor)
	fmt.Fprintf(&b, "  Expectancy          %12.2f\n", m.Expectancy)
	fmt.Fprintf(&b, "  Rejected Orders     %10d\n\n", m.RejectedOrders)

	b.WriteString("Cost Breakdown\n")
	fmt.Fprintf(&b, "  Commission          %12.2f\n", m.Costs.Commission)
	fmt.Fprintf(&b, "  Slippage            %12.2f\n", m.Costs.Slippage)
	fmt.Fprintf(&b, "  Spread              %12.2f\n", m.Costs.Spread)
	fmt.Fprintf(&b, "  Overnight           %12.2f\n", m.Costs.Overnight)
	fmt.Fprintf(&b, "  Total               %12.2f\n", m.Costs.Total())

	return b.String()
}

func formatDuration(d time.Duration) string {
	if d >= 24*time.Hour {
		return fmt.Sprintf("%.1fd", d.Hours()/24)
	}
	return d.Round(time.Minute).String()
}
