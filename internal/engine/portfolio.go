package engine

import (
	"time"

	"github.com/autotrader/backtest/internal/sim"
)

// EquityPoint is one mark-to-market observation on the equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Portfolio is the mutable aggregate owned by a single engine run: cash,
// signed positions, the append-only fill log, and the equity curve. It is
// never shared across concurrent runs.
type Portfolio struct {
	Cash        float64            `json:"cash"`
	Positions   map[string]float64 `json:"positions"`
	TradeLog    []sim.Fill         `json:"trade_log"`
	EquityCurve []EquityPoint      `json:"equity_curve"`
}

// NewPortfolio creates a portfolio with the given starting cash.
func NewPortfolio(initialCash float64) *Portfolio {
	return &Portfolio{
		Cash:      initialCash,
		Positions: make(map[string]float64),
	}
}

// Apply books a fill: cash moves by the signed notional plus commission,
// the position moves by the signed quantity, and the fill is appended to
// the trade log.
func (p *Portfolio) Apply(fill sim.Fill) {
	signedQty := fill.SignedQuantity()
	p.Cash -= signedQty * fill.Price
	p.Cash -= fill.Commission
	p.Positions[fill.Symbol] += signedQty
	p.TradeLog = append(p.TradeLog, fill)
}

// Position returns the signed quantity held in symbol.
func (p *Portfolio) Position(symbol string) float64 {
	return p.Positions[symbol]
}

// TotalValue marks every position at the supplied prices and adds cash.
func (p *Portfolio) TotalValue(prices map[string]float64) float64 {
	total := p.Cash
	for symbol, qty := range p.Positions {
		total += qty * prices[symbol]
	}
	return total
}

// MarkToMarket appends an equity observation at ts. The curve is strictly
// time-ordered and append-only.
func (p *Portfolio) MarkToMarket(ts time.Time, prices map[string]float64) {
	p.EquityCurve = append(p.EquityCurve, EquityPoint{
		Timestamp: ts,
		Value:     p.TotalValue(prices),
	})
}
