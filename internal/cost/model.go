// Package cost contains the transaction-cost models used on both sides of
// the pipeline: the labeling-side profitability threshold and the
// execution-side fee, slippage, spread and financing calculators. All cost
// components are non-negative and expressed in basis points or currency
// before aggregation.
package cost

import "fmt"

// ConfigError reports an invalid cost or simulator parameter. It is raised
// at construction time, never mid-run.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %s", e.Field, e.Reason)
}

// Model is the immutable labeling-side cost model. It answers one question:
// how far does a forward move have to travel, in basis points, before a
// round trip at these costs turns a profit.
type Model struct {
	MakerFeeBps   float64 `yaml:"maker_fee_bps" json:"maker_fee_bps"`     // Maker fee per side (default 2)
	TakerFeeBps   float64 `yaml:"taker_fee_bps" json:"taker_fee_bps"`     // Taker fee per side (default 4)
	SpreadCostBps float64 `yaml:"spread_cost_bps" json:"spread_cost_bps"` // Half-spread crossing cost per side
	SlippageBps   float64 `yaml:"slippage_bps" json:"slippage_bps"`       // Expected slippage per side
	MinProfitBps  float64 `yaml:"min_profit_bps" json:"min_profit_bps"`   // Required edge beyond costs (default 1)
}

// NewModel validates and constructs a cost model. Negative components are
// rejected.
func NewModel(makerFeeBps, takerFeeBps, spreadCostBps, slippageBps, minProfitBps float64) (Model, error) {
	m := Model{
		MakerFeeBps:   makerFeeBps,
		TakerFeeBps:   takerFeeBps,
		SpreadCostBps: spreadCostBps,
		SlippageBps:   slippageBps,
		MinProfitBps:  minProfitBps,
	}
	if err := m.Validate(); err != nil {
		return Model{}, err
	}
	return m, nil
}

// DefaultModel returns the documented defaults: 2bps maker, 4bps taker,
// 1bp spread, 1bp slippage, 1bp minimum profit.
func DefaultModel() Model {
	return Model{
		MakerFeeBps:   2,
		TakerFeeBps:   4,
		SpreadCostBps: 1,
		SlippageBps:   1,
		MinProfitBps:  1,
	}
}

// Validate checks that every component is non-negative.
func (m Model) Validate() error {
	for _, c := range []struct {
		name  string
		value float64
	}{
		{"maker_fee_bps", m.MakerFeeBps},
		{"taker_fee_bps", m.TakerFeeBps},
		{"spread_cost_bps", m.SpreadCostBps},
		{"slippage_bps", m.SlippageBps},
		{"min_profit_bps", m.MinProfitBps},
	} {
		if c.value < 0 {
			return &ConfigError{Field: c.name, Reason: fmt.Sprintf("must be >= 0, got %.4f", c.value)}
		}
	}
	return nil
}

// TotalCostBps returns the one-way cost: fee + slippage + spread crossing.
func (m Model) TotalCostBps(isMaker bool) float64 {
	fee := m.TakerFeeBps
	if isMaker {
		fee = m.MakerFeeBps
	}
	return fee + m.SlippageBps + m.SpreadCostBps
}

// RoundTripCostBps doubles the one-way cost: entry plus exit.
func (m Model) RoundTripCostBps(isMaker bool) float64 {
	return 2 * m.TotalCostBps(isMaker)
}

// ProfitableThresholdBps is the forward move required before a round trip
// clears costs and the minimum profit requirement. Monotonically
// non-decreasing in every cost component.
func (m Model) ProfitableThresholdBps(isMaker bool) float64 {
	return m.RoundTripCostBps(isMaker) + m.MinProfitBps
}
