package cost

import (
	"fmt"
	"math"
)

// SlippageModel estimates market-impact cost in basis points for an order of
// the given size. Implementations are interchangeable; callers select one at
// construction time and never branch on the concrete type.
type SlippageModel interface {
	// SlippageBps estimates impact for quantity traded against adv (average
	// daily volume in the same units) at the given per-period volatility
	// (fractional, e.g. 0.02 for 2%).
	SlippageBps(quantity, adv, volatility float64) float64
	Name() string
}

// SlippageConfig selects and parameterizes a slippage model.
type SlippageConfig struct {
	Kind        string  `yaml:"kind"`        // fixed | square_root | linear
	FixedBps    float64 `yaml:"fixed_bps"`   // Used by kind=fixed
	Coefficient float64 `yaml:"coefficient"` // Impact coefficient for square_root/linear
}

// NewSlippageModel builds the configured slippage model.
func NewSlippageModel(cfg SlippageConfig) (SlippageModel, error) {
	switch cfg.Kind {
	case "", "fixed":
		if cfg.FixedBps < 0 {
			return nil, &ConfigError{Field: "slippage.fixed_bps", Reason: "must be >= 0"}
		}
		return &FixedSlippage{Bps: cfg.FixedBps}, nil
	case "square_root":
		if cfg.Coefficient < 0 {
			return nil, &ConfigError{Field: "slippage.coefficient", Reason: "must be >= 0"}
		}
		return &SquareRootImpact{Coefficient: cfg.Coefficient}, nil
	case "linear":
		if cfg.Coefficient < 0 {
			return nil, &ConfigError{Field: "slippage.coefficient", Reason: "must be >= 0"}
		}
		return &LinearImpact{Coefficient: cfg.Coefficient}, nil
	default:
		return nil, &ConfigError{Field: "slippage.kind",
			Reason: fmt.Sprintf("unknown model %q (want fixed, square_root or linear)", cfg.Kind)}
	}
}

// FixedSlippage charges a flat basis-point cost regardless of size.
type FixedSlippage struct {
	Bps float64
}

func (m *FixedSlippage) SlippageBps(quantity, adv, volatility float64) float64 {
	return m.Bps
}

func (m *FixedSlippage) Name() string { return "fixed" }

// SquareRootImpact implements the Almgren-Chriss style square-root law:
// impact = k * sigma * sqrt(Q/V), returned in basis points.
type SquareRootImpact struct {
	Coefficient float64
}

func (m *SquareRootImpact) SlippageBps(quantity, adv, volatility float64) float64 {
	if adv <= 0 || quantity <= 0 {
		return 0
	}
	return m.Coefficient * volatility * math.Sqrt(quantity/adv) * 10000
}

func (m *SquareRootImpact) Name() string { return "square_root" }

// LinearImpact charges impact proportional to participation: k * (Q/V).
type LinearImpact struct {
	Coefficient float64
}

func (m *LinearImpact) SlippageBps(quantity, adv, volatility float64) float64 {
	if adv <= 0 || quantity <= 0 {
		return 0
	}
	return m.Coefficient * (quantity / adv) * 10000
}

func (m *LinearImpact) Name() string { return "linear" }
