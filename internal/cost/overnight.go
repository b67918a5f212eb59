package cost

import (
	"fmt"
	"math"
	"time"
)

// AssetClass selects the overnight financing convention.
type AssetClass string

const (
	AssetCrypto AssetClass = "crypto"
	AssetEquity AssetClass = "equity"
	AssetForex  AssetClass = "forex"
)

// OvernightConfig parameterizes financing cost for held positions.
type OvernightConfig struct {
	AssetClass      AssetClass    `yaml:"asset_class"`      // crypto | equity | forex
	Rate            float64       `yaml:"rate"`             // Per-interval rate as a fraction (e.g. 0.0001)
	FundingInterval time.Duration `yaml:"funding_interval"` // Crypto funding interval (default 8h)
}

// OvernightCostModel computes the financing drag on a held position. Crypto
// pays a funding rate every interval, equities pay daily borrow, forex pays
// a daily swap. All are pure functions of (notional, rate, hold duration).
type OvernightCostModel struct {
	cfg OvernightConfig
}

// NewOvernightCostModel validates and builds an overnight cost model.
func NewOvernightCostModel(cfg OvernightConfig) (*OvernightCostModel, error) {
	if cfg.Rate < 0 {
		return nil, &ConfigError{Field: "overnight.rate", Reason: "must be >= 0"}
	}
	switch cfg.AssetClass {
	case AssetCrypto, AssetEquity, AssetForex:
	case "":
		cfg.AssetClass = AssetCrypto
	default:
		return nil, &ConfigError{Field: "overnight.asset_class",
			Reason: fmt.Sprintf("unknown asset class %q", cfg.AssetClass)}
	}
	if cfg.FundingInterval <= 0 {
		cfg.FundingInterval = 8 * time.Hour
	}
	return &OvernightCostModel{cfg: cfg}, nil
}

// Cost returns the financing cost in currency for holding the given absolute
// notional for holdTime. Always non-negative.
func (m *OvernightCostModel) Cost(notional float64, holdTime time.Duration) float64 {
	if holdTime <= 0 {
		return 0
	}
	notional = math.Abs(notional)

	switch m.cfg.AssetClass {
	case AssetCrypto:
		intervals := holdTime.Hours() / m.cfg.FundingInterval.Hours()
		return notional * m.cfg.Rate * intervals
	case AssetEquity, AssetForex:
		days := holdTime.Hours() / 24
		return notional * m.cfg.Rate * days
	default:
		return 0
	}
}
