package cost

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// TierFees holds maker/taker rates for one volume tier.
type TierFees struct {
	MakerBps float64 `yaml:"maker_bps"`
	TakerBps float64 `yaml:"taker_bps"`
}

// ExchangeFees maps tier name to fee rates for one exchange.
type ExchangeFees struct {
	Tiers map[string]TierFees `yaml:"tiers"`
}

// FeeSchedule is the full exchange/tier fee lookup table.
type FeeSchedule struct {
	Exchanges map[string]ExchangeFees `yaml:"exchanges"`
}

// DefaultFeeSchedule returns spot fee tables for the supported venues.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		Exchanges: map[string]ExchangeFees{
			"binance": {Tiers: map[string]TierFees{
				"vip0": {MakerBps: 10, TakerBps: 10},
				"vip1": {MakerBps: 9, TakerBps: 10},
				"vip2": {MakerBps: 8, TakerBps: 9},
			}},
			"kraken": {Tiers: map[string]TierFees{
				"starter":      {MakerBps: 16, TakerBps: 26},
				"intermediate": {MakerBps: 14, TakerBps: 24},
				"pro":          {MakerBps: 10, TakerBps: 20},
			}},
			"coinbase": {Tiers: map[string]TierFees{
				"base":     {MakerBps: 40, TakerBps: 60},
				"advanced": {MakerBps: 25, TakerBps: 40},
			}},
		},
	}
}

// LoadFeeSchedule loads a fee table from a YAML file.
func LoadFeeSchedule(path string) (FeeSchedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("failed to read fee schedule: %w", err)
	}

	var schedule FeeSchedule
	if err := yaml.Unmarshal(data, &schedule); err != nil {
		return FeeSchedule{}, fmt.Errorf("failed to parse fee schedule YAML: %w", err)
	}

	if len(schedule.Exchanges) == 0 {
		return FeeSchedule{}, &ConfigError{Field: "fee_schedule", Reason: "no exchanges defined"}
	}
	for name, ex := range schedule.Exchanges {
		if len(ex.Tiers) == 0 {
			return FeeSchedule{}, &ConfigError{Field: "fee_schedule",
				Reason: fmt.Sprintf("exchange %s has no tiers", name)}
		}
		for tier, fees := range ex.Tiers {
			if fees.MakerBps < 0 || fees.TakerBps < 0 {
				return FeeSchedule{}, &ConfigError{Field: "fee_schedule",
					Reason: fmt.Sprintf("negative fee for %s/%s", name, tier)}
			}
		}
	}
	return schedule, nil
}

// FeeModel resolves (exchange, tier, maker/taker) to a basis-point fee.
type FeeModel struct {
	schedule FeeSchedule
}

// NewFeeModel creates a fee model over the given schedule.
func NewFeeModel(schedule FeeSchedule) *FeeModel {
	return &FeeModel{schedule: schedule}
}

// FeeBps returns the fee for the requested venue and tier. An unknown tier
// falls back to the most expensive tier on that exchange; an unknown
// exchange falls back to the most expensive tier anywhere. Overstating fees
// is the safe direction for a backtest.
func (f *FeeModel) FeeBps(exchange, tier string, isMaker bool) float64 {
	pick := func(fees TierFees) float64 {
		if isMaker {
			return fees.MakerBps
		}
		return fees.TakerBps
	}

	if ex, ok := f.schedule.Exchanges[exchange]; ok {
		if fees, ok := ex.Tiers[tier]; ok {
			return pick(fees)
		}
		return maxTierFee(ex, isMaker)
	}

	worst := 0.0
	for _, ex := range f.schedule.Exchanges {
		if v := maxTierFee(ex, isMaker); v > worst {
			worst = v
		}
	}
	return worst
}

// Commission converts the fee rate to currency for a given notional.
func (f *FeeModel) Commission(notional float64, exchange, tier string, isMaker bool) float64 {
	if notional < 0 {
		notional = -notional
	}
	return notional * f.FeeBps(exchange, tier, isMaker) / 10000
}

func maxTierFee(ex ExchangeFees, isMaker bool) float64 {
	worst := 0.0
	for _, fees := range ex.Tiers {
		v := fees.TakerBps
		if isMaker {
			v = fees.MakerBps
		}
		if v > worst {
			worst = v
		}
	}
	return worst
}
