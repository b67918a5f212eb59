package cost

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelThreshold(t *testing.T) {
	m, err := NewModel(2, 4, 1, 1, 1)
	require.NoError(t, err)

	// Taker: (4+1+1) one way, doubled, plus 1bp min profit
	assert.InDelta(t, 6.0, m.TotalCostBps(false), 1e-12)
	assert.InDelta(t, 12.0, m.RoundTripCostBps(false), 1e-12)
	assert.InDelta(t, 13.0, m.ProfitableThresholdBps(false), 1e-12)

	// Maker: (2+1+1) one way
	assert.InDelta(t, 4.0, m.TotalCostBps(true), 1e-12)
	assert.InDelta(t, 9.0, m.ProfitableThresholdBps(true), 1e-12)
}

func TestModelRejectsNegativeInputs(t *testing.T) {
	cases := []struct {
		name                                  string
		maker, taker, spread, slip, minProfit float64
	}{
		{"negative maker", -1, 4, 1, 1, 1},
		{"negative taker", 2, -4, 1, 1, 1},
		{"negative spread", 2, 4, -1, 1, 1},
		{"negative slippage", 2, 4, 1, -1, 1},
		{"negative min profit", 2, 4, 1, 1, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewModel(tc.maker, tc.taker, tc.spread, tc.slip, tc.minProfit)
			var cfgErr *ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestThresholdMonotonicity(t *testing.T) {
	base := DefaultModel()
	bump := 5.0

	perturb := func(f func(*Model)) Model {
		m := base
		f(&m)
		return m
	}

	cases := []struct {
		name string
		m    Model
	}{
		{"maker fee", perturb(func(m *Model) { m.MakerFeeBps += bump })},
		{"taker fee", perturb(func(m *Model) { m.TakerFeeBps += bump })},
		{"spread", perturb(func(m *Model) { m.SpreadCostBps += bump })},
		{"slippage", perturb(func(m *Model) { m.SlippageBps += bump })},
		{"min profit", perturb(func(m *Model) { m.MinProfitBps += bump })},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, isMaker := range []bool{true, false} {
				assert.GreaterOrEqual(t,
					tc.m.ProfitableThresholdBps(isMaker),
					base.ProfitableThresholdBps(isMaker),
					"threshold must not decrease when %s increases (maker=%v)", tc.name, isMaker)
			}
		})
	}
}

func TestFeeModelLookup(t *testing.T) {
	fm := NewFeeModel(DefaultFeeSchedule())

	assert.InDelta(t, 10.0, fm.FeeBps("binance", "vip0", false), 1e-12)
	assert.InDelta(t, 9.0, fm.FeeBps("binance", "vip1", true), 1e-12)

	t.Run("unknown tier falls back to worst tier on exchange", func(t *testing.T) {
		assert.InDelta(t, 26.0, fm.FeeBps("kraken", "mystery", false), 1e-12)
		assert.InDelta(t, 16.0, fm.FeeBps("kraken", "mystery", true), 1e-12)
	})

	t.Run("unknown exchange falls back to worst tier anywhere", func(t *testing.T) {
		assert.InDelta(t, 60.0, fm.FeeBps("nyse", "any", false), 1e-12)
	})

	t.Run("commission converts to currency", func(t *testing.T) {
		// 10bps of 50,000 notional
		assert.InDelta(t, 50.0, fm.Commission(50000, "binance", "vip0", false), 1e-9)
		assert.InDelta(t, 50.0, fm.Commission(-50000, "binance", "vip0", false), 1e-9)
	})
}

func TestSlippageModels(t *testing.T) {
	t.Run("fixed", func(t *testing.T) {
		m, err := NewSlippageModel(SlippageConfig{Kind: "fixed", FixedBps: 3})
		require.NoError(t, err)
		assert.InDelta(t, 3.0, m.SlippageBps(1000, 1e6, 0.02), 1e-12)
	})

	t.Run("square root", func(t *testing.T) {
		m, err := NewSlippageModel(SlippageConfig{Kind: "square_root", Coefficient: 1})
		require.NoError(t, err)
		// k=1, sigma=2%, Q/V=1% -> 0.02*0.1*1e4 = 20bps
		assert.InDelta(t, 20.0, m.SlippageBps(10000, 1e6, 0.02), 1e-9)
		assert.Zero(t, m.SlippageBps(10000, 0, 0.02))
	})

	t.Run("linear", func(t *testing.T) {
		m, err := NewSlippageModel(SlippageConfig{Kind: "linear", Coefficient: 0.5})
		require.NoError(t, err)
		// 0.5 * 1% participation * 1e4 = 50bps
		assert.InDelta(t, 50.0, m.SlippageBps(10000, 1e6, 0.02), 1e-9)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := NewSlippageModel(SlippageConfig{Kind: "quadratic"})
		var cfgErr *ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

func TestSpreadCost(t *testing.T) {
	assert.InDelta(t, 5.0, SpreadCost(99.9, 100.1, 50), 1e-9)
	assert.Zero(t, SpreadCost(100.1, 99.9, 50))
	assert.InDelta(t, 10.0, HalfSpreadBps(99.9, 100.1), 0.01)
}

func TestOvernightCost(t *testing.T) {
	t.Run("crypto funding intervals", func(t *testing.T) {
		m, err := NewOvernightCostModel(OvernightConfig{
			AssetClass: AssetCrypto, Rate: 0.0001, FundingInterval: 8 * time.Hour,
		})
		require.NoError(t, err)
		// 24h hold = 3 funding intervals on 100k notional
		assert.InDelta(t, 30.0, m.Cost(100000, 24*time.Hour), 1e-9)
	})

	t.Run("equity daily borrow", func(t *testing.T) {
		m, err := NewOvernightCostModel(OvernightConfig{AssetClass: AssetEquity, Rate: 0.0002})
		require.NoError(t, err)
		assert.InDelta(t, 40.0, m.Cost(100000, 48*time.Hour), 1e-9)
		// Short notional pays too
		assert.InDelta(t, 40.0, m.Cost(-100000, 48*time.Hour), 1e-9)
	})

	t.Run("negative rate rejected", func(t *testing.T) {
		_, err := NewOvernightCostModel(OvernightConfig{AssetClass: AssetForex, Rate: -0.01})
		var cfgErr *ConfigError
		assert.ErrorAs(t, err, &cfgErr)
	})
}
