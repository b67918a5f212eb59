package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testQuote = Quote{Bid: 99.95, Ask: 100.05, BidSize: 500, AskSize: 400}

func newSim() *Simulator {
	return NewSimulator(DefaultLatencyModel())
}

func marketOrder(side Side, qty float64) *Order {
	return &Order{ID: "ord-1", Symbol: "BTC-USD", Side: side, Type: TypeMarket, Quantity: qty}
}

func TestMarketOrderCrossesSpread(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("buy fills at ask", func(t *testing.T) {
		order := marketOrder(SideBuy, 100)
		res, err := newSim().SimulateQuote(order, testQuote, now)
		require.NoError(t, err)
		require.True(t, res.Filled)
		assert.InDelta(t, 100.05, res.Fill.Price, 1e-12)
		assert.Equal(t, StatusFilled, order.Status)
		// Half-spread slippage versus mid
		assert.InDelta(t, 5.0, res.SlippageBps, 0.1)
	})

	t.Run("sell fills at bid", func(t *testing.T) {
		order := marketOrder(SideSell, 100)
		res, err := newSim().SimulateQuote(order, testQuote, now)
		require.NoError(t, err)
		require.True(t, res.Filled)
		assert.InDelta(t, 99.95, res.Fill.Price, 1e-12)
		assert.InDelta(t, 5.0, res.SlippageBps, 0.1)
	})
}

func TestFillTimestampIncludesLatency(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	latency := LatencyModel{Signal: 10 * time.Millisecond, Network: 30 * time.Millisecond, Exchange: 20 * time.Millisecond}
	sim := NewSimulator(latency)

	order := marketOrder(SideBuy, 10)
	res, err := sim.SimulateQuote(order, testQuote, now)
	require.NoError(t, err)
	require.True(t, res.Filled)

	assert.Equal(t, now.Add(60*time.Millisecond), res.Fill.Timestamp)
	assert.False(t, res.Fill.Timestamp.Before(order.SubmittedAt.Add(latency.Total())))
}

func TestMarketOrderPartialFill(t *testing.T) {
	order := marketOrder(SideBuy, 1000)
	res, err := newSim().SimulateQuote(order, testQuote, time.Now())
	require.NoError(t, err)
	require.True(t, res.Filled)
	assert.True(t, res.Partial)
	assert.InDelta(t, 400, res.Fill.Quantity, 1e-12)
	assert.Equal(t, StatusPartialFill, order.Status)
}

func TestLimitOrderConservativeFill(t *testing.T) {
	now := time.Now()

	t.Run("buy limit fills only when bid reaches limit", func(t *testing.T) {
		order := &Order{ID: "ord-2", Symbol: "BTC-USD", Side: SideBuy, Type: TypeLimit,
			Quantity: 50, LimitPrice: 99.90}
		res, err := newSim().SimulateQuote(order, testQuote, now)
		require.NoError(t, err)
		assert.False(t, res.Filled)
		assert.Equal(t, StatusExpired, order.Status)

		// Bid trades through the limit
		order2 := &Order{ID: "ord-3", Symbol: "BTC-USD", Side: SideBuy, Type: TypeLimit,
			Quantity: 50, LimitPrice: 99.95}
		res, err = newSim().SimulateQuote(order2, testQuote, now)
		require.NoError(t, err)
		require.True(t, res.Filled)
		assert.InDelta(t, 99.95, res.Fill.Price, 1e-12)
	})

	t.Run("sell limit fills only when ask reaches limit", func(t *testing.T) {
		order := &Order{ID: "ord-4", Symbol: "BTC-USD", Side: SideSell, Type: TypeLimit,
			Quantity: 50, LimitPrice: 100.10}
		res, err := newSim().SimulateQuote(order, testQuote, now)
		require.NoError(t, err)
		assert.False(t, res.Filled)

		order2 := &Order{ID: "ord-5", Symbol: "BTC-USD", Side: SideSell, Type: TypeLimit,
			Quantity: 50, LimitPrice: 100.05}
		res, err = newSim().SimulateQuote(order2, testQuote, now)
		require.NoError(t, err)
		require.True(t, res.Filled)
		assert.InDelta(t, 100.05, res.Fill.Price, 1e-12)
	})
}

func TestFOKCancelsOnInsufficientSize(t *testing.T) {
	order := &Order{ID: "ord-6", Symbol: "BTC-USD", Side: SideBuy, Type: TypeFOK,
		Quantity: 1000, LimitPrice: 100.00}
	res, err := newSim().SimulateQuote(order, testQuote, time.Now())
	require.NoError(t, err)
	assert.False(t, res.Filled)
	assert.Equal(t, StatusCancelled, order.Status)
}

func TestInvalidOrdersRejected(t *testing.T) {
	cases := []struct {
		name  string
		order *Order
	}{
		{"zero quantity", &Order{ID: "b1", Side: SideBuy, Type: TypeMarket, Quantity: 0}},
		{"negative quantity", &Order{ID: "b2", Side: SideSell, Type: TypeMarket, Quantity: -5}},
		{"limit without price", &Order{ID: "b3", Side: SideBuy, Type: TypeLimit, Quantity: 10}},
		{"unknown side", &Order{ID: "b4", Side: "SHORT", Type: TypeMarket, Quantity: 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := newSim().SimulateQuote(tc.order, testQuote, time.Now())
			var invalidErr *InvalidOrderError
			require.ErrorAs(t, err, &invalidErr)
			assert.False(t, res.Filled)
			assert.Equal(t, StatusRejected, tc.order.Status)
		})
	}
}

func TestBookWalk(t *testing.T) {
	book := Book{
		Bids: []BookLevel{{Price: 99.95, Size: 100}, {Price: 99.90, Size: 200}},
		Asks: []BookLevel{{Price: 100.05, Size: 100}, {Price: 100.10, Size: 200}, {Price: 100.20, Size: 500}},
	}

	t.Run("walks levels and returns VWAP", func(t *testing.T) {
		order := marketOrder(SideBuy, 250)
		res, err := newSim().SimulateBook(order, book, time.Now())
		require.NoError(t, err)
		require.True(t, res.Filled)
		assert.False(t, res.Partial)

		// 100@100.05 + 150@100.10
		expected := (100*100.05 + 150*100.10) / 250
		assert.InDelta(t, expected, res.Fill.Price, 1e-9)
	})

	t.Run("partial fill past available depth", func(t *testing.T) {
		order := marketOrder(SideSell, 500)
		res, err := newSim().SimulateBook(order, book, time.Now())
		require.NoError(t, err)
		require.True(t, res.Filled)
		assert.True(t, res.Partial)
		assert.InDelta(t, 300, res.Fill.Quantity, 1e-12)
	})

	t.Run("limit stops at limit price", func(t *testing.T) {
		order := &Order{ID: "ord-7", Symbol: "BTC-USD", Side: SideBuy, Type: TypeIOC,
			Quantity: 250, LimitPrice: 100.05}
		res, err := newSim().SimulateBook(order, book, time.Now())
		require.NoError(t, err)
		require.True(t, res.Filled)
		assert.True(t, res.Partial)
		assert.InDelta(t, 100, res.Fill.Quantity, 1e-12)
		assert.InDelta(t, 100.05, res.Fill.Price, 1e-12)
	})

	t.Run("empty side rejected", func(t *testing.T) {
		order := marketOrder(SideBuy, 10)
		res, err := newSim().SimulateBook(order, Book{Bids: book.Bids}, time.Now())
		require.NoError(t, err)
		assert.False(t, res.Filled)
	})
}

func TestExecutionIDsDeterministic(t *testing.T) {
	assert.Equal(t, executionID("ord-1", 1), executionID("ord-1", 1))
	assert.NotEqual(t, executionID("ord-1", 1), executionID("ord-1", 2))
	assert.NotEqual(t, executionID("ord-1", 1), executionID("ord-2", 1))
}
