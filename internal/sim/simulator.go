package sim

import (
	"time"
)

// Quote is a point-in-time top-of-book snapshot.
type Quote struct {
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	BidSize   float64   `json:"bid_size"`
	AskSize   float64   `json:"ask_size"`
	Timestamp time.Time `json:"timestamp"`
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Book is a full depth snapshot: bids best-first descending, asks best-first
// ascending.
type Book struct {
	Bids      []BookLevel `json:"bids"`
	Asks      []BookLevel `json:"asks"`
	Timestamp time.Time   `json:"timestamp"`
}

// LatencyModel is the configurable delay between the signal and the venue
// acting on the order: signal-to-order, network transit, and exchange
// processing. Fills are never attributed earlier than submission plus the
// full latency.
type LatencyModel struct {
	Signal   time.Duration `yaml:"signal"`   // Decision-to-order delay (default 10ms)
	Network  time.Duration `yaml:"network"`  // Wire transit (default 30ms)
	Exchange time.Duration `yaml:"exchange"` // Matching-engine processing (default 20ms)
}

// DefaultLatencyModel returns the documented 10+30+20ms default.
func DefaultLatencyModel() LatencyModel {
	return LatencyModel{
		Signal:   10 * time.Millisecond,
		Network:  30 * time.Millisecond,
		Exchange: 20 * time.Millisecond,
	}
}

// Total returns the summed delay.
func (l LatencyModel) Total() time.Duration {
	return l.Signal + l.Network + l.Exchange
}

// FillResult is the outcome of one simulation call. When Filled is false the
// Fill pointer is nil and Reason says why.
type FillResult struct {
	Fill        *Fill   `json:"fill,omitempty"`
	Filled      bool    `json:"filled"`
	Partial     bool    `json:"partial"`
	SlippageBps float64 `json:"slippage_bps"` // Cost versus the quote midpoint
	Reason      string  `json:"reason,omitempty"`
}

// Simulator produces deterministic fills against quotes or book snapshots.
type Simulator struct {
	latency LatencyModel
}

// NewSimulator creates a simulator with the given latency model.
func NewSimulator(latency LatencyModel) *Simulator {
	return &Simulator{latency: latency}
}

// SimulateQuote fills an order against a top-of-book quote.
//
// Market orders cross the spread: buys lift the ask, sells hit the bid, with
// quantity capped at the displayed size (excess is a partial fill). Limit
// orders fill at the limit price only when the opposing quote reaches it:
// a buy limit needs bid >= limit, a sell limit needs ask <= limit. That is
// stricter than touch-based fills on purpose: it never assumes queue
// priority the order would not have had.
func (s *Simulator) SimulateQuote(order *Order, q Quote, now time.Time) (FillResult, error) {
	if err := order.Validate(); err != nil {
		order.Status = StatusRejected
		return FillResult{Reason: err.Error()}, err
	}
	order.Status = StatusSubmitted
	order.SubmittedAt = now
	fillTime := now.Add(s.latency.Total())
	mid := (q.Bid + q.Ask) / 2

	var price, available float64
	switch order.Type {
	case TypeMarket:
		if order.Side == SideBuy {
			price, available = q.Ask, q.AskSize
		} else {
			price, available = q.Bid, q.BidSize
		}
		if price <= 0 {
			order.Status = StatusRejected
			return FillResult{Reason: "no opposing quote"}, nil
		}
	case TypeLimit, TypeIOC, TypeFOK:
		if order.Side == SideBuy {
			if q.Bid < order.LimitPrice {
				return s.noFill(order, "bid never reached buy limit")
			}
			price, available = order.LimitPrice, q.BidSize
		} else {
			if q.Ask > order.LimitPrice {
				return s.noFill(order, "ask never reached sell limit")
			}
			price, available = order.LimitPrice, q.AskSize
		}
	}

	if available <= 0 {
		// Size-less quote: assume full fill at the quoted price. The price
		// already carries the spread cost, which is the conservative part.
		available = order.Quantity
	}

	qty := order.Quantity
	if qty > available {
		if order.Type == TypeFOK {
			return s.noFill(order, "insufficient size for fill-or-kill")
		}
		qty = available
	}

	return s.applyFill(order, qty, price, mid, fillTime), nil
}

// SimulateBook fills an order by walking price levels of a depth snapshot,
// consuming displayed size until the order is exhausted or depth runs out.
// The fill price is the volume-weighted average across consumed levels.
func (s *Simulator) SimulateBook(order *Order, book Book, now time.Time) (FillResult, error) {
	if err := order.Validate(); err != nil {
		order.Status = StatusRejected
		return FillResult{Reason: err.Error()}, err
	}
	order.Status = StatusSubmitted
	order.SubmittedAt = now
	fillTime := now.Add(s.latency.Total())

	levels := book.Asks
	if order.Side == SideSell {
		levels = book.Bids
	}
	if len(levels) == 0 {
		order.Status = StatusRejected
		return FillResult{Reason: "empty book side"}, nil
	}

	var mid float64
	if len(book.Bids) > 0 && len(book.Asks) > 0 {
		mid = (book.Bids[0].Price + book.Asks[0].Price) / 2
	} else {
		mid = levels[0].Price
	}

	remaining := order.Quantity
	var filledQty, notional float64
	for _, level := range levels {
		if remaining <= 0 {
			break
		}
		if !s.levelEligible(order, level.Price) {
			break
		}
		take := level.Size
		if take > remaining {
			take = remaining
		}
		filledQty += take
		notional += take * level.Price
		remaining -= take
	}

	if filledQty <= 0 {
		return s.noFill(order, "no eligible depth")
	}
	if remaining > 0 && order.Type == TypeFOK {
		return s.noFill(order, "insufficient depth for fill-or-kill")
	}

	vwap := notional / filledQty
	return s.applyFill(order, filledQty, vwap, mid, fillTime), nil
}

// levelEligible reports whether a book level may be consumed: market orders
// take any depth, limit-family orders stop at the limit price.
func (s *Simulator) levelEligible(order *Order, price float64) bool {
	if order.Type == TypeMarket {
		return true
	}
	if order.Side == SideBuy {
		return price <= order.LimitPrice
	}
	return price >= order.LimitPrice
}

func (s *Simulator) noFill(order *Order, reason string) (FillResult, error) {
	switch order.Type {
	case TypeIOC, TypeFOK:
		order.Status = StatusCancelled
	case TypeLimit:
		order.Status = StatusExpired
	default:
		order.Status = StatusCancelled
	}
	return FillResult{Reason: reason}, nil
}

func (s *Simulator) applyFill(order *Order, qty, price, mid float64, ts time.Time) FillResult {
	fill := &Fill{
		OrderID:     order.ID,
		ExecutionID: executionID(order.ID, 1),
		Symbol:      order.Symbol,
		Side:        order.Side,
		Quantity:    qty,
		Price:       price,
		Timestamp:   ts,
	}

	order.FilledQuantity = qty
	order.AvgFillPrice = price
	partial := qty < order.Quantity
	if partial {
		order.Status = StatusPartialFill
	} else {
		order.Status = StatusFilled
	}

	slippageBps := 0.0
	if mid > 0 {
		if order.Side == SideBuy {
			slippageBps = (price - mid) / mid * 10000
		} else {
			slippageBps = (mid - price) / mid * 10000
		}
	}

	return FillResult{
		Fill:        fill,
		Filled:      true,
		Partial:     partial,
		SlippageBps: slippageBps,
	}
}
