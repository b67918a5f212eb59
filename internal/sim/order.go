// Package sim models venue execution for the backtest engine: order and
// fill types, a quote-based simulator and an order-book walking simulator,
// plus the latency model that delays fills past submission. The simulator is
// deliberately conservative; when the true outcome is uncertain it picks the
// assumption that overstates cost.
package sim

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType selects execution semantics.
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
	TypeIOC    OrderType = "IOC"
	TypeFOK    OrderType = "FOK"
)

// OrderStatus tracks the order lifecycle:
// PENDING -> SUBMITTED -> {PARTIAL_FILL -> FILLED | CANCELLED | REJECTED | EXPIRED}.
type OrderStatus string

const (
	StatusPending     OrderStatus = "PENDING"
	StatusSubmitted   OrderStatus = "SUBMITTED"
	StatusPartialFill OrderStatus = "PARTIAL_FILL"
	StatusFilled      OrderStatus = "FILLED"
	StatusCancelled   OrderStatus = "CANCELLED"
	StatusRejected    OrderStatus = "REJECTED"
	StatusExpired     OrderStatus = "EXPIRED"
)

// InvalidOrderError reports an order rejected by validation. The engine
// records the rejection and continues; it is never fatal to a run.
type InvalidOrderError struct {
	OrderID string
	Reason  string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order %s: %s", e.OrderID, e.Reason)
}

// Order is a single order request. It is owned exclusively by the engine
// during a run; the simulator mutates status and fill fields in place.
type Order struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Type        OrderType `json:"type"`
	Quantity    float64   `json:"quantity"`
	LimitPrice  float64   `json:"limit_price,omitempty"`
	TimeInForce string    `json:"time_in_force,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`

	Status         OrderStatus `json:"status"`
	FilledQuantity float64     `json:"filled_quantity"`
	AvgFillPrice   float64     `json:"avg_fill_price"`
	Commission     float64     `json:"commission"`
}

// Validate rejects zero or negative quantity and limit-family orders missing
// a limit price.
func (o *Order) Validate() error {
	if o.Quantity <= 0 {
		return &InvalidOrderError{OrderID: o.ID,
			Reason: fmt.Sprintf("quantity must be > 0, got %.8f", o.Quantity)}
	}
	switch o.Side {
	case SideBuy, SideSell:
	default:
		return &InvalidOrderError{OrderID: o.ID, Reason: fmt.Sprintf("unknown side %q", o.Side)}
	}
	switch o.Type {
	case TypeMarket:
	case TypeLimit, TypeIOC, TypeFOK:
		if o.LimitPrice <= 0 {
			return &InvalidOrderError{OrderID: o.ID,
				Reason: fmt.Sprintf("%s order requires a positive limit price", o.Type)}
		}
	default:
		return &InvalidOrderError{OrderID: o.ID, Reason: fmt.Sprintf("unknown order type %q", o.Type)}
	}
	return nil
}

// Fill is an immutable record of one execution event.
type Fill struct {
	OrderID     string    `json:"order_id"`
	ExecutionID string    `json:"execution_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	Commission  float64   `json:"commission"`
	Timestamp   time.Time `json:"timestamp"`
}

// executionID derives a deterministic UUID from the order identity and a
// per-order sequence number. Backtest runs must be reproducible byte for
// byte, so random IDs are off the table.
func executionID(orderID string, seq int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", orderID, seq))).String()
}

// SignedQuantity returns the fill quantity signed by side.
func (f Fill) SignedQuantity() float64 {
	if f.Side == SideSell {
		return -f.Quantity
	}
	return f.Quantity
}

// Notional returns quantity times price.
func (f Fill) Notional() float64 {
	return f.Quantity * f.Price
}
