package cost

// SpreadCost returns the currency cost of crossing half the bid-ask spread
// for the given quantity. Crossing is the conservative assumption for any
// aggressive order.
func SpreadCost(bid, ask, quantity float64) float64 {
	if ask <= bid || quantity <= 0 {
		return 0
	}
	return (ask - bid) / 2 * quantity
}

// HalfSpreadBps returns half the quoted spread relative to the midpoint, in
// basis points.
func HalfSpreadBps(bid, ask float64) float64 {
	mid := (bid + ask) / 2
	if ask <= bid || mid <= 0 {
		return 0
	}
	return (ask - bid) / 2 / mid * 10000
}
