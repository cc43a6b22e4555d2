package model

import "time"

// DepthLevel is one (price, quantity) entry of an order book side.
type DepthLevel struct {
	Price    float64
	Quantity float64
}

// Depth is a wholesale order-book snapshot. Bids are sorted descending and
// asks ascending before the snapshot is stored.
type Depth struct {
	Symbol    string
	Bids      []DepthLevel
	Asks      []DepthLevel
	Timestamp time.Time
}

// MidPrice derives the reference price of the snapshot. A one-sided book
// falls back to the best price of the remaining side. The second return is
// false when both sides are empty.
func (d Depth) MidPrice() (float64, bool) {
	switch {
	case len(d.Bids) != 0 && len(d.Asks) != 0:
		return (d.Bids[0].Price + d.Asks[0].Price) / 2, true
	case len(d.Bids) != 0:
		return d.Bids[0].Price, true
	case len(d.Asks) != 0:
		return d.Asks[0].Price, true
	default:
		return 0, false
	}
}

// SpreadBps returns the top-of-book spread in basis points relative to mid.
func (d Depth) SpreadBps() (float64, bool) {
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return 0, false
	}

	mid, ok := d.MidPrice()
	if !ok || mid <= 0 {
		return 0, false
	}

	return (d.Asks[0].Price - d.Bids[0].Price) / mid * 10000, true
}
