package model

// Position is the account's exposure on one symbol. Qty is signed: positive
// for long, negative for short, zero when flat.
type Position struct {
	Symbol      string
	Qty         float64
	EntryPrice  float64
	Leverage    int
	MarginMode  string
	RealizedPnl float64
}

// IsFlat reports whether there is no exposure.
func (p Position) IsFlat() bool {
	return p.Qty == 0
}

// Side returns the book side holding the exposure. Flat positions report
// an unavailable side.
func (p Position) Side() OrderSide {
	switch {
	case p.Qty > 0:
		return OrderSideBuy
	case p.Qty < 0:
		return OrderSideSell
	default:
		return _order_side_beg
	}
}

// AbsQty returns the unsigned position size.
func (p Position) AbsQty() float64 {
	if p.Qty < 0 {
		return -p.Qty
	}
	return p.Qty
}
