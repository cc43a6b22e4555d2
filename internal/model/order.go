package model

// Order is the normalized view of a resting exchange order.
type Order struct {
	ID          int64
	ClOrdID     string
	Symbol      string
	Side        OrderSide
	Status      OrderStatus
	Qty         float64
	Price       float64
	FillQty     float64
	TimeInForce string
	ReduceOnly  bool
}

// DeviationBps returns the absolute deviation of the order price from the
// reference price, expressed in basis points.
func (o Order) DeviationBps(reference float64) float64 {
	if reference <= 0 {
		return 0
	}

	diff := reference - o.Price
	if diff < 0 {
		diff = -diff
	}

	return diff / reference * 10000
}
