package standx

import (
	"fmt"
	"strconv"

	"main/internal/model"

	"github.com/yanun0323/decimal"
)

func toFloat(d decimal.Decimal) float64 {
	f, err := strconv.ParseFloat(d.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

// APIError is a business rejection from the trading API. It is never
// retried; the owning loop logs it and waits for its next evaluation.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status=%d, body=%s", e.Status, e.Body)
}

// ResponseOrderAction answers new_order and cancel_order calls. The venue
// accepts asynchronously; the push channel delivers the real outcome.
type ResponseOrderAction struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	OrderID   int64  `json:"order_id"`
}

// ResponseOpenOrders wraps the open-order list.
type ResponseOpenOrders struct {
	Result []ResponseOrder `json:"result"`
}

// ResponseOrder is one order row of a query response.
type ResponseOrder struct {
	ID          int64           `json:"id"`
	ClOrdID     string          `json:"cl_ord_id"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Status      string          `json:"status"`
	Qty         decimal.Decimal `json:"qty"`
	Price       decimal.Decimal `json:"price"`
	FillQty     decimal.Decimal `json:"fill_qty"`
	TimeInForce string          `json:"time_in_force"`
	ReduceOnly  bool            `json:"reduce_only"`
}

// ResponsePosition is one position row of query_positions.
type ResponsePosition struct {
	Symbol      string          `json:"symbol"`
	Qty         decimal.Decimal `json:"qty"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	Leverage    decimal.Decimal `json:"leverage"`
	MarginMode  string          `json:"margin_mode"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
}

// ResponseSymbolPrice is the symbol price snapshot.
type ResponseSymbolPrice struct {
	Symbol     string          `json:"symbol"`
	IndexPrice decimal.Decimal `json:"index_price"`
	MarkPrice  decimal.Decimal `json:"mark_price"`
	LastPrice  decimal.Decimal `json:"last_price"`
	MidPrice   decimal.Decimal `json:"mid_price"`
}

func (r ResponseOrder) Normalize() model.Order {
	return model.Order{
		ID:          r.ID,
		ClOrdID:     r.ClOrdID,
		Symbol:      r.Symbol,
		Side:        model.ParseOrderSide(r.Side),
		Status:      model.ParseOrderStatus(r.Status),
		Qty:         toFloat(r.Qty),
		Price:       toFloat(r.Price),
		FillQty:     toFloat(r.FillQty),
		TimeInForce: r.TimeInForce,
		ReduceOnly:  r.ReduceOnly,
	}
}

func (r ResponsePosition) Normalize() model.Position {
	return model.Position{
		Symbol:      r.Symbol,
		Qty:         toFloat(r.Qty),
		EntryPrice:  toFloat(r.EntryPrice),
		Leverage:    int(toFloat(r.Leverage)),
		MarginMode:  r.MarginMode,
		RealizedPnl: toFloat(r.RealizedPnl),
	}
}
