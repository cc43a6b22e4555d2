package standx

import (
	"encoding/json"
	"strconv"
	"time"

	"main/internal/model"

	"github.com/yanun0323/decimal"
)

const _standxBaseWsUrl = "wss://perps.standx.com/ws-stream/v1"

const (
	ChannelDepthBook = "depth_book"
	ChannelOrder     = "order"
	ChannelPosition  = "position"
	ChannelAuth      = "auth"
)

// Envelope is the outer frame of every push message.
type Envelope struct {
	Seq     int64           `json:"seq"`
	Channel string          `json:"channel"`
	Symbol  string          `json:"symbol"`
	Data    json.RawMessage `json:"data"`
}

// DepthPayload carries a wholesale order book snapshot. Levels arrive as
// [price, quantity] string pairs.
type DepthPayload struct {
	Bids [][]decimal.Decimal `json:"bids"`
	Asks [][]decimal.Decimal `json:"asks"`
	Time int64               `json:"time"`
}

// OrderPayload is one order lifecycle push.
type OrderPayload struct {
	ID           int64           `json:"id"`
	ClOrdID      string          `json:"cl_ord_id"`
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	Status       string          `json:"status"`
	Qty          decimal.Decimal `json:"qty"`
	Price        decimal.Decimal `json:"price"`
	FillQty      decimal.Decimal `json:"fill_qty"`
	FillAvgPrice decimal.Decimal `json:"fill_avg_price"`
	TimeInForce  string          `json:"time_in_force"`
	ReduceOnly   bool            `json:"reduce_only"`
}

// PositionPayload is one position push.
type PositionPayload struct {
	ID          int64           `json:"id"`
	Symbol      string          `json:"symbol"`
	Qty         decimal.Decimal `json:"qty"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	Leverage    decimal.Decimal `json:"leverage"`
	MarginMode  string          `json:"margin_mode"`
	Status      string          `json:"status"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
}

// AuthPayload is the venue's answer to an auth frame.
type AuthPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OK reports whether the venue accepted the credentials.
func (p AuthPayload) OK() bool {
	return p.Code == 0 || p.Code == 200
}

func toFloat(d decimal.Decimal) float64 {
	f, err := strconv.ParseFloat(d.String(), 64)
	if err != nil {
		return 0
	}
	return f
}

// Normalize converts the wire snapshot into the domain depth model.
func (p DepthPayload) Normalize(symbol string) model.Depth {
	depth := model.Depth{
		Symbol:    symbol,
		Bids:      make([]model.DepthLevel, 0, len(p.Bids)),
		Asks:      make([]model.DepthLevel, 0, len(p.Asks)),
		Timestamp: time.Now(),
	}
	if p.Time != 0 {
		depth.Timestamp = time.UnixMilli(p.Time)
	}

	for _, row := range p.Bids {
		if len(row) < 2 {
			continue
		}
		depth.Bids = append(depth.Bids, model.DepthLevel{Price: toFloat(row[0]), Quantity: toFloat(row[1])})
	}
	for _, row := range p.Asks {
		if len(row) < 2 {
			continue
		}
		depth.Asks = append(depth.Asks, model.DepthLevel{Price: toFloat(row[0]), Quantity: toFloat(row[1])})
	}
	return depth
}

// Normalize converts the wire order into the domain order model.
func (p OrderPayload) Normalize() model.Order {
	return model.Order{
		ID:          p.ID,
		ClOrdID:     p.ClOrdID,
		Symbol:      p.Symbol,
		Side:        model.ParseOrderSide(p.Side),
		Status:      model.ParseOrderStatus(p.Status),
		Qty:         toFloat(p.Qty),
		Price:       toFloat(p.Price),
		FillQty:     toFloat(p.FillQty),
		TimeInForce: p.TimeInForce,
		ReduceOnly:  p.ReduceOnly,
	}
}

// Normalize converts the wire position into the domain position model.
func (p PositionPayload) Normalize() model.Position {
	return model.Position{
		Symbol:      p.Symbol,
		Qty:         toFloat(p.Qty),
		EntryPrice:  toFloat(p.EntryPrice),
		Leverage:    int(toFloat(p.Leverage)),
		MarginMode:  p.MarginMode,
		RealizedPnl: toFloat(p.RealizedPnl),
	}
}
