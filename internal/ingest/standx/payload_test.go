package standx

import (
	"encoding/json"
	"testing"

	"main/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventDepth(t *testing.T) {
	raw := []byte(`{
		"seq": 13,
		"channel": "depth_book",
		"symbol": "BTC-USD",
		"data": {
			"bids": [["49990.5", "1.2"], ["49980.0", "0.8"]],
			"asks": [["50010.5", "0.5"]],
			"time": 1700000000000
		}
	}`)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	ev, ok, err := DecodeEvent(env)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, EventKindDepth, ev.Kind)
	assert.Equal(t, int64(13), ev.Seq)

	depth := ev.Depth.Normalize(ev.Symbol)
	require.Len(t, depth.Bids, 2)
	require.Len(t, depth.Asks, 1)
	assert.InDelta(t, 49990.5, depth.Bids[0].Price, 1e-9)
	assert.InDelta(t, 1.2, depth.Bids[0].Quantity, 1e-9)
	assert.InDelta(t, 50010.5, depth.Asks[0].Price, 1e-9)
}

func TestDecodeEventOrder(t *testing.T) {
	raw := []byte(`{
		"seq": 7,
		"channel": "order",
		"data": {
			"id": 123456,
			"cl_ord_id": "maker-abc",
			"symbol": "BTC-USD",
			"side": "sell",
			"status": "partially_filled",
			"qty": "0.004",
			"price": "50050.00",
			"fill_qty": "0.001",
			"reduce_only": false
		}
	}`)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	ev, ok, err := DecodeEvent(env)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, EventKindOrder, ev.Kind)

	order := ev.Order.Normalize()
	assert.Equal(t, int64(123456), order.ID)
	assert.Equal(t, "maker-abc", order.ClOrdID)
	assert.Equal(t, model.OrderSideSell, order.Side)
	assert.Equal(t, model.OrderStatusPartialFilled, order.Status)
	assert.InDelta(t, 50050.0, order.Price, 1e-9)
	assert.InDelta(t, 0.001, order.FillQty, 1e-9)
}

func TestDecodeEventPosition(t *testing.T) {
	raw := []byte(`{
		"channel": "position",
		"data": {
			"symbol": "BTC-USD",
			"qty": "-0.01",
			"entry_price": "50000.5",
			"leverage": "40",
			"margin_mode": "cross",
			"realized_pnl": "1.25"
		}
	}`)

	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))

	ev, ok, err := DecodeEvent(env)
	require.NoError(t, err)
	require.True(t, ok)

	pos := ev.Position.Normalize()
	assert.InDelta(t, -0.01, pos.Qty, 1e-9)
	assert.InDelta(t, 50000.5, pos.EntryPrice, 1e-9)
	assert.Equal(t, 40, pos.Leverage)
	assert.Equal(t, "cross", pos.MarginMode)
	assert.Equal(t, model.OrderSideSell, pos.Side())
}

func TestDecodeEventAuth(t *testing.T) {
	for _, tc := range []struct {
		code int
		ok   bool
	}{
		{code: 0, ok: true},
		{code: 200, ok: true},
		{code: 401, ok: false},
	} {
		env := Envelope{Channel: ChannelAuth, Data: []byte(`{"code": ` + jsonInt(tc.code) + `}`)}
		ev, ok, err := DecodeEvent(env)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, tc.ok, ev.Auth.OK(), "code %d", tc.code)
	}
}

func TestDecodeEventUnknownChannel(t *testing.T) {
	env := Envelope{Channel: "trade", Data: []byte(`{}`)}
	_, ok, err := DecodeEvent(env)
	require.NoError(t, err)
	assert.False(t, ok)
}

func jsonInt(v int) string {
	b, _ := json.Marshal(v)
	return string(b)
}
