package state

import (
	"context"
	"testing"
	"time"

	"main/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depthOf(bids, asks [][2]float64) model.Depth {
	d := model.Depth{Symbol: "BTC-USD", Timestamp: time.Now()}
	for _, l := range bids {
		d.Bids = append(d.Bids, model.DepthLevel{Price: l[0], Quantity: l[1]})
	}
	for _, l := range asks {
		d.Asks = append(d.Asks, model.DepthLevel{Price: l[0], Quantity: l[1]})
	}
	return d
}

func TestApplyOrderEventLifecycle(t *testing.T) {
	c := New("BTC-USD", Hooks{})

	c.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusOpen, Price: 49950})
	c.ApplyOrderEvent(model.Order{ID: 2, Side: model.OrderSideSell, Status: model.OrderStatusOpen, Price: 50050})

	buys, sells := c.OrderCounts()
	assert.Equal(t, 1, buys)
	assert.Equal(t, 1, sells)

	// Partial fill mutates in place.
	c.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusPartialFilled, Price: 49950, FillQty: 0.001})
	orders := c.Orders(model.OrderSideBuy)
	require.Len(t, orders, 1)
	assert.Equal(t, model.OrderStatusPartialFilled, orders[0].Status)

	// Terminal status removes immediately.
	c.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusFilled})
	c.ApplyOrderEvent(model.Order{ID: 2, Side: model.OrderSideSell, Status: model.OrderStatusCanceled})

	buys, sells = c.OrderCounts()
	assert.Zero(t, buys)
	assert.Zero(t, sells)
}

func TestApplyOrderEventIgnoresUnknownTerminal(t *testing.T) {
	c := New("BTC-USD", Hooks{})

	c.ApplyOrderEvent(model.Order{ID: 7, Side: model.OrderSideBuy, Status: model.OrderStatusFilled})

	buys, sells := c.OrderCounts()
	assert.Zero(t, buys)
	assert.Zero(t, sells)
}

func TestApplyDepthEventMidPrice(t *testing.T) {
	c := New("BTC-USD", Hooks{})

	c.ApplyDepthEvent(depthOf([][2]float64{{49990, 1}}, [][2]float64{{50010, 1}}))
	mid, ok := c.MidPrice()
	require.True(t, ok)
	assert.InDelta(t, 50000, mid, 1e-9)

	// One-sided book falls back to the existing side's best price.
	c.ApplyDepthEvent(depthOf([][2]float64{{49980, 1}}, nil))
	mid, ok = c.MidPrice()
	require.True(t, ok)
	assert.InDelta(t, 49980, mid, 1e-9)

	// Both sides empty: mid unchanged, no signal fires.
	c.ApplyDepthEvent(depthOf(nil, nil))
	mid, ok = c.MidPrice()
	require.True(t, ok)
	assert.InDelta(t, 49980, mid, 1e-9)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.False(t, c.WaitNewPrice(ctx, 80*time.Millisecond))
}

func TestApplyDepthEventSignalsOnlyOnChange(t *testing.T) {
	c := New("BTC-USD", Hooks{})

	c.ApplyDepthEvent(depthOf([][2]float64{{49990, 1}}, [][2]float64{{50010, 1}}))
	require.False(t, c.PriceProcessed())
	c.MarkPriceProcessed()

	// Same mid again: processed flag stays set, no new signal.
	c.ApplyDepthEvent(depthOf([][2]float64{{49990, 2}}, [][2]float64{{50010, 2}}))
	assert.True(t, c.PriceProcessed())

	done := make(chan bool, 1)
	go func() {
		done <- c.WaitNewPrice(context.Background(), time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	c.ApplyDepthEvent(depthOf([][2]float64{{49995, 1}}, [][2]float64{{50015, 1}}))

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("price signal never fired")
	}
	assert.False(t, c.PriceProcessed())
}

func TestApplyDepthEventSortsLevels(t *testing.T) {
	c := New("BTC-USD", Hooks{})

	c.ApplyDepthEvent(depthOf(
		[][2]float64{{49980, 1}, {49990, 1}},
		[][2]float64{{50020, 1}, {50010, 1}},
	))

	d := c.Depth()
	require.Len(t, d.Bids, 2)
	require.Len(t, d.Asks, 2)
	assert.InDelta(t, 49990, d.Bids[0].Price, 1e-9)
	assert.InDelta(t, 50010, d.Asks[0].Price, 1e-9)
}

func TestApplyPositionEventZeroCrossing(t *testing.T) {
	var opened, flat int
	c := New("BTC-USD", Hooks{
		OnPositionOpened: func(model.Position) { opened++ },
		OnPositionFlat:   func(model.Position) { flat++ },
	})

	crossed := c.ApplyPositionEvent(model.Position{Symbol: "BTC-USD", Qty: 0.01, EntryPrice: 50000})
	assert.True(t, crossed)
	assert.Equal(t, 1, opened)

	// Size change without crossing zero is not a transition.
	crossed = c.ApplyPositionEvent(model.Position{Symbol: "BTC-USD", Qty: 0.02, EntryPrice: 50000})
	assert.False(t, crossed)

	crossed = c.ApplyPositionEvent(model.Position{Symbol: "BTC-USD", Qty: 0})
	assert.True(t, crossed)
	assert.Equal(t, 1, flat)
}

func TestOrderCountExceededHook(t *testing.T) {
	var gotTotal int
	c := New("BTC-USD", Hooks{
		OnOrderCountExceeded: func(total, buys, sells int) { gotTotal = total },
	})

	for id := int64(1); id <= 2; id++ {
		c.ApplyOrderEvent(model.Order{ID: id, Side: model.OrderSideBuy, Status: model.OrderStatusOpen})
	}
	assert.Zero(t, gotTotal)

	c.ApplyOrderEvent(model.Order{ID: 3, Side: model.OrderSideSell, Status: model.OrderStatusOpen})
	assert.Equal(t, 3, gotTotal)

	// Staying above the threshold does not re-fire.
	gotTotal = 0
	c.ApplyOrderEvent(model.Order{ID: 4, Side: model.OrderSideSell, Status: model.OrderStatusOpen})
	assert.Zero(t, gotTotal)
}

func TestReplaceOrdersDropsTerminal(t *testing.T) {
	c := New("BTC-USD", Hooks{})
	c.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusOpen})

	c.ReplaceOrders([]model.Order{
		{ID: 2, Side: model.OrderSideSell, Status: model.OrderStatusOpen},
		{ID: 3, Side: model.OrderSideBuy, Status: model.OrderStatusFilled},
	})

	ids := c.OrderIDs()
	require.Len(t, ids, 1)
	_, ok := ids[2]
	assert.True(t, ok)
}

func TestWaitOrderCounts(t *testing.T) {
	c := New("BTC-USD", Hooks{})
	c.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusOpen})

	go func() {
		time.Sleep(60 * time.Millisecond)
		c.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusCanceled})
	}()

	assert.True(t, c.WaitOrderCounts(context.Background(), 0, 0, time.Second))
	assert.False(t, c.WaitOrderCounts(context.Background(), 1, 1, 120*time.Millisecond))
}

func TestWaitConfirmationsCountsInsertsOnly(t *testing.T) {
	c := New("BTC-USD", Hooks{})
	c.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusOpen})

	baseline := c.Confirmations()
	require.Equal(t, 1, baseline)

	// Updates and unknown terminal events are not confirmations.
	c.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusPartialFilled})
	c.ApplyOrderEvent(model.Order{ID: 99, Side: model.OrderSideSell, Status: model.OrderStatusFilled})
	assert.False(t, c.WaitConfirmations(context.Background(), baseline, 1, 120*time.Millisecond))

	go func() {
		time.Sleep(60 * time.Millisecond)
		c.ApplyOrderEvent(model.Order{ID: 2, Side: model.OrderSideBuy, Status: model.OrderStatusOpen})
		c.ApplyOrderEvent(model.Order{ID: 3, Side: model.OrderSideSell, Status: model.OrderStatusOpen})
	}()

	assert.True(t, c.WaitConfirmations(context.Background(), baseline, 2, time.Second))
	assert.Equal(t, baseline+2, c.Confirmations())
}
