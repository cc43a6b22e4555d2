package maker

import (
	"context"
	"strconv"
	"sync/atomic"
	"testing"

	"main/internal/model"
	"main/internal/order/delegator/standx"
	"main/internal/risk"
	"main/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient mirrors accepted orders straight into the cache so the
// wait-for-counts protocol resolves without a venue.
type fakeClient struct {
	cache  *state.Cache
	nextID atomic.Int64

	placed   []standx.PlaceOrderInput
	canceled []int64
}

func newFakeClient(cache *state.Cache) *fakeClient {
	f := &fakeClient{cache: cache}
	f.nextID.Store(1000)
	return f
}

func (f *fakeClient) NewOrder(_ context.Context, in standx.PlaceOrderInput) (standx.ResponseOrderAction, error) {
	f.placed = append(f.placed, in)
	id := f.nextID.Add(1)
	price, _ := strconv.ParseFloat(in.Price, 64)
	qty, _ := strconv.ParseFloat(in.Qty, 64)
	f.cache.ApplyOrderEvent(model.Order{
		ID:      id,
		ClOrdID: in.ClOrdID,
		Symbol:  in.Symbol,
		Side:    in.Side,
		Status:  model.OrderStatusOpen,
		Qty:     qty,
		Price:   price,
	})
	return standx.ResponseOrderAction{OrderID: id}, nil
}

func (f *fakeClient) CancelOrder(_ context.Context, orderID int64, _ string) (standx.ResponseOrderAction, error) {
	f.canceled = append(f.canceled, orderID)
	f.cache.ApplyOrderEvent(model.Order{ID: orderID, Status: model.OrderStatusCanceled})
	return standx.ResponseOrderAction{OrderID: orderID}, nil
}

func (f *fakeClient) QueryOpenOrders(context.Context, string, int) ([]model.Order, error) {
	return nil, nil
}

func (f *fakeClient) QueryPositions(context.Context, string) ([]model.Position, error) {
	return nil, nil
}

func (f *fakeClient) QueryBalance(context.Context) (model.Balance, error) {
	return model.ZeroBalance(), nil
}

func (f *fakeClient) QuerySymbolPrice(context.Context, string) (standx.ResponseSymbolPrice, error) {
	return standx.ResponseSymbolPrice{}, nil
}

func newTestQuoter(t *testing.T) (*Quoter, *state.Cache, *fakeClient) {
	t.Helper()

	cache := state.New("BTC-USD", state.Hooks{})
	client := newFakeClient(cache)
	q := NewQuoter(Config{
		Symbol:         "BTC-USD",
		OrderQty:       0.004,
		PriceIncrement: 0.01,
		PriceDecimals:  2,
		TargetBps:      7.5,
		MinBps:         7,
		MaxBps:         10,
	}, cache, client, nil)
	return q, cache, client
}

func pushMid(cache *state.Cache, mid float64) {
	cache.ApplyDepthEvent(model.Depth{
		Symbol: "BTC-USD",
		Bids:   []model.DepthLevel{{Price: mid - 1, Quantity: 1}},
		Asks:   []model.DepthLevel{{Price: mid + 1, Quantity: 1}},
	})
}

func TestComputeOrderPrices(t *testing.T) {
	q, _, _ := newTestQuoter(t)

	buy, sell := q.ComputeOrderPrices(50000, 10)
	assert.InDelta(t, 49950.00, buy, 1e-9)
	assert.InDelta(t, 50050.00, sell, 1e-9)

	buy, sell = q.ComputeOrderPrices(50000.333, 7.5)
	assert.InDelta(t, 49962.83, buy, 1e-9)
	assert.InDelta(t, 50037.83, sell, 1e-9)
}

func TestNeedsReplacementCountCheck(t *testing.T) {
	q, cache, _ := newTestQuoter(t)
	band := risk.Band{TargetBps: 7.5, MinBps: 7, MaxBps: 10}

	assert.True(t, q.NeedsReplacement(band), "empty book must replace")

	cache.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusOpen})
	assert.True(t, q.NeedsReplacement(band), "single-sided book must replace")
}

func TestNeedsReplacementDeviationBand(t *testing.T) {
	q, cache, _ := newTestQuoter(t)
	band := risk.Band{TargetBps: 7.5, MinBps: 7, MaxBps: 10}

	pushMid(cache, 50000)

	// Buy at 7 bps sits on the inclusive bound; sell drifted to 12 bps.
	cache.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusOpen, Price: 49965})
	cache.ApplyOrderEvent(model.Order{ID: 2, Side: model.OrderSideSell, Status: model.OrderStatusOpen, Price: 50060})
	assert.True(t, q.NeedsReplacement(band))
}

func TestNeedsReplacementInsideBand(t *testing.T) {
	q, cache, _ := newTestQuoter(t)
	band := risk.Band{TargetBps: 7.5, MinBps: 7, MaxBps: 10}

	pushMid(cache, 50000)
	cache.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusOpen, Price: 49962.50})
	cache.ApplyOrderEvent(model.Order{ID: 2, Side: model.OrderSideSell, Status: model.OrderStatusOpen, Price: 50037.50})

	assert.False(t, q.NeedsReplacement(band))
	assert.True(t, cache.PriceProcessed())
}

func TestDeviationEvaluatedOncePerMid(t *testing.T) {
	q, cache, _ := newTestQuoter(t)
	band := risk.Band{TargetBps: 7.5, MinBps: 7, MaxBps: 10}

	pushMid(cache, 50000)
	cache.ApplyOrderEvent(model.Order{ID: 1, Side: model.OrderSideBuy, Status: model.OrderStatusOpen, Price: 49962.50})
	cache.ApplyOrderEvent(model.Order{ID: 2, Side: model.OrderSideSell, Status: model.OrderStatusOpen, Price: 50037.50})

	require.False(t, q.NeedsReplacement(band))

	// Same mid, tighter band: the cached verdict wins until a fresh price.
	tight := risk.Band{TargetBps: 2, MinBps: 1, MaxBps: 3}
	assert.False(t, q.NeedsReplacement(tight))

	pushMid(cache, 50010)
	assert.True(t, q.NeedsReplacement(tight))
}

func TestTargetSpreadJumpForcesReplacement(t *testing.T) {
	q, cache, client := newTestQuoter(t)

	pushMid(cache, 50000)
	require.NoError(t, q.Replace(context.Background(), risk.Band{TargetBps: 7.5, MinBps: 7, MaxBps: 10}))
	require.Len(t, client.placed, 2)

	// Wide band keeps the old quotes inside bounds, but the target moved
	// 100%, well past the forced-replacement ratio.
	pushMid(cache, 50000.01)
	assert.True(t, q.NeedsReplacement(risk.Band{TargetBps: 15, MinBps: 1, MaxBps: 100}))
}

func TestTargetJumpForcesReplacementWithoutNewMid(t *testing.T) {
	q, cache, _ := newTestQuoter(t)

	pushMid(cache, 50000)
	require.NoError(t, q.Replace(context.Background(), risk.Band{TargetBps: 7.5, MinBps: 7, MaxBps: 10}))

	// The quotes sit exactly on target; the current mid is marked processed.
	require.False(t, q.NeedsReplacement(risk.Band{TargetBps: 7.5, MinBps: 7, MaxBps: 10}))
	require.True(t, cache.PriceProcessed())

	// A regime shift on volume alone moves the target with no new mid; the
	// jump must still force a replacement.
	assert.True(t, q.NeedsReplacement(risk.Band{TargetBps: 15, MinBps: 12, MaxBps: 25}))
}

func TestReplaceProtocol(t *testing.T) {
	q, cache, client := newTestQuoter(t)

	cache.ApplyOrderEvent(model.Order{ID: 7, Side: model.OrderSideBuy, Status: model.OrderStatusOpen, Price: 49000})
	pushMid(cache, 50000)

	require.NoError(t, q.Replace(context.Background(), risk.Band{TargetBps: 10, MinBps: 7, MaxBps: 15}))

	assert.Equal(t, []int64{7}, client.canceled)
	require.Len(t, client.placed, 2)
	assert.Equal(t, model.OrderSideBuy, client.placed[0].Side)
	assert.Equal(t, "49950.00", client.placed[0].Price)
	assert.Equal(t, model.OrderSideSell, client.placed[1].Side)
	assert.Equal(t, "50050.00", client.placed[1].Price)
	assert.NotEmpty(t, client.placed[0].ClOrdID)
	assert.NotEqual(t, client.placed[0].ClOrdID, client.placed[1].ClOrdID)

	buys, sells := cache.OrderCounts()
	assert.Equal(t, 1, buys)
	assert.Equal(t, 1, sells)
}

func TestReplaceWithoutMidAbandons(t *testing.T) {
	q, _, client := newTestQuoter(t)

	err := q.Replace(context.Background(), risk.Band{TargetBps: 10, MinBps: 7, MaxBps: 15})
	require.Error(t, err)
	assert.Empty(t, client.placed)
}
