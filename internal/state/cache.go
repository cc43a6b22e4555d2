package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"main/internal/model"

	"github.com/yanun0323/logs"
)

const waitPollInterval = 50 * time.Millisecond

// openOrderAlertThreshold is the open-order count whose upward crossing is
// reported as an interesting transition.
const openOrderAlertThreshold = 2

// Hooks receive transition facts observed by the cache. The cache itself
// never notifies anyone; collaborators decide what a transition means.
// All hooks are optional and are invoked inside the mutation call.
type Hooks struct {
	// OnPositionOpened fires when position quantity crosses from zero to
	// non-zero.
	OnPositionOpened func(p model.Position)

	// OnPositionFlat fires when position quantity returns to zero.
	OnPositionFlat func(p model.Position)

	// OnOrderCountExceeded fires when the open-order count crosses above
	// openOrderAlertThreshold.
	OnOrderCountExceeded func(total, buys, sells int)
}

// Cache is the in-memory mirror of the venue state for one symbol: open
// orders, current position and the latest depth snapshot. Push events mutate
// it, every loop reads it. One mutex guards all state; mutation methods
// finish before anything else observes them, so they act atomically.
type Cache struct {
	mu sync.Mutex

	symbol string
	hooks  Hooks

	orders   map[int64]model.Order
	position model.Position

	depth       model.Depth
	midPrice    float64
	hasMid      bool
	lastPriceAt time.Time

	// priceProcessed guards the deviation check: it flips to false on every
	// distinct mid update and back to true once the quoting engine has
	// evaluated that mid.
	priceProcessed bool

	confirmedOrders int
	lastOrderCount  int
	lastPositionQty float64

	priceSignal chan struct{}
}

// New creates an empty cache for one traded symbol.
func New(symbol string, hooks Hooks) *Cache {
	return &Cache{
		symbol:         symbol,
		hooks:          hooks,
		orders:         make(map[int64]model.Order),
		priceProcessed: true,
		priceSignal:    make(chan struct{}, 1),
	}
}

// ApplyOrderEvent applies one order push to the order map. Status decides
// between insert, in-place update and removal; the cache holds open orders
// only, so a terminal status always removes.
func (c *Cache) ApplyOrderEvent(order model.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.orders[order.ID]
	switch {
	case exists && order.Status.IsTerminal():
		delete(c.orders, order.ID)
		logs.Infof("order removed: id=%d, status=%s", order.ID, order.Status)
	case exists:
		c.orders[order.ID] = order
		logs.Debugf("order updated: id=%d, status=%s", order.ID, order.Status)
	case order.Status.IsTerminal():
		// Late terminal event for an order the cache never held.
		logs.Debugf("terminal order ignored: id=%d, status=%s", order.ID, order.Status)
		return
	default:
		c.orders[order.ID] = order
		c.confirmedOrders++
		logs.Infof("order added: id=%d, side=%s, price=%.2f", order.ID, order.Side, order.Price)
	}

	c.checkOrderCountLocked()
}

func (c *Cache) checkOrderCountLocked() {
	count := len(c.orders)
	if c.lastOrderCount <= openOrderAlertThreshold && count > openOrderAlertThreshold {
		if c.hooks.OnOrderCountExceeded != nil {
			buys, sells := c.countSidesLocked()
			c.hooks.OnOrderCountExceeded(count, buys, sells)
		}
		logs.Warnf("open order count exceeded %d: %d", openOrderAlertThreshold, count)
	}
	c.lastOrderCount = count
}

// ApplyPositionEvent overwrites the position record and reports whether the
// quantity crossed zero in either direction.
func (c *Cache) ApplyPositionEvent(position model.Position) (zeroCrossed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.lastPositionQty == 0 && position.Qty != 0:
		zeroCrossed = true
		if c.hooks.OnPositionOpened != nil {
			c.hooks.OnPositionOpened(position)
		}
	case c.lastPositionQty != 0 && position.Qty == 0:
		zeroCrossed = true
		if c.hooks.OnPositionFlat != nil {
			c.hooks.OnPositionFlat(position)
		}
	}

	c.lastPositionQty = position.Qty
	c.position = position
	return zeroCrossed
}

// ApplyDepthEvent replaces the depth snapshot wholesale, recomputes mid
// price and signals waiters only when the mid actually changed. An empty
// snapshot leaves the previous mid untouched and fires no signal.
func (c *Cache) ApplyDepthEvent(depth model.Depth) {
	sort.Slice(depth.Bids, func(i, j int) bool { return depth.Bids[i].Price > depth.Bids[j].Price })
	sort.Slice(depth.Asks, func(i, j int) bool { return depth.Asks[i].Price < depth.Asks[j].Price })

	c.mu.Lock()
	defer c.mu.Unlock()

	c.depth = depth

	mid, ok := depth.MidPrice()
	if !ok {
		return
	}

	if c.hasMid && mid == c.midPrice {
		logs.Debugf("depth mid unchanged: %.4f", mid)
		return
	}

	sinceLast := time.Duration(0)
	if !c.lastPriceAt.IsZero() {
		sinceLast = time.Since(c.lastPriceAt)
	}
	logs.Infof("depth mid updated: %.4f, %.2fs since last", mid, sinceLast.Seconds())

	c.midPrice = mid
	c.hasMid = true
	c.lastPriceAt = time.Now()
	c.priceProcessed = false

	select {
	case c.priceSignal <- struct{}{}:
	default:
	}
}

// Orders returns a copy of the open orders, optionally filtered by side.
func (c *Cache) Orders(side model.OrderSide) []model.Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]model.Order, 0, len(c.orders))
	for _, o := range c.orders {
		if side.IsAvailable() && o.Side != side {
			continue
		}
		out = append(out, o)
	}
	return out
}

// OrderCounts returns the open buy and sell order counts.
func (c *Cache) OrderCounts() (buys, sells int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countSidesLocked()
}

func (c *Cache) countSidesLocked() (buys, sells int) {
	for _, o := range c.orders {
		switch o.Side {
		case model.OrderSideBuy:
			buys++
		case model.OrderSideSell:
			sells++
		}
	}
	return buys, sells
}

// Position returns the latest position push. The second return is false
// until a position event has been observed.
func (c *Cache) Position() (model.Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position, c.position.Symbol != ""
}

// MidPrice returns the latest mid price. The second return is false until
// a depth event produced one.
func (c *Cache) MidPrice() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.midPrice, c.hasMid
}

// Depth returns the latest depth snapshot.
func (c *Cache) Depth() model.Depth {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth
}

// PriceProcessed reports whether the current mid has already been through
// the deviation evaluation.
func (c *Cache) PriceProcessed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.priceProcessed
}

// MarkPriceProcessed flags the current mid as evaluated so the deviation
// check does not re-trigger on a stale price.
func (c *Cache) MarkPriceProcessed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priceProcessed = true
}

// ReplaceOrders swaps the whole order map for an authoritative snapshot.
// Used by reconciliation only; push events keep patching afterwards.
func (c *Cache) ReplaceOrders(orders []model.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.orders = make(map[int64]model.Order, len(orders))
	for _, o := range orders {
		if o.Status.IsTerminal() {
			continue
		}
		c.orders[o.ID] = o
	}
	c.checkOrderCountLocked()
}

// OrderIDs returns the ids of all cached open orders.
func (c *Cache) OrderIDs() map[int64]model.Order {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[int64]model.Order, len(c.orders))
	for id, o := range c.orders {
		out[id] = o
	}
	return out
}

// WaitNewPrice blocks until a fresh mid price is signaled, the timeout
// elapses or ctx is canceled. It reports whether a new price arrived.
func (c *Cache) WaitNewPrice(ctx context.Context, timeout time.Duration) bool {
	// Drain a stale signal so the wait observes only prices published from
	// this point on.
	select {
	case <-c.priceSignal:
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.priceSignal:
		return true
	case <-timer.C:
		logs.Debugf("wait for new price timed out after %s", timeout)
		return false
	case <-ctx.Done():
		return false
	}
}

// WaitOrderCounts polls until the open order counts match the targets,
// reporting false on timeout or cancellation. Used to confirm cancels
// (0, 0) before quoting and placements (1, 1) afterwards.
func (c *Cache) WaitOrderCounts(ctx context.Context, targetBuys, targetSells int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		buys, sells := c.OrderCounts()
		if buys == targetBuys && sells == targetSells {
			return true
		}

		if time.Now().After(deadline) {
			logs.Warnf("wait for order counts timed out: want buy=%d sell=%d, have buy=%d sell=%d",
				targetBuys, targetSells, buys, sells)
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Confirmations returns how many order inserts the cache has observed since
// start. Callers capture it as a baseline before placing the orders they
// want confirmed.
func (c *Cache) Confirmations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmedOrders
}

// WaitConfirmations polls until count order confirmations arrived past the
// baseline, reporting false on timeout. Only inserts count; updates and
// terminal events do not.
func (c *Cache) WaitConfirmations(ctx context.Context, baseline, count int, timeout time.Duration) bool {
	target := baseline + count

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		confirmed := c.confirmedOrders
		c.mu.Unlock()
		if confirmed >= target {
			return true
		}

		if time.Now().After(deadline) {
			logs.Warnf("wait for %d order confirmations timed out after %s", count, timeout)
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// Symbol returns the traded symbol this cache mirrors.
func (c *Cache) Symbol() string {
	return c.symbol
}
