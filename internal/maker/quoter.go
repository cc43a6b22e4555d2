package maker

import (
	"context"
	"math"
	"strconv"
	"time"

	"main/internal/model"
	"main/internal/order"
	"main/internal/order/delegator/standx"
	"main/internal/risk"
	"main/internal/state"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	// idleWakeInterval bounds the price wait so a silent book still gets a
	// periodic count check.
	idleWakeInterval = 30 * time.Second

	cancelWaitTimeout = 5 * time.Second
	placeWaitTimeout  = 5 * time.Second

	// forcedReplaceRatio is the relative target-spread change that forces a
	// replacement even when resting quotes sit inside the deviation band.
	forcedReplaceRatio = 0.2
)

// Config tunes the quoting engine for one symbol.
type Config struct {
	Symbol   string
	OrderQty float64

	// PriceIncrement is the venue tick size quotes are rounded to.
	PriceIncrement float64
	PriceDecimals  int

	// Static band used when AdaptiveSpread is off.
	TargetBps float64
	MinBps    float64
	MaxBps    float64

	AdaptiveSpread bool

	MarginMode string
	Leverage   int
}

// Quoter keeps exactly one buy and one sell limit order resting around the
// mid price. It reacts to mid-price signals, decides whether the current
// quotes still fit, and replaces them with the cancel-confirm-place protocol.
type Quoter struct {
	cfg    Config
	cache  *state.Cache
	client order.Client
	engine *risk.Engine

	// quotedTargetBps is the spread the resting quotes were placed with.
	quotedTargetBps float64

	// lastDecision caches the deviation verdict for the current mid so one
	// price is evaluated at most once.
	lastDecision bool
}

// NewQuoter builds a quoting engine. engine may be nil when AdaptiveSpread
// is off.
func NewQuoter(cfg Config, cache *state.Cache, client order.Client, engine *risk.Engine) *Quoter {
	if cfg.PriceIncrement <= 0 {
		cfg.PriceIncrement = 0.01
		cfg.PriceDecimals = 2
	}

	return &Quoter{
		cfg:    cfg,
		cache:  cache,
		client: client,
		engine: engine,
	}
}

// ComputeOrderPrices derives the bid and ask quote prices from the mid,
// rounded to the venue price increment.
func (q *Quoter) ComputeOrderPrices(mid, targetBps float64) (buy, sell float64) {
	buy = q.roundPrice(mid * (1 - targetBps/10000))
	sell = q.roundPrice(mid * (1 + targetBps/10000))
	return buy, sell
}

func (q *Quoter) roundPrice(p float64) float64 {
	return math.Round(p/q.cfg.PriceIncrement) * q.cfg.PriceIncrement
}

func (q *Quoter) formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', q.cfg.PriceDecimals, 64)
}

func (q *Quoter) formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}

// band returns the spread bounds in force, adaptive or static.
func (q *Quoter) band() risk.Band {
	if q.cfg.AdaptiveSpread && q.engine != nil {
		q.engine.Update(risk.Score(q.cache.Depth()))
		return q.engine.Band()
	}
	return risk.Band{TargetBps: q.cfg.TargetBps, MinBps: q.cfg.MinBps, MaxBps: q.cfg.MaxBps}
}

// NeedsReplacement decides whether the resting quotes must be torn down.
// The count check and the target-jump check run every call; the deviation
// check runs at most once per distinct mid price, afterwards the cached
// verdict is returned.
func (q *Quoter) NeedsReplacement(band risk.Band) bool {
	buys, sells := q.cache.OrderCounts()
	if buys != 1 || sells != 1 {
		logs.Infof("quote count off: buy=%d sell=%d, replacing", buys, sells)
		return true
	}

	// The regime can shift on depth volume alone, so the target-jump check
	// must not wait for a fresh mid.
	if q.quotedTargetBps > 0 {
		change := math.Abs(band.TargetBps-q.quotedTargetBps) / q.quotedTargetBps
		if change > forcedReplaceRatio {
			logs.Infof("target spread moved %.0f%%: %.2f -> %.2f bps, replacing",
				change*100, q.quotedTargetBps, band.TargetBps)
			return true
		}
	}

	if q.cache.PriceProcessed() {
		return q.lastDecision
	}

	mid, ok := q.cache.MidPrice()
	if !ok {
		q.cache.MarkPriceProcessed()
		q.lastDecision = false
		return false
	}

	decision := false
	for _, o := range q.cache.Orders(0) {
		dev := o.DeviationBps(mid)
		if dev < band.MinBps || dev > band.MaxBps {
			logs.Infof("quote drifted: side=%s, %.2f bps outside [%.2f, %.2f], replacing",
				o.Side, dev, band.MinBps, band.MaxBps)
			decision = true
			break
		}
	}

	q.cache.MarkPriceProcessed()
	q.lastDecision = decision
	return decision
}

// Replace runs the full quote replacement protocol: cancel everything, wait
// for the cancels to confirm, place the new pair, wait for both to rest. A
// wait timeout abandons the attempt; the next evaluation starts over.
func (q *Quoter) Replace(ctx context.Context, band risk.Band) error {
	for id, o := range q.cache.OrderIDs() {
		if _, err := q.client.CancelOrder(ctx, id, ""); err != nil {
			logs.Warnf("cancel order %d (%s): %+v", id, o.Side, err)
		}
	}

	if !q.cache.WaitOrderCounts(ctx, 0, 0, cancelWaitTimeout) {
		return errors.New("cancel confirmations missing, abandoning quote replacement")
	}

	mid, ok := q.cache.MidPrice()
	if !ok {
		return errors.New("no mid price, abandoning quote replacement")
	}

	buyPrice, sellPrice := q.ComputeOrderPrices(mid, band.TargetBps)
	logs.Infof("quoting %s: buy %.2f / sell %.2f, mid %.2f, target %.2f bps",
		q.cfg.Symbol, buyPrice, sellPrice, mid, band.TargetBps)

	baseline := q.cache.Confirmations()

	quotes := []struct {
		side  model.OrderSide
		price float64
	}{
		{model.OrderSideBuy, buyPrice},
		{model.OrderSideSell, sellPrice},
	}
	for _, quote := range quotes {
		if _, err := q.client.NewOrder(ctx, standx.PlaceOrderInput{
			Symbol:     q.cfg.Symbol,
			Side:       quote.side,
			Type:       model.OrderTypeLimit,
			Qty:        q.formatQty(q.cfg.OrderQty),
			Price:      q.formatPrice(quote.price),
			MarginMode: q.cfg.MarginMode,
			Leverage:   q.cfg.Leverage,
			ClOrdID:    uuid.NewString(),
		}); err != nil {
			return errors.Wrapf(err, "place %s quote", quote.side)
		}
	}

	if !q.cache.WaitConfirmations(ctx, baseline, 2, placeWaitTimeout) {
		return errors.New("quote confirmations missing")
	}
	if !q.cache.WaitOrderCounts(ctx, 1, 1, placeWaitTimeout) {
		return errors.New("quote pair not confirmed in time")
	}

	q.quotedTargetBps = band.TargetBps
	q.lastDecision = false
	return nil
}

// CancelAll tears down every resting order, best effort.
func (q *Quoter) CancelAll(ctx context.Context) {
	for id := range q.cache.OrderIDs() {
		if _, err := q.client.CancelOrder(ctx, id, ""); err != nil {
			logs.Warnf("cancel order %d: %+v", id, err)
		}
	}
}

// Run is the quoting loop. It wakes on every mid-price signal, or after the
// idle interval, and quotes only while the position is flat; an open
// position belongs to the position manager.
func (q *Quoter) Run(ctx context.Context) {
	logs.Infof("quoting loop started for %s", q.cfg.Symbol)

	for {
		q.cache.WaitNewPrice(ctx, idleWakeInterval)
		if ctx.Err() != nil {
			logs.Info("quoting loop stopped")
			return
		}

		if pos, ok := q.cache.Position(); ok && !pos.IsFlat() {
			q.cache.MarkPriceProcessed()
			continue
		}

		band := q.band()
		if !q.NeedsReplacement(band) {
			continue
		}

		if err := q.Replace(ctx, band); err != nil {
			logs.Warnf("quote replacement: %+v", err)
		}
	}
}
