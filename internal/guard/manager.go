package guard

import (
	"context"
	"math"
	"strconv"
	"time"

	"main/internal/model"
	"main/internal/order"
	"main/internal/order/delegator/standx"
	"main/internal/state"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"
)

const defaultPollInterval = time.Second

// Stage is the lifecycle step of a tracked position. The zero value means
// nothing is tracked.
type Stage uint8

const (
	StageNone Stage = iota
	StageEntry
	StageHold
)

func (s Stage) String() string {
	switch s {
	case StageEntry:
		return "entry"
	case StageHold:
		return "hold"
	default:
		return "none"
	}
}

// Alerter pushes human-facing messages, best effort.
type Alerter interface {
	Send(ctx context.Context, text string) bool
}

// Config tunes the position manager.
type Config struct {
	Symbol string

	// QuickTPBps / StopLossBps place the protective bracket around the
	// entry price.
	QuickTPBps  float64
	StopLossBps float64

	// Hold is how long the protective bracket gets before the position is
	// closed at market. MaxHold is the hard ceiling that forces a close
	// regardless of stage.
	Hold    time.Duration
	MaxHold time.Duration

	PollInterval time.Duration

	PriceIncrement float64
	PriceDecimals  int

	MarginMode string
	Leverage   int
}

// Tracked is the manager's record of the position it currently babysits.
type Tracked struct {
	Side       model.OrderSide
	Qty        float64
	EntryPrice float64
	EnteredAt  time.Time
	Stage      Stage
}

// Manager walks every open position through entry, protective bracket, timed
// market close and hard forced exit. It is the only writer of reduce-only
// orders; the quoting engine stays out of the book while a position is open.
type Manager struct {
	cfg     Config
	cache   *state.Cache
	client  order.Client
	alerter Alerter

	tracked Tracked
	now     func() time.Time
}

// NewManager builds a position manager. alerter may be nil.
func NewManager(cfg Config, cache *state.Cache, client order.Client, alerter Alerter) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PriceIncrement <= 0 {
		cfg.PriceIncrement = 0.01
		cfg.PriceDecimals = 2
	}

	return &Manager{
		cfg:     cfg,
		cache:   cache,
		client:  client,
		alerter: alerter,
		now:     time.Now,
	}
}

// Tracked returns a copy of the current tracking record.
func (m *Manager) Tracked() Tracked {
	return m.tracked
}

// ProtectivePrices derives the take-profit and stop-loss limit prices for a
// position entered at entry on the given side.
func (m *Manager) ProtectivePrices(side model.OrderSide, entry float64) (tp, sl float64) {
	switch side {
	case model.OrderSideBuy:
		tp = m.roundPrice(entry * (1 + m.cfg.QuickTPBps/10000))
		sl = m.roundPrice(entry * (1 - m.cfg.StopLossBps/10000))
	case model.OrderSideSell:
		tp = m.roundPrice(entry * (1 - m.cfg.QuickTPBps/10000))
		sl = m.roundPrice(entry * (1 + m.cfg.StopLossBps/10000))
	}
	return tp, sl
}

func (m *Manager) roundPrice(p float64) float64 {
	return math.Round(p/m.cfg.PriceIncrement) * m.cfg.PriceIncrement
}

func (m *Manager) formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', m.cfg.PriceDecimals, 64)
}

func (m *Manager) evaluate(ctx context.Context) {
	pos, ok := m.cache.Position()
	flat := !ok || pos.IsFlat()

	switch m.tracked.Stage {
	case StageNone:
		if !flat {
			m.enter(ctx, pos)
		}
	case StageEntry, StageHold:
		if flat {
			m.clear(ctx, pos)
			return
		}

		held := m.now().Sub(m.tracked.EnteredAt)
		if m.cfg.MaxHold > 0 && held >= m.cfg.MaxHold {
			m.forceExit(ctx, pos, held)
			return
		}
		if held >= m.cfg.Hold {
			switch m.tracked.Stage {
			case StageEntry:
				m.holdExpired(ctx, pos, held)
			case StageHold:
				m.retryClose(ctx, pos)
			}
		}
	}
}

// enter records the new position, clears the resting quotes and places the
// reduce-only protective bracket.
func (m *Manager) enter(ctx context.Context, pos model.Position) {
	m.tracked = Tracked{
		Side:       pos.Side(),
		Qty:        pos.AbsQty(),
		EntryPrice: pos.EntryPrice,
		EnteredAt:  m.now(),
		Stage:      StageEntry,
	}

	logs.Infof("position opened: %s %s %.6f @ %.2f",
		m.cfg.Symbol, m.tracked.Side, m.tracked.Qty, m.tracked.EntryPrice)
	m.alert(ctx, "position opened: "+m.cfg.Symbol+" "+m.tracked.Side.String())

	m.cancelOrders(ctx, false)

	tp, sl := m.ProtectivePrices(m.tracked.Side, m.tracked.EntryPrice)
	exit := m.tracked.Side.Opposite()
	for _, price := range []float64{tp, sl} {
		if _, err := m.client.NewOrder(ctx, standx.PlaceOrderInput{
			Symbol:     m.cfg.Symbol,
			Side:       exit,
			Type:       model.OrderTypeLimit,
			Qty:        strconv.FormatFloat(m.tracked.Qty, 'f', -1, 64),
			Price:      m.formatPrice(price),
			ReduceOnly: true,
			MarginMode: m.cfg.MarginMode,
			Leverage:   m.cfg.Leverage,
			ClOrdID:    uuid.NewString(),
		}); err != nil {
			logs.Warnf("place protective %s @ %.2f: %+v", exit, price, err)
		}
	}
}

// holdExpired tears down the protective bracket and closes at market after
// the hold window ran out without the bracket resolving.
func (m *Manager) holdExpired(ctx context.Context, pos model.Position, held time.Duration) {
	logs.Infof("hold window expired after %s, closing %s at market", held.Round(time.Second), m.cfg.Symbol)

	m.cancelOrders(ctx, true)
	m.closeAtMarket(ctx, pos)
	m.tracked.Stage = StageHold
}

// retryClose re-attempts the second-tier market close on every poll tick
// while the position refuses to flatten. The bracket is already gone at this
// point, so the market close is the only exit left.
func (m *Manager) retryClose(ctx context.Context, pos model.Position) {
	logs.Warnf("position still open after close attempt, retrying %s market close", m.cfg.Symbol)

	m.cancelOrders(ctx, true)
	m.closeAtMarket(ctx, pos)
}

// forceExit is the hard ceiling: everything is canceled and the position is
// closed at market no matter which stage it is in.
func (m *Manager) forceExit(ctx context.Context, pos model.Position, held time.Duration) {
	logs.Warnf("max hold exceeded after %s, forcing %s flat", held.Round(time.Second), m.cfg.Symbol)
	m.alert(ctx, "max hold exceeded, forcing "+m.cfg.Symbol+" flat")

	m.cancelOrders(ctx, true)
	m.closeAtMarket(ctx, pos)
	m.tracked.Stage = StageHold
}

// clear resolves the tracking record once the position returned to flat and
// cancels whichever protective leg is still resting.
func (m *Manager) clear(ctx context.Context, pos model.Position) {
	logs.Infof("position flat: %s, realized pnl %.4f", m.cfg.Symbol, pos.RealizedPnl)
	m.alert(ctx, "position closed: "+m.cfg.Symbol)

	m.cancelOrders(ctx, true)
	m.tracked = Tracked{}
}

// cancelOrders cancels resting orders; with protectivesToo it clears the
// whole book, otherwise reduce-only orders are left alone.
func (m *Manager) cancelOrders(ctx context.Context, protectivesToo bool) {
	for id, o := range m.cache.OrderIDs() {
		if o.ReduceOnly && !protectivesToo {
			continue
		}
		if _, err := m.client.CancelOrder(ctx, id, ""); err != nil {
			logs.Warnf("cancel order %d: %+v", id, err)
		}
	}
}

func (m *Manager) closeAtMarket(ctx context.Context, pos model.Position) {
	if _, err := m.client.NewOrder(ctx, standx.PlaceOrderInput{
		Symbol:     m.cfg.Symbol,
		Side:       pos.Side().Opposite(),
		Type:       model.OrderTypeMarket,
		Qty:        strconv.FormatFloat(pos.AbsQty(), 'f', -1, 64),
		ReduceOnly: true,
		MarginMode: pos.MarginMode,
		Leverage:   pos.Leverage,
		ClOrdID:    uuid.NewString(),
	}); err != nil {
		logs.Errorf("market close %s: %+v", m.cfg.Symbol, err)
	}
}

// Flatten is the shutdown path: close whatever position remains at market.
func (m *Manager) Flatten(ctx context.Context) {
	pos, ok := m.cache.Position()
	if !ok || pos.IsFlat() {
		return
	}

	logs.Infof("flattening residual position: %s %.6f", m.cfg.Symbol, pos.Qty)
	m.closeAtMarket(ctx, pos)
}

func (m *Manager) alert(ctx context.Context, text string) {
	if m.alerter != nil {
		m.alerter.Send(ctx, text)
	}
}

// Run polls the cache on a short interval and drives the stage machine.
func (m *Manager) Run(ctx context.Context) {
	logs.Infof("position manager started for %s", m.cfg.Symbol)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logs.Info("position manager stopped")
			return
		case <-ticker.C:
			m.evaluate(ctx)
		}
	}
}
