package reconcile

import (
	"context"
	"time"

	"main/internal/order"
	"main/internal/state"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	defaultInterval = 30 * time.Second
	cycleTimeout    = 10 * time.Second

	// startupTimeout keeps the boot sequence from hanging on a slow venue;
	// the periodic loop repairs whatever the startup pass missed.
	startupTimeout = 3 * time.Second

	queryLimit = 50
)

// Alerter pushes human-facing messages, best effort.
type Alerter interface {
	Send(ctx context.Context, text string) bool
}

// Loop periodically replaces the cached order set with the venue's
// authoritative answer. Push events are trusted in between; this loop only
// repairs drift from missed or duplicated events.
type Loop struct {
	symbol   string
	interval time.Duration

	cache   *state.Cache
	client  order.Client
	alerter Alerter
}

// NewLoop builds a reconciliation loop. alerter may be nil.
func NewLoop(symbol string, interval time.Duration, cache *state.Cache, client order.Client, alerter Alerter) *Loop {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Loop{
		symbol:   symbol,
		interval: interval,
		cache:    cache,
		client:   client,
		alerter:  alerter,
	}
}

// Startup runs one best-effort cycle under a short timeout so quoting does
// not begin against a stale mirror. Failure only logs; the periodic loop
// catches up.
func (l *Loop) Startup(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	if err := l.runOnce(sctx); err != nil {
		logs.Warnf("startup reconciliation skipped: %+v", err)
	}
}

// runOnce fetches the authoritative open-order list, reports divergence and
// replaces the cached set wholesale. Any fetch failure skips the whole
// cycle; a partial result must never be applied.
func (l *Loop) runOnce(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	remote, err := l.client.QueryOpenOrders(cctx, l.symbol, queryLimit)
	if err != nil {
		return errors.Wrap(err, "query open orders")
	}

	local := l.cache.OrderIDs()
	remoteIDs := make(map[int64]struct{}, len(remote))
	for _, o := range remote {
		remoteIDs[o.ID] = struct{}{}
	}

	var orphans, gaps int
	for id := range local {
		if _, ok := remoteIDs[id]; !ok {
			orphans++
			logs.Warnf("orphan order %d: cached but unknown to venue", id)
		}
	}
	for _, o := range remote {
		if _, ok := local[o.ID]; !ok {
			gaps++
			logs.Warnf("gap order %d: resting at venue but missing from cache, side=%s price=%.2f",
				o.ID, o.Side, o.Price)
		}
	}

	if orphans > 0 || gaps > 0 {
		logs.Warnf("order state diverged: %d orphan, %d gap, replacing cache", orphans, gaps)
		if l.alerter != nil {
			l.alerter.Send(ctx, "order state diverged, cache repaired from venue")
		}
	}

	l.cache.ReplaceOrders(remote)
	return nil
}

// Run is the periodic reconciliation loop.
func (l *Loop) Run(ctx context.Context) {
	logs.Infof("reconciliation loop started, interval %s", l.interval)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logs.Info("reconciliation loop stopped")
			return
		case <-ticker.C:
			if err := l.runOnce(ctx); err != nil {
				logs.Warnf("reconciliation cycle skipped: %+v", err)
			}
		}
	}
}
