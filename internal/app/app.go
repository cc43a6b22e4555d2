package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"main/internal/guard"
	"main/internal/health"
	"main/internal/ingest/standx"
	"main/internal/journal"
	"main/internal/maker"
	"main/internal/notify"
	"main/internal/ops"
	"main/internal/order"
	delegator "main/internal/order/delegator/standx"
	"main/internal/reconcile"
	"main/internal/risk"
	"main/internal/state"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	connectTimeout  = 15 * time.Second
	cleanupTimeout  = 10 * time.Second
	alertWindow     = 5 * time.Minute
	defaultLeverage = 20
)

// App owns every long-lived component and the lifecycle glue between them:
// bootstrap handshakes, the loop goroutines, and the shutdown cleanup.
type App struct {
	cfg ops.Config

	cache    *state.Cache
	stream   *standx.Stream
	client   order.Client
	notifier *notify.Telegram
	journal  *journal.Journal
}

// New wires the shared pieces. Loop components are built in Run after the
// venue handshakes, because quoting parameters depend on the discovered
// margin setup.
func New(ctx context.Context, cfg ops.Config) (*App, error) {
	notifier := notify.NewTelegram(nil, cfg.TelegramBotToken, cfg.TelegramChatID, cfg.AccountName)

	jnl, err := journal.Open(cfg.PostgresDSN, cfg.AccountName)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}

	a := &App{
		cfg:      cfg,
		client:   delegator.NewDelegator(&http.Client{}, cfg.APIBaseURL, cfg.AccessToken),
		notifier: notifier,
		journal:  jnl,
	}

	a.cache = state.New(cfg.Symbol, state.Hooks{
		// Hooks run inside the cache mutation, so the alert goes out async.
		OnOrderCountExceeded: func(total, buys, sells int) {
			logs.Warnf("open order count out of shape: total=%d buy=%d sell=%d", total, buys, sells)
			go a.notifier.SendThrottled(context.Background(), "order-count", alertWindow,
				"open order count out of shape")
		},
	})

	a.stream = standx.NewStream(ctx, cfg.WSStreamURL, a.dispatch)
	return a, nil
}

// dispatch routes push events into the state cache.
func (a *App) dispatch(ev standx.Event) {
	switch ev.Kind {
	case standx.EventKindDepth:
		if ev.Symbol != a.cfg.Symbol {
			return
		}
		a.cache.ApplyDepthEvent(ev.Depth.Normalize(ev.Symbol))
	case standx.EventKindOrder:
		o := ev.Order.Normalize()
		if o.Symbol != a.cfg.Symbol {
			return
		}
		a.cache.ApplyOrderEvent(o)
	case standx.EventKindPosition:
		p := ev.Position.Normalize()
		if p.Symbol != a.cfg.Symbol {
			return
		}
		a.cache.ApplyPositionEvent(p)
	}
}

// bootstrap dials the push channel and runs the subscribe and auth
// handshakes.
func (a *App) bootstrap(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := a.stream.Connect(hctx); err != nil {
		return errors.Wrap(err, "connect stream")
	}
	if err := a.stream.SubscribeDepth(hctx, a.cfg.Symbol); err != nil {
		return errors.Wrap(err, "subscribe depth")
	}
	if err := a.stream.Authenticate(hctx, a.cfg.AccessToken, []string{
		standx.ChannelOrder,
		standx.ChannelPosition,
	}); err != nil {
		return errors.Wrap(err, "authenticate private channels")
	}
	return nil
}

// discoverMargin seeds the cache from the venue's current position, if any,
// and returns the margin mode and leverage new orders should carry.
func (a *App) discoverMargin(ctx context.Context) (string, int) {
	marginMode := "cross"
	leverage := defaultLeverage

	qctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	positions, err := a.client.QueryPositions(qctx, a.cfg.Symbol)
	if err != nil {
		logs.Warnf("query positions at startup: %+v", err)
		return marginMode, leverage
	}

	for _, p := range positions {
		if p.Symbol != a.cfg.Symbol {
			continue
		}
		a.cache.ApplyPositionEvent(p)
		if p.MarginMode != "" {
			marginMode = p.MarginMode
		}
		if p.Leverage > 0 {
			leverage = p.Leverage
		}
		if !p.IsFlat() {
			logs.Warnf("starting with an open position: %.6f @ %.2f", p.Qty, p.EntryPrice)
		}
	}
	return marginMode, leverage
}

// Run executes the whole lifecycle and blocks until ctx is canceled and the
// cleanup finished.
func (a *App) Run(ctx context.Context) error {
	if err := a.bootstrap(ctx); err != nil {
		return err
	}

	marginMode, leverage := a.discoverMargin(ctx)
	logs.Infof("trading %s with margin_mode=%s leverage=%d", a.cfg.Symbol, marginMode, leverage)

	riskCfg := risk.DefaultConfig()
	riskCfg.EMADecay = a.cfg.RiskEMADecay
	engine := risk.NewEngine(riskCfg)

	quoter := maker.NewQuoter(maker.Config{
		Symbol:         a.cfg.Symbol,
		OrderQty:       a.cfg.OrderQty,
		PriceIncrement: a.cfg.PriceIncrement,
		PriceDecimals:  a.cfg.PriceDecimals,
		TargetBps:      a.cfg.TargetBps,
		MinBps:         a.cfg.MinBps,
		MaxBps:         a.cfg.MaxBps,
		AdaptiveSpread: a.cfg.AdaptiveSpread,
		MarginMode:     marginMode,
		Leverage:       leverage,
	}, a.cache, a.client, engine)

	manager := guard.NewManager(guard.Config{
		Symbol:         a.cfg.Symbol,
		QuickTPBps:     a.cfg.QuickTPBps,
		StopLossBps:    a.cfg.StopLossBps,
		Hold:           a.cfg.Hold,
		MaxHold:        a.cfg.MaxHold,
		PriceIncrement: a.cfg.PriceIncrement,
		PriceDecimals:  a.cfg.PriceDecimals,
		MarginMode:     marginMode,
		Leverage:       leverage,
	}, a.cache, a.client, a.notifier)

	reconciler := reconcile.NewLoop(a.cfg.Symbol, a.cfg.ReconcileInterval, a.cache, a.client, throttled{a.notifier, "reconcile"})
	monitor := health.NewMonitor(health.Config{
		Symbol:           a.cfg.Symbol,
		Token:            a.cfg.AccessToken,
		Interval:         a.cfg.HealthInterval,
		SilenceThreshold: a.cfg.SilenceThreshold,
	}, a.stream, throttled{a.notifier, "health"})

	reconciler.Startup(ctx)

	a.notifier.Send(ctx, "maker started: "+a.cfg.Symbol)

	var wg sync.WaitGroup
	for _, loop := range []func(context.Context){
		quoter.Run,
		manager.Run,
		reconciler.Run,
		monitor.Run,
		a.balanceLoop,
	} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(loop)
	}

	<-ctx.Done()
	logs.Info("shutdown signal received, stopping loops")
	wg.Wait()

	a.cleanup(quoter, manager)
	return nil
}

// balanceLoop reports the account balance periodically and journals it.
func (a *App) balanceLoop(ctx context.Context) {
	if a.cfg.BalanceReportInterval <= 0 {
		return
	}

	ticker := time.NewTicker(a.cfg.BalanceReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			balance, err := a.client.QueryBalance(ctx)
			if err != nil {
				logs.Warnf("query balance: %+v", err)
				continue
			}
			logs.Infof("balance: equity=%s upnl=%s locked=%s", balance.Equity, balance.Upnl, balance.Locked)
			a.journal.RecordBalance(a.cfg.Symbol, balance)
			a.notifier.Send(ctx, "balance report: equity "+balance.Equity+", upnl "+balance.Upnl)
		}
	}
}

// cleanup runs after every loop stopped: clear the book, flatten whatever
// position remains, close connections. Best effort under its own deadline.
func (a *App) cleanup(quoter *maker.Quoter, manager *guard.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	quoter.CancelAll(ctx)
	manager.Flatten(ctx)

	a.notifier.Send(ctx, "maker stopped: "+a.cfg.Symbol)

	a.stream.Close()
	a.journal.Close()
	logs.Info("cleanup finished")
}

// throttled adapts the notifier to the loop-facing Alerter interfaces with
// a per-concern throttle key.
type throttled struct {
	tg  *notify.Telegram
	key string
}

func (t throttled) Send(ctx context.Context, text string) bool {
	return t.tg.SendThrottled(ctx, t.key, alertWindow, text)
}
