package health

import (
	"context"
	"sync/atomic"
	"time"

	"main/internal/ingest/standx"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	defaultInterval  = 5 * time.Second
	defaultSilence   = 30 * time.Second
	handshakeTimeout = 10 * time.Second
)

// Connection is the push-channel surface the monitor watches and repairs.
type Connection interface {
	Connected() bool
	SilentFor() time.Duration
	Connect(ctx context.Context) error
	SubscribeDepth(ctx context.Context, symbol string) error
	Authenticate(ctx context.Context, token string, channels []string) error
	Close()
}

// Alerter pushes human-facing messages, best effort.
type Alerter interface {
	Send(ctx context.Context, text string) bool
}

// Config tunes the health monitor.
type Config struct {
	Symbol string

	// Token authenticates the private channels after a reconnect. Empty
	// means the stream runs public only.
	Token string

	Interval time.Duration

	// SilenceThreshold is how long the stream may stay frame-less before it
	// counts as dead.
	SilenceThreshold time.Duration
}

// Monitor watches the push connection and rebuilds it when it goes silent
// or drops. Reconnects are single flight; a failed attempt is retried on
// the next tick and is never fatal.
type Monitor struct {
	cfg     Config
	conn    Connection
	alerter Alerter

	reconnecting atomic.Bool
}

// NewMonitor builds a health monitor. alerter may be nil.
func NewMonitor(cfg Config, conn Connection, alerter Alerter) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = defaultSilence
	}

	return &Monitor{
		cfg:     cfg,
		conn:    conn,
		alerter: alerter,
	}
}

// check runs one health evaluation and reports whether a reconnect was
// attempted.
func (m *Monitor) check(ctx context.Context) bool {
	silent := m.conn.SilentFor()
	healthy := m.conn.Connected() && silent < m.cfg.SilenceThreshold
	if healthy {
		return false
	}

	if !m.reconnecting.CompareAndSwap(false, true) {
		return false
	}
	defer m.reconnecting.Store(false)

	logs.Warnf("stream unhealthy: connected=%t, silent for %s, reconnecting",
		m.conn.Connected(), silent.Round(time.Second))

	if err := m.reconnect(ctx); err != nil {
		logs.Errorf("reconnect failed, retrying next tick: %+v", err)
		if m.alerter != nil {
			m.alerter.Send(ctx, "stream reconnect failed")
		}
		return true
	}

	logs.Info("stream reconnected")
	return true
}

func (m *Monitor) reconnect(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	m.conn.Close()

	if err := m.conn.Connect(hctx); err != nil {
		return errors.Wrap(err, "connect")
	}
	if err := m.conn.SubscribeDepth(hctx, m.cfg.Symbol); err != nil {
		return errors.Wrap(err, "resubscribe depth")
	}
	if m.cfg.Token != "" {
		channels := []string{standx.ChannelOrder, standx.ChannelPosition}
		if err := m.conn.Authenticate(hctx, m.cfg.Token, channels); err != nil {
			return errors.Wrap(err, "reauthenticate")
		}
	}
	return nil
}

// Run is the monitoring loop.
func (m *Monitor) Run(ctx context.Context) {
	logs.Infof("health monitor started, interval %s, silence threshold %s",
		m.cfg.Interval, m.cfg.SilenceThreshold)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logs.Info("health monitor stopped")
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}
