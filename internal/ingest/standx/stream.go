package standx

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"main/pkg/exception"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"
)

// Stream is the push channel to the venue. It owns one websocket
// connection, decodes every frame into the event union and hands events to
// a single handler. Reconnect is driven from outside: Close then Connect,
// then re-issue the subscribe/auth handshakes.
type Stream struct {
	appCtx  context.Context
	url     string
	handler func(Event)

	mu  sync.Mutex
	wss *ws.WebSocket

	connected     atomic.Bool
	lastMessageAt atomic.Int64
}

// NewStream builds a disconnected stream. url may be empty to use the
// production endpoint.
func NewStream(ctx context.Context, url string, handler func(Event)) *Stream {
	if url == "" {
		url = _standxBaseWsUrl
	}

	return &Stream{
		appCtx:  ctx,
		url:     url,
		handler: handler,
	}
}

// Connect dials the push endpoint and starts the dispatch loop. A previous
// connection, if any, is closed first.
func (s *Stream) Connect(ctx context.Context) error {
	if s == nil {
		return exception.ErrNilInstance
	}

	s.mu.Lock()
	if s.wss != nil {
		s.wss.Close()
	}
	s.wss = ws.New(s.appCtx, s.url)
	wss := s.wss
	s.mu.Unlock()

	if err := wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}

	s.connected.Store(true)
	s.lastMessageAt.Store(time.Now().UnixNano())
	s.observe(ctx, wss)
	return nil
}

func (s *Stream) observe(ctx context.Context, wss *ws.WebSocket) {
	ch, cancel := wss.Subscribe()

	go func() {
		defer cancel()
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-s.appCtx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					s.connected.Store(false)
					return
				}

				s.lastMessageAt.Store(time.Now().UnixNano())

				env, ok := ws.ReadMessage[Envelope](m)
				if !ok {
					continue
				}

				ev, ok, err := DecodeEvent(env)
				if err != nil {
					logs.Errorf("decode push event, channel: %s, err: %+v", env.Channel, err)
					continue
				}
				if !ok {
					continue
				}

				if s.handler != nil {
					s.handler(ev)
				}
			}
		}
	}()
}

// SubscribeDepth subscribes the depth_book channel for one symbol and waits
// for the first snapshot as confirmation.
func (s *Stream) SubscribeDepth(ctx context.Context, symbol string) error {
	wss := s.socket()
	if wss == nil {
		return exception.ErrStreamNotConnected
	}

	if err := wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			if err := client.WriteJSON(map[string]any{
				"subscribe": map[string]any{
					"channel": ChannelDepthBook,
					"symbol":  symbol,
				},
			}); err != nil {
				return errors.Wrap(err, "write subscribe depth payload")
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			env, ok := ws.ReadMessage[Envelope](m)
			if !ok || env.Channel != ChannelDepthBook || env.Symbol != symbol {
				return false, nil
			}

			return true, nil
		},
	}); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

// Authenticate presents the account token and subscribes the given private
// channels. It fails when the venue answers with a non-success code.
func (s *Stream) Authenticate(ctx context.Context, token string, channels []string) error {
	wss := s.socket()
	if wss == nil {
		return exception.ErrStreamNotConnected
	}

	streams := make([]map[string]string, 0, len(channels))
	for _, c := range channels {
		streams = append(streams, map[string]string{"channel": c})
	}

	if err := wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, client *ws.WebSocket) error {
			if err := client.WriteJSON(map[string]any{
				"auth": map[string]any{
					"token":   token,
					"streams": streams,
				},
			}); err != nil {
				return errors.Wrap(err, "write auth payload")
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			env, ok := ws.ReadMessage[Envelope](m)
			if !ok || env.Channel != ChannelAuth {
				return false, nil
			}

			ev, ok, err := DecodeEvent(env)
			if err != nil || !ok {
				return false, errors.Wrap(exception.ErrStreamAuthFailed, "unreadable auth response")
			}
			if !ev.Auth.OK() {
				return false, errors.Wrapf(exception.ErrStreamAuthFailed, "code: %d, message: %s", ev.Auth.Code, ev.Auth.Message)
			}

			return true, nil
		},
	}); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

// Connected reports whether the dispatch loop believes the connection is up.
func (s *Stream) Connected() bool {
	return s != nil && s.connected.Load()
}

// SilentFor returns the time elapsed since any frame arrived.
func (s *Stream) SilentFor() time.Duration {
	last := s.lastMessageAt.Load()
	if last == 0 {
		return 0
	}
	return time.Since(time.Unix(0, last))
}

// Close tears down the connection. Safe to call repeatedly.
func (s *Stream) Close() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.wss != nil {
		s.wss.Close()
		s.wss = nil
	}
	s.connected.Store(false)
}

func (s *Stream) socket() *ws.WebSocket {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wss
}
