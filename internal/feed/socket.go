package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/logger"
)

type SocketConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
}

// SocketFeed keeps one websocket connection to the sensor and fans every
// frame out to the current listeners.
type SocketFeed struct {
	cfg    SocketConfig
	dialer *websocket.Dialer
	log    *slog.Logger

	mu        sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64
}

func NewSocketFeed(cfg SocketConfig, log *slog.Logger) *SocketFeed {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}

	return &SocketFeed{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log:       logger.OrDefault(log).With(logger.Component("feed.socket")),
		listeners: make(map[uint64]Listener),
	}
}

func (f *SocketFeed) Name() string {
	return SocketFeedName
}

// Subscribe never touches the network; the connection is owned by Run.
func (f *SocketFeed) Subscribe(ctx context.Context, l Listener) (func(), error) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.listeners[id] = l
	f.mu.Unlock()

	var once sync.Once
	detach := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, detach)

	return func() {
		stop()
		detach()
	}, nil
}

// Listeners returns the number of attached listeners.
func (f *SocketFeed) Listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// Run connects and reads until ctx is done. A dropped connection is retried
// after a fixed delay; after MaxReconnects consecutive failures Run gives up
// with ErrReconnectsExhausted.
func (f *SocketFeed) Run(ctx context.Context) error {
	failures := 0

	for {
		conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
		if err == nil {
			f.log.Info("sensor socket connected", slog.String("url", f.cfg.URL))
			failures = 0
			err = f.read(ctx, conn)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		if failures > f.cfg.MaxReconnects {
			f.log.Error("sensor socket gave up", logger.RetryCount(failures), logger.Error(err))
			return fmt.Errorf("%w: %w", ErrReconnectsExhausted, err)
		}

		f.log.Warn("sensor socket lost, reconnecting",
			logger.RetryCount(failures),
			logger.Duration(f.cfg.ReconnectDelay),
			logger.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

func (f *SocketFeed) read(ctx context.Context, conn *websocket.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.dispatch(DecodeSocket(SocketFeedName, data, time.Now()))
	}
}

func (f *SocketFeed) dispatch(ev domain.Event) {
	f.mu.Lock()
	ls := make([]Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()

	if ev.Malformed {
		f.log.Debug("malformed sensor frame")
	}
	for _, l := range ls {
		l(ev)
	}
}
