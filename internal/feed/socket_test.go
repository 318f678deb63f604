package feed_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/feed"
	"github.com/hperssn/kioskcheck/internal/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// drain keeps the server side open until the client goes away.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func collect(t *testing.T, events <-chan domain.Event, n int) []domain.Event {
	t.Helper()

	out := make([]domain.Event, 0, n)
	for len(out) < n {
		select {
		case ev := <-events:
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(out), n)
		}
	}
	return out
}

func TestSocketFeedDeliversFrames(t *testing.T) {
	t.Parallel()

	frames := []string{`{"temperature":"36.6"}`, `garbage`, `{"alcoholLevel":"normal"}`}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		drain(conn)
	}))
	defer server.Close()

	f := feed.NewSocketFeed(feed.SocketConfig{URL: wsURL(server), MaxReconnects: 1, ReconnectDelay: 10 * time.Millisecond}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan domain.Event, 8)
	_, err := f.Subscribe(ctx, func(ev domain.Event) { events <- ev })
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- f.Run(ctx) }()

	got := collect(t, events, 3)
	require.True(t, got[0].HasTemperature())
	assert.InDelta(t, 36.6, *got[0].Temperature, 1e-9)
	assert.True(t, got[1].Malformed)
	assert.Equal(t, domain.Normal, got[2].Alcohol)

	cancel()
	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSocketFeedReconnectsAfterDrop(t *testing.T) {
	t.Parallel()

	var connects atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if connects.Add(1) == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"temperature":"36.1"}`))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"temperature":"36.2"}`))
		drain(conn)
	}))
	defer server.Close()

	f := feed.NewSocketFeed(feed.SocketConfig{URL: wsURL(server), MaxReconnects: 3, ReconnectDelay: 10 * time.Millisecond}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan domain.Event, 8)
	_, err := f.Subscribe(ctx, func(ev domain.Event) { events <- ev })
	require.NoError(t, err)
	go func() { _ = f.Run(ctx) }()

	got := collect(t, events, 2)
	assert.InDelta(t, 36.1, *got[0].Temperature, 1e-9)
	assert.InDelta(t, 36.2, *got[1].Temperature, 1e-9)
	assert.GreaterOrEqual(t, connects.Load(), int32(2))
}

func TestSocketFeedGivesUpAfterMaxReconnects(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := feed.NewSocketFeed(feed.SocketConfig{URL: wsURL(server), MaxReconnects: 2, ReconnectDelay: 5 * time.Millisecond}, logger.Discard())

	err := f.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, feed.ErrReconnectsExhausted))
	assert.Equal(t, int32(3), hits.Load())
}

func TestSocketFeedUnsubscribe(t *testing.T) {
	t.Parallel()

	f := feed.NewSocketFeed(feed.SocketConfig{URL: "ws://127.0.0.1:1"}, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	detach, err := f.Subscribe(context.Background(), func(domain.Event) {})
	require.NoError(t, err)
	_, err = f.Subscribe(ctx, func(domain.Event) {})
	require.NoError(t, err)
	require.Equal(t, 2, f.Listeners())

	detach()
	detach()
	assert.Equal(t, 1, f.Listeners())

	cancel()
	assert.Eventually(t, func() bool { return f.Listeners() == 0 }, time.Second, 5*time.Millisecond)
}
