// Package feed delivers decoded sensor events from the kiosk's two real-time
// sources: the sensor websocket and the redis push channel that mirrors the
// alcohol_value database node.
package feed

import (
	"context"
	"errors"

	"github.com/hperssn/kioskcheck/internal/domain"
)

var (
	ErrReconnectsExhausted = errors.New("socket feed: reconnect attempts exhausted")
	ErrRedisNotReady       = errors.New("push feed: redis did not become ready")
	ErrEmptyRedisURL       = errors.New("push feed: empty redis url")
)

const (
	SocketFeedName = "socket"
	PushFeedName   = "push"
)

// Listener receives decoded events. It is called from the feed's own
// goroutine and must not block for long.
type Listener func(domain.Event)

// Source is a feed that listeners can attach to and detach from.
//
// Subscribe registers l until the returned cancel func is called or ctx is
// done. Cancel is idempotent and does not wait for in-flight deliveries.
type Source interface {
	Name() string
	Subscribe(ctx context.Context, l Listener) (cancel func(), err error)
}
