package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hperssn/kioskcheck/internal/logger"
)

type RedisConfig struct {
	URL             string
	ConnectAttempts int
	ConnectInterval time.Duration
}

// ConnectRedis parses the url, then pings until the server answers or the
// attempts run out.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyRedisURL
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 1
	}

	client := redis.NewClient(opts)
	for attempt := 1; ; attempt++ {
		err = client.Ping(ctx).Err()
		if err == nil {
			return client, nil
		}
		if attempt >= cfg.ConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(cfg.ConnectInterval):
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("%w: %w", ErrRedisNotReady, err)
}

// PushFeed listens on a redis pub/sub channel that carries the
// alcohol_value node whenever the database side changes it.
type PushFeed struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

func NewPushFeed(client *redis.Client, channel string, log *slog.Logger) *PushFeed {
	return &PushFeed{
		client:  client,
		channel: channel,
		log:     logger.OrDefault(log).With(logger.Component("feed.push")),
	}
}

func (f *PushFeed) Name() string {
	return PushFeedName
}

// Subscribe opens a dedicated pub/sub connection per listener and waits for
// the subscription to be confirmed.
func (f *PushFeed) Subscribe(ctx context.Context, l Listener) (func(), error) {
	ps := f.client.Subscribe(ctx, f.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}

	ch := ps.Channel()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ev := DecodePush(PushFeedName, []byte(msg.Payload), time.Now())
				if ev.Malformed {
					f.log.Debug("malformed alcohol_value payload", slog.String("channel", msg.Channel))
				}
				l(ev)
			}
		}
	}()

	return cancel, nil
}

// Publish writes a payload to the feed's channel. The kiosk never publishes
// in production; the sensor bridge and tests do.
func (f *PushFeed) Publish(ctx context.Context, payload []byte) error {
	return f.client.Publish(ctx, f.channel, payload).Err()
}
