package runner

import (
	"context"
	"log/slog"

	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/feed"
	"github.com/hperssn/kioskcheck/internal/logger"
)

// SubscriptionTable lists the feeds a session listens to in each stage.
type SubscriptionTable map[domain.Stage][]feed.Source

// DefaultTable listens to the socket for temperature, and races the socket
// against the push feed for the alcohol classification.
func DefaultTable(socket, push feed.Source) SubscriptionTable {
	return SubscriptionTable{
		domain.StageTemperature: {socket},
		domain.StageAlcohol:     {socket, push},
	}
}

type subscription struct {
	stage  domain.Stage
	source string
	cancel context.CancelFunc
}

// subscriptions tracks the listeners installed for a runner. Every listener
// is identified by a token; the runner drops events whose token is no longer
// active, so nothing delivered after a teardown can reach the session.
type subscriptions struct {
	table   SubscriptionTable
	parent  context.Context
	deliver func(token uint64, ev domain.Event)
	log     *slog.Logger

	next   uint64
	active map[uint64]*subscription
}

func newSubscriptions(parent context.Context, table SubscriptionTable, deliver func(uint64, domain.Event), log *slog.Logger) *subscriptions {
	return &subscriptions{
		table:   table,
		parent:  parent,
		deliver: deliver,
		log:     log,
		active:  make(map[uint64]*subscription),
	}
}

// install attaches every feed listed for stage. Attaching happens off the
// loop because a feed may do network I/O to subscribe.
func (s *subscriptions) install(stage domain.Stage) {
	for _, src := range s.table[stage] {
		s.next++
		token := s.next
		ctx, cancel := context.WithCancel(s.parent)
		s.active[token] = &subscription{stage: stage, source: src.Name(), cancel: cancel}
		go s.attach(ctx, token, src)
	}
}

func (s *subscriptions) attach(ctx context.Context, token uint64, src feed.Source) {
	name := src.Name()
	detach, err := src.Subscribe(ctx, func(ev domain.Event) {
		if ev.Source == "" {
			ev.Source = name
		}
		s.deliver(token, ev)
	})
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("feed subscribe failed", logger.Feed(name), logger.Error(err))
		}
		return
	}
	<-ctx.Done()
	detach()
}

func (s *subscriptions) isActive(token uint64) bool {
	_, ok := s.active[token]
	return ok
}

func (s *subscriptions) teardown(stage domain.Stage) {
	for token, sub := range s.active {
		if sub.stage == stage {
			sub.cancel()
			delete(s.active, token)
		}
	}
}

// detachOthers keeps only the listener identified by keep for stage.
func (s *subscriptions) detachOthers(stage domain.Stage, keep uint64) {
	for token, sub := range s.active {
		if sub.stage == stage && token != keep {
			s.log.Debug("detaching losing feed", logger.Feed(sub.source))
			sub.cancel()
			delete(s.active, token)
		}
	}
}

func (s *subscriptions) teardownAll() {
	for token, sub := range s.active {
		sub.cancel()
		delete(s.active, token)
	}
}

func (s *subscriptions) count() int {
	return len(s.active)
}
