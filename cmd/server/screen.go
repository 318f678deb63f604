package main

import (
	"log/slog"

	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/logger"
	"github.com/hperssn/kioskcheck/internal/runner"
)

// kioskScreen is the server side of the kiosk display. The browser follows
// the SSE stream; this records what it was told.
type kioskScreen struct {
	log *slog.Logger
}

func newKioskScreen(log *slog.Logger) *kioskScreen {
	return &kioskScreen{log: logger.OrDefault(log).With(logger.Component("screen"))}
}

func (s *kioskScreen) Navigate(sessionID string, to domain.Outcome) {
	s.log.Info("navigate",
		logger.SessionID(sessionID),
		slog.String("target", to.Target),
		slog.String("reason", to.Reason),
	)
}

func (s *kioskScreen) Notify(sessionID string, n runner.Notice) {
	s.log.Info("notice",
		logger.SessionID(sessionID),
		slog.String("level", string(n.Level)),
		slog.String("message", n.Message),
	)
}
