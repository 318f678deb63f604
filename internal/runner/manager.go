package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/logger"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

type SessionManager struct {
	mu        sync.Mutex
	sessions  map[string]*Runner
	opts      Options
	retention time.Duration
	stop      chan struct{}
	closeOnce sync.Once
}

// NewSessionManager runs every session with opts. Ended sessions stay
// readable for retention before the cleanup loop drops them; so does a DONE
// session whose failed submit nobody retried.
func NewSessionManager(opts Options, retention time.Duration) *SessionManager {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	m := &SessionManager{
		sessions:  make(map[string]*Runner),
		opts:      opts,
		retention: retention,
		stop:      make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

func (m *SessionManager) cleanupLoop() {
	interval := m.retention / 2
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanupOldSessions()
		}
	}
}

func (m *SessionManager) cleanupOldSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.retention)

	for id, runner := range m.sessions {
		sess := runner.Session()
		if (sess.Ended() && sess.FinishedAt.Before(cutoff)) || sess.Abandoned(cutoff) {
			runner.Stop()
			delete(m.sessions, id)
		}
	}
}

func (m *SessionManager) Events(id string) (<-chan Update, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.sessions[id]
	if !ok {
		return nil, false
	}

	return r.Events(), true
}

// StartSession registers s and starts measuring immediately.
func (m *SessionManager) StartSession(s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return ErrSessionExists
	}

	r := NewSessionRunner(s, m.opts)
	m.sessions[s.ID] = r
	r.Start()

	logger.OrDefault(m.opts.Logger).Info("session registered",
		logger.SessionID(s.ID),
		logger.Count("active_sessions", len(m.sessions)),
	)
	return nil
}

// StopSession abandons a session without navigating and forgets it.
func (m *SessionManager) StopSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}

	r.Stop()
	delete(m.sessions, id)
	return nil
}

// Finalize is the manual submit trigger for a session.
func (m *SessionManager) Finalize(ctx context.Context, id string) error {
	m.mu.Lock()
	r, exists := m.sessions[id]
	m.mu.Unlock()

	if !exists {
		return ErrSessionNotFound
	}
	return r.Finalize(ctx)
}

func (m *SessionManager) GetSession(id string) (*domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.sessions[id]
	if !exists {
		return nil, false
	}
	return r.Session(), true
}

// Close stops every session and the cleanup loop.
func (m *SessionManager) Close() {
	m.closeOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.sessions {
		r.Stop()
		delete(m.sessions, id)
	}
}
