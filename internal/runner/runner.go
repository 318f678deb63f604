package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/logger"
	"github.com/hperssn/kioskcheck/internal/storage"
	"github.com/hperssn/kioskcheck/internal/submit"
)

var (
	ErrNotReady        = errors.New("measurement not complete")
	ErrMissingIdentity = errors.New("session has no face id")
	ErrSessionEnded    = errors.New("session already ended")
	ErrRunnerStopped   = errors.New("session runner stopped")
	ErrNoSubmitter     = errors.New("no submitter configured")
)

// Options configures a Runner. Zero values fall back to the fixed kiosk
// constants; only tests override StabilityTarget and IdleTimeout.
type Options struct {
	Table     SubscriptionTable
	Submitter Submitter
	Navigator Navigator
	Notifier  Notifier
	Results   ResultStore
	Logger    *slog.Logger

	StabilityTarget int
	IdleTimeout     time.Duration
	SubmitTimeout   time.Duration

	// Decay drops one stability tick per DecayGrace without a reading.
	Decay      bool
	DecayGrace time.Duration
}

func (o Options) withDefaults() Options {
	if o.StabilityTarget <= 0 {
		o.StabilityTarget = domain.StabilityTarget
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = domain.IdleTimeout
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = 10 * time.Second
	}
	if o.DecayGrace <= 0 {
		o.DecayGrace = 2 * time.Second
	}
	if o.Submitter == nil {
		o.Submitter = SubmitterFunc(func(context.Context, submit.Payload) error { return ErrNoSubmitter })
	}
	o.Logger = logger.OrDefault(o.Logger)
	return o
}

type (
	message interface{}

	feedMsg struct {
		token uint64
		event domain.Event
	}
	timeoutMsg struct {
		gen uint64
	}
	decayMsg struct {
		at time.Time
	}
	finalizeMsg struct {
		reply chan error
	}
	submitDoneMsg struct {
		attempt int
		err     error
	}
)

// effects run on the loop goroutine after the session lock is released, in
// order. Navigation is always queued after teardown has happened.
type effects []func()

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}

// Runner owns one session. Feeds, the idle timer, the decay ticker and
// manual finalize calls only enqueue messages; a single loop goroutine
// applies them to the session under mu.
type Runner struct {
	mu      sync.Mutex
	session *domain.Session
	opts    Options
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan message
	events chan Update
	done   chan struct{}
	start  sync.Once

	stability   domain.Stability
	reconciler  *Reconciler
	guard       *Guard
	subs        *subscriptions
	lastReading time.Time
	stopDecay   context.CancelFunc
	attempts    int
}

func NewSessionRunner(s *domain.Session, opts Options) *Runner {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runner{
		session:    s,
		opts:       opts,
		log:        opts.Logger.With(logger.Component("runner"), logger.SessionID(s.ID)),
		ctx:        ctx,
		cancel:     cancel,
		inbox:      make(chan message, 64),
		events:     make(chan Update, 64),
		done:       make(chan struct{}),
		stability:  domain.NewStability(opts.StabilityTarget, opts.Decay),
		reconciler: NewReconciler(),
		stopDecay:  func() {},
	}
	r.guard = NewGuard(opts.IdleTimeout, func(gen uint64) { r.post(timeoutMsg{gen: gen}) })
	r.subs = newSubscriptions(ctx, opts.Table, func(token uint64, ev domain.Event) {
		r.post(feedMsg{token: token, event: ev})
	}, r.log)
	return r
}

// Start launches the loop. It is safe to call more than once.
func (r *Runner) Start() {
	r.start.Do(func() { go r.run() })
}

// Stop abandons the session without navigating.
func (r *Runner) Stop() {
	r.cancel()
}

// Done is closed once the loop has exited after Stop.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

func (r *Runner) Events() <-chan Update {
	return r.events
}

// Session returns a copy of the current session state.
func (r *Runner) Session() *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := *r.session
	snap.Stages = append([]domain.StageMark(nil), r.session.Stages...)
	if r.session.Outcome != nil {
		outcome := *r.session.Outcome
		snap.Outcome = &outcome
	}
	return &snap
}

// Finalize asks the loop to submit the result. It is the manual retry path
// after a failed submission and is a no-op once a submission is in flight
// or has succeeded.
func (r *Runner) Finalize(ctx context.Context) error {
	reply := make(chan error, 1)
	if !r.post(finalizeMsg{reply: reply}) {
		return ErrRunnerStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRunnerStopped
	}
}

func (r *Runner) post(m message) bool {
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Runner) run() {
	defer close(r.done)

	r.mu.Lock()
	r.begin()
	r.mu.Unlock()

	for {
		select {
		case <-r.ctx.Done():
			r.mu.Lock()
			r.shutdown()
			r.mu.Unlock()
			return

		case m := <-r.inbox:
			r.mu.Lock()
			fx := r.handle(m)
			r.mu.Unlock()
			fx.run()
		}
	}
}

func (r *Runner) begin() {
	r.lastReading = time.Now()
	r.guard.Rearm()
	r.subs.install(r.session.Stage)
	r.startDecay()
	r.log.Info("session started", logger.Stage(string(r.session.Stage)))
}

func (r *Runner) shutdown() {
	r.subs.teardownAll()
	r.guard.Disarm()
	r.stopDecay()
	r.log.Info("session runner stopped", logger.Stage(string(r.session.Stage)))
}

func (r *Runner) handle(m message) effects {
	switch m := m.(type) {
	case feedMsg:
		return r.onEvent(m)
	case timeoutMsg:
		return r.onTimeout(m.gen)
	case decayMsg:
		r.onDecay(m.at)
	case finalizeMsg:
		fx, err := r.finalize()
		m.reply <- err
		return fx
	case submitDoneMsg:
		return r.onSubmitted(m)
	}
	return nil
}

func (r *Runner) onEvent(m feedMsg) effects {
	ev := m.event
	if !r.subs.isActive(m.token) {
		r.log.Debug("dropping event from detached listener", logger.Feed(ev.Source))
		return nil
	}
	s := r.session
	if s.Submitted || !s.Stage.Measuring() {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	s.LastEventAt = at
	r.guard.Rearm()

	switch s.Stage {
	case domain.StageTemperature:
		return r.onTemperature(ev, at)
	case domain.StageAlcohol:
		return r.onAlcohol(m.token, ev, at)
	}
	return nil
}

func (r *Runner) onTemperature(ev domain.Event, at time.Time) effects {
	if ev.Malformed || !ev.HasTemperature() {
		r.log.Debug("no temperature in event", logger.Feed(ev.Source), slog.Bool("malformed", ev.Malformed))
		return nil
	}

	r.session.Temperature = *ev.Temperature
	r.session.HasTemperature = true
	r.tick(at)

	if r.stability.Stable() {
		return r.advance(domain.StageTemperature)
	}
	return nil
}

func (r *Runner) onAlcohol(token uint64, ev domain.Event, at time.Time) effects {
	if ev.Malformed {
		r.log.Debug("malformed event on alcohol stage", logger.Feed(ev.Source))
		return nil
	}

	if c, won := r.reconciler.Offer(ev); won {
		r.session.Alcohol = c
		r.session.AlcoholSource = ev.Source
		r.subs.detachOthers(domain.StageAlcohol, token)
		r.log.Info("alcohol classified", logger.Feed(ev.Source), slog.String("alcohol_level", string(c)))
	} else if ev.Classified() {
		r.log.Debug("ignoring late classification",
			logger.Feed(ev.Source),
			slog.String("alcohol_level", string(ev.Alcohol)),
			slog.String("kept", string(r.reconciler.Result())),
		)
	}

	r.tick(at)

	if r.reconciler.Resolved() && r.stability.Stable() {
		return r.advance(domain.StageAlcohol)
	}
	return nil
}

// tick publishes progress only when the count moves; capped readings do not.
func (r *Runner) tick(at time.Time) {
	before := r.stability.Count()
	r.lastReading = at
	if r.stability.Tick() == before {
		return
	}
	r.syncStability()
	r.publish(UpdateProgress)
}

func (r *Runner) onDecay(at time.Time) {
	if !r.session.Stage.Measuring() || at.Sub(r.lastReading) < r.opts.DecayGrace {
		return
	}
	before := r.stability.Count()
	if r.stability.Decay() != before {
		r.syncStability()
		r.publish(UpdateProgress)
	}
}

// advance leaves stage from. The current stage is checked first so a
// duplicate trigger cannot advance twice.
func (r *Runner) advance(from domain.Stage) effects {
	s := r.session
	if s.Stage != from {
		return nil
	}

	next := from.Next()
	r.subs.teardown(from)
	r.stability.Reset()
	r.syncStability()

	if next == domain.StageDone {
		return r.complete()
	}

	now := time.Now()
	s.Enter(next, now)
	r.lastReading = now
	r.subs.install(next)
	r.log.Info("stage advanced", slog.String("from", string(from)), logger.Stage(string(next)))
	r.publish(UpdateStage)
	return nil
}

// complete ends measurement and hands over to the gatekeeper.
func (r *Runner) complete() effects {
	if !r.session.Enter(domain.StageDone, time.Now()) {
		return nil
	}
	r.subs.teardownAll()
	r.guard.Disarm()
	r.stopDecay()
	r.log.Info("measurement complete",
		slog.Float64("temperature", r.session.Temperature),
		slog.String("alcohol_level", string(r.session.Alcohol)),
	)
	r.publish(UpdateStage)

	fx, err := r.finalize()
	if err != nil {
		r.log.Warn("finalize after measurement failed", logger.Error(err))
	}
	return fx
}

func (r *Runner) onTimeout(gen uint64) effects {
	if !r.guard.Fire(gen) {
		return nil
	}
	r.log.Warn("no sensor event within idle timeout",
		logger.Duration(r.opts.IdleTimeout),
		logger.Stage(string(r.session.Stage)),
	)
	return r.fail(ReasonTimeout, MessageTimeout)
}

// fail moves the session to FAILED and routes back to the entry screen.
// Listeners and timers are gone before the navigation effect runs.
func (r *Runner) fail(reason, message string) effects {
	s := r.session
	if s.Submitted || !s.Enter(domain.StageFailed, time.Now()) {
		return nil
	}

	r.subs.teardownAll()
	r.guard.Disarm()
	r.stopDecay()

	s.FailureReason = reason
	s.FinishedAt = time.Now()
	s.Outcome = &domain.Outcome{Target: domain.TargetEntry, Reason: reason}
	r.log.Info("session failed", slog.String("reason", reason))

	notice := Notice{Level: NoticeError, Message: message}
	r.publishNotice(notice)
	r.publishNavigation()

	return append(r.notify(notice), r.terminalEffects()...)
}

func (r *Runner) startDecay() {
	if !r.opts.Decay {
		return
	}
	ctx, cancel := context.WithCancel(r.ctx)
	r.stopDecay = cancel

	go func() {
		ticker := time.NewTicker(r.opts.DecayGrace)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.post(decayMsg{at: now})
			}
		}
	}()
}

func (r *Runner) syncStability() {
	r.session.StabilityCount = r.stability.Count()
	r.session.Progress = r.stability.Progress()
}

func (r *Runner) update(kind UpdateKind) Update {
	s := r.session
	return Update{
		Kind:           kind,
		SessionID:      s.ID,
		Stage:          s.Stage,
		StabilityCount: s.StabilityCount,
		Progress:       s.Progress,
		Temperature:    s.Temperature,
		Alcohol:        s.Alcohol,
	}
}

func (r *Runner) publish(kind UpdateKind) {
	r.send(r.update(kind))
}

func (r *Runner) publishNotice(n Notice) {
	u := r.update(UpdateNotice)
	u.Notice = &n
	r.send(u)
}

func (r *Runner) publishNavigation() {
	u := r.update(UpdateNavigate)
	outcome := *r.session.Outcome
	u.Navigation = &outcome
	r.send(u)
}

// send never blocks. When nobody drains the stream, a progress frame is
// dropped; any other update evicts the oldest buffered frame instead. The
// loop is the only sender, so one eviction always frees a slot.
func (r *Runner) send(u Update) {
	select {
	case r.events <- u:
		return
	default:
	}

	if u.Kind == UpdateProgress {
		r.log.Debug("update dropped", slog.String("kind", string(u.Kind)))
		return
	}

	select {
	case old := <-r.events:
		r.log.Debug("update evicted", slog.String("kind", string(old.Kind)), slog.String("for", string(u.Kind)))
	default:
	}
	select {
	case r.events <- u:
	default:
		r.log.Warn("update dropped", slog.String("kind", string(u.Kind)))
	}
}

func (r *Runner) notify(n Notice) effects {
	if r.opts.Notifier == nil {
		return nil
	}
	id := r.session.ID
	return effects{func() { r.opts.Notifier.Notify(id, n) }}
}

// terminalEffects records the result and then navigates, once.
func (r *Runner) terminalEffects() effects {
	snapshot := *r.session
	snapshot.Stages = append([]domain.StageMark(nil), r.session.Stages...)
	outcome := *r.session.Outcome

	var fx effects
	if r.opts.Results != nil {
		fx = append(fx, func() {
			if err := r.opts.Results.SaveResult(storage.FromDomainSession(&snapshot)); err != nil {
				r.log.Error("failed to record result", logger.Error(err))
			}
		})
	}
	if r.opts.Navigator != nil {
		fx = append(fx, func() { r.opts.Navigator.Navigate(snapshot.ID, outcome) })
	}
	return fx
}
