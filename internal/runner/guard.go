package runner

import "time"

// Guard is the idle deadline of a session. Every accepted event rearms it;
// when the deadline passes the timer calls onFire with the generation it was
// scheduled under, and the owner confirms through Fire.
//
// Guard is not safe for concurrent use. Only the runner loop touches it; the
// timer goroutine only calls onFire.
type Guard struct {
	timeout time.Duration
	onFire  func(gen uint64)

	timer *time.Timer
	gen   uint64
	armed bool
	fired bool
}

func NewGuard(timeout time.Duration, onFire func(gen uint64)) *Guard {
	return &Guard{timeout: timeout, onFire: onFire}
}

// Rearm cancels any pending deadline and schedules a new one. It does
// nothing once the guard has fired.
func (g *Guard) Rearm() {
	if g.fired {
		return
	}
	g.stop()
	g.gen++
	gen := g.gen
	g.armed = true
	g.timer = time.AfterFunc(g.timeout, func() { g.onFire(gen) })
}

// Disarm cancels the pending deadline. A timer that already fired for an
// older generation is rejected by Fire.
func (g *Guard) Disarm() {
	g.stop()
	g.armed = false
	g.gen++
}

// Fire reports whether a deadline for gen should fail the session. It
// returns true at most once over the guard's lifetime.
func (g *Guard) Fire(gen uint64) bool {
	if !g.armed || g.fired || gen != g.gen {
		return false
	}
	g.fired = true
	g.armed = false
	g.timer = nil
	return true
}

func (g *Guard) Fired() bool {
	return g.fired
}

func (g *Guard) Armed() bool {
	return g.armed
}

func (g *Guard) stop() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
