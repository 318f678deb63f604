package domain

// Stability counts accepted readings for the active stage, capped at the
// target. It never advances a stage itself.
type Stability struct {
	count  int
	target int
	decay  bool
}

func NewStability(target int, decay bool) Stability {
	if target <= 0 {
		target = StabilityTarget
	}
	return Stability{target: target, decay: decay}
}

// Tick records one accepted reading and returns the new count.
func (s *Stability) Tick() int {
	if s.count < s.target {
		s.count++
	}
	return s.count
}

// Decay drops one tick after a missed reading window. It is a no-op unless
// decay was enabled.
func (s *Stability) Decay() int {
	if s.decay && s.count > 0 {
		s.count--
	}
	return s.count
}

func (s *Stability) Reset() {
	s.count = 0
}

func (s Stability) Count() int {
	return s.count
}

func (s Stability) Target() int {
	return s.target
}

// Progress is the fraction of the target reached, in [0,1].
func (s Stability) Progress() float64 {
	return float64(s.count) / float64(s.target)
}

func (s Stability) Stable() bool {
	return s.count >= s.target
}
