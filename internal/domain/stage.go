package domain

import "time"

// Stage is one phase of a health-check session. Measurement stages run in
// the order given by Sequence; Done and Failed are terminal.
type Stage string

const (
	StageTemperature Stage = "TEMPERATURE"
	StageAlcohol     Stage = "ALCOHOL"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

const (
	// StabilityTarget is the number of accepted readings a stage needs.
	StabilityTarget = 7

	// IdleTimeout is how long a session may go without any feed event.
	IdleTimeout = 15 * time.Second
)

// Sequence is the fixed order of measurement stages.
var Sequence = []Stage{StageTemperature, StageAlcohol}

// Next returns the stage that follows s. The last measurement stage is
// followed by StageDone; terminal stages return themselves.
func (s Stage) Next() Stage {
	for i, st := range Sequence {
		if st != s {
			continue
		}
		if i+1 < len(Sequence) {
			return Sequence[i+1]
		}
		return StageDone
	}
	return s
}

func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Measuring reports whether s is one of the measurement stages.
func (s Stage) Measuring() bool {
	return s.order() < len(Sequence)
}

// Before reports whether s comes strictly earlier than other. Failed sorts
// after every other stage so that any stage may move to it.
func (s Stage) Before(other Stage) bool {
	return s.order() < other.order()
}

func (s Stage) order() int {
	for i, st := range Sequence {
		if st == s {
			return i
		}
	}
	switch s {
	case StageDone:
		return len(Sequence)
	case StageFailed:
		return len(Sequence) + 1
	}
	return -1
}
