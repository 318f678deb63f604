package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is where the kiosk was sent when the session ended.
type Outcome struct {
	Target       string         `json:"target"`
	Temperature  float64        `json:"temperature,omitempty"`
	AlcoholLevel Classification `json:"alcoholLevel,omitempty"`
	Reason       string         `json:"reason,omitempty"`
}

const (
	TargetCompletion = "completion"
	TargetEntry      = "entry"
)

// StageMark records when a session entered a stage.
type StageMark struct {
	Stage     Stage     `json:"stage"`
	EnteredAt time.Time `json:"enteredAt"`
}

// Session is one user attempt at the health check.
type Session struct {
	ID      string `json:"id"`
	FaceID  string `json:"faceId"`
	KioskID string `json:"kioskId"`

	Stage          Stage   `json:"stage"`
	StabilityCount int     `json:"stabilityCount"`
	Progress       float64 `json:"progress"`

	Temperature    float64        `json:"temperature"`
	HasTemperature bool           `json:"hasTemperature"`
	Alcohol        Classification `json:"alcoholLevel"`
	AlcoholSource  string         `json:"alcoholSource,omitempty"`

	StartedAt   time.Time `json:"startedAt"`
	LastEventAt time.Time `json:"lastEventAt,omitzero"`
	FinishedAt  time.Time `json:"finishedAt,omitzero"`

	Stages []StageMark `json:"stages"`

	Submitted      bool      `json:"submitted"`
	SubmitFailedAt time.Time `json:"submitFailedAt,omitzero"`
	FailureReason  string    `json:"failureReason,omitempty"`
	Outcome        *Outcome  `json:"outcome,omitempty"`
}

// NewSession creates a session on the first measurement stage. An empty id
// gets a generated one; faceID is the identity produced by the preceding
// face-match step and may be empty if that step did not run.
func NewSession(id, faceID, kioskID string) *Session {
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now()
	return &Session{
		ID:        id,
		FaceID:    faceID,
		KioskID:   kioskID,
		Stage:     Sequence[0],
		Alcohol:   Undetermined,
		StartedAt: now,
		Stages:    []StageMark{{Stage: Sequence[0], EnteredAt: now}},
	}
}

// Enter moves the session to stage and records the mark. It refuses to go
// backwards, and refuses everything once the session has navigated away.
// A DONE session that has not navigated may still move to FAILED.
func (s *Session) Enter(stage Stage, at time.Time) bool {
	if s.Ended() || !s.Stage.Before(stage) {
		return false
	}
	s.Stage = stage
	s.Stages = append(s.Stages, StageMark{Stage: stage, EnteredAt: at})
	return true
}

// Completed reports whether the session ended on the completion screen.
func (s *Session) Completed() bool {
	return s.Outcome != nil && s.Outcome.Target == TargetCompletion
}

// Abandoned reports whether the session has sat in DONE with its last
// submit failed since before cutoff, with nobody retrying.
func (s *Session) Abandoned(cutoff time.Time) bool {
	return s.Stage == StageDone && !s.Ended() && !s.Submitted &&
		!s.SubmitFailedAt.IsZero() && s.SubmitFailedAt.Before(cutoff)
}

// Ended reports whether the session has navigated away.
func (s *Session) Ended() bool {
	return s.Outcome != nil
}
