package storage

import (
	"time"

	"github.com/hperssn/kioskcheck/internal/domain"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// ResultRecord is what the results screen and the history reports read
// after the kiosk has navigated away from a session.
type ResultRecord struct {
	SessionID    string                `json:"sessionId"`
	FaceID       string                `json:"faceId"`
	KioskID      string                `json:"kioskId"`
	Outcome      Outcome               `json:"outcome"`
	Reason       string                `json:"reason,omitempty"`
	Temperature  float64               `json:"temperature"`
	AlcoholLevel domain.Classification `json:"alcoholLevel"`
	StartedAt    time.Time             `json:"startedAt"`
	FinishedAt   time.Time             `json:"finishedAt"`
	Stages       []StageRecord         `json:"stages"`
}

type StageRecord struct {
	Stage     domain.Stage `json:"stage"`
	EnteredAt time.Time    `json:"enteredAt"`
	Seconds   float64      `json:"seconds"` // time spent before the next stage
}

// FromDomainSession converts an ended domain.Session to a ResultRecord
func FromDomainSession(s *domain.Session) *ResultRecord {
	finished := s.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	stages := make([]StageRecord, len(s.Stages))
	for i, mark := range s.Stages {
		end := finished
		if i+1 < len(s.Stages) {
			end = s.Stages[i+1].EnteredAt
		}
		stages[i] = StageRecord{
			Stage:     mark.Stage,
			EnteredAt: mark.EnteredAt,
			Seconds:   end.Sub(mark.EnteredAt).Seconds(),
		}
	}

	outcome := OutcomeFailed
	if s.Completed() {
		outcome = OutcomeCompleted
	}

	return &ResultRecord{
		SessionID:    s.ID,
		FaceID:       s.FaceID,
		KioskID:      s.KioskID,
		Outcome:      outcome,
		Reason:       s.FailureReason,
		Temperature:  s.Temperature,
		AlcoholLevel: s.Alcohol,
		StartedAt:    s.StartedAt,
		FinishedAt:   finished,
		Stages:       stages,
	}
}
