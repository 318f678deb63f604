package runner

import (
	"context"

	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/storage"
	"github.com/hperssn/kioskcheck/internal/submit"
)

type UpdateKind string

const (
	UpdateProgress UpdateKind = "progress"
	UpdateStage    UpdateKind = "stage"
	UpdateNotice   UpdateKind = "notice"
	UpdateNavigate UpdateKind = "navigate"
)

// Update is what a runner publishes for the kiosk screen.
type Update struct {
	Kind           UpdateKind            `json:"kind"`
	SessionID      string                `json:"sessionId"`
	Stage          domain.Stage          `json:"stage"`
	StabilityCount int                   `json:"stabilityCount"`
	Progress       float64               `json:"progress"`
	Temperature    float64               `json:"temperature,omitempty"`
	Alcohol        domain.Classification `json:"alcoholLevel,omitempty"`
	Notice         *Notice               `json:"notice,omitempty"`
	Navigation     *domain.Outcome       `json:"navigation,omitempty"`
}

type NoticeLevel string

const (
	NoticeError     NoticeLevel = "error"
	NoticeTransient NoticeLevel = "transient"
)

// Notice is a user-facing message.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

const (
	MessageTimeout         = "Sensor connection lost. Please start the check again."
	MessageSubmitFailed    = "We could not save your result. Please try again."
	MessageMissingIdentity = "Identity check is missing. Please start over."
)

const (
	ReasonTimeout         = "sensor timeout"
	ReasonMissingIdentity = "missing identity"
)

// Submitter makes the single network call that stores the final result.
type Submitter interface {
	Submit(ctx context.Context, p submit.Payload) error
}

type SubmitterFunc func(ctx context.Context, p submit.Payload) error

func (f SubmitterFunc) Submit(ctx context.Context, p submit.Payload) error {
	return f(ctx, p)
}

// Navigator receives the one terminal navigation of a session.
type Navigator interface {
	Navigate(sessionID string, to domain.Outcome)
}

type NavigatorFunc func(sessionID string, to domain.Outcome)

func (f NavigatorFunc) Navigate(sessionID string, to domain.Outcome) {
	f(sessionID, to)
}

type Notifier interface {
	Notify(sessionID string, n Notice)
}

type NotifierFunc func(sessionID string, n Notice)

func (f NotifierFunc) Notify(sessionID string, n Notice) {
	f(sessionID, n)
}

// ResultStore is the side channel the results screen reads after navigation.
type ResultStore interface {
	SaveResult(record *storage.ResultRecord) error
}
