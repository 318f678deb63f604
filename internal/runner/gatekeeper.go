package runner

import (
	"context"
	"time"

	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/logger"
	"github.com/hperssn/kioskcheck/internal/submit"
)

// finalize submits the measured result at most once at a time. Submitted is
// set before the request goes out and only cleared by a failed attempt, so a
// duplicate trigger while a request is in flight does nothing.
func (r *Runner) finalize() (effects, error) {
	s := r.session
	switch {
	case s.Submitted:
		return nil, nil
	case s.Ended():
		if s.Completed() {
			return nil, nil
		}
		return nil, ErrSessionEnded
	case s.Stage != domain.StageDone:
		return nil, ErrNotReady
	case s.FaceID == "":
		r.log.Error("cannot submit without identity")
		return r.fail(ReasonMissingIdentity, MessageMissingIdentity), ErrMissingIdentity
	}

	s.Submitted = true
	r.subs.teardownAll()
	r.guard.Disarm()
	r.stopDecay()

	r.attempts++
	attempt := r.attempts
	payload := submit.Payload{
		TemperatureData: submit.TemperatureData{Temperature: s.Temperature},
		AlcoholData:     submit.AlcoholData{AlcoholLevel: string(s.Alcohol)},
		FaceID:          s.FaceID,
	}
	r.log.Info("submitting result", logger.RetryCount(attempt-1))

	return effects{func() { go r.submit(payload, attempt) }}, nil
}

func (r *Runner) submit(p submit.Payload, attempt int) {
	ctx, cancel := context.WithTimeout(r.ctx, r.opts.SubmitTimeout)
	defer cancel()

	err := r.opts.Submitter.Submit(ctx, p)
	r.post(submitDoneMsg{attempt: attempt, err: err})
}

func (r *Runner) onSubmitted(m submitDoneMsg) effects {
	s := r.session
	if m.attempt != r.attempts || !s.Submitted || s.Ended() {
		return nil
	}

	if m.err != nil {
		// No automatic retry. The user triggers Finalize again.
		s.Submitted = false
		s.SubmitFailedAt = time.Now()
		r.log.Warn("result submission failed", logger.Error(m.err), logger.RetryCount(m.attempt-1))

		notice := Notice{Level: NoticeTransient, Message: MessageSubmitFailed}
		r.publishNotice(notice)
		return r.notify(notice)
	}

	s.FinishedAt = time.Now()
	s.Outcome = &domain.Outcome{
		Target:       domain.TargetCompletion,
		Temperature:  s.Temperature,
		AlcoholLevel: s.Alcohol,
	}
	r.log.Info("result submitted", logger.Duration(s.FinishedAt.Sub(s.StartedAt)))
	r.publishNavigation()
	return r.terminalEffects()
}
