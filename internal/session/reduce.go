package session

import (
	"context"
	"fmt"
	"math"

	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/monitor"
)

// msg is a command for the reducer.
type msg interface{ msg() }

type (
	startedMsg      struct{ started *model.StartedAttempt }
	startFailedMsg  struct{ err error }
	selectAnswerMsg struct {
		qIdx  int
		value string
	}
	selectOptionMsg struct{ qIdx, optIdx int }
	clearAnswerMsg  struct{ qIdx int }
	toggleFlagMsg   struct{ idx int }
	gotoMsg         struct{ idx int }
	stepMsg         struct{ delta int }
	tickMsg         struct{ remaining int }
	expireMsg       struct{}
	violationMsg    struct{ v monitor.Violation }
	submitMsg       struct{ trigger Trigger }
	submitDoneMsg   struct{ result *model.SubmitResult }
	submitFailedMsg struct{ err error }
)

func (startedMsg) msg()      {}
func (startFailedMsg) msg()  {}
func (selectAnswerMsg) msg() {}
func (selectOptionMsg) msg() {}
func (clearAnswerMsg) msg()  {}
func (toggleFlagMsg) msg()   {}
func (gotoMsg) msg()         {}
func (stepMsg) msg()         {}
func (tickMsg) msg()         {}
func (expireMsg) msg()       {}
func (violationMsg) msg()    {}
func (submitMsg) msg()       {}
func (submitDoneMsg) msg()   {}
func (submitFailedMsg) msg() {}

// effect runs after the lock is released.
type effect func()

// reduce applies m to the state. Caller holds c.mu.
func (c *Controller) reduce(m msg) []effect {
	switch m := m.(type) {
	case startedMsg:
		return c.onStarted(m.started)

	case startFailedMsg:
		if c.status != StatusStarting {
			return nil
		}
		c.status = StatusFailed
		c.failure = FailureStart
		c.err = m.err
		return nil

	case selectOptionMsg:
		if !c.editable(m.qIdx) {
			return nil
		}
		q := &c.questions[m.qIdx]
		if !q.IsMCQ() || m.optIdx < 0 || m.optIdx >= len(q.Options) {
			return nil
		}
		return c.setAnswer(m.qIdx, model.OptionLetter(m.optIdx))

	case selectAnswerMsg:
		if !c.editable(m.qIdx) {
			return nil
		}
		return c.setAnswer(m.qIdx, m.value)

	case clearAnswerMsg:
		if !c.editable(m.qIdx) {
			return nil
		}
		qid := c.questions[m.qIdx].ID
		if _, ok := c.answers[qid]; !ok {
			return nil
		}
		delete(c.answers, qid)
		return []effect{c.mirrorAnswer(qid, "")}

	case toggleFlagMsg:
		if !c.editable(m.idx) {
			return nil
		}
		if c.flagged[m.idx] {
			delete(c.flagged, m.idx)
		} else {
			c.flagged[m.idx] = true
		}
		return nil

	case gotoMsg:
		c.moveTo(m.idx)
		return nil

	case stepMsg:
		c.moveTo(c.current + m.delta)
		return nil

	case tickMsg:
		if c.status != StatusInProgress {
			return nil
		}
		c.timeLeft = m.remaining
		return nil

	case expireMsg:
		if c.status != StatusInProgress {
			return nil
		}
		c.timeLeft = 0
		return c.beginSubmit(TriggerTimeout)

	case violationMsg:
		return c.onViolation(m.v)

	case submitMsg:
		retry := c.status == StatusFailed && c.failure == FailureSubmit
		if c.status != StatusInProgress && !retry {
			return nil
		}
		return c.beginSubmit(m.trigger)

	case submitDoneMsg:
		if c.status != StatusSubmitting {
			return nil
		}
		c.status = StatusSubmitted
		c.failure = FailureNone
		c.err = nil
		c.result = m.result
		if c.result == nil {
			c.result = &model.SubmitResult{}
		}
		c.clock.Stop()
		c.log.Info().
			Str("attempt_id", c.attemptID).
			Float64("score", c.result.Score).
			Float64("percentage", c.result.Percentage).
			Msg("Attempt submitted")
		return []effect{c.deactivateMonitor}

	case submitFailedMsg:
		if c.status != StatusSubmitting {
			return nil
		}
		c.status = StatusFailed
		c.failure = FailureSubmit
		c.err = m.err
		c.log.Error().Err(m.err).Str("attempt_id", c.attemptID).Msg("Submit failed, answers kept")
		return nil
	}
	return nil
}

func (c *Controller) onStarted(s *model.StartedAttempt) []effect {
	if c.status != StatusStarting || c.closed {
		return nil
	}

	c.test = s.Test
	c.questions = s.Questions
	if c.questions == nil {
		c.questions = []model.Question{}
	}
	c.attemptID = s.Attempt.ID
	c.timeLimit = s.Test.TimeLimitMinutes * 60
	if c.timeLimit <= 0 {
		c.timeLimit = int(c.defaultTimeLimit.Seconds())
	}
	c.timeLeft = c.timeLimit
	c.startedAt = c.now()
	c.current = 0
	if len(c.questions) > 0 {
		c.visited[0] = true
	}
	c.status = StatusInProgress

	c.clock.Start(c.timeLimit, c.onTick, c.onExpire)

	c.log.Info().
		Str("attempt_id", c.attemptID).
		Int("questions", len(c.questions)).
		Int("time_limit_seconds", c.timeLimit).
		Msg("Attempt started")

	return []effect{c.activateMonitor}
}

// editable reports whether answers and flags may change for question idx.
func (c *Controller) editable(idx int) bool {
	return c.status == StatusInProgress && idx >= 0 && idx < len(c.questions)
}

func (c *Controller) setAnswer(qIdx int, value string) []effect {
	qid := c.questions[qIdx].ID
	c.answers[qid] = value
	return []effect{c.mirrorAnswer(qid, value)}
}

// mirrorAnswer saves one answer in the background. The submit payload is
// rebuilt from c.answers, so a lost save cannot change the result.
func (c *Controller) mirrorAnswer(questionID, value string) effect {
	attemptID := c.attemptID
	return func() {
		if attemptID == "" {
			return
		}
		c.detach("record_answer", func(ctx context.Context) error {
			return c.gw.RecordAnswer(ctx, attemptID, questionID, value)
		})
	}
}

func (c *Controller) moveTo(idx int) {
	if c.status != StatusInProgress && !(c.status == StatusFailed && c.failure == FailureSubmit) {
		return
	}
	if idx < 0 || idx >= len(c.questions) {
		return
	}
	c.current = idx
	c.visited[idx] = true
}

func (c *Controller) onViolation(v monitor.Violation) []effect {
	// Frozen once submission begins.
	if c.status != StatusInProgress {
		return nil
	}

	c.warnings++
	c.warningMessage = fmt.Sprintf("Warning %d/%d: %s", c.warnings, c.maxWarnings, v.Reason)
	c.warningAt = c.now()

	c.log.Warn().
		Str("attempt_id", c.attemptID).
		Str("type", string(v.Type)).
		Int("warnings", c.warnings).
		Msg(v.Reason)

	effects := []effect{}
	if attemptID := c.attemptID; attemptID != "" {
		effects = append(effects, func() {
			c.detach("record_warning", func(ctx context.Context) error {
				return c.gw.RecordWarning(ctx, attemptID, string(v.Type), v.Reason)
			})
		})
	}

	if c.warnings >= c.maxWarnings {
		effects = append(effects, c.beginSubmit(TriggerViolations)...)
	}
	return effects
}

// beginSubmit enters StatusSubmitting. The clock stops here, before the
// request is sent, so no tick can land after submission begins.
func (c *Controller) beginSubmit(trigger Trigger) []effect {
	c.status = StatusSubmitting
	c.failure = FailureNone
	c.err = nil
	c.trigger = trigger
	c.clock.Stop()

	answers := make(map[string]string, len(c.answers))
	for k, v := range c.answers {
		answers[k] = v
	}
	elapsed := int(math.Round(c.now().Sub(c.startedAt).Seconds()))
	if elapsed < 0 {
		elapsed = 0
	}
	attemptID := c.attemptID

	c.log.Info().
		Str("attempt_id", attemptID).
		Str("trigger", string(trigger)).
		Int("answered", len(answers)).
		Int("elapsed_seconds", elapsed).
		Msg("Submitting attempt")

	return []effect{func() {
		c.spawn(func() { c.runSubmit(attemptID, answers, elapsed) })
	}}
}
