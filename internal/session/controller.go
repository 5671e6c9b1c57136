// Package session drives one proctored test attempt: it starts the attempt
// (recovering from a stale one), keeps the answer map, flags and cursor,
// counts violations and submits exactly once.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/aptiq-proctor/internal/gateway"
	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/monitor"
)

const (
	DefaultMaxWarnings      = 3
	DefaultTimeLimit        = 5 * time.Minute
	defaultBestEffortWindow = 5 * time.Second
)

// Clock is the countdown the controller drives. Start must not invoke the
// callbacks synchronously; Stop must not block on them.
type Clock interface {
	Start(initial int, onTick func(remaining int), onExpire func())
	Stop()
}

// Monitor is the violation detector's lifecycle.
type Monitor interface {
	Activate() error
	Deactivate() error
}

// Options tunes a Controller. Zero values pick the defaults.
type Options struct {
	DefaultTimeLimit  time.Duration
	MaxWarnings       int
	BestEffortTimeout time.Duration
	// Now is the wall clock used for elapsed time.
	Now func() time.Time
	// Spawn runs work off the dispatch path. Defaults to a goroutine.
	Spawn func(func())
}

// Controller owns all state of one attempt. All mutation goes through
// dispatch, so clock ticks, violations and user actions never interleave.
type Controller struct {
	gw      gateway.Gateway
	clock   Clock
	monitor Monitor
	testID  string
	log     zerolog.Logger

	defaultTimeLimit  time.Duration
	maxWarnings       int
	bestEffortTimeout time.Duration
	now               func() time.Time
	spawn             func(func())

	ctx     context.Context
	cancel  context.CancelFunc
	updates chan struct{}

	mu             sync.Mutex
	started        bool
	closed         bool
	status         Status
	failure        Failure
	err            error
	test           model.Test
	questions      []model.Question
	attemptID      string
	startedAt      time.Time
	timeLimit      int
	timeLeft       int
	current        int
	answers        map[string]string
	flagged        map[int]bool
	visited        map[int]bool
	warnings       int
	warningMessage string
	warningAt      time.Time
	trigger        Trigger
	result         *model.SubmitResult
}

// New creates a Controller for testID. The violation monitor is built on
// host and reports straight into the controller.
func New(gw gateway.Gateway, clk Clock, host monitor.Host, testID string, opts Options, log zerolog.Logger) *Controller {
	c := &Controller{
		gw:                gw,
		clock:             clk,
		testID:            testID,
		log:               log.With().Str("component", "session").Str("test_id", testID).Logger(),
		defaultTimeLimit:  opts.DefaultTimeLimit,
		maxWarnings:       opts.MaxWarnings,
		bestEffortTimeout: opts.BestEffortTimeout,
		now:               opts.Now,
		spawn:             opts.Spawn,
		updates:           make(chan struct{}, 1),
		status:            StatusStarting,
		answers:           map[string]string{},
		flagged:           map[int]bool{},
		visited:           map[int]bool{},
	}
	if c.defaultTimeLimit <= 0 {
		c.defaultTimeLimit = DefaultTimeLimit
	}
	if c.maxWarnings <= 0 {
		c.maxWarnings = DefaultMaxWarnings
	}
	if c.bestEffortTimeout <= 0 {
		c.bestEffortTimeout = defaultBestEffortWindow
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.spawn == nil {
		c.spawn = func(fn func()) { go fn() }
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.monitor = monitor.New(host, c.ReportViolation, log)
	return c
}

// Start opens the attempt. A conflicting open attempt is abandoned and the
// start retried once. On success the clock runs and the monitor is active.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	started, err := c.startWithRecovery(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStartFailed, err)
		c.log.Error().Err(err).Msg("Start attempt failed")
		c.dispatch(startFailedMsg{err: err})
		return err
	}

	c.dispatch(startedMsg{started: started})
	return nil
}

func (c *Controller) startWithRecovery(ctx context.Context) (*model.StartedAttempt, error) {
	started, err := c.gw.Start(ctx, c.testID)
	if err == nil {
		return started, nil
	}

	conflict, ok := gateway.AsConflict(err)
	if !ok {
		return nil, err
	}

	c.log.Warn().Str("attempt_id", conflict.AttemptID).Msg("Open attempt found, abandoning it")
	if err := c.gw.Abandon(ctx, conflict.AttemptID); err != nil {
		return nil, err
	}

	started, err = c.gw.Start(ctx, c.testID)
	if err != nil {
		return nil, fmt.Errorf("retry after abandon: %w", err)
	}
	return started, nil
}

// SelectAnswer sets the answer of the question at qIdx.
func (c *Controller) SelectAnswer(qIdx int, value string) {
	c.dispatch(selectAnswerMsg{qIdx: qIdx, value: value})
}

// SelectOption picks option optIdx of a multiple-choice question.
func (c *Controller) SelectOption(qIdx, optIdx int) {
	c.dispatch(selectOptionMsg{qIdx: qIdx, optIdx: optIdx})
}

// ClearAnswer removes the answer of the question at qIdx.
func (c *Controller) ClearAnswer(qIdx int) {
	c.dispatch(clearAnswerMsg{qIdx: qIdx})
}

// ToggleFlag marks or unmarks the question at idx for review.
func (c *Controller) ToggleFlag(idx int) {
	c.dispatch(toggleFlagMsg{idx: idx})
}

// GoTo moves the cursor to idx.
func (c *Controller) GoTo(idx int) {
	c.dispatch(gotoMsg{idx: idx})
}

// Next moves to the following question. It stops at the last one.
func (c *Controller) Next() {
	c.dispatch(stepMsg{delta: 1})
}

// Prev moves to the preceding question.
func (c *Controller) Prev() {
	c.dispatch(stepMsg{delta: -1})
}

// Submit requests submission. Repeated calls while submitting are ignored;
// after a failed submission it retries.
func (c *Controller) Submit() {
	c.dispatch(submitMsg{trigger: TriggerUser})
}

// ReportViolation feeds a detected violation into the controller.
func (c *Controller) ReportViolation(v monitor.Violation) {
	c.dispatch(violationMsg{v: v})
}

// Updates signals after every state change. Signals are coalesced.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Close releases the clock and the monitor. It is safe on every path and
// may be called more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.clock.Stop()
	c.mu.Unlock()

	c.deactivateMonitor()
	c.cancel()
}

// dispatch is the single entry point for state transitions.
func (c *Controller) dispatch(m msg) {
	c.mu.Lock()
	effects := c.reduce(m)
	c.mu.Unlock()

	c.notify()

	for _, fx := range effects {
		fx()
	}
}

func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

func (c *Controller) activateMonitor() {
	if err := c.monitor.Activate(); err != nil {
		// Full screen is a request, not a requirement.
		c.log.Debug().Err(err).Msg("Fullscreen not entered")
	}

	c.mu.Lock()
	release := c.closed || c.status == StatusSubmitted
	c.mu.Unlock()
	if release {
		c.deactivateMonitor()
	}
}

func (c *Controller) deactivateMonitor() {
	if err := c.monitor.Deactivate(); err != nil {
		c.log.Debug().Err(err).Msg("Fullscreen not exited")
	}
}

func (c *Controller) onTick(remaining int) {
	c.dispatch(tickMsg{remaining: remaining})
}

func (c *Controller) onExpire() {
	c.dispatch(expireMsg{})
}

func (c *Controller) runSubmit(attemptID string, answers map[string]string, elapsed int) {
	result, err := c.gw.Submit(c.ctx, attemptID, answers, elapsed)
	if err != nil {
		c.dispatch(submitFailedMsg{err: fmt.Errorf("%w: %w", ErrSubmitFailed, err)})
		return
	}
	c.dispatch(submitDoneMsg{result: result})
}

func (c *Controller) detach(name string, fn func(ctx context.Context) error) {
	c.spawn(func() {
		gateway.RunDetached(c.log, c.bestEffortTimeout, name, fn)
	})
}
