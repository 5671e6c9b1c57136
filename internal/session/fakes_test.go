package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/monitor"
	"github.com/stemsi/aptiq-proctor/internal/session"
)

type submitCall struct {
	AttemptID string
	Answers   map[string]string
	Elapsed   int
}

type warningCall struct {
	AttemptID, Type, Details string
}

type answerCall struct {
	AttemptID, QuestionID, Answer string
}

// fakeGateway scripts start responses and records every call.
type fakeGateway struct {
	mu sync.Mutex

	startResults []func() (*model.StartedAttempt, error)
	abandonErr   error
	submitFn     func(attemptID string, answers map[string]string, elapsed int) (*model.SubmitResult, error)
	answerErr    error

	starts   int
	abandons []string
	submits  []submitCall
	answers  []answerCall
	warnings []warningCall
}

func (g *fakeGateway) Start(ctx context.Context, testID string) (*model.StartedAttempt, error) {
	g.mu.Lock()
	idx := g.starts
	g.starts++
	var fn func() (*model.StartedAttempt, error)
	if idx < len(g.startResults) {
		fn = g.startResults[idx]
	}
	g.mu.Unlock()
	if fn == nil {
		return nil, &fakeErr{"no scripted start"}
	}
	return fn()
}

func (g *fakeGateway) FetchReview(ctx context.Context, attemptID string) (*model.Review, error) {
	return &model.Review{}, nil
}

func (g *fakeGateway) RecordAnswer(ctx context.Context, attemptID, questionID, answer string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answers = append(g.answers, answerCall{attemptID, questionID, answer})
	return g.answerErr
}

func (g *fakeGateway) RecordWarning(ctx context.Context, attemptID, warnType, details string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.warnings = append(g.warnings, warningCall{attemptID, warnType, details})
	return &fakeErr{"warnings endpoint down"}
}

func (g *fakeGateway) Submit(ctx context.Context, attemptID string, answers map[string]string, elapsed int) (*model.SubmitResult, error) {
	g.mu.Lock()
	g.submits = append(g.submits, submitCall{attemptID, answers, elapsed})
	fn := g.submitFn
	g.mu.Unlock()
	if fn == nil {
		return &model.SubmitResult{Score: float64(len(answers)), TotalMarks: 4, Percentage: 25}, nil
	}
	return fn(attemptID, answers, elapsed)
}

func (g *fakeGateway) Abandon(ctx context.Context, attemptID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.abandons = append(g.abandons, attemptID)
	return g.abandonErr
}

func (g *fakeGateway) submitCalls() []submitCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]submitCall(nil), g.submits...)
}

func (g *fakeGateway) warningCalls() []warningCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]warningCall(nil), g.warnings...)
}

func (g *fakeGateway) answerCalls() []answerCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]answerCall(nil), g.answers...)
}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

func startsWith(s *model.StartedAttempt) func() (*model.StartedAttempt, error) {
	return func() (*model.StartedAttempt, error) { return s, nil }
}

func startFails(err error) func() (*model.StartedAttempt, error) {
	return func() (*model.StartedAttempt, error) { return nil, err }
}

// fakeClock lets the test fire ticks and expiry by hand.
type fakeClock struct {
	mu       sync.Mutex
	initial  int
	onTick   func(int)
	onExpire func()
	starts   int
	stops    int
	running  bool
}

func (c *fakeClock) Start(initial int, onTick func(int), onExpire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initial, c.onTick, c.onExpire = initial, onTick, onExpire
	c.starts++
	c.running = true
}

func (c *fakeClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.running = false
}

func (c *fakeClock) tick(remaining int) {
	c.mu.Lock()
	fn := c.onTick
	c.mu.Unlock()
	fn(remaining)
}

func (c *fakeClock) expire() {
	c.mu.Lock()
	fn := c.onExpire
	c.mu.Unlock()
	fn()
}

func (c *fakeClock) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// fakeHost is a proctored environment the test can poke.
type fakeHost struct {
	mu       sync.Mutex
	handlers map[int]monitor.Handler
	next     int
	entered  int
	exited   int
	enterErr error
}

func newFakeHost() *fakeHost {
	return &fakeHost{handlers: map[int]monitor.Handler{}}
}

func (h *fakeHost) Subscribe(fn monitor.Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.handlers[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.handlers, id)
	}
}

func (h *fakeHost) EnterFullscreen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entered++
	return h.enterErr
}

func (h *fakeHost) ExitFullscreen() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exited++
	return nil
}

func (h *fakeHost) emit(ev monitor.Event) monitor.Verdict {
	h.mu.Lock()
	hs := make([]monitor.Handler, 0, len(h.handlers))
	for _, fn := range h.handlers {
		hs = append(hs, fn)
	}
	h.mu.Unlock()
	v := monitor.Allow
	for _, fn := range hs {
		if fn(ev) == monitor.Block {
			v = monitor.Block
		}
	}
	return v
}

func (h *fakeHost) subscribed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers) > 0
}

// manualNow is a settable wall clock.
type manualNow struct {
	mu sync.Mutex
	t  time.Time
}

func (n *manualNow) Now() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.t
}

func (n *manualNow) Advance(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.t = n.t.Add(d)
}

type harness struct {
	gw    *fakeGateway
	clock *fakeClock
	host  *fakeHost
	now   *manualNow
	ctrl  *session.Controller
}

// newHarness runs spawned work inline so tests are deterministic.
func newHarness(t *testing.T, gw *fakeGateway) *harness {
	t.Helper()
	h := &harness{
		gw:    gw,
		clock: &fakeClock{},
		host:  newFakeHost(),
		now:   &manualNow{t: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)},
	}
	h.ctrl = session.New(gw, h.clock, h.host, "t1", session.Options{
		Now:   h.now.Now,
		Spawn: func(fn func()) { fn() },
	}, zerolog.Nop())
	t.Cleanup(h.ctrl.Close)
	return h
}

func oneQuestionAttempt() *model.StartedAttempt {
	return &model.StartedAttempt{
		Test: model.Test{ID: "t1", Title: "Quant", TimeLimitMinutes: 1},
		Questions: []model.Question{
			{ID: "q1", QuestionType: model.QuestionTypeMCQ, Options: []model.Option{{Text: "A"}, {Text: "B"}}},
		},
		Attempt: model.Attempt{ID: "a1"},
	}
}

func fourQuestionAttempt() *model.StartedAttempt {
	mcq := func(id string) model.Question {
		return model.Question{
			ID:           id,
			Section:      "quant",
			Marks:        1,
			QuestionType: model.QuestionTypeMCQ,
			Options:      []model.Option{{Text: "1"}, {Text: "2"}, {Text: "3"}, {Text: "4"}},
		}
	}
	return &model.StartedAttempt{
		Test: model.Test{ID: "t1", Title: "Mixed", TimeLimitMinutes: 10},
		Questions: []model.Question{
			mcq("q1"),
			mcq("q2"),
			{ID: "q3", QuestionType: model.QuestionTypeText, Section: "verbal", Marks: 2},
			mcq("q4"),
		},
		Attempt: model.Attempt{ID: "a1"},
	}
}
