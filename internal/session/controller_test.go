package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/aptiq-proctor/internal/gateway"
	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/monitor"
	"github.com/stemsi/aptiq-proctor/internal/session"
)

func TestStartThenSelectOption(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(oneQuestionAttempt())}}
	h := newHarness(t, gw)

	require.NoError(t, h.ctrl.Start(context.Background()))

	v := h.ctrl.Snapshot()
	assert.Equal(t, session.StatusInProgress, v.Status)
	assert.Equal(t, 60, v.TimeLeft)
	assert.Equal(t, "01:00", v.TimeLeftText)
	assert.Equal(t, "a1", v.AttemptID)
	assert.Equal(t, 60, h.clock.initial)
	assert.True(t, h.host.subscribed())
	assert.Equal(t, 1, h.host.entered)

	h.ctrl.SelectOption(0, 1)

	assert.Equal(t, map[string]string{"q1": "B"}, h.ctrl.Answers())
	assert.Equal(t, []answerCall{{"a1", "q1", "B"}}, gw.answerCalls())
}

func TestStartTwiceIsRejected(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(oneQuestionAttempt())}}
	h := newHarness(t, gw)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.ErrorIs(t, h.ctrl.Start(context.Background()), session.ErrAlreadyStarted)
	assert.Equal(t, 1, gw.starts)
}

func TestTimeLimitFallsBackToDefault(t *testing.T) {
	s := oneQuestionAttempt()
	s.Test.TimeLimitMinutes = 0
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(s)}}
	h := newHarness(t, gw)

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, 300, h.ctrl.Snapshot().TimeLeft)
}

func TestConflictAbandonsAndRetries(t *testing.T) {
	fresh := oneQuestionAttempt()
	fresh.Attempt.ID = "a2"
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){
		startFails(&gateway.ConflictError{AttemptID: "old1"}),
		startsWith(fresh),
	}}
	h := newHarness(t, gw)

	require.NoError(t, h.ctrl.Start(context.Background()))

	assert.Equal(t, []string{"old1"}, gw.abandons)
	assert.Equal(t, 2, gw.starts)
	v := h.ctrl.Snapshot()
	assert.Equal(t, session.StatusInProgress, v.Status)
	assert.Equal(t, "a2", v.AttemptID)
}

func TestConflictRetryFailure(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){
		startFails(&gateway.ConflictError{AttemptID: "old1"}),
		startFails(&gateway.ConflictError{AttemptID: "old1"}),
	}}
	h := newHarness(t, gw)

	err := h.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrStartFailed)

	assert.Equal(t, []string{"old1"}, gw.abandons, "only one abandon per start")
	v := h.ctrl.Snapshot()
	assert.Equal(t, session.StatusFailed, v.Status)
	assert.Equal(t, session.FailureStart, v.Failure)
	assert.Error(t, v.Err)
	assert.Equal(t, 0, h.clock.starts)
	assert.False(t, h.host.subscribed())
}

func TestAbandonFailureFailsStart(t *testing.T) {
	gw := &fakeGateway{
		startResults: []func() (*model.StartedAttempt, error){
			startFails(&gateway.ConflictError{AttemptID: "old1"}),
		},
		abandonErr: errors.New("boom"),
	}
	h := newHarness(t, gw)

	err := h.ctrl.Start(context.Background())
	assert.ErrorIs(t, err, session.ErrStartFailed)
	assert.Equal(t, 1, gw.starts)
	assert.Equal(t, session.FailureStart, h.ctrl.Snapshot().Failure)
}

func TestPlainStartFailure(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){
		startFails(&gateway.RequestError{Method: "POST", Path: "/api/attempts/start", Status: 500, Message: "db down"}),
	}}
	h := newHarness(t, gw)

	err := h.ctrl.Start(context.Background())
	assert.ErrorIs(t, err, session.ErrStartFailed)
	assert.ErrorIs(t, err, gateway.ErrRequestFailed)
	assert.Empty(t, gw.abandons)

	// Edits are ignored in a failed session.
	h.ctrl.SelectAnswer(0, "x")
	h.ctrl.Submit()
	assert.Empty(t, h.ctrl.Answers())
	assert.Empty(t, gw.submitCalls())
}

func TestAnswerMapFollowsLastAction(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(fourQuestionAttempt())}}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.SelectOption(0, 0)
	h.ctrl.SelectOption(0, 2)
	h.ctrl.SelectAnswer(2, "photosynthesis")
	h.ctrl.SelectOption(3, 3)
	h.ctrl.ClearAnswer(3)
	h.ctrl.SelectOption(1, 1)
	h.ctrl.SelectOption(1, 1)

	assert.Equal(t, map[string]string{"q1": "C", "q2": "B", "q3": "photosynthesis"}, h.ctrl.Answers())

	// Out of range edits are ignored.
	h.ctrl.SelectOption(0, 9)
	h.ctrl.SelectOption(2, 0)
	h.ctrl.SelectAnswer(7, "x")
	h.ctrl.ClearAnswer(-1)
	assert.Equal(t, map[string]string{"q1": "C", "q2": "B", "q3": "photosynthesis"}, h.ctrl.Answers())

	// Clearing is mirrored as an empty answer.
	calls := gw.answerCalls()
	require.NotEmpty(t, calls)
	assert.Contains(t, calls, answerCall{"a1", "q4", ""})
}

func TestAnswerSaveFailureDoesNotChangeState(t *testing.T) {
	gw := &fakeGateway{
		startResults: []func() (*model.StartedAttempt, error){startsWith(oneQuestionAttempt())},
		answerErr:    errors.New("offline"),
	}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.SelectOption(0, 0)

	v := h.ctrl.Snapshot()
	assert.Equal(t, session.StatusInProgress, v.Status)
	assert.NoError(t, v.Err)
	assert.Equal(t, map[string]string{"q1": "A"}, h.ctrl.Answers())
}

func TestTimerExpiryAutoSubmits(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(oneQuestionAttempt())}}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.SelectOption(0, 0)
	h.clock.tick(59)
	assert.Equal(t, 59, h.ctrl.Snapshot().TimeLeft)

	h.now.Advance(60*time.Second + 400*time.Millisecond)
	h.clock.tick(0)
	h.clock.expire()

	calls := gw.submitCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "a1", calls[0].AttemptID)
	assert.Equal(t, map[string]string{"q1": "A"}, calls[0].Answers)
	assert.Equal(t, 60, calls[0].Elapsed)

	v := h.ctrl.Snapshot()
	assert.Equal(t, session.StatusSubmitted, v.Status)
	assert.Equal(t, session.TriggerTimeout, v.Trigger)
	assert.Equal(t, 0, v.TimeLeft)
	require.NotNil(t, v.Result)
	assert.False(t, h.clock.isRunning())
	assert.False(t, h.host.subscribed())

	// Late ticks and expiry are ignored.
	h.clock.tick(5)
	h.clock.expire()
	assert.Len(t, gw.submitCalls(), 1)
	assert.Equal(t, 0, h.ctrl.Snapshot().TimeLeft)
}

func TestThreeViolationsAutoSubmitOnce(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(oneQuestionAttempt())}}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	for i := 0; i < 3; i++ {
		verdict := h.host.emit(monitor.KeyDown("c", true, false))
		assert.Equal(t, monitor.Block, verdict)
	}
	// The monitor is released, so further events are not seen.
	h.host.emit(monitor.KeyDown("c", true, false))
	h.ctrl.ReportViolation(monitor.Violation{Type: monitor.ViolationFocusLost, Reason: "Window focus lost"})

	require.Len(t, gw.submitCalls(), 1)
	v := h.ctrl.Snapshot()
	assert.Equal(t, 3, v.Warnings)
	assert.Equal(t, session.TriggerViolations, v.Trigger)
	assert.Equal(t, session.StatusSubmitted, v.Status)

	warnings := gw.warningCalls()
	require.Len(t, warnings, 3)
	for _, w := range warnings {
		assert.Equal(t, "a1", w.AttemptID)
		assert.Equal(t, "blocked_shortcut", w.Type)
		assert.Equal(t, "Blocked keyboard shortcut: Ctrl+C", w.Details)
	}
}

func TestWarningBannerShowsAndClears(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(oneQuestionAttempt())}}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.host.emit(monitor.Event{Kind: monitor.EventVisibilityHidden})

	v := h.ctrl.Snapshot()
	assert.Equal(t, 1, v.Warnings)
	assert.Equal(t, "Warning 1/3: Tab switch detected", v.WarningMessage)
	assert.Equal(t, session.StatusInProgress, v.Status)

	h.now.Advance(3 * time.Second)
	assert.Empty(t, h.ctrl.Snapshot().WarningMessage)
	assert.Equal(t, 1, h.ctrl.Snapshot().Warnings)
}

func TestConcurrentViolationsSubmitOnce(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(fourQuestionAttempt())}}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				h.ctrl.ReportViolation(monitor.Violation{Type: monitor.ViolationTabSwitch, Reason: "Tab switch detected"})
			} else {
				h.ctrl.ReportViolation(monitor.Violation{Type: monitor.ViolationFocusLost, Reason: "Window focus lost"})
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, gw.submitCalls(), 1)
	assert.Equal(t, 3, h.ctrl.Snapshot().Warnings)
}

func TestDoubleSubmitSendsOneRequest(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		startResults: []func() (*model.StartedAttempt, error){startsWith(oneQuestionAttempt())},
		submitFn: func(string, map[string]string, int) (*model.SubmitResult, error) {
			<-release
			return &model.SubmitResult{Score: 1, TotalMarks: 1, Percentage: 100}, nil
		},
	}
	h := &harness{gw: gw, clock: &fakeClock{}, host: newFakeHost(), now: &manualNow{t: time.Now()}}
	h.ctrl = session.New(gw, h.clock, h.host, "t1", session.Options{
		Now:   h.now.Now,
		Spawn: func(fn func()) { go fn() },
	}, zerolog.Nop())
	t.Cleanup(h.ctrl.Close)

	require.NoError(t, h.ctrl.Start(context.Background()))
	h.ctrl.Submit()
	h.ctrl.Submit()
	assert.Equal(t, session.StatusSubmitting, h.ctrl.Status())
	assert.True(t, h.ctrl.Snapshot().Submitting)

	// Warnings are frozen while submitting.
	h.ctrl.ReportViolation(monitor.Violation{Type: monitor.ViolationTabSwitch, Reason: "Tab switch detected"})
	assert.Equal(t, 0, h.ctrl.Snapshot().Warnings)

	close(release)
	require.Eventually(t, func() bool {
		return h.ctrl.Status() == session.StatusSubmitted
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, gw.submitCalls(), 1)
}

func TestSubmitFailureKeepsStateAndRetries(t *testing.T) {
	var mu sync.Mutex
	fail := true
	gw := &fakeGateway{
		startResults: []func() (*model.StartedAttempt, error){startsWith(fourQuestionAttempt())},
		submitFn: func(_ string, answers map[string]string, _ int) (*model.SubmitResult, error) {
			mu.Lock()
			defer mu.Unlock()
			if fail {
				return nil, &gateway.RequestError{Method: "POST", Path: "/api/attempts/a1/submit", Status: 503}
			}
			return &model.SubmitResult{Score: 1, TotalMarks: 5, Percentage: 20}, nil
		},
	}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	h.ctrl.SelectOption(0, 1)
	h.ctrl.ToggleFlag(1)
	h.ctrl.Submit()

	v := h.ctrl.Snapshot()
	assert.Equal(t, session.StatusFailed, v.Status)
	assert.Equal(t, session.FailureSubmit, v.Failure)
	assert.ErrorIs(t, v.Err, session.ErrSubmitFailed)
	assert.Equal(t, map[string]string{"q1": "B"}, h.ctrl.Answers())
	assert.Equal(t, []int{1}, h.ctrl.Flagged())
	assert.False(t, h.clock.isRunning())

	// Navigation stays available for review; edits do not.
	h.ctrl.GoTo(2)
	assert.Equal(t, 2, h.ctrl.Snapshot().CurrentIndex)
	h.ctrl.SelectAnswer(2, "late")
	assert.Equal(t, map[string]string{"q1": "B"}, h.ctrl.Answers())

	mu.Lock()
	fail = false
	mu.Unlock()
	h.ctrl.Submit()

	calls := gw.submitCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].Answers, calls[1].Answers)
	v = h.ctrl.Snapshot()
	assert.Equal(t, session.StatusSubmitted, v.Status)
	assert.NoError(t, v.Err)
	assert.Equal(t, 20.0, v.Result.Percentage)
	assert.False(t, h.host.subscribed())
}

func TestNextPastLastDoesNotSubmit(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(fourQuestionAttempt())}}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	for i := 0; i < 10; i++ {
		h.ctrl.Next()
	}
	assert.Equal(t, 3, h.ctrl.Snapshot().CurrentIndex)
	assert.Equal(t, session.StatusInProgress, h.ctrl.Status())
	assert.Empty(t, gw.submitCalls())

	for i := 0; i < 10; i++ {
		h.ctrl.Prev()
	}
	assert.Equal(t, 0, h.ctrl.Snapshot().CurrentIndex)

	h.ctrl.GoTo(99)
	assert.Equal(t, 0, h.ctrl.Snapshot().CurrentIndex)
}

func TestPalettePrecedence(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(fourQuestionAttempt())}}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	// q1 answered and flagged, q2 answered, q3 visited, q4 current.
	h.ctrl.SelectOption(0, 0)
	h.ctrl.ToggleFlag(0)
	h.ctrl.SelectOption(1, 0)
	h.ctrl.GoTo(2)
	h.ctrl.GoTo(3)

	v := h.ctrl.Snapshot()
	got := make([]session.ItemStatus, len(v.Palette))
	for i, item := range v.Palette {
		got[i] = item.Status
	}
	assert.Equal(t, []session.ItemStatus{
		session.ItemFlagged,
		session.ItemAnswered,
		session.ItemVisited,
		session.ItemCurrent,
	}, got)
	assert.Equal(t, 2, v.AnsweredCount)
	assert.Equal(t, 1, v.FlaggedCount)

	h.ctrl.ToggleFlag(0)
	h.ctrl.GoTo(0)
	v = h.ctrl.Snapshot()
	assert.Equal(t, session.ItemCurrent, v.Palette[0].Status)
	assert.Equal(t, session.ItemCurrent, v.Palette[v.CurrentIndex].Status)
	assert.Empty(t, h.ctrl.Flagged())
}

func TestUnvisitedQuestionsStayNotVisited(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(fourQuestionAttempt())}}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	v := h.ctrl.Snapshot()
	assert.Equal(t, session.ItemCurrent, v.Palette[0].Status)
	for _, item := range v.Palette[1:] {
		assert.Equal(t, session.ItemNotVisited, item.Status)
	}
}

func TestEmptyQuestionList(t *testing.T) {
	s := oneQuestionAttempt()
	s.Questions = nil
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(s)}}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	v := h.ctrl.Snapshot()
	assert.Equal(t, session.StatusInProgress, v.Status)
	assert.Nil(t, v.Current)
	assert.Empty(t, v.Palette)

	h.ctrl.Next()
	h.ctrl.SelectOption(0, 0)
	h.ctrl.Submit()

	calls := gw.submitCalls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].Answers)
	assert.Equal(t, session.StatusSubmitted, h.ctrl.Status())
}

func TestNilSubmitResultBecomesEmpty(t *testing.T) {
	gw := &fakeGateway{
		startResults: []func() (*model.StartedAttempt, error){startsWith(oneQuestionAttempt())},
		submitFn: func(string, map[string]string, int) (*model.SubmitResult, error) {
			return nil, nil
		},
	}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))
	h.ctrl.Submit()

	v := h.ctrl.Snapshot()
	assert.Equal(t, session.StatusSubmitted, v.Status)
	require.NotNil(t, v.Result)
	assert.Zero(t, v.Result.Score)
}

func TestCloseReleasesClockAndMonitor(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(oneQuestionAttempt())}}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))
	require.True(t, h.host.subscribed())

	h.ctrl.Close()
	h.ctrl.Close()

	assert.False(t, h.clock.isRunning())
	assert.False(t, h.host.subscribed())
	assert.Equal(t, 1, h.host.exited)
}

func TestCloseBeforeStartCompletes(t *testing.T) {
	gate := make(chan struct{})
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){
		func() (*model.StartedAttempt, error) {
			<-gate
			return oneQuestionAttempt(), nil
		},
	}}
	h := newHarness(t, gw)

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.Start(context.Background()) }()

	h.ctrl.Close()
	close(gate)
	require.NoError(t, <-errc)

	assert.Equal(t, 0, h.clock.starts)
	assert.False(t, h.host.subscribed())
	assert.Equal(t, session.StatusStarting, h.ctrl.Status())
}

func TestFullscreenRefusalIsNotFatal(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(oneQuestionAttempt())}}
	h := newHarness(t, gw)
	h.host.enterErr = errors.New("not supported")

	require.NoError(t, h.ctrl.Start(context.Background()))
	assert.Equal(t, session.StatusInProgress, h.ctrl.Status())
	assert.True(t, h.host.subscribed())
}

func TestUpdatesSignalsStateChanges(t *testing.T) {
	gw := &fakeGateway{startResults: []func() (*model.StartedAttempt, error){startsWith(oneQuestionAttempt())}}
	h := newHarness(t, gw)
	require.NoError(t, h.ctrl.Start(context.Background()))

	select {
	case <-h.ctrl.Updates():
	default:
		t.Fatal("expected an update after start")
	}
}
