// Package monitor detects proctoring violations from the host environment
// and reports each one as a discrete event.
package monitor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ViolationType classifies a reported violation.
type ViolationType string

const (
	ViolationTabSwitch       ViolationType = "tab_switch"
	ViolationFocusLost       ViolationType = "focus_lost"
	ViolationBlockedShortcut ViolationType = "blocked_shortcut"
)

// Violation is one detected proctoring breach.
type Violation struct {
	Type   ViolationType
	Reason string
	At     time.Time
}

// ErrFullscreenUnavailable is returned by hosts that cannot go full screen.
var ErrFullscreenUnavailable = errors.New("fullscreen unavailable")

// FullscreenError reports a failed full-screen request. Callers are free to
// drop it; proctoring works the same without full screen.
type FullscreenError struct {
	Op  string
	Err error
}

func (e *FullscreenError) Error() string {
	return fmt.Sprintf("fullscreen %s: %v", e.Op, e.Err)
}

func (e *FullscreenError) Unwrap() error { return e.Err }

// Monitor owns the host subscription and full-screen state for one session.
type Monitor struct {
	host        Host
	onViolation func(Violation)
	now         func() time.Time
	log         zerolog.Logger

	mu     sync.Mutex
	active bool
	cancel func()
}

// New creates a Monitor that reports to onViolation.
func New(host Host, onViolation func(Violation), log zerolog.Logger) *Monitor {
	return &Monitor{
		host:        host,
		onViolation: onViolation,
		now:         time.Now,
		log:         log.With().Str("component", "monitor").Logger(),
	}
}

// Activate subscribes to the host and requests full screen. Activating an
// active monitor does nothing. The returned error is only ever a
// *FullscreenError.
func (m *Monitor) Activate() error {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return nil
	}
	m.active = true
	m.mu.Unlock()

	cancel := m.host.Subscribe(m.handle)

	m.mu.Lock()
	if !m.active {
		// Deactivated while subscribing.
		m.mu.Unlock()
		cancel()
		return nil
	}
	m.cancel = cancel
	m.mu.Unlock()

	m.log.Debug().Msg("Monitor activated")

	if err := m.host.EnterFullscreen(); err != nil {
		return &FullscreenError{Op: "enter", Err: err}
	}
	return nil
}

// Deactivate releases the host subscription and requests full-screen exit.
// Safe to call repeatedly; only the first call after Activate does work.
func (m *Monitor) Deactivate() error {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return nil
	}
	m.active = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	m.log.Debug().Msg("Monitor deactivated")

	if err := m.host.ExitFullscreen(); err != nil {
		return &FullscreenError{Op: "exit", Err: err}
	}
	return nil
}

// Active reports whether the monitor is subscribed.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Monitor) handle(ev Event) Verdict {
	if !m.Active() {
		return Allow
	}

	verdict, v, report := Classify(ev)
	if report {
		v.At = m.now()
		m.log.Info().
			Str("type", string(v.Type)).
			Str("reason", v.Reason).
			Msg("Violation detected")
		if m.onViolation != nil {
			m.onViolation(v)
		}
	}
	return verdict
}

// Classify decides what an event means for proctoring. Context-menu
// events are blocked without being reported. Repeated events are reported
// every time.
func Classify(ev Event) (Verdict, Violation, bool) {
	switch ev.Kind {
	case EventVisibilityHidden:
		return Allow, Violation{Type: ViolationTabSwitch, Reason: "Tab switch detected"}, true
	case EventBlur:
		return Allow, Violation{Type: ViolationFocusLost, Reason: "Window focus lost"}, true
	case EventKeyDown:
		if label, ok := matchShortcut(ev); ok {
			return Block, Violation{Type: ViolationBlockedShortcut, Reason: "Blocked keyboard shortcut: " + label}, true
		}
	case EventContextMenu:
		return Block, Violation{}, false
	}
	return Allow, Violation{}, false
}
