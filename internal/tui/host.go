package tui

import (
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stemsi/aptiq-proctor/internal/monitor"
)

// fullscreenMsg asks the running program to switch the alternate screen.
type fullscreenMsg struct{ on bool }

// TerminalHost is the monitor.Host for a bubbletea program. Focus reports
// stand in for window focus, ctrl+z for leaving the test, and the alternate
// screen for full screen.
type TerminalHost struct {
	mu      sync.Mutex
	prog    *tea.Program
	handler monitor.Handler
}

// NewTerminalHost creates a host with no program attached.
func NewTerminalHost() *TerminalHost {
	return &TerminalHost{}
}

// Attach binds the program that receives full-screen requests.
func (h *TerminalHost) Attach(p *tea.Program) {
	h.mu.Lock()
	h.prog = p
	h.mu.Unlock()
}

// Subscribe implements monitor.Host.
func (h *TerminalHost) Subscribe(fn monitor.Handler) func() {
	h.mu.Lock()
	h.handler = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			h.handler = nil
			h.mu.Unlock()
		})
	}
}

// EnterFullscreen implements monitor.Host.
func (h *TerminalHost) EnterFullscreen() error {
	return h.send(fullscreenMsg{on: true})
}

// ExitFullscreen implements monitor.Host.
func (h *TerminalHost) ExitFullscreen() error {
	return h.send(fullscreenMsg{on: false})
}

// send never blocks: the caller may be inside the program's own Update.
func (h *TerminalHost) send(msg tea.Msg) error {
	h.mu.Lock()
	p := h.prog
	h.mu.Unlock()
	if p == nil {
		return monitor.ErrFullscreenUnavailable
	}
	go p.Send(msg)
	return nil
}

// Dispatch hands a terminal message to the subscriber. Messages that are not
// host events, or that arrive with nobody subscribed, are allowed.
func (h *TerminalHost) Dispatch(msg tea.Msg) monitor.Verdict {
	ev, ok := Translate(msg)
	if !ok {
		return monitor.Allow
	}

	h.mu.Lock()
	fn := h.handler
	h.mu.Unlock()
	if fn == nil {
		return monitor.Allow
	}
	return fn(ev)
}

// Translate maps a bubbletea message to a host event.
func Translate(msg tea.Msg) (monitor.Event, bool) {
	switch msg := msg.(type) {
	case tea.FocusMsg:
		return monitor.Event{Kind: monitor.EventFocus}, true
	case tea.BlurMsg:
		return monitor.Event{Kind: monitor.EventBlur}, true
	case tea.MouseMsg:
		if msg.Button == tea.MouseButtonRight && msg.Action == tea.MouseActionPress {
			return monitor.Event{Kind: monitor.EventContextMenu}, true
		}
		return monitor.Event{}, false
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlZ {
			return monitor.Event{Kind: monitor.EventVisibilityHidden}, true
		}
		return keyEvent(msg.String()), true
	}
	return monitor.Event{}, false
}

// keyEvent splits a bubbletea key name such as "ctrl+shift+i" into a key
// and modifier flags.
func keyEvent(name string) monitor.Event {
	ev := monitor.Event{Kind: monitor.EventKeyDown}
	for {
		switch {
		case strings.HasPrefix(name, "ctrl+") && len(name) > len("ctrl+"):
			ev.Ctrl = true
			name = name[len("ctrl+"):]
		case strings.HasPrefix(name, "alt+") && len(name) > len("alt+"):
			ev.Alt = true
			name = name[len("alt+"):]
		case strings.HasPrefix(name, "shift+") && len(name) > len("shift+"):
			ev.Shift = true
			name = name[len("shift+"):]
		default:
			if r := []rune(name); len(r) == 1 && r[0] >= 'A' && r[0] <= 'Z' {
				ev.Shift = true
			}
			ev.Key = name
			return ev
		}
	}
}
