package monitor

import "strings"

// EventKind enumerates host environment events the monitor listens to.
type EventKind int

const (
	EventVisibilityHidden EventKind = iota + 1
	EventVisibilityVisible
	EventBlur
	EventFocus
	EventKeyDown
	EventContextMenu
)

func (k EventKind) String() string {
	switch k {
	case EventVisibilityHidden:
		return "visibility_hidden"
	case EventVisibilityVisible:
		return "visibility_visible"
	case EventBlur:
		return "blur"
	case EventFocus:
		return "focus"
	case EventKeyDown:
		return "keydown"
	case EventContextMenu:
		return "contextmenu"
	default:
		return "unknown"
	}
}

// Event is one host notification. Key and the modifier flags are only set
// for EventKeyDown.
type Event struct {
	Kind  EventKind
	Key   string
	Ctrl  bool
	Shift bool
	Alt   bool
}

// KeyDown builds a key event.
func KeyDown(key string, ctrl, shift bool) Event {
	return Event{Kind: EventKeyDown, Key: key, Ctrl: ctrl, Shift: shift}
}

// Verdict tells the host whether to let the event's default effect happen.
type Verdict int

const (
	Allow Verdict = iota
	Block
)

// Handler receives host events.
type Handler func(Event) Verdict

// Host is the environment being proctored: whatever owns the keyboard,
// focus and display. The monitor is its only subscriber during a session.
type Host interface {
	// Subscribe attaches h and returns a function that detaches it.
	Subscribe(h Handler) (cancel func())
	EnterFullscreen() error
	ExitFullscreen() error
}

// shortcut is a blocked key combination.
type shortcut struct {
	key   string
	ctrl  bool
	shift bool
	label string
}

var blockedShortcuts = []shortcut{
	{key: "f12", label: "F12"},
	{key: "i", ctrl: true, shift: true, label: "Ctrl+Shift+I"},
	{key: "u", ctrl: true, label: "Ctrl+U"},
	{key: "c", ctrl: true, label: "Ctrl+C"},
	{key: "v", ctrl: true, label: "Ctrl+V"},
}

// matchShortcut returns the label of the blocked combination ev triggers.
func matchShortcut(ev Event) (string, bool) {
	key := strings.ToLower(ev.Key)
	for _, s := range blockedShortcuts {
		if key != s.key || (s.ctrl && !ev.Ctrl) || (s.shift && !ev.Shift) {
			continue
		}
		return s.label, true
	}
	return "", false
}
