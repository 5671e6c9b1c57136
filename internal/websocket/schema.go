package websocket

import "time"

// ─── Events (Server → Proctor) ──────────────────────────────────────

type Event string

const (
	EventAttemptStarted Event = "attempt_started"
	EventWarning        Event = "warning"
	EventSubmitted      Event = "submitted"
	EventError          Event = "error"
	EventPong           Event = "pong"
)

// Submission triggers carried by EventSubmitted.
const (
	TriggerClient  = "client"
	TriggerExpired = "server_timeout"
)

// ProctorEvent is one message on the proctor feed.
type ProctorEvent struct {
	Event     Event     `json:"event"`
	AttemptID string    `json:"attempt_id"`
	TestID    string    `json:"test_id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	At        time.Time `json:"at"`

	// Warning events.
	WarningType string `json:"warning_type,omitempty"`
	Details     string `json:"details,omitempty"`
	Warnings    int    `json:"warnings,omitempty"`

	// Submitted events.
	Trigger    string  `json:"trigger,omitempty"`
	Score      float64 `json:"score,omitempty"`
	TotalMarks int     `json:"total_marks,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// ─── Actions (Proctor → Server) ─────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
