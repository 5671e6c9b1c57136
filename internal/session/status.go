package session

import "errors"

// Status is the controller's lifecycle state.
type Status int

const (
	StatusStarting Status = iota
	StatusInProgress
	StatusSubmitting
	StatusSubmitted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusInProgress:
		return "in_progress"
	case StatusSubmitting:
		return "submitting"
	case StatusSubmitted:
		return "submitted"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Failure tells which awaited call put the controller into StatusFailed.
type Failure int

const (
	FailureNone Failure = iota
	// FailureStart blocks entry to the test. There is no retry.
	FailureStart
	// FailureSubmit keeps answers and flags; Submit may be called again.
	FailureSubmit
)

// Trigger records what caused submission.
type Trigger string

const (
	TriggerUser       Trigger = "user"
	TriggerTimeout    Trigger = "timeout"
	TriggerViolations Trigger = "violations"
)

var (
	ErrStartFailed    = errors.New("could not start the test")
	ErrSubmitFailed   = errors.New("could not submit the test")
	ErrAlreadyStarted = errors.New("session already started")
)
