package model

import "time"

// AttemptStatus is the backend's view of an attempt.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusCompleted  AttemptStatus = "completed"
)

// Attempt represents one student's instance of taking a test.
type Attempt struct {
	ID               string                  `json:"id"`
	TestID           string                  `json:"test_id"`
	UserID           string                  `json:"user_id,omitempty"`
	Status           AttemptStatus           `json:"status"`
	StartedAt        time.Time               `json:"started_at"`
	CompletedAt      *time.Time              `json:"completed_at,omitempty"`
	Score            float64                 `json:"score"`
	TotalMarks       int                     `json:"total_marks"`
	Percentage       float64                 `json:"percentage"`
	Breakdown        map[string]SectionScore `json:"breakdown,omitempty"`
	TimeTakenSeconds int                     `json:"time_taken_seconds"`
	Warnings         int                     `json:"warnings"`
}

// StartedAttempt is the start-attempt response body.
type StartedAttempt struct {
	Test      Test       `json:"test"`
	Questions []Question `json:"questions"`
	Attempt   Attempt    `json:"attempt"`
}

// Warning is one proctoring violation reported for an attempt.
type Warning struct {
	Type       string    `json:"type"`
	Details    string    `json:"details"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StartAttemptRequest is the payload for starting an attempt.
type StartAttemptRequest struct {
	TestID string `json:"test_id" binding:"required,max=64"`
}

// UpdateAnswerRequest is the payload for saving one answer.
type UpdateAnswerRequest struct {
	QuestionID string `json:"question_id" binding:"required,max=64"`
	Answer     string `json:"answer" binding:"max=4000"`
}

// RecordWarningRequest is the payload for reporting a proctoring warning.
type RecordWarningRequest struct {
	Type    string `json:"type" binding:"required,violation"`
	Details string `json:"details" binding:"max=500"`
}

// SubmitAttemptRequest is the payload for finishing an attempt.
type SubmitAttemptRequest struct {
	Answers          map[string]string `json:"answers"`
	TimeTakenSeconds int               `json:"time_taken_seconds" binding:"min=0"`
}

// MonitorEntry is one open attempt as seen by a proctor.
type MonitorEntry struct {
	Attempt
	UserName string `json:"user_name"`
	Answered int    `json:"answered"`
}

// MonitorSnapshot lists open attempts, oldest first.
type MonitorSnapshot struct {
	TestID string         `json:"test_id,omitempty"`
	Open   []MonitorEntry `json:"open"`
}
