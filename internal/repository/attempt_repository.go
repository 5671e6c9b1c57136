package repository

import (
	"context"
	"errors"

	"github.com/stemsi/aptiq-proctor/internal/model"
)

// Attempt store errors.
var (
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptCompleted = errors.New("attempt already completed")
)

// OpenAttemptError is returned by CreateAttempt when the user already has an
// in-progress attempt for the test.
type OpenAttemptError struct {
	AttemptID string
}

func (e *OpenAttemptError) Error() string {
	return "attempt " + e.AttemptID + " already in progress"
}

// AttemptStore keeps attempts, their saved answers and warning logs.
type AttemptStore interface {
	// CreateAttempt stores a new in-progress attempt. At most one attempt per
	// user and test may be open; otherwise *OpenAttemptError is returned.
	CreateAttempt(ctx context.Context, a *model.Attempt) error
	GetAttempt(ctx context.Context, id string) (*model.Attempt, error)
	// SaveAnswer upserts one answer of an in-progress attempt.
	SaveAnswer(ctx context.Context, id, questionID, answer string) error
	Answers(ctx context.Context, id string) (map[string]string, error)
	// AddWarning appends to the attempt's warning log and returns its length.
	AddWarning(ctx context.Context, id string, w model.Warning) (int, error)
	Warnings(ctx context.Context, id string) ([]model.Warning, error)
	// CompleteAttempt stores the graded attempt and its final answers and
	// releases the open slot. Only the first call for an attempt succeeds.
	CompleteAttempt(ctx context.Context, a *model.Attempt, answers map[string]string) error
	// OpenAttempts lists every in-progress attempt.
	OpenAttempts(ctx context.Context) ([]model.Attempt, error)
}
