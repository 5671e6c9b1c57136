// Package gateway is the client side of the attempt API: the awaited calls
// on the critical path (start, submit, review) and the best-effort mirrors
// (answers, warnings) that are only ever run detached.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stemsi/aptiq-proctor/internal/model"
)

// Gateway is the remote attempt contract consumed by the session controller.
type Gateway interface {
	Start(ctx context.Context, testID string) (*model.StartedAttempt, error)
	FetchReview(ctx context.Context, attemptID string) (*model.Review, error)
	RecordAnswer(ctx context.Context, attemptID, questionID, answer string) error
	RecordWarning(ctx context.Context, attemptID, warnType, details string) error
	Submit(ctx context.Context, attemptID string, answers map[string]string, timeTakenSeconds int) (*model.SubmitResult, error)
	Abandon(ctx context.Context, attemptID string) error
}

// ErrRequestFailed matches every RequestError via errors.Is.
var ErrRequestFailed = errors.New("request failed")

// RequestError is a network failure (Status 0) or a non-2xx response.
type RequestError struct {
	Method  string
	Path    string
	Status  int
	Message string
	Err     error

	// attemptID is set when the error body carried one (409 on start).
	attemptID string
}

func (e *RequestError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool { return target == ErrRequestFailed }

// ConflictError is returned by Start when the backend already has an open
// attempt for this test and user.
type ConflictError struct {
	AttemptID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("attempt %s already in progress", e.AttemptID)
}

// AsConflict extracts a ConflictError from err.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
