package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/aptiq-proctor/internal/model"
)

const maxBodyBytes = 4 << 20

// HTTPGateway talks to the backend's /api routes with a bearer credential.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	log     zerolog.Logger
}

// NewHTTPGateway creates a new HTTPGateway. baseURL is the server root
// without the /api prefix.
func NewHTTPGateway(baseURL string, tokens TokenSource, timeout time.Duration, log zerolog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

// errorBody covers both {error} and the 409 {error, attempt_id} shapes.
type errorBody struct {
	Error     string `json:"error"`
	AttemptID string `json:"attempt_id"`
}

// Start opens an attempt for testID.
func (g *HTTPGateway) Start(ctx context.Context, testID string) (*model.StartedAttempt, error) {
	var out model.StartedAttempt
	err := g.do(ctx, http.MethodPost, "/attempts/start", model.StartAttemptRequest{TestID: testID}, &out)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) && reqErr.Status == http.StatusConflict && reqErr.attemptID != "" {
			return nil, &ConflictError{AttemptID: reqErr.attemptID}
		}
		return nil, err
	}
	return &out, nil
}

// FetchReview returns the graded attempt with per-question answers.
func (g *HTTPGateway) FetchReview(ctx context.Context, attemptID string) (*model.Review, error) {
	var out model.Review
	if err := g.do(ctx, http.MethodGet, "/attempts/"+url.PathEscape(attemptID)+"/review", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecordAnswer mirrors one answer to the backend.
func (g *HTTPGateway) RecordAnswer(ctx context.Context, attemptID, questionID, answer string) error {
	body := model.UpdateAnswerRequest{QuestionID: questionID, Answer: answer}
	return g.do(ctx, http.MethodPut, "/attempts/"+url.PathEscape(attemptID)+"/answer", body, nil)
}

// RecordWarning reports one proctoring violation.
func (g *HTTPGateway) RecordWarning(ctx context.Context, attemptID, warnType, details string) error {
	body := model.RecordWarningRequest{Type: warnType, Details: details}
	return g.do(ctx, http.MethodPut, "/attempts/"+url.PathEscape(attemptID)+"/warning", body, nil)
}

// Submit finishes the attempt with the full answer set.
func (g *HTTPGateway) Submit(ctx context.Context, attemptID string, answers map[string]string, timeTakenSeconds int) (*model.SubmitResult, error) {
	if answers == nil {
		answers = map[string]string{}
	}
	body := model.SubmitAttemptRequest{Answers: answers, TimeTakenSeconds: timeTakenSeconds}
	var out model.SubmitResult
	if err := g.do(ctx, http.MethodPost, "/attempts/"+url.PathEscape(attemptID)+"/submit", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Abandon closes a stale attempt by submitting it empty.
func (g *HTTPGateway) Abandon(ctx context.Context, attemptID string) error {
	_, err := g.Submit(ctx, attemptID, map[string]string{}, 0)
	if err != nil {
		return fmt.Errorf("abandon attempt %s: %w", attemptID, err)
	}
	return nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+"/api"+path, body)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if g.tokens != nil {
		if tok := g.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Debug().Err(err).Str("method", method).Str("path", path).Msg("Request error")
		return &RequestError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &RequestError{Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}

	g.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("Request done")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return &RequestError{
			Method:    method,
			Path:      path,
			Status:    resp.StatusCode,
			Message:   eb.Error,
			attemptID: eb.AttemptID,
		}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RequestError{Method: method, Path: path, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}
