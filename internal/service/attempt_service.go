package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/repository"
	ws "github.com/stemsi/aptiq-proctor/internal/websocket"
)

// Attempt errors.
var (
	ErrAttemptNotFound     = errors.New("attempt not found")
	ErrAttemptCompleted    = errors.New("attempt already completed")
	ErrAttemptNotCompleted = errors.New("attempt not completed")
	ErrUnknownQuestion     = errors.New("question does not belong to the test")
)

// AttemptInProgressError carries the id of the user's open attempt.
type AttemptInProgressError struct {
	AttemptID string
}

func (e *AttemptInProgressError) Error() string {
	return fmt.Sprintf("attempt %s already in progress", e.AttemptID)
}

// EventPublisher receives proctor events. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, ev ws.ProctorEvent) error
}

// AttemptService runs the attempt lifecycle: start, save, warn, submit, review.
type AttemptService struct {
	catalog          *repository.Catalog
	store            repository.AttemptStore
	events           EventPublisher
	defaultTimeLimit time.Duration
	log              zerolog.Logger
	now              func() time.Time
}

// NewAttemptService creates a new AttemptService. defaultTimeLimit applies
// to tests without a time limit.
func NewAttemptService(
	catalog *repository.Catalog,
	store repository.AttemptStore,
	events EventPublisher,
	defaultTimeLimit time.Duration,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		catalog:          catalog,
		store:            store,
		events:           events,
		defaultTimeLimit: defaultTimeLimit,
		log:              log.With().Str("component", "attempt_service").Logger(),
		now:              time.Now,
	}
}

// Start opens a new attempt. An already open attempt for the same user and
// test yields *AttemptInProgressError.
func (s *AttemptService) Start(ctx context.Context, userID, testID string) (*model.StartedAttempt, error) {
	test, err := s.catalog.GetTest(testID)
	if err != nil {
		return nil, ErrTestNotFound
	}
	questions, err := s.catalog.Questions(testID)
	if err != nil {
		return nil, ErrTestNotFound
	}

	a := &model.Attempt{
		ID:         uuid.New().String(),
		TestID:     testID,
		UserID:     userID,
		Status:     model.AttemptStatusInProgress,
		StartedAt:  s.now().UTC(),
		TotalMarks: test.TotalMarks,
	}

	if err := s.store.CreateAttempt(ctx, a); err != nil {
		var open *repository.OpenAttemptError
		if errors.As(err, &open) {
			return nil, &AttemptInProgressError{AttemptID: open.AttemptID}
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", a.ID).
		Str("test_id", testID).
		Str("user_id", userID).
		Msg("Attempt started")

	s.publish(ctx, ws.ProctorEvent{
		Event:     ws.EventAttemptStarted,
		AttemptID: a.ID,
		TestID:    testID,
		UserID:    userID,
	})

	return &model.StartedAttempt{Test: *test, Questions: questions, Attempt: *a}, nil
}

// SaveAnswer upserts one answer. An empty answer is stored as given.
func (s *AttemptService) SaveAnswer(ctx context.Context, userID, attemptID string, req model.UpdateAnswerRequest) error {
	a, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return err
	}
	if a.Status != model.AttemptStatusInProgress {
		return ErrAttemptCompleted
	}
	keys, err := s.catalog.AnswerKeys(a.TestID)
	if err != nil {
		return ErrTestNotFound
	}
	if _, ok := keys[req.QuestionID]; !ok {
		return ErrUnknownQuestion
	}

	if err := s.store.SaveAnswer(ctx, attemptID, req.QuestionID, req.Answer); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

// RecordWarning appends a violation to the attempt's log and returns the
// number of warnings so far.
func (s *AttemptService) RecordWarning(ctx context.Context, userID, attemptID string, req model.RecordWarningRequest) (int, error) {
	a, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return 0, err
	}
	if a.Status != model.AttemptStatusInProgress {
		return 0, ErrAttemptCompleted
	}

	n, err := s.store.AddWarning(ctx, attemptID, model.Warning{
		Type:       req.Type,
		Details:    req.Details,
		RecordedAt: s.now().UTC(),
	})
	if err != nil {
		return 0, mapStoreErr(err)
	}

	s.log.Warn().
		Str("attempt_id", attemptID).
		Str("type", req.Type).
		Int("warnings", n).
		Msg(req.Details)

	s.publish(ctx, ws.ProctorEvent{
		Event:       ws.EventWarning,
		AttemptID:   attemptID,
		TestID:      a.TestID,
		UserID:      userID,
		WarningType: req.Type,
		Details:     req.Details,
		Warnings:    n,
	})
	return n, nil
}

// Submit grades the answers in req and completes the attempt.
func (s *AttemptService) Submit(ctx context.Context, userID, attemptID string, req model.SubmitAttemptRequest) (*model.SubmitResult, error) {
	a, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptCompleted
	}
	return s.complete(ctx, a, req.Answers, req.TimeTakenSeconds, ws.TriggerClient)
}

// ExpireOverdue completes every open attempt whose time limit plus grace has
// passed, grading the answers saved so far. It returns how many it closed.
func (s *AttemptService) ExpireOverdue(ctx context.Context, grace time.Duration) (int, error) {
	open, err := s.store.OpenAttempts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open attempts: %w", err)
	}

	now := s.now()
	closed := 0
	for i := range open {
		a := &open[i]
		limit := s.defaultTimeLimit
		if t, err := s.catalog.GetTest(a.TestID); err == nil && t.TimeLimitMinutes > 0 {
			limit = time.Duration(t.TimeLimitMinutes) * time.Minute
		}
		if now.Sub(a.StartedAt) < limit+grace {
			continue
		}

		answers, err := s.store.Answers(ctx, a.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("attempt_id", a.ID).Msg("Read answers of overdue attempt failed")
			continue
		}
		if _, err := s.complete(ctx, a, answers, int(limit.Seconds()), ws.TriggerExpired); err != nil {
			if !errors.Is(err, ErrAttemptCompleted) {
				s.log.Warn().Err(err).Str("attempt_id", a.ID).Msg("Expire attempt failed")
			}
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *AttemptService) complete(ctx context.Context, a *model.Attempt, answers map[string]string, timeTaken int, trigger string) (*model.SubmitResult, error) {
	questions, err := s.catalog.Questions(a.TestID)
	if err != nil {
		return nil, ErrTestNotFound
	}
	keys, err := s.catalog.AnswerKeys(a.TestID)
	if err != nil {
		return nil, ErrTestNotFound
	}

	final := knownAnswers(questions, answers)
	res := Grade(questions, keys, final)

	done := *a
	completedAt := s.now().UTC()
	done.Status = model.AttemptStatusCompleted
	done.CompletedAt = &completedAt
	done.Score = res.Score
	done.TotalMarks = res.TotalMarks
	done.Percentage = res.Percentage
	done.Breakdown = res.Breakdown
	done.TimeTakenSeconds = timeTaken

	if err := s.store.CompleteAttempt(ctx, &done, final); err != nil {
		return nil, mapStoreErr(err)
	}

	s.log.Info().
		Str("attempt_id", a.ID).
		Str("trigger", trigger).
		Float64("score", res.Score).
		Int("total_marks", res.TotalMarks).
		Int("time_taken_seconds", timeTaken).
		Msg("Attempt submitted")

	s.publish(ctx, ws.ProctorEvent{
		Event:      ws.EventSubmitted,
		AttemptID:  a.ID,
		TestID:     a.TestID,
		UserID:     a.UserID,
		Trigger:    trigger,
		Score:      res.Score,
		TotalMarks: res.TotalMarks,
		Percentage: res.Percentage,
	})
	return res, nil
}

// Review returns a completed attempt with every question, the student's
// answer and the answer key.
func (s *AttemptService) Review(ctx context.Context, userID, attemptID string) (*model.Review, error) {
	a, err := s.ownedAttempt(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptStatusCompleted {
		return nil, ErrAttemptNotCompleted
	}

	questions, err := s.catalog.Questions(a.TestID)
	if err != nil {
		return nil, ErrTestNotFound
	}
	keys, err := s.catalog.AnswerKeys(a.TestID)
	if err != nil {
		return nil, ErrTestNotFound
	}
	answers, err := s.store.Answers(ctx, attemptID)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	review := &model.Review{Attempt: *a, Questions: make([]model.ReviewQuestion, 0, len(questions))}
	for _, q := range questions {
		key := keys[q.ID]
		rq := model.ReviewQuestion{
			Question:      q,
			CorrectAnswer: key.Answer,
			Explanation:   key.Explanation,
		}
		if ans, ok := answers[q.ID]; ok {
			ans := ans
			rq.StudentAnswer = &ans
			rq.IsCorrect = ans == key.Answer
		}
		review.Questions = append(review.Questions, rq)
	}
	return review, nil
}

// Monitor lists open attempts with their progress, optionally for one test.
func (s *AttemptService) Monitor(ctx context.Context, testID string) (*model.MonitorSnapshot, error) {
	open, err := s.store.OpenAttempts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open attempts: %w", err)
	}

	snap := &model.MonitorSnapshot{TestID: testID, Open: make([]model.MonitorEntry, 0, len(open))}
	for _, a := range open {
		if testID != "" && a.TestID != testID {
			continue
		}
		entry := model.MonitorEntry{Attempt: a}
		if u, err := s.catalog.UserByID(a.UserID); err == nil {
			entry.UserName = u.Name
		}
		if answers, err := s.store.Answers(ctx, a.ID); err == nil {
			for _, v := range answers {
				if v != "" {
					entry.Answered++
				}
			}
		}
		if warnings, err := s.store.Warnings(ctx, a.ID); err == nil {
			entry.Warnings = len(warnings)
		}
		snap.Open = append(snap.Open, entry)
	}
	sort.Slice(snap.Open, func(i, j int) bool {
		return snap.Open[i].StartedAt.Before(snap.Open[j].StartedAt)
	})
	return snap, nil
}

// ownedAttempt loads an attempt and hides other users' attempts.
func (s *AttemptService) ownedAttempt(ctx context.Context, userID, attemptID string) (*model.Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if a.UserID != userID {
		return nil, ErrAttemptNotFound
	}
	return a, nil
}

func (s *AttemptService) publish(ctx context.Context, ev ws.ProctorEvent) {
	if s.events == nil {
		return
	}
	if ev.UserName == "" {
		if u, err := s.catalog.UserByID(ev.UserID); err == nil {
			ev.UserName = u.Name
		}
	}
	ev.At = s.now().UTC()
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Debug().Err(err).Str("event", string(ev.Event)).Msg("Publish proctor event failed")
	}
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrAttemptNotFound):
		return ErrAttemptNotFound
	case errors.Is(err, repository.ErrAttemptCompleted):
		return ErrAttemptCompleted
	default:
		return err
	}
}
