package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/stemsi/aptiq-proctor/internal/model"
)

type memoryAttempt struct {
	attempt  model.Attempt
	answers  map[string]string
	warnings []model.Warning
}

// MemoryAttemptStore keeps attempts in process memory.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]*memoryAttempt
	open     map[string]string // user:test -> attempt id
}

// NewMemoryAttemptStore creates an empty MemoryAttemptStore.
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		attempts: make(map[string]*memoryAttempt),
		open:     make(map[string]string),
	}
}

func openKey(userID, testID string) string {
	return userID + ":" + testID
}

func (s *MemoryAttemptStore) CreateAttempt(ctx context.Context, a *model.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := openKey(a.UserID, a.TestID)
	if id, ok := s.open[key]; ok {
		return &OpenAttemptError{AttemptID: id}
	}
	s.open[key] = a.ID
	s.attempts[a.ID] = &memoryAttempt{attempt: *a, answers: map[string]string{}}
	return nil
}

func (s *MemoryAttemptStore) GetAttempt(ctx context.Context, id string) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	a := m.attempt
	a.Warnings = len(m.warnings)
	return &a, nil
}

func (s *MemoryAttemptStore) SaveAnswer(ctx context.Context, id, questionID, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.attempts[id]
	if !ok {
		return ErrAttemptNotFound
	}
	if m.attempt.Status != model.AttemptStatusInProgress {
		return ErrAttemptCompleted
	}
	m.answers[questionID] = answer
	return nil
}

func (s *MemoryAttemptStore) Answers(ctx context.Context, id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	out := make(map[string]string, len(m.answers))
	for k, v := range m.answers {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryAttemptStore) AddWarning(ctx context.Context, id string, w model.Warning) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.attempts[id]
	if !ok {
		return 0, ErrAttemptNotFound
	}
	m.warnings = append(m.warnings, w)
	return len(m.warnings), nil
}

func (s *MemoryAttemptStore) Warnings(ctx context.Context, id string) ([]model.Warning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return append([]model.Warning(nil), m.warnings...), nil
}

func (s *MemoryAttemptStore) CompleteAttempt(ctx context.Context, a *model.Attempt, answers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.attempts[a.ID]
	if !ok {
		return ErrAttemptNotFound
	}
	if m.attempt.Status != model.AttemptStatusInProgress {
		return ErrAttemptCompleted
	}

	m.attempt = *a
	m.answers = make(map[string]string, len(answers))
	for k, v := range answers {
		m.answers[k] = v
	}
	delete(s.open, openKey(a.UserID, a.TestID))
	return nil
}

func (s *MemoryAttemptStore) OpenAttempts(ctx context.Context) ([]model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Attempt, 0, len(s.open))
	for _, id := range s.open {
		out = append(out, s.attempts[id].attempt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
