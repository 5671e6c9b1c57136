package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/aptiq-proctor/internal/config"
	"github.com/stemsi/aptiq-proctor/internal/model"
)

// RedisAttemptStore keeps attempts in Redis: a JSON document per attempt,
// a hash of answers and a list of warnings.
type RedisAttemptStore struct {
	rdb *redis.Client
}

// NewRedisAttemptStore creates a new RedisAttemptStore.
func NewRedisAttemptStore(rdb *redis.Client) *RedisAttemptStore {
	return &RedisAttemptStore{rdb: rdb}
}

func (s *RedisAttemptStore) CreateAttempt(ctx context.Context, a *model.Attempt) error {
	openKey := config.CacheKey.OpenAttemptKey(a.UserID, a.TestID)

	// Claim the open slot first so two concurrent starts cannot both win.
	ok, err := s.rdb.SetNX(ctx, openKey, a.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim open attempt: %w", err)
	}
	if !ok {
		existing, err := s.rdb.Get(ctx, openKey).Result()
		if err != nil {
			return fmt.Errorf("read open attempt: %w", err)
		}
		return &OpenAttemptError{AttemptID: existing}
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, config.CacheKey.AttemptKey(a.ID), data, 0)
		pipe.SAdd(ctx, config.CacheKey.OpenAttemptsKey(), a.ID)
		return nil
	})
	if err != nil {
		s.rdb.Del(ctx, openKey)
		return fmt.Errorf("store attempt: %w", err)
	}
	return nil
}

func (s *RedisAttemptStore) GetAttempt(ctx context.Context, id string) (*model.Attempt, error) {
	a, err := getAttempt(ctx, s.rdb, id)
	if err != nil {
		return nil, err
	}
	n, err := s.rdb.LLen(ctx, config.CacheKey.AttemptWarningsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("count warnings: %w", err)
	}
	a.Warnings = int(n)
	return a, nil
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getAttempt(ctx context.Context, c stringGetter, id string) (*model.Attempt, error) {
	data, err := c.Get(ctx, config.CacheKey.AttemptKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	var a model.Attempt
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode attempt: %w", err)
	}
	return &a, nil
}

func (s *RedisAttemptStore) SaveAnswer(ctx context.Context, id, questionID, answer string) error {
	a, err := getAttempt(ctx, s.rdb, id)
	if err != nil {
		return err
	}
	if a.Status != model.AttemptStatusInProgress {
		return ErrAttemptCompleted
	}
	if err := s.rdb.HSet(ctx, config.CacheKey.AttemptAnswersKey(id), questionID, answer).Err(); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

func (s *RedisAttemptStore) Answers(ctx context.Context, id string) (map[string]string, error) {
	if _, err := getAttempt(ctx, s.rdb, id); err != nil {
		return nil, err
	}
	answers, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get answers: %w", err)
	}
	return answers, nil
}

func (s *RedisAttemptStore) AddWarning(ctx context.Context, id string, w model.Warning) (int, error) {
	if _, err := getAttempt(ctx, s.rdb, id); err != nil {
		return 0, err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return 0, fmt.Errorf("encode warning: %w", err)
	}
	n, err := s.rdb.RPush(ctx, config.CacheKey.AttemptWarningsKey(id), data).Result()
	if err != nil {
		return 0, fmt.Errorf("push warning: %w", err)
	}
	return int(n), nil
}

func (s *RedisAttemptStore) Warnings(ctx context.Context, id string) ([]model.Warning, error) {
	if _, err := getAttempt(ctx, s.rdb, id); err != nil {
		return nil, err
	}
	raw, err := s.rdb.LRange(ctx, config.CacheKey.AttemptWarningsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list warnings: %w", err)
	}
	out := make([]model.Warning, 0, len(raw))
	for _, item := range raw {
		var w model.Warning
		if err := json.Unmarshal([]byte(item), &w); err != nil {
			continue // Skip malformed entries
		}
		out = append(out, w)
	}
	return out, nil
}

func (s *RedisAttemptStore) CompleteAttempt(ctx context.Context, a *model.Attempt, answers map[string]string) error {
	attemptKey := config.CacheKey.AttemptKey(a.ID)
	answersKey := config.CacheKey.AttemptAnswersKey(a.ID)

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}

	args := make([]interface{}, 0, 2*len(answers))
	for k, v := range answers {
		args = append(args, k, v)
	}

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := getAttempt(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.AttemptStatusInProgress {
			return ErrAttemptCompleted
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, attemptKey, data, 0)
			pipe.Del(ctx, answersKey)
			if len(args) > 0 {
				pipe.HSet(ctx, answersKey, args...)
			}
			pipe.Del(ctx, config.CacheKey.OpenAttemptKey(a.UserID, a.TestID))
			pipe.SRem(ctx, config.CacheKey.OpenAttemptsKey(), a.ID)
			return nil
		})
		return err
	}, attemptKey)

	if errors.Is(err, redis.TxFailedErr) {
		// Another submit changed the attempt between WATCH and EXEC.
		return ErrAttemptCompleted
	}
	return err
}

func (s *RedisAttemptStore) OpenAttempts(ctx context.Context) ([]model.Attempt, error) {
	ids, err := s.rdb.SMembers(ctx, config.CacheKey.OpenAttemptsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list open attempts: %w", err)
	}
	sort.Strings(ids)

	out := make([]model.Attempt, 0, len(ids))
	for _, id := range ids {
		a, err := getAttempt(ctx, s.rdb, id)
		if err != nil {
			if errors.Is(err, ErrAttemptNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}
