package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	mu     sync.Mutex
	calls  int
	graces []time.Duration
	err    error
}

func (e *countingExpirer) ExpireOverdue(ctx context.Context, grace time.Duration) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.graces = append(e.graces, grace)
	return 1, e.err
}

func (e *countingExpirer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func TestExpiryWorkerSweepsUntilCancelled(t *testing.T) {
	exp := &countingExpirer{}
	w := NewExpiryWorker(exp, 5*time.Millisecond, 30*time.Second, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return exp.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	exp.mu.Lock()
	defer exp.mu.Unlock()
	for _, g := range exp.graces {
		assert.Equal(t, 30*time.Second, g)
	}
}

func TestExpiryWorkerSurvivesErrors(t *testing.T) {
	exp := &countingExpirer{err: errors.New("store down")}
	w := NewExpiryWorker(exp, time.Millisecond, 0, zerolog.Nop())

	w.sweep(context.Background())
	w.sweep(context.Background())
	assert.Equal(t, 2, exp.count())
}

func TestNewExpiryWorkerDefaultsInterval(t *testing.T) {
	w := NewExpiryWorker(&countingExpirer{}, 0, 0, zerolog.Nop())
	assert.Equal(t, 15*time.Second, w.interval)
}
