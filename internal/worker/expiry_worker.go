package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Expirer closes attempts that ran past their time limit.
type Expirer interface {
	ExpireOverdue(ctx context.Context, grace time.Duration) (int, error)
}

// ExpiryWorker periodically closes overdue attempts so a client that never
// submits cannot keep an attempt open forever.
type ExpiryWorker struct {
	expirer  Expirer
	interval time.Duration
	grace    time.Duration
	log      zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(expirer Expirer, interval, grace time.Duration, log zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &ExpiryWorker{
		expirer:  expirer,
		interval: interval,
		grace:    grace,
		log:      log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	n, err := w.expirer.ExpireOverdue(ctx, w.grace)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Expiry sweep error")
		}
		return
	}
	if n > 0 {
		w.log.Info().Int("closed", n).Msg("Overdue attempts closed")
	}
}
