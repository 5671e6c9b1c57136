package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RunDetached executes a best-effort call with its own deadline. The outcome
// is logged and discarded; it never reaches the caller. A panic inside fn is
// recovered for the same reason.
func RunDetached(log zerolog.Logger, timeout time.Duration, name string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("task", name).Msg("Detached task panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		log.Debug().Err(err).Str("task", name).Msg("Detached task failed, ignoring")
	}
}

// Detach runs RunDetached on a new goroutine.
func Detach(log zerolog.Logger, timeout time.Duration, name string, fn func(ctx context.Context) error) {
	go RunDetached(log, timeout, name, fn)
}
