package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/aptiq-proctor/internal/config"
	"github.com/stemsi/aptiq-proctor/internal/repository"
	ws "github.com/stemsi/aptiq-proctor/internal/websocket"
)

// NewRedisClient creates and validates a Redis client connection.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Msg("Redis connected")

	return rdb, nil
}

// Backend is the attempt store and event broker the sandbox runs on.
type Backend struct {
	Store  repository.AttemptStore
	Broker ws.Broker
	close  func() error
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenBackend returns a Redis-backed store and broker when cfg.RedisURL is
// set, and in-memory ones otherwise.
func OpenBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Backend, error) {
	if cfg.RedisURL == "" {
		log.Info().Msg("No REDIS_URL, using in-memory attempt store")
		return &Backend{
			Store:  repository.NewMemoryAttemptStore(),
			Broker: ws.NewHub(),
		}, nil
	}

	rdb, err := NewRedisClient(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Store:  repository.NewRedisAttemptStore(rdb),
		Broker: ws.NewRedisBroker(rdb, log),
		close:  rdb.Close,
	}, nil
}
