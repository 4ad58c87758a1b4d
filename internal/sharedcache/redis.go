// Package sharedcache is the optional second cache tier shared between
// instances. Quotes are stored as JSON strings under quotes:<SYMBOL>.
package sharedcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
)

// Store is a cache tier shared across processes.
type Store interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error)
	SetQuotes(ctx context.Context, quotes map[string]model.Quote, ttl time.Duration) error
}

var _ Store = (*RedisStore)(nil)

// Config holds Redis connection settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // default "quotes:"
}

// RedisStore implements Store on Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "quotes:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "sharedcache"),
	}
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewRedisStore(client, cfg.KeyPrefix, logger), nil
}

// Ping checks the connection to the Redis server.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(symbol string) string {
	return s.prefix + symbol
}

// GetQuotes returns the stored quotes for symbols. Missing keys are omitted;
// undecodable values are logged and omitted.
func (s *RedisStore) GetQuotes(ctx context.Context, symbols []string) (map[string]model.Quote, error) {
	out := make(map[string]model.Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = s.key(sym)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget quotes: %w", err)
	}

	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var q model.Quote
		if err := json.Unmarshal([]byte(str), &q); err != nil {
			s.logger.Warn("could not decode shared quote", "key", keys[i], "error", err)
			continue
		}
		out[symbols[i]] = q
	}
	return out, nil
}

// SetQuotes writes quotes in a single pipeline, each with ttl.
func (s *RedisStore) SetQuotes(ctx context.Context, quotes map[string]model.Quote, ttl time.Duration) error {
	if len(quotes) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for sym, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("encode quote %s: %w", sym, err)
		}
		pipe.Set(ctx, s.key(sym), data, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("failed to write quotes to redis", "count", len(quotes), "error", err)
		return fmt.Errorf("set quotes: %w", err)
	}
	return nil
}
