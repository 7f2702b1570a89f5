package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vigil/backend/internal/core"
)

// RedisStore persists template availability in Redis so enrollment
// survives process restarts. Encrypted template payloads live in an
// external secure store; only the opaque blob reference is kept here.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects and pings Redis. The caller decides whether to
// fall back to MemoryStore on error.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("template store connected", "addr", addr, "db", db)
	return &RedisStore{rdb: rdb}, nil
}

// Close shuts down the underlying redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Client exposes the connection for components sharing it, like the
// event relay.
func (s *RedisStore) Client() *redis.Client {
	return s.rdb
}

func redisKey(userID string, kind core.SignalKind) string {
	return fmt.Sprintf("vigil:template:%s:%s", userID, kind)
}

func (s *RedisStore) HasTemplate(ctx context.Context, userID string, kind core.SignalKind) (bool, error) {
	n, err := s.rdb.Exists(ctx, redisKey(userID, kind)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) PutTemplate(ctx context.Context, userID string, kind core.SignalKind, data []byte) error {
	return s.rdb.Set(ctx, redisKey(userID, kind), data, 0).Err()
}

func (s *RedisStore) DeleteTemplate(ctx context.Context, userID string, kind core.SignalKind) error {
	return s.rdb.Del(ctx, redisKey(userID, kind)).Err()
}
