package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seantiz/modelrouter/internal/model"
)

const redisKeyPrefix = "modelrouter:job:"

// RedisTable stores job snapshots in Redis so that several service
// instances can answer status queries for the same jobs. Each job is one
// JSON string; SET replaces it atomically. Terminal snapshots are written
// with a TTL matching their ExpiresAt so Redis drops them on its own.
type RedisTable struct {
	rdb *redis.Client
}

var _ Table = (*RedisTable)(nil)

// NewRedisTable wraps an existing client.
func NewRedisTable(rdb *redis.Client) *RedisTable {
	return &RedisTable{rdb: rdb}
}

// OpenRedisTable connects to the Redis server at url (redis://...) and
// verifies the connection.
func OpenRedisTable(ctx context.Context, url string) (*RedisTable, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisTable{rdb: rdb}, nil
}

func jobKey(id string) string {
	return redisKeyPrefix + id
}

// Put implements Table.
func (t *RedisTable) Put(ctx context.Context, st *model.JobStatus) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", st.ID, err)
	}

	var ttl time.Duration
	if st.ExpiresAt != nil {
		ttl = time.Until(*st.ExpiresAt)
		if ttl <= 0 {
			return t.rdb.Del(ctx, jobKey(st.ID)).Err()
		}
	}

	if err := t.rdb.Set(ctx, jobKey(st.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("store job %s: %w", st.ID, err)
	}
	return nil
}

// Get implements Table.
func (t *RedisTable) Get(ctx context.Context, id string) (*model.JobStatus, error) {
	data, err := t.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	var st model.JobStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	if st.Expired(time.Now()) {
		return nil, ErrJobNotFound
	}
	return &st, nil
}

// Ping implements Table.
func (t *RedisTable) Ping(ctx context.Context) error {
	return t.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (t *RedisTable) Close() error {
	return t.rdb.Close()
}
