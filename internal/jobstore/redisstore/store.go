// Package redisstore persists job records in Redis hashes, one hash per run.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/observability"
	"github.com/mohammed-shakir/planet-pipeline/internal/jobstore"
)

const keyPrefix = "planet:jobs:"

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ jobstore.Store = (*Store)(nil)

// New connects and pings. ttl bounds how long a run's hash survives its last
// write; zero keeps it forever.
func New(ctx context.Context, addr string, ttl time.Duration, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveStoreOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb, ttl: ttl}, nil
}

func runKey(runID string) string { return keyPrefix + runID }

func (s *Store) Put(ctx context.Context, r jobstore.Record) error {
	if r.RunID == "" || r.Date == "" {
		return errors.New("job record needs run id and date")
	}
	val, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode job %s/%s: %w", r.RunID, r.Date, err)
	}

	key := runKey(r.RunID)
	start := time.Now()
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, r.Date, val)
		if s.ttl > 0 {
			p.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	observability.ObserveStoreOp("put", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis HSET %q %s: %w", key, r.Date, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, runID, date string) (jobstore.Record, error) {
	key := runKey(runID)
	start := time.Now()
	raw, err := s.rdb.HGet(ctx, key, date).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveStoreOp("get", nil, time.Since(start).Seconds())
		return jobstore.Record{}, jobstore.ErrNotFound
	}
	observability.ObserveStoreOp("get", err, time.Since(start).Seconds())
	if err != nil {
		return jobstore.Record{}, fmt.Errorf("redis HGET %q %s: %w", key, date, err)
	}
	var r jobstore.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return jobstore.Record{}, fmt.Errorf("decode job %s/%s: %w", runID, date, err)
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, runID string) ([]jobstore.Record, error) {
	key := runKey(runID)
	start := time.Now()
	all, err := s.rdb.HGetAll(ctx, key).Result()
	observability.ObserveStoreOp("list", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %q: %w", key, err)
	}
	out := make([]jobstore.Record, 0, len(all))
	for date, raw := range all {
		var r jobstore.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode job %s/%s: %w", runID, date, err)
		}
		out = append(out, r)
	}
	jobstore.SortByDate(out)
	return out, nil
}

// Ping is used as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.rdb.Ping(ctx).Err()
	observability.ObserveStoreOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
