// Package redisstore is a cache.Backend on Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/calccache/cache"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`

	// Prefix namespaces keys, for example "prod:".
	Prefix string `yaml:"prefix"`

	// DialTimeout bounds the connection check in Connect.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Store is a Redis-backed cache.Backend.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New creates a store without contacting the server.
func New(cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	return &Store{rdb: redis.NewClient(opts), prefix: cfg.Prefix}, nil
}

// Connect creates a store and verifies the server answers.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Get returns the value for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: get: %w", err)
	}
	return v, true, nil
}

// Set stores value; ttl <= 0 never expires.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete: %w", err)
	}
	return nil
}

// Scan walks the keys under the prefix with SCAN and calls fn with each
// value. Keys that expire mid-scan are skipped.
func (s *Store) Scan(ctx context.Context, fn func(key string, value []byte) error) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		v, err := s.rdb.Get(ctx, full).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redisstore: scan get: %w", err)
		}
		if err := fn(strings.TrimPrefix(full, s.prefix), v); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redisstore: scan: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisstore: ping: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

var (
	_ cache.Backend = (*Store)(nil)
	_ cache.Pinger  = (*Store)(nil)
	_ cache.Scanner = (*Store)(nil)
)
