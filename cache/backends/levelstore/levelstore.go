// Package levelstore is a cache.Backend on an embedded LevelDB database.
//
// Each value is stored behind an eight-byte big-endian expiry header in
// Unix nanoseconds; zero means the value never expires. Expired values
// are dropped on read and by Prune.
package levelstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	ldb_opt "github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/jonwraymond/calccache/cache"
)

const headerSize = 8

// ErrShortValue indicates a stored value without a valid header.
var ErrShortValue = errors.New("levelstore: value shorter than header")

// Store is a LevelDB-backed cache.Backend.
type Store struct {
	db     *leveldb.DB
	prefix []byte
	now    func() time.Time
}

// Config configures Open.
type Config struct {
	// Path is the database directory.
	Path string `yaml:"path"`

	// Prefix namespaces keys so one database can hold several caches.
	Prefix string `yaml:"prefix"`

	ReadOnly bool `yaml:"read_only"`
}

// Open opens or creates the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	opt := &ldb_opt.Options{
		ErrorIfExist:   false,
		ErrorIfMissing: cfg.ReadOnly,
		ReadOnly:       cfg.ReadOnly,
	}
	db, err := leveldb.OpenFile(cfg.Path, opt)
	if err != nil {
		return nil, fmt.Errorf("levelstore: open %s: %w", cfg.Path, err)
	}
	return newStore(db, cfg.Prefix), nil
}

// OpenMemory opens a database held entirely in memory.
func OpenMemory(prefix string) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("levelstore: open memory: %w", err)
	}
	return newStore(db, prefix), nil
}

func newStore(db *leveldb.DB, prefix string) *Store {
	return &Store{db: db, prefix: []byte(prefix), now: time.Now}
}

func (s *Store) key(k string) []byte {
	out := make([]byte, 0, len(s.prefix)+len(k))
	out = append(out, s.prefix...)
	return append(out, k...)
}

// Get returns the value for key, or a miss if it is absent or expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	raw, err := s.db.Get(s.key(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("levelstore: get: %w", err)
	}
	if len(raw) < headerSize {
		return nil, false, ErrShortValue
	}
	if s.expired(raw) {
		_ = s.db.Delete(s.key(key), nil)
		return nil, false, nil
	}
	return raw[headerSize:], true, nil
}

// Set stores value with ttl; ttl <= 0 never expires.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	raw := make([]byte, headerSize+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(raw, uint64(s.now().Add(ttl).UnixNano()))
	}
	copy(raw[headerSize:], value)
	if err := s.db.Put(s.key(key), raw, nil); err != nil {
		return fmt.Errorf("levelstore: put: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Delete(s.key(key), nil); err != nil {
		return fmt.Errorf("levelstore: delete: %w", err)
	}
	return nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.db.GetProperty("leveldb.num-files-at-level0")
	return err
}

// Prune deletes every expired value under the prefix in one batch and
// returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	iter := s.db.NewIterator(util.BytesPrefix(s.prefix), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		v := iter.Value()
		if len(v) < headerSize || s.expired(v) {
			batch.Delete(append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("levelstore: scan: %w", err)
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := s.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("levelstore: prune: %w", err)
	}
	return int64(batch.Len()), nil
}

// Scan calls fn with every unexpired value under the prefix.
func (s *Store) Scan(ctx context.Context, fn func(key string, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix(s.prefix), nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		v := iter.Value()
		if len(v) < headerSize || s.expired(v) {
			continue
		}
		if err := fn(string(iter.Key()[len(s.prefix):]), v[headerSize:]); err != nil {
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("levelstore: scan: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) expired(raw []byte) bool {
	at := binary.BigEndian.Uint64(raw[:headerSize])
	return at != 0 && s.now().UnixNano() >= int64(at)
}

var (
	_ cache.Backend = (*Store)(nil)
	_ cache.Pinger  = (*Store)(nil)
	_ cache.Pruner  = (*Store)(nil)
	_ cache.Scanner = (*Store)(nil)
)
