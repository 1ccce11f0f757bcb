// Package pgstore is a cache.Backend on PostgreSQL.
//
// The schema is managed with embedded goose migrations; Open applies them
// unless Config.SkipMigrations is set.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Use pgx via database/sql
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/jonwraymond/calccache/cache"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int           `yaml:"max_conns"`
	MinConns        int           `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	SkipMigrations  bool          `yaml:"skip_migrations"`
}

// Store is a PostgreSQL-backed cache.Backend.
type Store struct {
	db *sqlx.DB
}

// Open connects, configures the pool and migrates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping database: %w", err)
	}

	if !cfg.SkipMigrations {
		if err := Migrate(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &Store{db: db}, nil
}

// Migrate applies all pending migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, Migrations())
	if err != nil {
		return fmt.Errorf("pgstore: migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

type row struct {
	Value     []byte       `db:"value"`
	ExpiresAt sql.NullTime `db:"expires_at"`
}

// Get returns the value for key if it has not expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := `
		SELECT value, expires_at
		FROM calc_cache
		WHERE key = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`
	var r row
	err := s.db.GetContext(ctx, &r, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pgstore: get: %w", err)
	}
	return r.Value, true, nil
}

// Set upserts value; ttl <= 0 never expires.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	query := `
		INSERT INTO calc_cache (key, value, expires_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`
	var expires sql.NullTime
	if ttl > 0 {
		expires = sql.NullTime{Time: time.Now().Add(ttl), Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, query, key, value, expires); err != nil {
		return fmt.Errorf("pgstore: set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM calc_cache WHERE key = $1`, key); err != nil {
		return fmt.Errorf("pgstore: delete: %w", err)
	}
	return nil
}

// Prune deletes expired rows and returns how many were removed.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calc_cache WHERE expires_at IS NOT NULL AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("pgstore: prune: %w", err)
	}
	return res.RowsAffected()
}

// Scan calls fn with every live row. Rows are streamed; fn must not call
// back into the store.
func (s *Store) Scan(ctx context.Context, fn func(key string, value []byte) error) error {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT key, value
		FROM calc_cache
		WHERE expires_at IS NULL OR expires_at > NOW()
	`)
	if err != nil {
		return fmt.Errorf("pgstore: scan: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r struct {
			Key   string `db:"key"`
			Value []byte `db:"value"`
		}
		if err := rows.StructScan(&r); err != nil {
			return fmt.Errorf("pgstore: scan row: %w", err)
		}
		if err := fn(r.Key, r.Value); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("pgstore: scan: %w", err)
	}
	return nil
}

// Count returns the number of live rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM calc_cache WHERE expires_at IS NULL OR expires_at > NOW()`)
	if err != nil {
		return 0, fmt.Errorf("pgstore: count: %w", err)
	}
	return n, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_ cache.Backend = (*Store)(nil)
	_ cache.Pinger  = (*Store)(nil)
	_ cache.Pruner  = (*Store)(nil)
	_ cache.Scanner = (*Store)(nil)
)
