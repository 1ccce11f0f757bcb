package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/jonwraymond/calccache/secret"
)

// LoadDotEnv loads each existing file into the environment. Variables
// already set are kept. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads path, resolves secrets with res and validates the result. An
// empty path yields the defaults. A nil res leaves secretrefs in place,
// which fails validation only where a field cannot hold one.
func Load(ctx context.Context, path string, res *secret.Resolver) (*Config, error) {
	if path == "" {
		cfg := Default()
		return &cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(ctx, data, res)
}

// Parse is Load for an in-memory document.
func Parse(ctx context.Context, data []byte, res *secret.Resolver) (*Config, error) {
	expanded, err := secret.ExpandEnvStrict(string(data))
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := Default()
	if err := yaml.UnmarshalStrict([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if res != nil {
		if err := cfg.resolveSecrets(ctx, res); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveSecrets replaces secretrefs in sensitive fields. The document has
// already been environment-expanded, so only fields holding a reference go
// through the resolver.
func (c *Config) resolveSecrets(ctx context.Context, res *secret.Resolver) error {
	fields := map[string]*string{
		"auth.jwt_secret":              &c.Auth.JWTSecret,
		"cache.backend.redis.url":      &c.Cache.Backend.Redis.URL,
		"cache.backend.redis.password": &c.Cache.Backend.Redis.Password,
		"cache.backend.postgres.dsn":   &c.Cache.Backend.Postgres.DSN,
	}
	for name, p := range fields {
		if !strings.Contains(*p, "secretref:") {
			delete(fields, name)
		}
	}
	return res.ResolveFields(ctx, fields)
}
