package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/jonwraymond/calccache/auth"
	"github.com/jonwraymond/calccache/cache"
	"github.com/jonwraymond/calccache/cache/backends/levelstore"
	"github.com/jonwraymond/calccache/cache/backends/pgstore"
	"github.com/jonwraymond/calccache/cache/backends/redisstore"
	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/classify"
	"github.com/jonwraymond/calccache/engine"
	"github.com/jonwraymond/calccache/fingerprint"
	"github.com/jonwraymond/calccache/flight"
	"github.com/jonwraymond/calccache/observe"
	"github.com/jonwraymond/calccache/recovery"
	"github.com/jonwraymond/calccache/resilience"
)

// Backend kinds.
const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// Config is the whole service configuration.
type Config struct {
	Service     ServiceConfig         `yaml:"service"`
	Logging     observe.LoggingConfig `yaml:"logging"`
	Tracing     observe.TracingConfig `yaml:"tracing"`
	Metrics     observe.MetricsConfig `yaml:"metrics"`
	Server      ServerConfig          `yaml:"server"`
	Auth        AuthConfig            `yaml:"auth"`
	Engine      engine.ProcessConfig  `yaml:"engine"`
	Flight      FlightConfig          `yaml:"flight"`
	Cache       CacheConfig           `yaml:"cache"`
	Fingerprint fingerprint.Config    `yaml:"fingerprint"`
	Classifier  ClassifierConfig      `yaml:"classifier"`

	// Recovery overrides strategy lists by category name.
	Recovery map[string][]string `yaml:"recovery"`
}

// ServiceConfig names the service in telemetry.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	MaxBatch        int           `yaml:"max_batch"`

	// RateLimit is requests per second across the server. Zero disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// AuthConfig configures API authentication.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// JWTSecret is the HS256 key. Usually a secretref.
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	Leeway    time.Duration `yaml:"leeway"`

	APIKeys []auth.APIKey `yaml:"api_keys"`
}

// FlightConfig is the YAML form of flight.Config.
type FlightConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	WaitTimeout    time.Duration `yaml:"wait_timeout"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	QueueWait      time.Duration `yaml:"queue_wait"`
	Backoff        BackoffConfig `yaml:"backoff"`
}

// BackoffConfig is the YAML form of resilience.Backoff.
type BackoffConfig struct {
	Strategy   string        `yaml:"strategy"` // exponential|linear|constant|none
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     bool          `yaml:"jitter"`
}

// CacheConfig configures the cache store and its durable backend.
type CacheConfig struct {
	cache.Policy `yaml:",inline"`

	Backend BackendConfig `yaml:"backend"`

	// BreakerThreshold consecutive backend failures open the breaker.
	// Zero disables the breaker.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`

	// BackendTimeout bounds each backend call.
	BackendTimeout time.Duration `yaml:"backend_timeout"`
}

// BackendConfig selects the durable tier.
type BackendConfig struct {
	Kind     string            `yaml:"kind"` // memory|leveldb|redis|postgres|none
	LevelDB  levelstore.Config `yaml:"leveldb"`
	Redis    redisstore.Config `yaml:"redis"`
	Postgres pgstore.Config    `yaml:"postgres"`
}

// ClassifierConfig overrides classification tables. Nil fields keep the
// built-in tables.
type ClassifierConfig struct {
	Rules []classify.RuleSpec `yaml:"rules"`
	Codes map[string]string   `yaml:"codes"`
}

// Default returns the configuration used for keys a file leaves unset.
func Default() Config {
	fd := flight.DefaultConfig()
	return Config{
		Service: ServiceConfig{Name: "calccache", Version: "dev"},
		Logging: observe.LoggingConfig{Enabled: true, Level: "info", Format: "text"},
		Tracing: observe.TracingConfig{Exporter: "none", SamplePct: 1},
		Metrics: observe.MetricsConfig{Exporter: "prometheus"},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Hour,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    4 << 20,
			MaxBatch:        64,
		},
		Flight: FlightConfig{
			MaxAttempts:    fd.MaxAttempts,
			AttemptTimeout: fd.AttemptTimeout,
			MaxConcurrent:  fd.MaxConcurrent,
			QueueWait:      fd.QueueWait,
			Backoff:        BackoffConfig{Strategy: "none"},
		},
		Cache: CacheConfig{
			Policy:           cache.DefaultPolicy(),
			Backend:          BackendConfig{Kind: BackendNone},
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
			BackendTimeout:   5 * time.Second,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	obs := c.Observe()
	if err := obs.Validate(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalidConfig)
	}
	if c.Server.RateLimit < 0 || c.Server.MaxBodyBytes < 0 || c.Server.MaxBatch < 0 {
		return fmt.Errorf("%w: server limits must not be negative", ErrInvalidConfig)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("%w: auth enabled without jwt_secret or api_keys", ErrInvalidConfig)
	}
	if _, err := c.Flight.Build(); err != nil {
		return err
	}
	if err := c.Cache.Policy.Validate(); err != nil {
		return err
	}
	if !slices.Contains([]string{BackendMemory, BackendLevelDB, BackendRedis, BackendPostgres, BackendNone, ""}, c.Cache.Backend.Kind) {
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Cache.Backend.Kind)
	}
	switch c.Cache.Backend.Kind {
	case BackendLevelDB:
		if c.Cache.Backend.LevelDB.Path == "" {
			return fmt.Errorf("%w: cache.backend.leveldb.path is required", ErrInvalidConfig)
		}
	case BackendRedis:
		if c.Cache.Backend.Redis.URL == "" {
			return fmt.Errorf("%w: cache.backend.redis.url is required", ErrInvalidConfig)
		}
	case BackendPostgres:
		if c.Cache.Backend.Postgres.DSN == "" {
			return fmt.Errorf("%w: cache.backend.postgres.dsn is required", ErrInvalidConfig)
		}
	}
	if _, err := c.Classifier.Build(); err != nil {
		return err
	}
	if _, err := c.RecoveryTable(); err != nil {
		return err
	}
	return nil
}

// Observe returns the telemetry configuration.
func (c *Config) Observe() observe.Config {
	return observe.Config{
		ServiceName: c.Service.Name,
		Version:     c.Service.Version,
		Tracing:     c.Tracing,
		Metrics:     c.Metrics,
		Logging:     c.Logging,
	}
}

// RecoveryTable builds the strategy table from the default catalog.
func (c *Config) RecoveryTable() (*recovery.Table, error) {
	return recovery.NewTableFromConfig(recovery.DefaultCatalog(), c.Recovery)
}

// Build converts the YAML form into flight.Config.
func (f FlightConfig) Build() (flight.Config, error) {
	strategy, ok := resilience.ParseBackoffStrategy(f.Backoff.Strategy)
	if !ok {
		return flight.Config{}, fmt.Errorf("%w: backoff strategy %q", ErrInvalidConfig, f.Backoff.Strategy)
	}
	cfg := flight.Config{
		MaxAttempts:    f.MaxAttempts,
		WaitTimeout:    f.WaitTimeout,
		AttemptTimeout: f.AttemptTimeout,
		MaxConcurrent:  f.MaxConcurrent,
		QueueWait:      f.QueueWait,
		Backoff: resilience.Backoff{
			Strategy:   strategy,
			Initial:    f.Backoff.Initial,
			Max:        f.Backoff.Max,
			Multiplier: f.Backoff.Multiplier,
			Jitter:     f.Backoff.Jitter,
		},
	}
	if err := cfg.Validate(); err != nil {
		return flight.Config{}, err
	}
	return cfg, nil
}

// Build compiles the classifier. Unset rules or codes keep the defaults.
func (c ClassifierConfig) Build() (*classify.Classifier, error) {
	rules := c.Rules
	if rules == nil {
		rules = classify.DefaultRules()
	}
	codes := classify.DefaultCodes()
	if c.Codes != nil {
		codes = make(map[string]calc.Category, len(c.Codes))
		for code, name := range c.Codes {
			cat, err := calc.ParseCategory(name)
			if err != nil {
				return nil, fmt.Errorf("%w: code %s: %v", ErrInvalidConfig, code, err)
			}
			codes[code] = cat
		}
	}
	return classify.New(rules, codes)
}

// Authenticator builds the configured authenticator. It returns nil when
// authentication is disabled.
func (a AuthConfig) Authenticator() (auth.Authenticator, error) {
	if !a.Enabled {
		return nil, nil
	}
	var chain auth.Composite
	if a.JWTSecret != "" {
		j, err := auth.NewJWTAuthenticator(a.JWT())
		if err != nil {
			return nil, err
		}
		chain = append(chain, j)
	}
	if len(a.APIKeys) > 0 {
		chain = append(chain, auth.NewAPIKeyAuthenticator(a.APIKeys...))
	}
	return chain, nil
}

// JWT returns the bearer token settings.
func (a AuthConfig) JWT() auth.JWTConfig {
	return auth.JWTConfig{
		Secret:   []byte(a.JWTSecret),
		Issuer:   a.Issuer,
		Audience: a.Audience,
		Leeway:   a.Leeway,
	}
}
