// Package service assembles a running calccache instance from a config.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonwraymond/calccache/auth"
	"github.com/jonwraymond/calccache/cache"
	"github.com/jonwraymond/calccache/cache/backends/levelstore"
	"github.com/jonwraymond/calccache/cache/backends/pgstore"
	"github.com/jonwraymond/calccache/cache/backends/redisstore"
	"github.com/jonwraymond/calccache/calc"
	"github.com/jonwraymond/calccache/classify"
	"github.com/jonwraymond/calccache/config"
	"github.com/jonwraymond/calccache/engine"
	"github.com/jonwraymond/calccache/fingerprint"
	"github.com/jonwraymond/calccache/flight"
	"github.com/jonwraymond/calccache/health"
	"github.com/jonwraymond/calccache/observe"
	"github.com/jonwraymond/calccache/recovery"
	"github.com/jonwraymond/calccache/resilience"
)

// Options overrides parts of the assembly.
type Options struct {
	// Engine replaces the configured engine process.
	Engine calc.Engine

	// LogWriter receives log output. Nil means os.Stderr.
	LogWriter io.Writer
}

// Service owns every component of one instance.
type Service struct {
	Config        *config.Config
	Observer      observe.Observer
	Instruments   observe.Instruments
	Logger        observe.Logger
	Store         *cache.Store
	Orchestrator  *flight.Orchestrator
	Generator     *fingerprint.Generator
	Classifier    *classify.Classifier
	Table         *recovery.Table
	Authenticator auth.Authenticator
	Health        *health.Aggregator
}

// New builds a service. On error everything built so far is released.
func New(ctx context.Context, cfg *config.Config, opts Options) (svc *Service, err error) {
	obs, err := observe.NewObserver(ctx, cfg.Observe(), observe.Options{LogWriter: opts.LogWriter})
	if err != nil {
		return nil, err
	}
	svc = &Service{Config: cfg, Observer: obs, Logger: obs.Logger()}
	defer func() {
		if err != nil {
			err = errors.Join(err, svc.Close(ctx))
			svc = nil
		}
	}()

	if svc.Instruments, err = observe.NewInstruments(obs); err != nil {
		return svc, err
	}

	if svc.Store, err = OpenStore(ctx, cfg.Cache, svc.Logger); err != nil {
		return svc, err
	}

	svc.Generator = fingerprint.New(cfg.Fingerprint)
	if svc.Classifier, err = cfg.Classifier.Build(); err != nil {
		return svc, err
	}
	if svc.Table, err = cfg.RecoveryTable(); err != nil {
		return svc, err
	}
	flightCfg, err := cfg.Flight.Build()
	if err != nil {
		return svc, err
	}

	eng := opts.Engine
	if eng == nil {
		p, err := engine.NewProcess(cfg.Engine)
		if err != nil {
			return svc, err
		}
		eng = p
	}

	svc.Orchestrator, err = flight.New(engine.Instrument(eng, svc.Instruments), svc.Store, flightCfg,
		flight.WithGenerator(svc.Generator),
		flight.WithClassifier(svc.Classifier),
		flight.WithTable(svc.Table),
		flight.WithInstruments(svc.Instruments),
	)
	if err != nil {
		return svc, err
	}

	if svc.Authenticator, err = cfg.Auth.Authenticator(); err != nil {
		return svc, err
	}

	svc.Health = health.NewAggregator(health.AggregatorConfig{Timeout: 5 * time.Second})
	svc.Health.Register(health.NewMemoryChecker(health.MemoryCheckerConfig{}))
	svc.Health.Register(health.NewPingChecker("cache", svc.Store))
	svc.Health.Register(health.NewSaturationChecker("engine", svc.Orchestrator.Saturation, 0.8))

	svc.Logger.Info(ctx, "service ready",
		observe.F("backend", backendKind(cfg.Cache.Backend.Kind)),
		observe.F("max_concurrent", flightCfg.MaxConcurrent),
		observe.F("auth", cfg.Auth.Enabled),
	)
	return svc, nil
}

// OpenStore opens the configured backend and wraps it in a cache store
// guarded by a breaker and a per-call timeout.
func OpenStore(ctx context.Context, cfg config.CacheConfig, logger observe.Logger) (*cache.Store, error) {
	if logger == nil {
		logger = observe.NopLogger()
	}
	backend, err := OpenBackend(ctx, cfg.Backend)
	if err != nil {
		return nil, err
	}

	guardOpts := []resilience.GuardOption{}
	if cfg.BackendTimeout > 0 {
		guardOpts = append(guardOpts, resilience.WithTimeout(resilience.NewTimeout(cfg.BackendTimeout)))
	}
	if cfg.BreakerThreshold > 0 {
		guardOpts = append(guardOpts, resilience.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{
			Threshold: cfg.BreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
			OnStateChange: func(from, to resilience.State) {
				logger.Warn(context.Background(), "cache backend breaker",
					observe.F("from", from.String()),
					observe.F("to", to.String()),
				)
			},
		})))
	}

	opts := []cache.Option{cache.WithGuard(resilience.NewGuard(guardOpts...)), cache.WithLogger(logger)}
	if backend != nil {
		opts = append(opts, cache.WithBackend(backend))
	}
	store, err := cache.NewStore(cfg.Policy, opts...)
	if err != nil {
		if c, ok := backend.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}
	return store, nil
}

// OpenBackend opens the durable tier. Kind none returns a nil backend.
func OpenBackend(ctx context.Context, cfg config.BackendConfig) (cache.Backend, error) {
	switch backendKind(cfg.Kind) {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory:
		return cache.NewMemoryBackend(10 * time.Minute), nil
	case config.BackendLevelDB:
		return levelstore.Open(cfg.LevelDB)
	case config.BackendRedis:
		return redisstore.Connect(ctx, cfg.Redis)
	case config.BackendPostgres:
		return pgstore.Open(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Kind)
	}
}

// Close drains running computations, then releases the store and the
// telemetry providers.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if s.Orchestrator != nil {
		if err := s.Orchestrator.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Observer != nil {
		if err := s.Observer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func backendKind(kind string) string {
	if kind == "" {
		return config.BackendNone
	}
	return kind
}
