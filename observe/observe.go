package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/calccache/observe/exporters"
)

// Observer owns the telemetry providers.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Shutdown must honor cancellation/deadlines.
// - Errors: Shutdown is idempotent and joins provider errors.
type Observer interface {
	Tracer() trace.Tracer
	Meter() metric.Meter
	Logger() Logger

	// MetricsHandler serves the Prometheus registry. It returns 404 unless
	// the prometheus metrics exporter is configured.
	MetricsHandler() http.Handler

	Shutdown(ctx context.Context) error
}

// Options overrides the sinks an Observer writes to.
type Options struct {
	// LogWriter receives log output. Nil means os.Stderr.
	LogWriter io.Writer

	// ExportWriter receives stdout exporter output. Nil means os.Stdout.
	ExportWriter io.Writer
}

type observer struct {
	tracer         trace.Tracer
	meter          metric.Meter
	logger         Logger
	registry       *prometheus.Registry
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// NewObserver builds providers from cfg. Providers are owned by the
// observer and never installed as process globals.
func NewObserver(ctx context.Context, cfg Config, opts Options) (Observer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logWriter := opts.LogWriter
	if logWriter == nil {
		logWriter = os.Stderr
	}

	obs := &observer{
		tracer: tracenoop.NewTracerProvider().Tracer("noop"),
		meter:  metricnoop.NewMeterProvider().Meter("noop"),
		logger: NewLogger(cfg.Logging, logWriter),
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: resource: %w", err)
	}

	if cfg.Tracing.Enabled {
		exp, err := exporters.NewTracingExporter(ctx, cfg.Tracing.Exporter, exporters.Options{Writer: opts.ExportWriter})
		if err != nil {
			return nil, fmt.Errorf("observe: tracing: %w", err)
		}
		tpOpts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler(cfg.Tracing.SamplePct)),
		}
		if exp != nil {
			tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
		}
		obs.tracerProvider = sdktrace.NewTracerProvider(tpOpts...)
		obs.tracer = obs.tracerProvider.Tracer(cfg.ServiceName)
	}

	if cfg.Metrics.Enabled {
		expOpts := exporters.Options{Writer: opts.ExportWriter}
		if cfg.Metrics.Exporter == "prometheus" {
			obs.registry = prometheus.NewRegistry()
			expOpts.Registerer = obs.registry
		}
		reader, err := exporters.NewMetricsReader(ctx, cfg.Metrics.Exporter, expOpts)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("observe: metrics: %w", err), obs.Shutdown(ctx))
		}
		mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
		if reader != nil {
			mpOpts = append(mpOpts, sdkmetric.WithReader(reader))
		}
		obs.meterProvider = sdkmetric.NewMeterProvider(mpOpts...)
		obs.meter = obs.meterProvider.Meter(cfg.ServiceName)
	}

	return obs, nil
}

func sampler(pct float64) sdktrace.Sampler {
	switch {
	case pct >= 1:
		return sdktrace.AlwaysSample()
	case pct <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(pct))
	}
}

func (o *observer) Tracer() trace.Tracer { return o.tracer }
func (o *observer) Meter() metric.Meter  { return o.meter }
func (o *observer) Logger() Logger       { return o.logger }

func (o *observer) MetricsHandler() http.Handler {
	if o.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

func (o *observer) Shutdown(ctx context.Context) error {
	var errs []error
	if o.tracerProvider != nil {
		if err := o.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
	}
	if o.meterProvider != nil {
		if err := o.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Instruments bundles the per-calculation telemetry handles.
type Instruments struct {
	Tracer  Tracer
	Metrics Metrics
	Logger  Logger
}

// NewInstruments derives instruments from an observer.
func NewInstruments(obs Observer) (Instruments, error) {
	m, err := NewMetrics(obs.Meter())
	if err != nil {
		return Instruments{}, fmt.Errorf("observe: instruments: %w", err)
	}
	return Instruments{
		Tracer:  NewTracer(obs.Tracer()),
		Metrics: m,
		Logger:  obs.Logger(),
	}, nil
}

// NopInstruments returns instruments that record nothing.
func NopInstruments() Instruments {
	return Instruments{Tracer: NopTracer(), Metrics: NopMetrics(), Logger: NopLogger()}
}

// OrNop fills any nil handle with its no-op counterpart.
func (i Instruments) OrNop() Instruments {
	if i.Tracer == nil {
		i.Tracer = NopTracer()
	}
	if i.Metrics == nil {
		i.Metrics = NopMetrics()
	}
	if i.Logger == nil {
		i.Logger = NopLogger()
	}
	return i
}
