// Package engine wires all RenderQ subsystems together. It creates the
// extension registry, provider registry, health tracker, selector,
// middleware chain, and worker pool, and provides the submit/cancel/retry
// operations.
//
// This package exists to break the import cycle: the root renderq package
// defines Entity (imported by job, health, etc.) and so cannot import
// those packages back. The engine package sits above all subsystem
// packages and below the application layer.
package engine

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/backoff"
	"github.com/xraph/renderq/ext"
	"github.com/xraph/renderq/health"
	"github.com/xraph/renderq/job"
	mw "github.com/xraph/renderq/middleware"
	"github.com/xraph/renderq/observability"
	"github.com/xraph/renderq/provider"
	"github.com/xraph/renderq/selector"
	"github.com/xraph/renderq/worker"
)

// Engine wraps a Dispatcher with typed subsystem access.
// Use Build() to create one from a Dispatcher.
type Engine struct {
	d           *renderq.Dispatcher
	extensions  *ext.Registry
	providers   *provider.Registry
	tracker     *health.Tracker
	selector    *selector.Selector
	jobStore    job.Store
	healthStore health.Store
	policy      *backoff.Policy
	pool        *worker.Pool
	mws         []mw.Middleware
	logger      *slog.Logger

	// Selection / classification policy knobs.
	thresholds  health.Thresholds
	selectorCfg selector.Config

	// OpenTelemetry meter provider (optional; nil means use global).
	meterProvider metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's attempt chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the retry policy for the engine.
// If not set, backoff.DefaultPolicy() (jittered exponential) is used.
func WithBackoff(p *backoff.Policy) Option {
	return func(eng *Engine) {
		eng.policy = p
	}
}

// WithThresholds sets the health classification thresholds.
// If not set, health.DefaultThresholds() is used.
func WithThresholds(t health.Thresholds) Option {
	return func(eng *Engine) {
		eng.thresholds = t
	}
}

// WithSelectorConfig sets the provider selection policy.
func WithSelectorConfig(cfg selector.Config) Option {
	return func(eng *Engine) {
		eng.selectorCfg = cfg
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine's
// metrics middleware. If not set, the global otel.GetMeterProvider()
// is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Dispatcher.
// The Dispatcher's store must implement job.Store and health.Store.
func Build(d *renderq.Dispatcher, opts ...Option) (*Engine, error) {
	logger := d.Logger()
	store := d.Store()

	if store == nil {
		return nil, renderq.ErrNoStore
	}

	// Type-assert the store to get the job.Store interface.
	js, ok := store.(job.Store)
	if !ok {
		return nil, fmt.Errorf("renderq: store does not implement job.Store")
	}

	// Type-assert the store to get the health.Store interface.
	hs, ok := store.(health.Store)
	if !ok {
		return nil, fmt.Errorf("renderq: store does not implement health.Store")
	}

	eng := &Engine{
		d:           d,
		extensions:  ext.NewRegistry(logger),
		providers:   provider.NewRegistry(),
		jobStore:    js,
		healthStore: hs,
		thresholds:  health.DefaultThresholds(),
		logger:      logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	// Default retry policy if none provided.
	if eng.policy == nil {
		eng.policy = backoff.DefaultPolicy()
	}

	// Health tracker writes through to the store so provider reputation
	// survives restarts.
	tracker, err := health.NewTracker(eng.thresholds,
		health.WithStore(hs),
		health.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("renderq: health tracker: %w", err)
	}
	eng.tracker = tracker

	// The registry doubles as the selection gate: rate-limited providers
	// are skipped for the attempt instead of blocking a worker.
	eng.selector = selector.New(tracker,
		selector.WithGate(eng.providers),
		selector.WithConfig(eng.selectorCfg),
	)

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/renderq")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	eng.extensions.Register(observability.NewMetricsExtension())

	config := d.Config()

	// Build default middleware stack: recover → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger, config.ProviderTimeout),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	// Create executor and pool.
	executor := worker.NewExecutor(
		eng.providers,
		eng.selector,
		eng.tracker,
		eng.jobStore,
		eng.policy,
		eng.extensions,
		logger,
		allMws...,
	)

	lanes := make([]job.Lane, 0, len(config.Lanes))
	for _, l := range config.Lanes {
		lane := job.Lane(l)
		if !lane.Valid() {
			return nil, fmt.Errorf("%w: %q", renderq.ErrInvalidLane, l)
		}
		lanes = append(lanes, lane)
	}

	eng.pool = worker.NewPool(
		eng.jobStore,
		executor,
		eng.extensions,
		logger,
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPoolLanes(lanes),
		worker.WithPollInterval(config.PollInterval),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithStaleJobThreshold(config.StaleJobThreshold),
	)

	// Wire back into the Dispatcher.
	d.SetPool(eng.pool)
	d.SetExtensions(eng.extensions)

	return eng, nil
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Providers returns the provider registry.
func (eng *Engine) Providers() *provider.Registry { return eng.providers }

// Tracker returns the health tracker.
func (eng *Engine) Tracker() *health.Tracker { return eng.tracker }

// JobStore returns the job store.
func (eng *Engine) JobStore() job.Store { return eng.jobStore }
