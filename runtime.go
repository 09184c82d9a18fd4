package wiring

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const tracerName = "github.com/centraunit/wiring"

// Runtime owns a set of component definitions and the instances built from
// them. It is safe for concurrent use.
type Runtime struct {
	generation uuid.UUID
	config     Config
	logger     *zap.Logger

	registry *Registry
	cache    *SingletonCache
	resolver *Resolver
	pipeline *Pipeline
	orch     *orchestrator
	metrics  *Metrics

	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	pending        []*Definition

	mu       sync.Mutex
	started  bool
	shutdown atomic.Bool
	startWG  sync.WaitGroup
}

// Option configures a Runtime.
type Option func(*Runtime) error

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(r *Runtime) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		r.config = cfg
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runtime) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithMetrics registers the runtime collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *Runtime) error {
		r.registerer = reg
		return nil
	}
}

// WithTracerProvider sets the provider of construction spans. The default is
// the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runtime) error {
		r.tracerProvider = tp
		return nil
	}
}

// WithHook adds a hook to the pipeline.
func WithHook(hook Hook, order int) Option {
	return func(r *Runtime) error {
		if hook == nil {
			return errors.New("hook cannot be nil")
		}
		r.pipeline.Register(hook, order)
		return nil
	}
}

// WithDefinitions registers defs once the runtime is built.
func WithDefinitions(defs ...*Definition) Option {
	return func(r *Runtime) error {
		r.pending = append(r.pending, defs...)
		return nil
	}
}

// New creates a runtime.
func New(opts ...Option) (*Runtime, error) {
	r := &Runtime{
		generation: uuid.New(),
		config:     DefaultConfig(),
		logger:     zap.NewNop(),
		pipeline:   NewPipeline(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("configure runtime: %w", err)
		}
	}

	r.logger = r.logger.With(zap.String("generation", r.generation.String()))

	metrics, err := NewMetrics(r.config.MetricsNamespace, r.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	r.metrics = metrics

	tp := r.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	r.registry = NewRegistry(r.config.AllowDefinitionOverriding)
	r.cache = NewSingletonCache(r.evict)
	r.resolver = NewResolver(r.registry, r)
	r.pipeline.Register(identifierAwareHook{}, OrderIdentifierAware)
	r.pipeline.Register(loggerAwareHook{logger: r.logger}, OrderLoggerAware)
	r.pipeline.Register(providerAwareHook{provider: r}, OrderProviderAware)
	r.orch = &orchestrator{
		cache:     r.cache,
		resolver:  r.resolver,
		pipeline:  r.pipeline,
		config:    r.config,
		logger:    r.logger,
		metrics:   r.metrics,
		tracer:    tp.Tracer(tracerName),
		disposers: make(map[string]disposer),
	}

	for _, def := range r.pending {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	r.pending = nil
	return r, nil
}

// Generation identifies this runtime instance in logs.
func (r *Runtime) Generation() uuid.UUID {
	return r.generation
}

// Config returns the settings the runtime was built with.
func (r *Runtime) Config() Config {
	return r.config
}

// Register adds a component definition. It fails once the registry is frozen
// by Start, or when the identifier already has an instance.
func (r *Runtime) Register(def *Definition) error {
	if r.shutdown.Load() {
		return ErrRuntimeShutdown
	}
	if def != nil {
		switch r.cache.State(r.registry.Canonical(def.ID)) {
		case StateCreated, StateInCreation:
			return fmt.Errorf("register %q: %w", def.ID, ErrAlreadyCreated)
		}
	}
	if err := r.registry.Register(def); err != nil {
		return err
	}
	r.logger.Debug("component registered",
		zap.String("component", def.ID),
		zap.String("scope", string(def.scope())))
	return nil
}

// RegisterAlias makes alias resolve to the component registered as id.
func (r *Runtime) RegisterAlias(alias, id string) error {
	if r.shutdown.Load() {
		return ErrRuntimeShutdown
	}
	return r.registry.RegisterAlias(alias, id)
}

// AddHook adds a hook to the pipeline. Hooks cannot be added after Start.
func (r *Runtime) AddHook(hook Hook, order int) error {
	if hook == nil {
		return errors.New("hook cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}
	r.pipeline.Register(hook, order)
	return nil
}

// Registry exposes the component definitions.
func (r *Runtime) Registry() *Registry {
	return r.registry
}

// IDs returns every registered identifier in registration order.
func (r *Runtime) IDs() []string {
	return r.registry.IDs()
}

// State returns the lifecycle state of the component registered as id.
func (r *Runtime) State(id string) State {
	return r.cache.State(r.registry.Canonical(id))
}

// GetComponent returns the component registered as id, creating it and its
// dependencies when needed. Recipes must pass on the context they received so
// nested lookups stay on the same resolution chain.
func (r *Runtime) GetComponent(ctx context.Context, id string) (any, error) {
	if r.shutdown.Load() {
		return nil, ErrRuntimeShutdown
	}
	ctx, _ = ensureOwner(ctx)
	ctx = withProvider(ctx, r)

	def, ok := r.registry.Lookup(id)
	if !ok {
		return nil, &DefinitionNotFoundError{ID: id, Chain: pathWith(ctx, id)}
	}

	if def.scope() == ScopePrototype {
		if chainFrom(ctx).contains(def.ID) {
			return nil, &CircularDependencyError{ID: def.ID, Chain: pathWith(ctx, def.ID)}
		}
		return r.orch.build(withChain(ctx, def.ID), def)
	}

	if v, ok := r.cache.GetIfPresent(def.ID); ok {
		return v, nil
	}
	return r.cache.GetOrCreate(ctx, def.ID, func(ctx context.Context) (any, error) {
		return r.orch.build(withChain(ctx, def.ID), def)
	})
}

// GetComponentAs is GetComponent with a check that the instance is assignable to t.
func (r *Runtime) GetComponentAs(ctx context.Context, id string, t reflect.Type) (any, error) {
	if t == nil {
		return nil, fmt.Errorf("component %q: nil target type", id)
	}
	v, err := r.GetComponent(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reflect.TypeOf(v).AssignableTo(t) {
		return nil, &TypeMismatchError{ID: id, Expected: t.String(), Got: reflect.TypeOf(v).String()}
	}
	return v, nil
}

// ComponentsOfType returns every component whose declared type is assignable
// to t, keyed by identifier.
func (r *Runtime) ComponentsOfType(ctx context.Context, t reflect.Type) (map[string]any, error) {
	out := make(map[string]any)
	for _, def := range r.registry.CandidatesFor(t) {
		v, err := r.GetComponent(ctx, def.ID)
		if err != nil {
			return nil, err
		}
		out[def.ID] = v
	}
	return out, nil
}

// Resolve returns the component registered as id as a T.
func Resolve[T any](ctx context.Context, p Provider, id string) (T, error) {
	var zero T
	v, err := p.GetComponent(ctx, id)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{ID: id, Expected: TypeOf[T]().String(), Got: fmt.Sprintf("%T", v)}
	}
	return typed, nil
}

// Start freezes the registry and creates every non-lazy singleton, dependencies
// first. It stops at the first failure. When Config.StartupTimeout or ctx ends
// first, Start returns a StartupTimeoutError; components created up to that
// point stay created and are destroyed by Shutdown.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.shutdown.Load() {
		r.mu.Unlock()
		return ErrRuntimeShutdown
	}
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.startWG.Add(1)
	r.mu.Unlock()

	r.registry.Freeze()
	order, err := r.registry.DependencyOrder()
	if err != nil {
		r.startWG.Done()
		return err
	}

	if r.config.StartupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.StartupTimeout)
		defer cancel()
	}

	began := time.Now()
	r.logger.Info("starting runtime", zap.Int("components", len(order)))

	tracker := &progressTracker{}
	done := make(chan error, 1)
	go func() {
		defer r.startWG.Done()
		done <- r.materialize(withProgress(ctx, tracker), order)
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		inProgress := tracker.current()
		select {
		case err = <-done:
		default:
			err = &StartupTimeoutError{InProgress: inProgress, Err: ctx.Err()}
		}
	}

	if err != nil {
		r.logger.Error("runtime start failed", zap.Error(err))
		return err
	}
	r.logger.Info("runtime started",
		zap.Int("created", r.cache.Len()),
		zap.Duration("duration", time.Since(began)))
	return nil
}

func (r *Runtime) materialize(ctx context.Context, order []string) error {
	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return &StartupTimeoutError{Err: err}
		}
		def, ok := r.registry.Lookup(id)
		if !ok || def.Lazy || def.scope() == ScopePrototype {
			continue
		}
		if _, err := r.GetComponent(ctx, id); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return &StartupTimeoutError{InProgress: id, Err: ctxErr}
			}
			return err
		}
	}
	return nil
}

// Shutdown destroys every created singleton in reverse creation order, running
// before-destroy hooks and destroy callbacks. Failures do not stop the sweep;
// they are returned together as a DestructionError. After Shutdown every lookup
// fails with ErrRuntimeShutdown. Calling Shutdown again does nothing.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.shutdown.Load() {
		r.mu.Unlock()
		return nil
	}
	r.shutdown.Store(true)
	r.mu.Unlock()

	r.waitForStart(ctx)
	r.cache.Close()

	created := r.cache.CreationOrder()
	order := make([]string, len(created))
	for i, id := range created {
		order[len(created)-1-i] = id
	}

	r.logger.Info("shutting down runtime", zap.Int("components", len(order)))
	err := r.cache.DestroyAll(ctx, order, r.destroy)
	if err != nil {
		r.logger.Error("runtime shutdown finished with errors", zap.Error(err))
		return err
	}
	r.logger.Info("runtime shut down")
	return nil
}

func (r *Runtime) waitForStart(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		r.startWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("shutdown proceeding while start is still running", zap.Error(ctx.Err()))
	}
}

func (r *Runtime) destroy(ctx context.Context, id string, instance any) error {
	var errs error
	errs = multierr.Append(errs, r.pipeline.RunBeforeDestroy(ctx, id, instance))
	errs = multierr.Append(errs, r.orch.dispose(ctx, id))
	r.metrics.recordDestroy(id, errs)
	if errs != nil {
		r.logger.Warn("component destroy failed", zap.String("component", id), zap.Error(errs))
	} else {
		r.logger.Debug("component destroyed", zap.String("component", id))
	}
	return errs
}

// evict destroys instances the cache dropped outside of Shutdown.
func (r *Runtime) evict(ctx context.Context, id string, instance any) {
	r.logger.Debug("evicting component", zap.String("component", id))
	_ = r.destroy(ctx, id, instance)
}
