package wiring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type disposer func(ctx context.Context) error

// orchestrator runs the creation steps of one component: arguments,
// instantiation, early reference, properties, hooks, initialization and the
// identity check. Caching is left to the caller.
type orchestrator struct {
	cache    *SingletonCache
	resolver *Resolver
	pipeline *Pipeline
	config   Config
	logger   *zap.Logger
	metrics  *Metrics
	tracer   trace.Tracer

	mu        sync.Mutex
	disposers map[string]disposer
}

func (o *orchestrator) build(ctx context.Context, def *Definition) (instance any, err error) {
	ctx, span := o.tracer.Start(ctx, "wiring.create", trace.WithAttributes(
		attribute.String("component.id", def.ID),
		attribute.String("component.scope", string(def.scope())),
	))
	start := time.Now()
	o.metrics.creationStarted()
	progress := progressFrom(ctx)
	progress.push(def.ID)

	defer func() {
		progress.pop()
		duration := time.Since(start)
		o.metrics.recordCreation(def.ID, def.scope(), duration, err)
		if err != nil {
			o.pipeline.RunCreationFailed(ctx, def.ID)
			span.RecordError(err)
			span.SetStatus(codes.Error, "component creation failed")
			o.logger.Debug("component creation failed",
				zap.String("component", def.ID),
				zap.Strings("chain", ResolutionPath(ctx)),
				zap.Error(err))
		} else {
			o.logger.Debug("component created",
				zap.String("component", def.ID),
				zap.String("scope", string(def.scope())),
				zap.Duration("duration", duration))
		}
		span.End()
	}()

	if err := o.resolver.ResolveDependsOn(ctx, def); err != nil {
		return nil, constructionFailure(ctx, def, "depends-on", err)
	}

	args, err := o.resolver.ResolveArguments(ctx, def)
	if err != nil {
		return nil, constructionFailure(ctx, def, "arguments", err)
	}

	raw, err := o.instantiate(ctx, def, args)
	if err != nil {
		return nil, err
	}

	singleton := def.scope() == ScopeSingleton
	if singleton && o.config.AllowCircularReferences && !def.NoEarlyReference {
		if err := o.cache.RegisterEarlyReference(def.ID, func() (any, error) {
			return o.pipeline.RunEarlyReference(ctx, def.ID, raw)
		}); err != nil {
			return nil, constructionFailure(ctx, def, "early reference", err)
		}
	}

	if err := o.populate(ctx, def, raw); err != nil {
		return nil, err
	}

	exposed, err := o.pipeline.RunPreInit(ctx, def.ID, raw)
	if err != nil {
		return nil, err
	}

	if !def.SkipInit {
		if err := o.initialize(ctx, def, exposed); err != nil {
			return nil, err
		}
	}

	exposed, err = o.pipeline.RunPostInit(ctx, def.ID, exposed)
	if err != nil {
		return nil, err
	}

	if singleton {
		if early, ok := o.cache.EarlyReference(def.ID); ok {
			switch {
			case SameInstance(exposed, raw):
				exposed = early
			case !SameInstance(exposed, early):
				return nil, &IdentityMismatchError{
					ID:    def.ID,
					Early: describeInstance(early),
					Final: describeInstance(exposed),
				}
			}
		}
		if !def.SkipDestroy {
			o.setDisposer(def.ID, o.disposerFor(def, raw))
		}
	}
	return exposed, nil
}

// constructionFailure wraps err unless it already describes a failed resolution.
func constructionFailure(ctx context.Context, def *Definition, phase string, err error) error {
	if isResolutionError(err) {
		return err
	}
	return &ConstructionError{ID: def.ID, Phase: phase, Chain: ResolutionPath(ctx), Err: err}
}

func (o *orchestrator) instantiate(ctx context.Context, def *Definition, args []any) (instance any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ConstructionError{ID: def.ID, Phase: "instantiation", Chain: ResolutionPath(ctx), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	instance, err = def.Recipe.Construct(ctx, args)
	if err != nil {
		return nil, constructionFailure(ctx, def, "instantiation", err)
	}
	if instance == nil {
		return nil, constructionFailure(ctx, def, "instantiation", errors.New("recipe returned nil"))
	}
	return instance, nil
}

func (o *orchestrator) populate(ctx context.Context, def *Definition, instance any) error {
	if len(def.Properties) == 0 {
		return nil
	}
	props, err := o.resolver.ResolveProperties(ctx, def)
	if err != nil {
		return constructionFailure(ctx, def, "properties", err)
	}

	var setter PropertySetter = reflectSetter{}
	if def.Setter != nil {
		setter = def.Setter
	}
	for _, p := range props {
		if err := applyProperty(setter, instance, p); err != nil {
			return &ConstructionError{ID: def.ID, Phase: "properties", Chain: ResolutionPath(ctx), Err: err}
		}
	}
	return nil
}

func applyProperty(setter PropertySetter, instance any, p ResolvedProperty) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("property %q: panic: %v", p.Name, r)
		}
	}()
	return setter.SetProperty(instance, p.Name, p.Value)
}

func (o *orchestrator) initialize(ctx context.Context, def *Definition, instance any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ConstructionError{ID: def.ID, Phase: "initialization", Chain: ResolutionPath(ctx), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if i, ok := instance.(Initializer); ok {
		if err := i.OnBoot(ctx); err != nil {
			return constructionFailure(ctx, def, "initialization", err)
		}
	}
	if def.Init != nil {
		if err := def.Init(ctx, instance); err != nil {
			return constructionFailure(ctx, def, "initialization", err)
		}
	}
	return nil
}

// disposerFor returns the destroy callbacks of the raw instance, or nil when it
// has none.
func (o *orchestrator) disposerFor(def *Definition, raw any) disposer {
	d, isDestroyer := raw.(Destroyer)
	if !isDestroyer && def.Destroy == nil {
		return nil
	}
	destroy := def.Destroy
	return func(ctx context.Context) error {
		var errs error
		if isDestroyer {
			errs = multierr.Append(errs, d.OnShutdown(ctx))
		}
		if destroy != nil {
			errs = multierr.Append(errs, destroy(ctx, raw))
		}
		return errs
	}
}

func (o *orchestrator) setDisposer(id string, d disposer) {
	if d == nil {
		return
	}
	o.mu.Lock()
	o.disposers[id] = d
	o.mu.Unlock()
}

// dispose runs and forgets the destroy callbacks registered for id.
func (o *orchestrator) dispose(ctx context.Context, id string) (err error) {
	o.mu.Lock()
	d, ok := o.disposers[id]
	delete(o.disposers, id)
	o.mu.Unlock()
	if !ok {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d(ctx)
}
