package wiring

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// IdentifierAware components receive their own identifier before initialization.
type IdentifierAware interface {
	SetComponentID(id string)
}

// LoggerAware components receive a logger named after their identifier.
type LoggerAware interface {
	SetLogger(logger *zap.Logger)
}

// ProviderAware components receive the Provider that built them, for lookups
// that cannot be expressed as injection.
type ProviderAware interface {
	SetProvider(p Provider)
}

// Orders of the built-in hooks. They run before any user hook registered at a
// higher order.
const (
	OrderIdentifierAware = math.MinInt32 + iota
	OrderLoggerAware
	OrderProviderAware
)

type identifierAwareHook struct{}

func (identifierAwareHook) HookName() string { return "identifier-aware" }

func (identifierAwareHook) BeforeInit(_ context.Context, id string, instance any) (any, error) {
	if a, ok := instance.(IdentifierAware); ok {
		a.SetComponentID(id)
	}
	return instance, nil
}

func (identifierAwareHook) AfterInit(_ context.Context, _ string, instance any) (any, error) {
	return instance, nil
}

type loggerAwareHook struct {
	logger *zap.Logger
}

func (loggerAwareHook) HookName() string { return "logger-aware" }

func (h loggerAwareHook) BeforeInit(_ context.Context, id string, instance any) (any, error) {
	if a, ok := instance.(LoggerAware); ok {
		a.SetLogger(h.logger.Named(id).With(zap.String("component", id)))
	}
	return instance, nil
}

func (loggerAwareHook) AfterInit(_ context.Context, _ string, instance any) (any, error) {
	return instance, nil
}

type providerAwareHook struct {
	provider Provider
}

func (providerAwareHook) HookName() string { return "provider-aware" }

func (h providerAwareHook) BeforeInit(_ context.Context, _ string, instance any) (any, error) {
	if a, ok := instance.(ProviderAware); ok {
		a.SetProvider(h.provider)
	}
	return instance, nil
}

func (providerAwareHook) AfterInit(_ context.Context, _ string, instance any) (any, error) {
	return instance, nil
}
