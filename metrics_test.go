package wiring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMetrics_NilIsSafe(t *testing.T) {
	m, err := NewMetrics("wiring", nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m.creationStarted()
	m.recordCreation("a", ScopeSingleton, time.Millisecond, nil)
	m.recordDestroy("a", errors.New("x"))
}

func TestMetrics_SharedAcrossRuntimes(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics("wiring", reg)
	require.NoError(t, err)
	second, err := NewMetrics("wiring", reg)
	require.NoError(t, err)

	first.recordCreation("a", ScopeSingleton, time.Millisecond, nil)
	second.recordCreation("b", ScopeSingleton, time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(first.created.WithLabelValues("singleton")))
}

func TestRuntime_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rt, err := New(WithMetrics(reg))
	require.NoError(t, err)

	require.NoError(t, rt.Register(&Definition{ID: "ok", Recipe: Instance(&widget{})}))
	require.NoError(t, rt.Register(&Definition{ID: "proto", Recipe: noop(), Scope: ScopePrototype}))
	require.NoError(t, rt.Register(&Definition{ID: "broken", Recipe: ConstructorFunc(func(context.Context, []any) (any, error) {
		return nil, errors.New("broken")
	})}))

	ctx := context.Background()
	_, err = rt.GetComponent(ctx, "ok")
	require.NoError(t, err)
	_, err = rt.GetComponent(ctx, "proto")
	require.NoError(t, err)
	_, err = rt.GetComponent(ctx, "proto")
	require.NoError(t, err)
	_, err = rt.GetComponent(ctx, "broken")
	require.Error(t, err)

	m := rt.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.created.WithLabelValues("singleton")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.created.WithLabelValues("prototype")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("broken")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inCreation))

	require.NoError(t, rt.Shutdown(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.destroyed))
}

func TestRuntime_LogsLifecycle(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	rt, err := New(WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.NoError(t, rt.Register(&Definition{ID: "w", Recipe: Instance(&widget{})}))

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))
	require.NoError(t, rt.Shutdown(ctx))

	created := logs.FilterMessage("component created").All()
	require.Len(t, created, 1)
	fields := created[0].ContextMap()
	assert.Equal(t, "w", fields["component"])
	assert.Equal(t, rt.Generation().String(), fields["generation"])

	assert.Equal(t, 1, logs.FilterMessage("runtime started").Len())
	assert.Equal(t, 1, logs.FilterMessage("component destroyed").Len())
}

type recordingProvider struct {
	nooptrace.TracerProvider
	mu    sync.Mutex
	spans []string
}

func (p *recordingProvider) Tracer(string, ...trace.TracerOption) trace.Tracer {
	return recordingTracer{provider: p}
}

func (p *recordingProvider) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spans...)
}

type recordingTracer struct {
	nooptrace.Tracer
	provider *recordingProvider
}

func (t recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	for _, attr := range cfg.Attributes() {
		if attr.Key == "component.id" {
			name += ":" + attr.Value.AsString()
		}
	}
	t.provider.mu.Lock()
	t.provider.spans = append(t.provider.spans, name)
	t.provider.mu.Unlock()
	return t.Tracer.Start(ctx, name, opts...)
}

func TestRuntime_TracesConstruction(t *testing.T) {
	tp := &recordingProvider{}
	rt, err := New(WithTracerProvider(tp))
	require.NoError(t, err)
	require.NoError(t, rt.Register(&Definition{ID: "a", Recipe: noop(), Args: []ValueSpec{Ref("b")}}))
	require.NoError(t, rt.Register(&Definition{ID: "b", Recipe: noop()}))

	_, err = rt.GetComponent(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, []string{"wiring.create:a", "wiring.create:b"}, tp.recorded())
}
