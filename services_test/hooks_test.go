package wiring_test

import (
	"context"
	"errors"
	"testing"

	"github.com/centraunit/wiring"
	"github.com/centraunit/wiring/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type HookTestSuite struct {
	suite.Suite
	ctx context.Context
	rec *mock.Recorder
}

func (s *HookTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.rec = &mock.Recorder{}
}

func (s *HookTestSuite) newRuntime(opts ...wiring.Option) *wiring.Runtime {
	rt, err := wiring.New(opts...)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	return rt
}

func (s *HookTestSuite) TestHooksRunInOrder() {
	rt := s.newRuntime(
		wiring.WithHook(&mock.RecordingHook{Name: "second", Recorder: s.rec}, 20),
		wiring.WithHook(&mock.RecordingHook{Name: "first", Recorder: s.rec}, 10),
	)
	s.Require().NoError(rt.AddHook(&mock.RecordingHook{Name: "third", Recorder: s.rec}, 20))
	s.Require().NoError(rt.Register(&wiring.Definition{ID: "db", Recipe: wiring.Instance(&mock.MockDB{Name: "db", Recorder: s.rec})}))

	_, err := rt.GetComponent(s.ctx, "db")
	s.Require().NoError(err)

	s.Equal([]string{
		"first.before:db", "second.before:db", "third.before:db",
		"boot:db",
		"first.after:db", "second.after:db", "third.after:db",
	}, s.rec.Events())
}

func (s *HookTestSuite) TestHookErrorAbortsCreation() {
	boom := errors.New("rejected")
	rt := s.newRuntime(wiring.WithHook(&wiring.HookFuncs{
		Name:   "gate",
		Before: func(context.Context, string, any) (any, error) { return nil, boom },
	}, 0))
	s.Require().NoError(rt.Register(&wiring.Definition{ID: "db", Recipe: wiring.Instance(&mock.MockDB{Name: "db", Recorder: s.rec})}))

	_, err := rt.GetComponent(s.ctx, "db")

	var hookErr *wiring.HookError
	s.Require().ErrorAs(err, &hookErr)
	s.Equal("gate", hookErr.Hook)
	s.Equal(wiring.PhasePreInit, hookErr.Phase)
	s.Equal("db", hookErr.ID)
	s.ErrorIs(err, boom)
	s.Empty(s.rec.Events(), "initialization does not run")
	s.Equal(wiring.StateFailed, rt.State("db"))
}

func (s *HookTestSuite) TestHookPanic() {
	rt := s.newRuntime(wiring.WithHook(&wiring.HookFuncs{
		Name:  "unstable",
		After: func(context.Context, string, any) (any, error) { panic("hook exploded") },
	}, 0))
	s.Require().NoError(rt.Register(&wiring.Definition{ID: "db", Recipe: wiring.Instance(&mock.MockDB{})}))

	_, err := rt.GetComponent(s.ctx, "db")

	var hookErr *wiring.HookError
	s.Require().ErrorAs(err, &hookErr)
	s.Equal(wiring.PhasePostInit, hookErr.Phase)
	s.Contains(err.Error(), "hook exploded")
}

func (s *HookTestSuite) TestNilResultKeepsInstance() {
	original := &mock.MockDB{Name: "db"}
	rt := s.newRuntime(wiring.WithHook(&wiring.HookFuncs{
		Before: func(context.Context, string, any) (any, error) { return nil, nil },
		After:  func(context.Context, string, any) (any, error) { return nil, nil },
	}, 0))
	s.Require().NoError(rt.Register(&wiring.Definition{ID: "db", Recipe: wiring.Instance(original)}))

	v, err := rt.GetComponent(s.ctx, "db")
	s.Require().NoError(err)
	s.Same(original, v)
}

func (s *HookTestSuite) TestPostInitReplacement() {
	rt := s.newRuntime(wiring.WithHook(&wiring.HookFuncs{
		After: func(_ context.Context, _ string, instance any) (any, error) {
			return &mock.Wrapper{Tag: "traced", Inner: instance.(mock.Named)}, nil
		},
	}, 0))
	raw := &mock.Node{Name: "n"}
	s.Require().NoError(rt.Register(&wiring.Definition{ID: "n", Recipe: wiring.Instance(raw)}))

	v, err := rt.GetComponent(s.ctx, "n")
	s.Require().NoError(err)
	s.Equal("traced(n)", v.(mock.Named).Label())
	s.True(raw.Booted(), "initialization ran on the raw instance")
}

func (s *HookTestSuite) TestAwareComponents() {
	core, logs := observer.New(zap.InfoLevel)
	rt := s.newRuntime(wiring.WithLogger(zap.New(core)))
	s.Require().NoError(rt.Register(&wiring.Definition{ID: "aware", Recipe: wiring.Instance(&mock.Aware{})}))

	aware, err := wiring.Resolve[*mock.Aware](s.ctx, rt, "aware")
	s.Require().NoError(err)
	s.Equal("aware", aware.ID)
	s.Same(rt, aware.Provider)
	s.Require().NotNil(aware.Logger)

	aware.Logger.Info("hello")
	entries := logs.FilterMessage("hello").All()
	s.Require().Len(entries, 1)
	s.Equal("aware", entries[0].ContextMap()["component"])
}

func (s *HookTestSuite) TestDecoratorWrapsOnce() {
	decorator := wiring.NewDecorator("proxy", nil, mock.WrapWith("proxy"))
	rt := s.newRuntime(wiring.WithHook(decorator, 0))
	s.Require().NoError(rt.Register(&wiring.Definition{ID: "n", Recipe: wiring.Instance(&mock.Node{Name: "n"})}))

	first, err := rt.GetComponent(s.ctx, "n")
	s.Require().NoError(err)
	second, err := rt.GetComponent(s.ctx, "n")
	s.Require().NoError(err)

	s.Same(first, second)
	s.Equal("proxy(n)", first.(mock.Named).Label())
	wrapped, ok := decorator.Wrapped("n")
	s.True(ok)
	s.Same(first, wrapped)
}

func (s *HookTestSuite) TestDestroyHookFailureIsReported() {
	boom := errors.New("audit unavailable")
	rt := s.newRuntime(wiring.WithHook(&wiring.HookFuncs{
		Name:    "audit",
		Destroy: func(context.Context, string, any) error { return boom },
	}, 0))
	s.Require().NoError(rt.Register(&wiring.Definition{ID: "db", Recipe: wiring.Instance(&mock.MockDB{Name: "db", Recorder: s.rec})}))
	s.Require().NoError(rt.Start(s.ctx))

	err := rt.Shutdown(s.ctx)

	s.ErrorIs(err, boom)
	var hookErr *wiring.HookError
	s.Require().ErrorAs(err, &hookErr)
	s.Equal(wiring.PhaseBeforeDestroy, hookErr.Phase)
	s.Equal([]string{"boot:db", "shutdown:db"}, s.rec.Events(), "destroy callbacks still run")
}

func TestHookSuite(t *testing.T) {
	suite.Run(t, new(HookTestSuite))
}
