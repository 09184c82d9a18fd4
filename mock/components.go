package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/centraunit/wiring"
	"go.uber.org/zap"
)

// Recorder collects lifecycle events from several components in order.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *Recorder) Record(event string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Core interfaces
type Database interface {
	wiring.Lifecycle
	Connect() error
	IsConnected() bool
}

type Cache interface {
	Get(key string) any
	Database() Database
}

// Mock implementations
type MockDB struct {
	Name     string
	Recorder *Recorder

	mu        sync.Mutex
	connected bool
	boots     int
}

func (m *MockDB) Connect() error {
	return nil
}

func (m *MockDB) OnBoot(ctx context.Context) error {
	m.mu.Lock()
	m.connected = true
	m.boots++
	m.mu.Unlock()
	m.Recorder.Record("boot:" + m.Name)
	return nil
}

func (m *MockDB) OnShutdown(ctx context.Context) error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.Recorder.Record("shutdown:" + m.Name)
	return nil
}

func (m *MockDB) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockDB) Boots() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boots
}

// MockCache receives its database as a property.
type MockCache struct {
	DB     Database `wiring:"db"`
	Prefix string   `wiring:"prefix"`
}

func (m *MockCache) Get(key string) any {
	return m.Prefix + key
}

func (m *MockCache) Database() Database {
	return m.DB
}

// FailingDB fails to boot while ShouldFail is set.
type FailingDB struct {
	MockDB
	ShouldFail bool
}

func (f *FailingDB) OnBoot(ctx context.Context) error {
	if f.ShouldFail {
		return fmt.Errorf("simulated boot failure")
	}
	return f.MockDB.OnBoot(ctx)
}

// FailingShutdown returns Err from OnShutdown after recording it.
type FailingShutdown struct {
	Name     string
	Recorder *Recorder
	Err      error
}

func (f *FailingShutdown) OnBoot(context.Context) error { return nil }

func (f *FailingShutdown) OnShutdown(context.Context) error {
	f.Recorder.Record("shutdown:" + f.Name)
	return f.Err
}

// Deep constructor-injected chain
type DeepService3 interface {
	GetValue() string
}

type DeepService2 interface {
	GetService3() DeepService3
}

type DeepService1 interface {
	GetService2() DeepService2
}

type DeepImpl3 struct {
	Value string
}

func (d *DeepImpl3) GetValue() string {
	return d.Value
}

type DeepImpl2 struct {
	svc3 DeepService3
}

func NewDeepImpl2(svc3 DeepService3) *DeepImpl2 {
	return &DeepImpl2{svc3: svc3}
}

func (d *DeepImpl2) GetService3() DeepService3 {
	return d.svc3
}

type DeepImpl1 struct {
	svc2 DeepService2
}

func NewDeepImpl1(ctx context.Context, svc2 DeepService2) (*DeepImpl1, error) {
	if svc2 == nil {
		return nil, errors.New("service2 is required")
	}
	return &DeepImpl1{svc2: svc2}, nil
}

func (d *DeepImpl1) GetService2() DeepService2 {
	return d.svc2
}

// Named is implemented by cycle participants and their wrappers.
type Named interface {
	Label() string
}

// Node is a component whose peer is injected as a property, so two nodes can
// refer to each other.
type Node struct {
	Name string
	Peer Named `wiring:"peer"`

	mu     sync.Mutex
	booted bool
}

func (n *Node) Label() string {
	return n.Name
}

func (n *Node) OnBoot(context.Context) error {
	n.mu.Lock()
	n.booted = true
	n.mu.Unlock()
	return nil
}

func (n *Node) Booted() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.booted
}

// Wrapper is a decorator product around a Named component.
type Wrapper struct {
	Tag   string
	Inner Named
}

func (w *Wrapper) Label() string {
	return w.Tag + "(" + w.Inner.Label() + ")"
}

// WrapWith returns a Decorator wrap function tagging instances with tag.
func WrapWith(tag string) func(ctx context.Context, id string, instance any) (any, error) {
	return func(_ context.Context, _ string, instance any) (any, error) {
		named, ok := instance.(Named)
		if !ok {
			return nil, fmt.Errorf("%T is not Named", instance)
		}
		return &Wrapper{Tag: tag, Inner: named}, nil
	}
}

// Linked takes its peer as a constructor argument; two Linked components
// referring to each other can never be built.
type Linked struct {
	Peer any
}

// Aware records what the built-in aware hooks handed it.
type Aware struct {
	ID       string
	Logger   *zap.Logger
	Provider wiring.Provider
}

func (a *Aware) SetComponentID(id string)      { a.ID = id }
func (a *Aware) SetLogger(logger *zap.Logger)  { a.Logger = logger }
func (a *Aware) SetProvider(p wiring.Provider) { a.Provider = p }

// CountingRecipe counts Construct calls and can be slowed down to widen races.
type CountingRecipe struct {
	New   func() any
	Delay time.Duration
	calls atomic.Int64
}

func (r *CountingRecipe) Construct(ctx context.Context, _ []any) (any, error) {
	r.calls.Add(1)
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.New(), nil
}

func (r *CountingRecipe) Calls() int64 {
	return r.calls.Load()
}

// FlakyRecipe fails the first Failures calls.
type FlakyRecipe struct {
	Failures int32
	New      func() any
	calls    atomic.Int32
}

func (r *FlakyRecipe) Construct(context.Context, []any) (any, error) {
	if n := r.calls.Add(1); n <= r.Failures {
		return nil, fmt.Errorf("flaky failure %d", n)
	}
	return r.New(), nil
}

// PanicRecipe panics with Value.
type PanicRecipe struct {
	Value any
}

func (r PanicRecipe) Construct(context.Context, []any) (any, error) {
	panic(r.Value)
}

// BlockingRecipe waits until Release is closed or ctx ends.
type BlockingRecipe struct {
	Release chan struct{}
	Started chan struct{}
	New     func() any
	once    sync.Once
}

func (r *BlockingRecipe) Construct(ctx context.Context, _ []any) (any, error) {
	if r.Started != nil {
		r.once.Do(func() { close(r.Started) })
	}
	select {
	case <-r.Release:
		return r.New(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RecordingHook records every pipeline phase it sees as "phase:id".
type RecordingHook struct {
	Name     string
	Recorder *Recorder
}

func (h *RecordingHook) HookName() string {
	return h.Name
}

func (h *RecordingHook) BeforeInit(_ context.Context, id string, instance any) (any, error) {
	h.Recorder.Record(h.Name + ".before:" + id)
	return instance, nil
}

func (h *RecordingHook) AfterInit(_ context.Context, id string, instance any) (any, error) {
	h.Recorder.Record(h.Name + ".after:" + id)
	return instance, nil
}

func (h *RecordingHook) BeforeDestroy(_ context.Context, id string, _ any) error {
	h.Recorder.Record(h.Name + ".destroy:" + id)
	return nil
}
