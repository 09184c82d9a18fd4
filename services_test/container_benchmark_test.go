package wiring_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/centraunit/wiring"
	"github.com/centraunit/wiring/mock"
)

func newBenchRuntime(b *testing.B, defs ...*wiring.Definition) *wiring.Runtime {
	b.Helper()
	rt, err := wiring.New(wiring.WithDefinitions(defs...))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	return rt
}

func BenchmarkRegistration(b *testing.B) {
	b.Run("Definition", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			rt, _ := wiring.New()
			_ = rt.Register(&wiring.Definition{ID: "db", Recipe: wiring.Instance(&mock.MockDB{})})
		}
	})

	b.Run("WithProperties", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			rt, _ := wiring.New()
			_ = rt.Register(&wiring.Definition{
				ID:     "cache",
				Recipe: wiring.Instance(&mock.MockCache{}),
				Properties: []wiring.Property{
					{Name: "db", Value: wiring.Ref("db")},
					{Name: "prefix", Value: wiring.Value("p:")},
				},
			})
		}
	})
}

func BenchmarkResolution(b *testing.B) {
	ctx := context.Background()

	b.Run("CachedSingleton", func(b *testing.B) {
		rt := newBenchRuntime(b, &wiring.Definition{ID: "db", Recipe: wiring.Instance(&mock.MockDB{})})
		_, _ = rt.GetComponent(ctx, "db")
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = rt.GetComponent(ctx, "db")
		}
	})

	b.Run("Prototype", func(b *testing.B) {
		rt := newBenchRuntime(b, &wiring.Definition{
			ID:     "db",
			Recipe: wiring.ConstructorFunc(func(context.Context, []any) (any, error) { return &mock.MockDB{}, nil }),
			Scope:  wiring.ScopePrototype,
		})
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = rt.GetComponent(ctx, "db")
		}
	})

	b.Run("PrototypeWithProperties", func(b *testing.B) {
		rt := newBenchRuntime(b,
			&wiring.Definition{ID: "db", Recipe: wiring.Instance(&mock.MockDB{})},
			&wiring.Definition{
				ID:     "cache",
				Recipe: wiring.ConstructorFunc(func(context.Context, []any) (any, error) { return &mock.MockCache{}, nil }),
				Scope:  wiring.ScopePrototype,
				Properties: []wiring.Property{
					{Name: "db", Value: wiring.Ref("db")},
					{Name: "prefix", Value: wiring.Value("p:")},
				},
			},
		)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = rt.GetComponent(ctx, "cache")
		}
	})

	b.Run("Generic", func(b *testing.B) {
		rt := newBenchRuntime(b, &wiring.Definition{ID: "db", Recipe: wiring.Instance(&mock.MockDB{})})
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = wiring.Resolve[mock.Database](ctx, rt, "db")
		}
	})
}

func BenchmarkConcurrentResolution(b *testing.B) {
	ctx := context.Background()
	rt := newBenchRuntime(b, &wiring.Definition{ID: "db", Recipe: wiring.Instance(&mock.MockDB{})})
	_, _ = rt.GetComponent(ctx, "db")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = rt.GetComponent(ctx, "db")
		}
	})
}

func BenchmarkStart(b *testing.B) {
	for _, n := range []int{10, 100} {
		b.Run(fmt.Sprintf("Components%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				rt, _ := wiring.New()
				for j := 0; j < n; j++ {
					def := &wiring.Definition{
						ID:     fmt.Sprintf("db-%d", j),
						Recipe: wiring.ConstructorFunc(func(context.Context, []any) (any, error) { return &mock.MockDB{}, nil }),
					}
					if j > 0 {
						def.DependsOn = []string{fmt.Sprintf("db-%d", j-1)}
					}
					_ = rt.Register(def)
				}
				b.StartTimer()

				_ = rt.Start(context.Background())
				_ = rt.Shutdown(context.Background())
			}
		})
	}
}

func BenchmarkPropertyCycle(b *testing.B) {
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		rt, _ := wiring.New()
		_ = rt.Register(node("a", "b"))
		_ = rt.Register(node("b", "a"))
		_, _ = rt.GetComponent(ctx, "a")
	}
}
