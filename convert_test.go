package wiring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type settings struct {
	Name    string
	Port    int `wiring:"port"`
	Timeout time.Duration
	Tags    []string
	Limits  map[string]int
	Peer    *widget
	hidden  string
	Skipped string `wiring:"-"`
}

func TestReflectSetter(t *testing.T) {
	s := &settings{}
	set := reflectSetter{}

	require.NoError(t, set.SetProperty(s, "Name", "svc"))
	require.NoError(t, set.SetProperty(s, "port", 8080))
	require.NoError(t, set.SetProperty(s, "timeout", int64(time.Second)))
	require.NoError(t, set.SetProperty(s, "Tags", []any{"a", "b"}))
	require.NoError(t, set.SetProperty(s, "Limits", map[string]any{"max": 10}))
	peer := &widget{name: "p"}
	require.NoError(t, set.SetProperty(s, "Peer", peer))

	assert.Equal(t, "svc", s.Name)
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, time.Second, s.Timeout)
	assert.Equal(t, []string{"a", "b"}, s.Tags)
	assert.Equal(t, map[string]int{"max": 10}, s.Limits)
	assert.Same(t, peer, s.Peer)

	t.Run("AbsentLeavesFieldUntouched", func(t *testing.T) {
		require.NoError(t, set.SetProperty(s, "Peer", Absent))
		assert.Same(t, peer, s.Peer)
	})

	t.Run("NilClearsField", func(t *testing.T) {
		require.NoError(t, set.SetProperty(s, "Peer", nil))
		assert.Nil(t, s.Peer)
	})

	t.Run("Errors", func(t *testing.T) {
		assert.Error(t, set.SetProperty(s, "hidden", "x"))
		assert.Error(t, set.SetProperty(s, "Skipped", "x"))
		assert.Error(t, set.SetProperty(s, "Port", "not a number"))
		assert.Error(t, set.SetProperty(*s, "Name", "x"))
		assert.Error(t, set.SetProperty(s, "Tags", []any{1, struct{}{}}))
	})

	t.Run("CaseInsensitiveMatch", func(t *testing.T) {
		require.NoError(t, set.SetProperty(s, "NAME", "upper"))
		require.NoError(t, set.SetProperty(s, "PORT", 9090))
		assert.Equal(t, "upper", s.Name)
		assert.Equal(t, 9090, s.Port)
	})
}

func TestReflectSetterAmbiguousCase(t *testing.T) {
	type twins struct {
		URL string
		Url string
		Dsn string `wiring:"dsn"`
	}
	set := reflectSetter{}

	for i := 0; i < 20; i++ {
		v := &twins{}
		err := set.SetProperty(v, "url", "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `matches both "URL" and "Url"`)
		assert.Empty(t, v.URL)
		assert.Empty(t, v.Url)
	}

	v := &twins{}
	require.NoError(t, set.SetProperty(v, "Url", "exact"))
	assert.Equal(t, "exact", v.Url)
	assert.Empty(t, v.URL)
	require.NoError(t, set.SetProperty(v, "DSN", "pg"), "tag and field name resolve to one field")
	assert.Equal(t, "pg", v.Dsn)
}

func TestReflectConstructor(t *testing.T) {
	t.Run("PlainFunction", func(t *testing.T) {
		rc, err := NewConstructor(func(name string, port int) *settings {
			return &settings{Name: name, Port: port}
		})
		require.NoError(t, err)
		assert.Equal(t, 2, rc.Arity())
		assert.Equal(t, TypeOf[*settings](), rc.ProducedType())

		v, err := rc.Construct(context.Background(), []any{"svc", 80})
		require.NoError(t, err)
		assert.Equal(t, &settings{Name: "svc", Port: 80}, v)

		_, err = rc.Construct(context.Background(), []any{"svc"})
		assert.Error(t, err)
	})

	t.Run("ContextAndError", func(t *testing.T) {
		type key struct{}
		boom := errors.New("boom")
		rc := MustConstructor(func(ctx context.Context, fail bool) (*widget, error) {
			if fail {
				return nil, boom
			}
			return &widget{name: ctx.Value(key{}).(string)}, nil
		})
		assert.Equal(t, 1, rc.Arity())

		ctx := context.WithValue(context.Background(), key{}, "from-ctx")
		v, err := rc.Construct(ctx, []any{false})
		require.NoError(t, err)
		assert.Equal(t, "from-ctx", v.(*widget).name)

		_, err = rc.Construct(ctx, []any{true})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("AbsentArgumentIsZero", func(t *testing.T) {
		rc := MustConstructor(func(w *widget) *settings { return &settings{Peer: w} })
		v, err := rc.Construct(context.Background(), []any{Absent})
		require.NoError(t, err)
		assert.Nil(t, v.(*settings).Peer)
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, fn := range []any{
			nil,
			42,
			func() {},
			func() (int, int) { return 0, 0 },
			func(...int) int { return 0 },
		} {
			_, err := NewConstructor(fn)
			assert.Error(t, err)
		}
		assert.Panics(t, func() { MustConstructor("nope") })
	})
}

func TestSameInstance(t *testing.T) {
	a, b := &widget{}, &widget{}
	m := map[string]int{}
	s := []int{1, 2}

	assert.True(t, SameInstance(a, a))
	assert.False(t, SameInstance(a, b))
	assert.True(t, SameInstance(m, m))
	assert.True(t, SameInstance(s, s))
	assert.False(t, SameInstance(s, s[:1]))
	assert.True(t, SameInstance("x", "x"))
	assert.False(t, SameInstance("x", 1))
	assert.True(t, SameInstance(nil, nil))
	assert.False(t, SameInstance(a, nil))
	assert.False(t, SameInstance(struct{ v any }{[]int{}}, struct{ v any }{[]int{}}))
}
