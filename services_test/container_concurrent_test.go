package wiring_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/centraunit/wiring"
	"github.com/centraunit/wiring/mock"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"
)

type ConcurrentTestSuite struct {
	suite.Suite
	ctx context.Context
	rt  *wiring.Runtime
}

func (s *ConcurrentTestSuite) SetupTest() {
	s.ctx = context.Background()
	rt, err := wiring.New()
	s.Require().NoError(err)
	s.rt = rt
}

func (s *ConcurrentTestSuite) TearDownTest() {
	s.NoError(s.rt.Shutdown(s.ctx))
}

func (s *ConcurrentTestSuite) node(id, peer string) *wiring.Definition {
	return &wiring.Definition{
		ID: id,
		Recipe: &mock.CountingRecipe{
			New:   func() any { return &mock.Node{Name: id} },
			Delay: 10 * time.Millisecond,
		},
		Properties: []wiring.Property{{Name: "peer", Value: wiring.Ref(peer)}},
	}
}

func (s *ConcurrentTestSuite) TestCrossChainCycle() {
	s.Require().NoError(s.rt.Register(s.node("a", "b")))
	s.Require().NoError(s.rt.Register(s.node("b", "a")))

	var a, b *mock.Node
	g, ctx := errgroup.WithContext(s.ctx)
	g.Go(func() error {
		var err error
		a, err = wiring.Resolve[*mock.Node](ctx, s.rt, "a")
		return err
	})
	g.Go(func() error {
		var err error
		b, err = wiring.Resolve[*mock.Node](ctx, s.rt, "b")
		return err
	})
	s.Require().NoError(g.Wait())

	s.Same(b, a.Peer)
	s.Same(a, b.Peer)
	s.True(a.Booted())
	s.True(b.Booted())
}

func (s *ConcurrentTestSuite) TestIndependentChainsRunInParallel() {
	const n = 20
	for i := 0; i < n; i++ {
		s.Require().NoError(s.rt.Register(&wiring.Definition{
			ID: fmt.Sprintf("db-%d", i),
			Recipe: &mock.CountingRecipe{
				New:   func() any { return &mock.MockDB{} },
				Delay: 20 * time.Millisecond,
			},
		}))
	}

	began := time.Now()
	var g errgroup.Group
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("db-%d", i)
		g.Go(func() error {
			_, err := s.rt.GetComponent(s.ctx, id)
			return err
		})
	}
	s.Require().NoError(g.Wait())
	s.Less(time.Since(began), time.Duration(n)*20*time.Millisecond, "creations of unrelated components do not serialize")
}

func (s *ConcurrentTestSuite) TestConcurrentLookupsDuringStart() {
	rec := &mock.Recorder{}
	for _, id := range []string{"a", "b", "c"} {
		id := id
		s.Require().NoError(s.rt.Register(&wiring.Definition{
			ID: id,
			Recipe: &mock.CountingRecipe{
				New:   func() any { return &mock.MockDB{Name: id, Recorder: rec} },
				Delay: 5 * time.Millisecond,
			},
		}))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- s.rt.Start(s.ctx)
	}()
	for _, id := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.rt.GetComponent(s.ctx, id)
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	s.ElementsMatch([]string{"boot:a", "boot:b", "boot:c"}, rec.Events())
}

func TestConcurrentSuite(t *testing.T) {
	suite.Run(t, new(ConcurrentTestSuite))
}
