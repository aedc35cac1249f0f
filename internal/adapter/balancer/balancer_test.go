package balancer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/pxlb/internal/core/domain"
)

func makeProxies(t *testing.T, hosts ...string) []*domain.UpstreamProxy {
	t.Helper()
	out := make([]*domain.UpstreamProxy, 0, len(hosts))
	for _, h := range hosts {
		p, err := domain.NewUpstreamProxy(domain.UpstreamSpec{Host: h})
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func TestRandomSelector_Empty(t *testing.T) {
	s := NewRandomSelector()

	p, err := s.Select(context.Background(), nil)
	assert.Error(t, err)
	assert.Nil(t, p)
}

func TestRandomSelector_SingleIsDeterministic(t *testing.T) {
	s := NewRandomSelector()
	proxies := makeProxies(t, "10.0.0.1")

	for i := 0; i < 10; i++ {
		p, err := s.Select(context.Background(), proxies)
		require.NoError(t, err)
		assert.Same(t, proxies[0], p)
	}
}

func TestRandomSelector_StaysInSet(t *testing.T) {
	s := NewRandomSelector()
	proxies := makeProxies(t, "10.0.0.1", "10.0.0.2", "10.0.0.3")

	seen := make(map[*domain.UpstreamProxy]int)
	for i := 0; i < 300; i++ {
		p, err := s.Select(context.Background(), proxies)
		require.NoError(t, err)
		seen[p]++
	}
	for _, p := range proxies {
		assert.Contains(t, seen, p)
	}
	assert.Len(t, seen, 3)
}

func TestRoundRobinSelector_Cycles(t *testing.T) {
	s := NewRoundRobinSelector()
	proxies := makeProxies(t, "10.0.0.1", "10.0.0.2")

	first, err := s.Select(context.Background(), proxies)
	require.NoError(t, err)
	second, err := s.Select(context.Background(), proxies)
	require.NoError(t, err)
	third, err := s.Select(context.Background(), proxies)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Same(t, first, third)
}

func TestNewSelector(t *testing.T) {
	s, err := NewSelector("")
	require.NoError(t, err)
	assert.Equal(t, DefaultBalancerRandom, s.Name())

	s, err = NewSelector("round-robin")
	require.NoError(t, err)
	assert.Equal(t, DefaultBalancerRoundRobin, s.Name())

	_, err = NewSelector("bogus")
	assert.Error(t, err)
}
