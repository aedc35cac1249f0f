package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/pxlb/internal/core/domain"
)

func mustProxy(t *testing.T, host string, port int) *domain.UpstreamProxy {
	t.Helper()
	p, err := domain.NewUpstreamProxy(domain.UpstreamSpec{Host: host, Port: port})
	require.NoError(t, err)
	return p
}

func TestRegistry_Replace(t *testing.T) {
	r := New()
	assert.Zero(t, r.Len())

	shared := mustProxy(t, "10.0.0.1", 8080)
	other := mustProxy(t, "10.0.0.2", 8080)
	pools := []domain.Pool{
		{Name: "A", Proxies: []*domain.UpstreamProxy{shared, other}},
		{Name: "B", Proxies: []*domain.UpstreamProxy{shared}},
	}
	rule, err := domain.NewPoolRule("r", 18080, []string{"A"}, ".*", 0, 0)
	require.NoError(t, err)

	r.Replace(pools, []*domain.PoolRule{rule})

	// A proxy in two pools is still one proxy.
	assert.Equal(t, 2, r.Len())
	assert.Len(t, r.Pools(), 2)
	assert.Len(t, r.Rules(), 1)
}

func TestRegistry_Snapshot(t *testing.T) {
	r := New()
	shared := mustProxy(t, "10.0.0.1", 8080)
	r.Replace([]domain.Pool{
		{Name: "B", Proxies: []*domain.UpstreamProxy{shared}},
		{Name: "A", Proxies: []*domain.UpstreamProxy{shared}},
	}, nil)

	require.True(t, shared.TryAcquire())
	defer shared.Release()

	snap := r.Snapshot()
	require.Len(t, snap, 1)

	info := snap[0]
	assert.Equal(t, "10.0.0.1:8080", info.Proxy)
	assert.Equal(t, []string{"A", "B"}, info.Pools)
	assert.Equal(t, []string{"HTTP", "HTTPS"}, info.Types)
	assert.True(t, info.Borrowed)
}
