package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/pxlb/internal/adapter/balancer"
	"github.com/thushan/pxlb/internal/core/domain"
	"github.com/thushan/pxlb/internal/logger"
	"github.com/thushan/pxlb/theme"
)

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(
		slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
}

func mustProxy(t *testing.T, host string) *domain.UpstreamProxy {
	t.Helper()
	p, err := domain.NewUpstreamProxy(domain.UpstreamSpec{Host: host})
	require.NoError(t, err)
	return p
}

func mustRule(t *testing.T, name string, port int, pools []string, pattern string, ruleIdx, subIdx int) *domain.PoolRule {
	t.Helper()
	r, err := domain.NewPoolRule(name, port, pools, pattern, ruleIdx, subIdx)
	require.NoError(t, err)
	return r
}

func newTestRouter(t *testing.T, pools []domain.Pool, rules []*domain.PoolRule) *Router {
	t.Helper()
	r := New(balancer.NewRandomSelector(), testLogger())
	r.Load(pools, rules)
	return r
}

func TestRouter_FirstMatchWins(t *testing.T) {
	p1 := mustProxy(t, "10.0.0.1")
	p2 := mustProxy(t, "10.0.0.2")
	pools := []domain.Pool{
		{Name: "A", Proxies: []*domain.UpstreamProxy{p1}},
		{Name: "B", Proxies: []*domain.UpstreamProxy{p2}},
	}
	rules := []*domain.PoolRule{
		mustRule(t, "specific", 8080, []string{"A"}, `example\.com`, 0, 0),
		mustRule(t, "catchall", 8080, []string{"B"}, `.*`, 1, 0),
	}

	r := newTestRouter(t, pools, rules)

	proxy, pool, err := r.Select(context.Background(), "example.com", 8080)
	require.NoError(t, err)
	defer proxy.Release()

	assert.Same(t, p1, proxy)
	assert.Equal(t, "A", pool)
}

func TestRouter_SubRankOrdering(t *testing.T) {
	p1 := mustProxy(t, "10.0.0.1")
	p2 := mustProxy(t, "10.0.0.2")
	pools := []domain.Pool{
		{Name: "A", Proxies: []*domain.UpstreamProxy{p1}},
		{Name: "B", Proxies: []*domain.UpstreamProxy{p2}},
	}
	// One logical rule with two patterns beats a later rule, and within
	// it the lower sub-rank pattern is consulted first. Load in shuffled
	// order to prove sorting by rank, not insertion.
	rules := []*domain.PoolRule{
		mustRule(t, "late", 8080, []string{"B"}, `.*`, 1, 0),
		mustRule(t, "early", 8080, []string{"A"}, `b\.test`, 0, 1),
		mustRule(t, "early", 8080, []string{"A"}, `a\.test`, 0, 0),
	}

	r := newTestRouter(t, pools, rules)

	proxy, pool, err := r.Select(context.Background(), "b.test", 8080)
	require.NoError(t, err)
	defer proxy.Release()
	assert.Equal(t, "A", pool)
}

func TestRouter_UnanchoredSearch(t *testing.T) {
	p1 := mustProxy(t, "10.0.0.1")
	pools := []domain.Pool{{Name: "A", Proxies: []*domain.UpstreamProxy{p1}}}
	rules := []*domain.PoolRule{
		mustRule(t, "r", 8080, []string{"A"}, `example`, 0, 0),
	}

	r := newTestRouter(t, pools, rules)

	proxy, _, err := r.Select(context.Background(), "www.example.com", 8080)
	require.NoError(t, err)
	proxy.Release()
}

func TestRouter_NoMatch(t *testing.T) {
	p1 := mustProxy(t, "10.0.0.1")
	pools := []domain.Pool{{Name: "A", Proxies: []*domain.UpstreamProxy{p1}}}
	rules := []*domain.PoolRule{
		mustRule(t, "r", 8080, []string{"A"}, `example\.com`, 0, 0),
	}

	r := newTestRouter(t, pools, rules)

	_, _, err := r.Select(context.Background(), "unknown.test", 8080)
	var noProxy *domain.NoProxyError
	require.Error(t, err)
	assert.True(t, errors.As(err, &noProxy))
}

func TestRouter_WrongPort(t *testing.T) {
	p1 := mustProxy(t, "10.0.0.1")
	pools := []domain.Pool{{Name: "A", Proxies: []*domain.UpstreamProxy{p1}}}
	rules := []*domain.PoolRule{
		mustRule(t, "r", 8080, []string{"A"}, `.*`, 0, 0),
	}

	r := newTestRouter(t, pools, rules)

	_, _, err := r.Select(context.Background(), "example.com", 9090)
	require.Error(t, err)
}

func TestRouter_EmptyWinningPool(t *testing.T) {
	pools := []domain.Pool{{Name: "A"}}
	rules := []*domain.PoolRule{
		mustRule(t, "r", 8080, []string{"A"}, `.*`, 0, 0),
	}

	r := newTestRouter(t, pools, rules)

	_, _, err := r.Select(context.Background(), "example.com", 8080)
	var noProxy *domain.NoProxyError
	require.Error(t, err)
	assert.True(t, errors.As(err, &noProxy))
}

func TestRouter_PoolSetUnionDeduplicates(t *testing.T) {
	shared := mustProxy(t, "10.0.0.1")
	pools := []domain.Pool{
		{Name: "A", Proxies: []*domain.UpstreamProxy{shared}},
		{Name: "B", Proxies: []*domain.UpstreamProxy{shared}},
	}
	rules := []*domain.PoolRule{
		mustRule(t, "r", 8080, []string{"A", "B"}, `.*`, 0, 0),
	}

	r := newTestRouter(t, pools, rules)

	proxy, pool, err := r.Select(context.Background(), "example.com", 8080)
	require.NoError(t, err)
	defer proxy.Release()

	assert.Same(t, shared, proxy)
	assert.Equal(t, "A,B", pool)
}

func TestRouter_SelectReturnsBorrowedProxy(t *testing.T) {
	p1 := mustProxy(t, "10.0.0.1")
	pools := []domain.Pool{{Name: "A", Proxies: []*domain.UpstreamProxy{p1}}}
	rules := []*domain.PoolRule{
		mustRule(t, "r", 8080, []string{"A"}, `.*`, 0, 0),
	}

	r := newTestRouter(t, pools, rules)

	proxy, _, err := r.Select(context.Background(), "example.com", 8080)
	require.NoError(t, err)
	assert.True(t, proxy.Borrowed())

	// The only proxy is borrowed: a second selection must not share it.
	_, _, err = r.Select(context.Background(), "example.com", 8080)
	require.Error(t, err)

	proxy.Release()
	proxy2, _, err := r.Select(context.Background(), "example.com", 8080)
	require.NoError(t, err)
	proxy2.Release()
}

func TestRouter_ReloadBumpsGeneration(t *testing.T) {
	p1 := mustProxy(t, "10.0.0.1")
	pools := []domain.Pool{{Name: "A", Proxies: []*domain.UpstreamProxy{p1}}}
	rules := []*domain.PoolRule{
		mustRule(t, "r", 8080, []string{"A"}, `.*`, 0, 0),
	}

	r := newTestRouter(t, pools, rules)
	gen := r.Generation()

	r.Load(pools, rules)
	assert.Equal(t, gen+1, r.Generation())
}

func TestRouter_Ports(t *testing.T) {
	p1 := mustProxy(t, "10.0.0.1")
	pools := []domain.Pool{{Name: "A", Proxies: []*domain.UpstreamProxy{p1}}}
	rules := []*domain.PoolRule{
		mustRule(t, "b", 9090, []string{"A"}, `.*`, 1, 0),
		mustRule(t, "a", 8080, []string{"A"}, `.*`, 0, 0),
		mustRule(t, "a2", 8080, []string{"A"}, `x`, 0, 1),
	}

	r := newTestRouter(t, pools, rules)
	assert.Equal(t, []int{8080, 9090}, r.Ports())
}
