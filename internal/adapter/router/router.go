// Package router resolves destination hosts to upstream proxies by walking
// an ordered rule table. The table lives in an immutable snapshot behind an
// atomic pointer; reloads publish a new generation and in-flight requests
// keep the snapshot they started with.
package router

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/thushan/pxlb/internal/core/domain"
	"github.com/thushan/pxlb/internal/core/ports"
	"github.com/thushan/pxlb/internal/logger"
)

type Router struct {
	selector ports.Selector
	logger   *logger.StyledLogger
	snap     atomic.Pointer[snapshot]
}

type snapshot struct {
	generation uint64
	byPort     map[int][]*domain.PoolRule
	pools      map[string][]*domain.UpstreamProxy
}

func New(selector ports.Selector, log *logger.StyledLogger) *Router {
	r := &Router{selector: selector, logger: log}
	r.snap.Store(&snapshot{
		byPort: map[int][]*domain.PoolRule{},
		pools:  map[string][]*domain.UpstreamProxy{},
	})
	return r
}

// Load publishes a new rule-table snapshot. Rules are indexed per listener
// port and sorted by rank ascending so Select walks them first-match-wins.
func (r *Router) Load(pools []domain.Pool, rules []*domain.PoolRule) {
	byPort := make(map[int][]*domain.PoolRule)
	for _, rule := range rules {
		byPort[rule.Port] = append(byPort[rule.Port], rule)
	}
	for _, portRules := range byPort {
		sort.SliceStable(portRules, func(i, j int) bool {
			return portRules[i].Rank < portRules[j].Rank
		})
	}

	poolIndex := make(map[string][]*domain.UpstreamProxy, len(pools))
	for _, pool := range pools {
		poolIndex[pool.Name] = pool.Proxies
	}

	prev := r.snap.Load()
	next := &snapshot{
		generation: prev.generation + 1,
		byPort:     byPort,
		pools:      poolIndex,
	}
	r.snap.Store(next)

	r.logger.InfoWithCount("Published routing rules", len(rules),
		"generation", next.generation, "ports", len(byPort))
}

// Generation returns the current snapshot's generation counter.
func (r *Router) Generation() uint64 {
	return r.snap.Load().generation
}

// Ports returns the distinct listener ports the rule table covers.
func (r *Router) Ports() []int {
	snap := r.snap.Load()
	out := make([]int, 0, len(snap.byPort))
	for port := range snap.byPort {
		out = append(out, port)
	}
	sort.Ints(out)
	return out
}

// Select walks the port's rules in rank order, unions the winning rule's
// pools and samples one unborrowed proxy. The returned proxy is already
// acquired; the caller must Release it.
func (r *Router) Select(ctx context.Context, host string, port int) (*domain.UpstreamProxy, string, error) {
	snap := r.snap.Load()

	var winner *domain.PoolRule
	for _, rule := range snap.byPort[port] {
		if rule.Matches(host) {
			winner = rule
			break
		}
	}
	if winner == nil {
		return nil, "", &domain.NoProxyError{Host: host, Port: port}
	}

	candidates := r.union(snap, winner.Pools)
	for len(candidates) > 0 {
		proxy, err := r.selector.Select(ctx, candidates)
		if err != nil {
			break
		}
		if proxy.TryAcquire() {
			return proxy, winner.PoolSet, nil
		}
		// Borrowed by another handler; resample from the rest.
		candidates = without(candidates, proxy)
	}
	return nil, "", &domain.NoProxyError{Host: host, Port: port}
}

// union gathers the members of the named pools, deduplicated: a proxy in
// two matched pools still appears once in the sample space.
func (r *Router) union(snap *snapshot, poolNames []string) []*domain.UpstreamProxy {
	seen := make(map[*domain.UpstreamProxy]struct{})
	var out []*domain.UpstreamProxy
	for _, name := range poolNames {
		for _, proxy := range snap.pools[name] {
			if _, dup := seen[proxy]; dup {
				continue
			}
			seen[proxy] = struct{}{}
			out = append(out, proxy)
		}
	}
	return out
}

func without(proxies []*domain.UpstreamProxy, drop *domain.UpstreamProxy) []*domain.UpstreamProxy {
	out := proxies[:0]
	for _, p := range proxies {
		if p != drop {
			out = append(out, p)
		}
	}
	return out
}
