// Package registry owns every UpstreamProxy in the process. Pools reference
// registry-owned proxies; handlers borrow them one at a time through the
// router. Populated once at startup, re-read on config reload.
package registry

import (
	"sort"
	"sync"

	"github.com/thushan/pxlb/internal/core/domain"
)

type Registry struct {
	mu      sync.RWMutex
	proxies []*domain.UpstreamProxy
	pools   []domain.Pool
	rules   []*domain.PoolRule
	byPool  map[string][]string // pool name -> member addrs, for introspection
}

// ProxyInfo is the read-only view of one upstream exposed by the API.
type ProxyInfo struct {
	Proxy    string   `json:"proxy"`
	Types    []string `json:"types"`
	Geo      string   `json:"geo"`
	Pools    []string `json:"pools"`
	Borrowed bool     `json:"borrowed"`
}

func New() *Registry {
	return &Registry{byPool: make(map[string][]string)}
}

// Replace swaps the full proxy/pool/rule set, typically after a config
// load or reload.
func (r *Registry) Replace(pools []domain.Pool, rules []*domain.PoolRule) {
	byPool := make(map[string][]string, len(pools))
	seen := make(map[*domain.UpstreamProxy]struct{})
	var proxies []*domain.UpstreamProxy
	for _, pool := range pools {
		for _, p := range pool.Proxies {
			byPool[pool.Name] = append(byPool[pool.Name], p.Addr())
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				proxies = append(proxies, p)
			}
		}
	}

	r.mu.Lock()
	r.proxies = proxies
	r.pools = pools
	r.rules = rules
	r.byPool = byPool
	r.mu.Unlock()
}

// Pools returns the current pool set.
func (r *Registry) Pools() []domain.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pools
}

// Rules returns the current rule set.
func (r *Registry) Rules() []*domain.PoolRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules
}

// Len returns the number of distinct proxies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.proxies)
}

// Snapshot returns the introspection view, sorted by address.
func (r *Registry) Snapshot() []ProxyInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memberOf := make(map[string][]string)
	for pool, addrs := range r.byPool {
		for _, addr := range addrs {
			memberOf[addr] = append(memberOf[addr], pool)
		}
	}

	out := make([]ProxyInfo, 0, len(r.proxies))
	for _, p := range r.proxies {
		types := make([]string, 0, len(p.Types))
		for t := range p.Types {
			types = append(types, string(t))
		}
		sort.Strings(types)
		pools := memberOf[p.Addr()]
		sort.Strings(pools)
		out = append(out, ProxyInfo{
			Proxy:    p.Addr(),
			Types:    types,
			Geo:      p.GeoCode,
			Pools:    pools,
			Borrowed: p.Borrowed(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Proxy < out[j].Proxy })
	return out
}
