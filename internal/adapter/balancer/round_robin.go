package balancer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/thushan/pxlb/internal/core/domain"
)

// RoundRobinSelector cycles through the candidate set. Offered alongside
// random selection for pools where even rotation matters more than
// statistical spread.
type RoundRobinSelector struct {
	counter uint64
}

func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

func (r *RoundRobinSelector) Name() string {
	return DefaultBalancerRoundRobin
}

func (r *RoundRobinSelector) Select(ctx context.Context, proxies []*domain.UpstreamProxy) (*domain.UpstreamProxy, error) {
	if len(proxies) == 0 {
		return nil, fmt.Errorf("no upstream proxies available")
	}
	current := atomic.AddUint64(&r.counter, 1) - 1
	return proxies[current%uint64(len(proxies))], nil
}
