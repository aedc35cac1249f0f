package balancer

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/thushan/pxlb/internal/core/domain"
)

// RandomSelector samples uniformly from the candidate set. A single-proxy
// pool degenerates to deterministic selection.
type RandomSelector struct{}

func NewRandomSelector() *RandomSelector {
	return &RandomSelector{}
}

func (r *RandomSelector) Name() string {
	return DefaultBalancerRandom
}

func (r *RandomSelector) Select(ctx context.Context, proxies []*domain.UpstreamProxy) (*domain.UpstreamProxy, error) {
	if len(proxies) == 0 {
		return nil, fmt.Errorf("no upstream proxies available")
	}
	return proxies[rand.IntN(len(proxies))], nil
}
