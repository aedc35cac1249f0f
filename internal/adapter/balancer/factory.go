package balancer

import (
	"fmt"

	"github.com/thushan/pxlb/internal/core/ports"
)

const (
	DefaultBalancerRandom     = "random"
	DefaultBalancerRoundRobin = "round-robin"
)

// NewSelector builds a selection strategy by name. Random is the default
// and what the pool routing semantics assume.
func NewSelector(name string) (ports.Selector, error) {
	switch name {
	case "", DefaultBalancerRandom:
		return NewRandomSelector(), nil
	case DefaultBalancerRoundRobin:
		return NewRoundRobinSelector(), nil
	default:
		return nil, fmt.Errorf("unknown balancer %q", name)
	}
}
