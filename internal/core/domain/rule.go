package domain

import (
	"regexp"
	"strings"
)

const RuleKindDomain = "domain"

// Pool is a named collection of upstream proxies. Pools do not own their
// members; a proxy may appear in several pools.
type Pool struct {
	Name    string
	Proxies []*UpstreamProxy
}

// PoolRule maps a destination-host pattern on one listener port to a set
// of candidate pools. Rules are evaluated in ascending Rank; the rank
// encodes both the rule's position and the pattern's position within the
// rule, so one sort key preserves both orderings.
type PoolRule struct {
	Name    string
	PoolSet string   // comma-joined pool names, the telemetry pool label
	Pools   []string // the same names, split
	Port    int
	Rank    float64
	Kind    string
	Pattern *regexp.Regexp
}

// NewPoolRule compiles the pattern and derives the rank from the rule and
// pattern indices.
func NewPoolRule(name string, port int, pools []string, pattern string, ruleIdx, subIdx int) (*PoolRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &PoolRule{
		Name:    name,
		PoolSet: strings.Join(pools, ","),
		Pools:   pools,
		Port:    port,
		Rank:    float64(ruleIdx) + float64(subIdx)/100,
		Kind:    RuleKindDomain,
		Pattern: re,
	}, nil
}

// Matches runs an unanchored search of the pattern against the host.
func (r *PoolRule) Matches(host string) bool {
	return r.Pattern.MatchString(host)
}
