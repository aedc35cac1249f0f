// Package ports holds the interfaces between the core and its adapters.
package ports

import (
	"context"
	"time"

	"github.com/thushan/pxlb/internal/core/domain"
)

// Selector picks one proxy from a candidate set. Implementations live in
// the balancer adapter.
type Selector interface {
	Select(ctx context.Context, proxies []*domain.UpstreamProxy) (*domain.UpstreamProxy, error)
	Name() string
}

// Router resolves a destination host on a listener port to a borrowed
// upstream proxy and the matched pool label. The caller owns the borrow
// and must Release it.
type Router interface {
	Select(ctx context.Context, host string, port int) (*domain.UpstreamProxy, string, error)
}

// TelemetrySink receives one record per handled request. Emission is
// fire-and-forget: implementations log failures and never surface them.
type TelemetrySink interface {
	Emit(ctx context.Context, rec *domain.RequestRecord)
	Recent(ctx context.Context, limit int) ([]*domain.RequestRecord, error)
	Close(ctx context.Context) error
}

// ProxyStats is the aggregate view of one upstream for introspection.
type ProxyStats struct {
	Proxy              string `json:"proxy"`
	TotalRequests      int64  `json:"total_requests"`
	SuccessfulRequests int64  `json:"successful_requests"`
	FailedRequests     int64  `json:"failed_requests"`
	BytesUp            int64  `json:"bytes_up"`
	BytesDown          int64  `json:"bytes_down"`
	AverageLatency     int64  `json:"avg_latency_ms"`
	LastUsedNano       int64  `json:"last_used_nano"`
}

// Summary is the process-wide request counters.
type Summary struct {
	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`
	AverageLatency     int64 `json:"avg_latency_ms"`
}

// StatsCollector aggregates per-proxy counters across all listeners.
type StatsCollector interface {
	RecordRequest(proxy string, ok bool, latency time.Duration, bytesUp, bytesDown int64)
	GetSummary() Summary
	GetProxyStats() map[string]ProxyStats
}
