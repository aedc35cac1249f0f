package stats

/*
	Centralised request counters. Every handler reports here once per
	request so the introspection API can show system-wide numbers without
	touching the telemetry store.

	Thread-safe for high concurrency; per-proxy entries are cleaned up
	when unused for a long time so a churning proxy list does not leak.
*/

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/pxlb/internal/core/ports"
	"github.com/thushan/pxlb/internal/logger"
)

const (
	MaxTrackedProxies = 200
	ProxyTTL          = 1 * time.Hour
	CleanupInterval   = 5 * time.Minute
)

type Collector struct {
	logger *logger.StyledLogger

	proxies *xsync.Map[string, *proxyData]

	totalRequests      *xsync.Counter
	successfulRequests *xsync.Counter
	failedRequests     *xsync.Counter
	totalLatency       *xsync.Counter

	lastCleanup int64
	cleanupMu   sync.Mutex
}

type proxyData struct {
	totalRequests      *xsync.Counter
	successfulRequests *xsync.Counter
	failedRequests     *xsync.Counter
	bytesUp            *xsync.Counter
	bytesDown          *xsync.Counter
	totalLatency       *xsync.Counter
	proxy              string
	lastUsed           int64 // atomic
}

func NewCollector(log *logger.StyledLogger) *Collector {
	return &Collector{
		logger:             log,
		proxies:            xsync.NewMap[string, *proxyData](),
		lastCleanup:        time.Now().UnixNano(),
		totalRequests:      xsync.NewCounter(),
		successfulRequests: xsync.NewCounter(),
		failedRequests:     xsync.NewCounter(),
		totalLatency:       xsync.NewCounter(),
	}
}

func (c *Collector) RecordRequest(proxy string, ok bool, latency time.Duration, bytesUp, bytesDown int64) {
	now := time.Now().UnixNano()
	latencyMs := latency.Milliseconds()

	c.totalRequests.Inc()
	if ok {
		c.successfulRequests.Inc()
		c.totalLatency.Add(latencyMs)
	} else {
		c.failedRequests.Inc()
	}

	data := c.getOrInit(proxy, now)
	data.totalRequests.Inc()
	data.bytesUp.Add(bytesUp)
	data.bytesDown.Add(bytesDown)
	atomic.StoreInt64(&data.lastUsed, now)
	if ok {
		data.successfulRequests.Inc()
		data.totalLatency.Add(latencyMs)
	} else {
		data.failedRequests.Inc()
	}

	c.tryCleanup(now)
}

func (c *Collector) GetSummary() ports.Summary {
	total := c.totalRequests.Value()
	successful := c.successfulRequests.Value()
	failed := c.failedRequests.Value()
	totalLatency := c.totalLatency.Value()

	var avgLatency int64
	if successful > 0 {
		avgLatency = totalLatency / successful
	}

	return ports.Summary{
		TotalRequests:      total,
		SuccessfulRequests: successful,
		FailedRequests:     failed,
		AverageLatency:     avgLatency,
	}
}

func (c *Collector) GetProxyStats() map[string]ports.ProxyStats {
	stats := make(map[string]ports.ProxyStats)

	c.proxies.Range(func(addr string, data *proxyData) bool {
		successful := data.successfulRequests.Value()
		avgLatency := int64(0)
		if successful > 0 {
			avgLatency = data.totalLatency.Value() / successful
		}

		stats[addr] = ports.ProxyStats{
			Proxy:              data.proxy,
			TotalRequests:      data.totalRequests.Value(),
			SuccessfulRequests: successful,
			FailedRequests:     data.failedRequests.Value(),
			BytesUp:            data.bytesUp.Value(),
			BytesDown:          data.bytesDown.Value(),
			AverageLatency:     avgLatency,
			LastUsedNano:       atomic.LoadInt64(&data.lastUsed),
		}
		return true
	})

	return stats
}

func (c *Collector) getOrInit(proxy string, now int64) *proxyData {
	data, _ := c.proxies.LoadOrCompute(proxy, func() (*proxyData, bool) {
		return &proxyData{
			proxy:              proxy,
			lastUsed:           now,
			totalRequests:      xsync.NewCounter(),
			successfulRequests: xsync.NewCounter(),
			failedRequests:     xsync.NewCounter(),
			bytesUp:            xsync.NewCounter(),
			bytesDown:          xsync.NewCounter(),
			totalLatency:       xsync.NewCounter(),
		}, false
	})
	return data
}

func (c *Collector) tryCleanup(now int64) {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()

	if now-atomic.LoadInt64(&c.lastCleanup) < int64(CleanupInterval) {
		return
	}

	c.cleanup(now)
	atomic.StoreInt64(&c.lastCleanup, now)
}

func (c *Collector) cleanup(now int64) {
	cutoff := now - int64(ProxyTTL)
	var toRemove []string
	var count int

	c.proxies.Range(func(addr string, data *proxyData) bool {
		count++
		if atomic.LoadInt64(&data.lastUsed) < cutoff {
			toRemove = append(toRemove, addr)
		}
		return true
	})

	for _, addr := range toRemove {
		c.proxies.Delete(addr)
	}

	if count-len(toRemove) > MaxTrackedProxies {
		type proxyAge struct {
			addr string
			time int64
		}
		var ages []proxyAge
		c.proxies.Range(func(addr string, data *proxyData) bool {
			ages = append(ages, proxyAge{addr, atomic.LoadInt64(&data.lastUsed)})
			return true
		})
		sort.Slice(ages, func(i, j int) bool {
			return ages[i].time < ages[j].time
		})
		remove := len(ages) - MaxTrackedProxies
		for i := 0; i < remove && i < len(ages); i++ {
			c.proxies.Delete(ages[i].addr)
		}
		c.logger.Debug("Cleaned up stale proxy stats", "removed", remove, "remaining", len(ages)-remove)
	}
}
