package telemetry

import (
	"context"
	"sync"

	"github.com/thushan/pxlb/internal/core/domain"
	"github.com/thushan/pxlb/internal/logger"
)

const ringCapacity = 512

// LogSink emits records as structured log lines and keeps a small ring of
// recent records so the introspection API still has something to show when
// persistence is disabled.
type LogSink struct {
	logger *logger.StyledLogger

	mu   sync.Mutex
	ring []*domain.RequestRecord
	next int
	full bool
}

func NewLogSink(log *logger.StyledLogger) *LogSink {
	return &LogSink{
		logger: log,
		ring:   make([]*domain.RequestRecord, ringCapacity),
	}
}

func (s *LogSink) Emit(ctx context.Context, rec *domain.RequestRecord) {
	args := []any{
		"id", rec.ID,
		"proxy", rec.Proxy,
		"domain", rec.Domain,
		"scheme", string(rec.Scheme),
		"pool", rec.PoolName,
		"port", rec.ListenerPort,
		"total_time_ms", rec.TotalTimeMs,
	}
	if rec.StatusCode != nil {
		args = append(args, "status", *rec.StatusCode)
	}
	if rec.BytesUp != nil {
		args = append(args, "bw_up", *rec.BytesUp)
	}
	if rec.BytesDown != nil {
		args = append(args, "bw_down", *rec.BytesDown)
	}
	if rec.Failed() {
		args = append(args, "error", *rec.Error)
		s.logger.Warn("request", args...)
	} else {
		s.logger.Info("request", args...)
	}

	s.mu.Lock()
	s.ring[s.next] = rec
	s.next = (s.next + 1) % ringCapacity
	if s.next == 0 {
		s.full = true
	}
	s.mu.Unlock()
}

// Recent returns up to limit records, most recent first.
func (s *LogSink) Recent(ctx context.Context, limit int) ([]*domain.RequestRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.next
	if s.full {
		size = ringCapacity
	}
	if limit > size {
		limit = size
	}

	out := make([]*domain.RequestRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (s.next - 1 - i + ringCapacity) % ringCapacity
		out = append(out, s.ring[idx])
	}
	return out, nil
}

func (s *LogSink) Close(ctx context.Context) error { return nil }
