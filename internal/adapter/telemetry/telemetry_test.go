package telemetry

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/pxlb/internal/core/domain"
	"github.com/thushan/pxlb/internal/logger"
	"github.com/thushan/pxlb/theme"
)

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(
		slog.New(slog.NewTextHandler(io.Discard, nil)), theme.Default())
}

func sampleRecord(id string) *domain.RequestRecord {
	path := "/x"
	up, down := int64(120), int64(4096)
	status := 200
	return &domain.RequestRecord{
		ID:           id,
		Proxy:        "10.0.0.1:8080",
		Domain:       "example.com",
		Path:         &path,
		Scheme:       domain.SchemeHTTP,
		BytesUp:      &up,
		BytesDown:    &down,
		StatusCode:   &status,
		TotalTimeMs:  42,
		RequestedAt:  time.Now().Unix(),
		PoolName:     "A",
		ListenerPort: 8080,
	}
}

func TestSqliteSink_RoundTrip(t *testing.T) {
	sink, err := NewSqliteSink(filepath.Join(t.TempDir(), "stats.db"), testLogger())
	require.NoError(t, err)
	defer sink.Close(context.Background())

	sink.Emit(context.Background(), sampleRecord("one"))

	require.Eventually(t, func() bool {
		recs, rerr := sink.Recent(context.Background(), 10)
		return rerr == nil && len(recs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	recs, err := sink.Recent(context.Background(), 10)
	require.NoError(t, err)
	rec := recs[0]

	assert.Equal(t, "one", rec.ID)
	assert.Equal(t, "10.0.0.1:8080", rec.Proxy)
	assert.Equal(t, "example.com", rec.Domain)
	require.NotNil(t, rec.Path)
	assert.Equal(t, "/x", *rec.Path)
	assert.Equal(t, domain.SchemeHTTP, rec.Scheme)
	require.NotNil(t, rec.StatusCode)
	assert.Equal(t, 200, *rec.StatusCode)
	assert.Nil(t, rec.Error)
	assert.Equal(t, "A", rec.PoolName)
	assert.Equal(t, 8080, rec.ListenerPort)
	assert.EqualValues(t, 42, rec.TotalTimeMs)
}

func TestSqliteSink_NullableFields(t *testing.T) {
	sink, err := NewSqliteSink(filepath.Join(t.TempDir(), "stats.db"), testLogger())
	require.NoError(t, err)
	defer sink.Close(context.Background())

	label := domain.LabelTimeout
	sink.Emit(context.Background(), &domain.RequestRecord{
		ID:           "failed",
		Proxy:        "10.0.0.1:8080",
		Domain:       "example.com",
		Scheme:       domain.SchemeHTTPS,
		Error:        &label,
		RequestedAt:  time.Now().Unix(),
		PoolName:     "A",
		ListenerPort: 8080,
	})

	require.Eventually(t, func() bool {
		recs, rerr := sink.Recent(context.Background(), 1)
		return rerr == nil && len(recs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	recs, err := sink.Recent(context.Background(), 1)
	require.NoError(t, err)
	rec := recs[0]

	assert.Nil(t, rec.Path)
	assert.Nil(t, rec.BytesUp)
	assert.Nil(t, rec.BytesDown)
	assert.Nil(t, rec.StatusCode)
	require.NotNil(t, rec.Error)
	assert.Equal(t, domain.LabelTimeout, *rec.Error)
}

func TestSqliteSink_RecentOrdersNewestFirst(t *testing.T) {
	sink, err := NewSqliteSink(filepath.Join(t.TempDir(), "stats.db"), testLogger())
	require.NoError(t, err)
	defer sink.Close(context.Background())

	sink.Emit(context.Background(), sampleRecord("first"))
	sink.Emit(context.Background(), sampleRecord("second"))

	require.Eventually(t, func() bool {
		recs, rerr := sink.Recent(context.Background(), 10)
		return rerr == nil && len(recs) == 2
	}, 2*time.Second, 10*time.Millisecond)

	recs, err := sink.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "second", recs[0].ID)
	assert.Equal(t, "first", recs[1].ID)
}

func TestLogSink_RingKeepsNewestFirst(t *testing.T) {
	sink := NewLogSink(testLogger())

	sink.Emit(context.Background(), sampleRecord("first"))
	sink.Emit(context.Background(), sampleRecord("second"))
	sink.Emit(context.Background(), sampleRecord("third"))

	recs, err := sink.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "third", recs[0].ID)
	assert.Equal(t, "second", recs[1].ID)
}

func TestLogSink_LimitClamps(t *testing.T) {
	sink := NewLogSink(testLogger())
	sink.Emit(context.Background(), sampleRecord("only"))

	recs, err := sink.Recent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
