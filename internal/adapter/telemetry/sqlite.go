// Package telemetry persists one record per handled request. The handler
// treats emission as fire-and-forget: a single writer goroutine serialises
// the actual inserts and failures never travel back up.
package telemetry

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/thushan/pxlb/internal/core/domain"
	"github.com/thushan/pxlb/internal/logger"
)

const (
	emitBuffer   = 256
	drainTimeout = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS request (
    id              varchar(64),
    proxy           varchar(256),
    domain          varchar(256),
    pool            varchar(128),
    path            varchar(512),
    scheme          varchar(16),
    bandwidth_up    integer,
    bandwidth_down  integer,
    status_code     integer,
    error           varchar(128),
    total_time      integer,
    time_of_request integer,
    port            integer
);`

type SqliteSink struct {
	db     *sql.DB
	logger *logger.StyledLogger

	ch        chan *domain.RequestRecord
	done      chan struct{}
	closeOnce sync.Once
}

func NewSqliteSink(path string, log *logger.StyledLogger) (*SqliteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// The writer goroutine is the only writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SqliteSink{
		db:     db,
		logger: log,
		ch:     make(chan *domain.RequestRecord, emitBuffer),
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

// Emit queues the record for the writer. A full queue drops the record
// with a warning rather than stalling the handler.
func (s *SqliteSink) Emit(ctx context.Context, rec *domain.RequestRecord) {
	select {
	case s.ch <- rec:
	default:
		s.logger.Warn("Telemetry queue full, dropping record", "proxy", rec.Proxy, "domain", rec.Domain)
	}
}

func (s *SqliteSink) writeLoop() {
	defer close(s.done)
	for rec := range s.ch {
		if err := s.insert(rec); err != nil {
			s.logger.Error("Failed to save request record", "error", err, "proxy", rec.Proxy)
		}
	}
}

func (s *SqliteSink) insert(rec *domain.RequestRecord) error {
	_, err := s.db.Exec(`INSERT INTO request
        (id, proxy, domain, pool, path, scheme, bandwidth_up, bandwidth_down,
         status_code, error, total_time, time_of_request, port)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID,
		rec.Proxy,
		rec.Domain,
		rec.PoolName,
		nullStr(rec.Path),
		string(rec.Scheme),
		nullInt64(rec.BytesUp),
		nullInt64(rec.BytesDown),
		nullInt(rec.StatusCode),
		nullStr(rec.Error),
		rec.TotalTimeMs,
		rec.RequestedAt,
		rec.ListenerPort,
	)
	return err
}

// Recent returns the newest records, most recent first.
func (s *SqliteSink) Recent(ctx context.Context, limit int) ([]*domain.RequestRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
        id, proxy, domain, pool, path, scheme, bandwidth_up, bandwidth_down,
        status_code, error, total_time, time_of_request, port
        FROM request ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RequestRecord
	for rows.Next() {
		var (
			rec      domain.RequestRecord
			path     sql.NullString
			up, down sql.NullInt64
			status   sql.NullInt64
			errLabel sql.NullString
			scheme   string
		)
		if err := rows.Scan(&rec.ID, &rec.Proxy, &rec.Domain, &rec.PoolName,
			&path, &scheme, &up, &down, &status, &errLabel,
			&rec.TotalTimeMs, &rec.RequestedAt, &rec.ListenerPort); err != nil {
			return nil, err
		}
		rec.Scheme = domain.Scheme(scheme)
		if path.Valid {
			rec.Path = &path.String
		}
		if up.Valid {
			rec.BytesUp = &up.Int64
		}
		if down.Valid {
			rec.BytesDown = &down.Int64
		}
		if status.Valid {
			code := int(status.Int64)
			rec.StatusCode = &code
		}
		if errLabel.Valid {
			rec.Error = &errLabel.String
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Close drains queued records, bounded by the context, and closes the
// store.
func (s *SqliteSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.ch) })

	drain := time.NewTimer(drainTimeout)
	defer drain.Stop()
	select {
	case <-s.done:
	case <-ctx.Done():
	case <-drain.C:
	}
	return s.db.Close()
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt64(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}
