// Package server holds the per-port listener and the connection handler
// that tunnels each accepted client through a borrowed upstream proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/thushan/pxlb/internal/core/domain"
	"github.com/thushan/pxlb/internal/core/ports"
	"github.com/thushan/pxlb/internal/logger"
)

const (
	DefaultListenerTimeout = 8 * time.Second

	// stopGrace bounds how long Stop waits for in-flight handlers after
	// cancelling them.
	stopGrace = 500 * time.Millisecond
)

type Listener struct {
	host      string
	port      int
	timeout   time.Duration
	router    ports.Router
	sink      ports.TelemetrySink
	collector ports.StatsCollector
	logger    *logger.StyledLogger

	ln     net.Listener
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup

	stopOnce sync.Once
}

func NewListener(host string, port int, timeout time.Duration, router ports.Router, sink ports.TelemetrySink, collector ports.StatsCollector, log *logger.StyledLogger) *Listener {
	if timeout <= 0 {
		timeout = DefaultListenerTimeout
	}
	return &Listener{
		host:      host,
		port:      port,
		timeout:   timeout,
		router:    router,
		sink:      sink,
		collector: collector,
		logger:    log,
		conns:     make(map[net.Conn]struct{}),
	}
}

// Port returns the listener port; after Start this is the bound port even
// when 0 was requested.
func (l *Listener) Port() int { return l.port }

// Addr returns the bound address, empty before Start.
func (l *Listener) Addr() string {
	if l.ln == nil {
		return ""
	}
	return l.ln.Addr().String()
}

// Start binds the accept socket and serves until Stop or context cancel.
func (l *Listener) Start(ctx context.Context) error {
	lctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	ln, err := net.Listen("tcp", net.JoinHostPort(l.host, strconv.Itoa(l.port)))
	if err != nil {
		cancel()
		return fmt.Errorf("listen %s:%d: %w", l.host, l.port, err)
	}
	l.ln = ln
	if l.port == 0 {
		l.port = ln.Addr().(*net.TCPAddr).Port
	}

	l.logger.InfoWithBind("Listening established on", ln.Addr().String())

	go l.acceptLoop(lctx)
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.logger.Error("Accept failed", "error", err, "port", l.port)
			}
			return
		}

		l.track(conn)
		l.wg.Add(1)
		go l.run(ctx, conn)
	}
}

func (l *Listener) run(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()
	defer func() {
		l.untrack(conn)
		_ = conn.Close()
	}()

	l.logger.Debug("Accepted connection", "peer", conn.RemoteAddr().String(), "port", l.port)

	err := l.handle(ctx, conn)
	if err == nil {
		return
	}

	var noProxy *domain.NoProxyError
	if errors.As(err, &noProxy) {
		l.logger.Error("No proxy for request, stopping listener",
			"host", noProxy.Host, "port", noProxy.Port)
		go l.Stop()
		return
	}
	l.logger.Error("Handler failed", "error", err, "port", l.port)
}

// Stop cancels in-flight handlers, closes the accept socket and waits
// briefly for the drain. Safe to call more than once.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
		if l.ln != nil {
			_ = l.ln.Close()
		}

		l.mu.Lock()
		for conn := range l.conns {
			_ = conn.Close()
		}
		l.mu.Unlock()

		done := make(chan struct{})
		go func() {
			l.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(stopGrace):
			l.logger.Warn("Listener stopped with handlers still draining", "port", l.port)
		}

		l.logger.Info("Server is stopped", "port", l.port)
	})
}

func (l *Listener) track(conn net.Conn) {
	l.mu.Lock()
	l.conns[conn] = struct{}{}
	l.mu.Unlock()
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
}
