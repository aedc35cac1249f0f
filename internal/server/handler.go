package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/thushan/pxlb/internal/core/domain"
	"github.com/thushan/pxlb/internal/wire"
)

const (
	readChunkSize = 64 * 1024

	defaultTunnelPort = 443
)

var badGatewayResponse = []byte("HTTP/1.1 502 Bad Gateway\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")

// outcome carries what the streaming phase produced into classification
// and telemetry.
type outcome struct {
	up    *relayResult
	down  *relayResult
	err   error
	label string // overrides the label derived from err
}

// handle runs one accepted client connection through its lifecycle: parse,
// route, negotiate, stream, classify, emit. The returned error is only for
// the listener's escalation policy; everything else lands in telemetry.
func (l *Listener) handle(ctx context.Context, client net.Conn) error {
	requestedAt := time.Now()
	id := uuid.NewString()
	log := l.logger.With("request_id", id)

	reqBytes, hdr, err := l.readRequest(client)
	if err != nil {
		log.Debug("Discarding unparseable client request", "error", err)
		return nil
	}

	scheme := domain.SchemeHTTP
	if hdr.Method == http.MethodConnect {
		scheme = domain.SchemeHTTPS
	}

	proxy, poolName, err := l.router.Select(ctx, hdr.Host, l.Port())
	if err != nil {
		// Tell the waiting client before the listener reacts.
		_, _ = client.Write(badGatewayResponse)
		return err
	}

	log.Debug("Routed request",
		"domain", hdr.Host, "scheme", string(scheme),
		"proxy", proxy.Addr(), "pool", poolName)

	res := &outcome{}
	defer func() {
		l.emit(ctx, id, hdr, scheme, proxy, poolName, requestedAt, res)
		proxy.Close()
		proxy.Release()
	}()

	proto, err := domain.ChooseProto(proxy.Types, scheme)
	if err != nil {
		res.err = err
		return nil
	}

	if err := proxy.Connect(ctx); err != nil {
		res.err = err
		return nil
	}

	socksTunnel := scheme == domain.SchemeHTTPS &&
		(proto == domain.ProtoSOCKS4 || proto == domain.ProtoSOCKS5)

	if socksTunnel {
		port := hdr.Port
		if port == 0 {
			port = defaultTunnelPort
		}
		if err := socksConnect(proxy, proto, hdr.Host, port); err != nil {
			res.err = err
			return nil
		}
		if _, err := client.Write(connectedResponse); err != nil {
			res.err = &domain.StreamError{Direction: "proxy->client", Err: err}
			return nil
		}
	} else {
		// HTTP over anything, or a CONNECT forwarded to an HTTPS-capable
		// upstream proxy; auth injection happens inside Send.
		if err := proxy.Send(reqBytes); err != nil {
			res.err = err
			return nil
		}
	}

	l.stream(ctx, client, proxy, scheme, socksTunnel, res)
	return nil
}

// stream runs the two relays to completion and applies the post-stream
// recovery rules.
func (l *Listener) stream(ctx context.Context, client net.Conn, proxy *domain.UpstreamProxy, scheme domain.Scheme, socksTunnel bool, res *outcome) {
	g, gctx := errgroup.WithContext(ctx)

	// First failure cancels the group; closing both transports kicks the
	// sibling relay out of its blocking read immediately.
	stop := context.AfterFunc(gctx, func() {
		_ = client.Close()
		if conn := proxy.Conn(); conn != nil {
			_ = conn.Close()
		}
	})
	defer stop()

	cs := clientSide{Conn: client}
	us := upstreamSide{proxy: proxy}

	// A SOCKS tunnel carries opaque TLS bytes; only an upstream speaking
	// HTTP on this connection owes us a status line.
	validate := !socksTunnel

	g.Go(func() error {
		r, err := relay(gctx, cs, us, "client->proxy", l.timeout, false)
		res.up = r
		return err
	})
	g.Go(func() error {
		r, err := relay(gctx, us, cs, "proxy->client", l.timeout, validate)
		res.down = r
		return err
	})

	res.err = g.Wait()
	if res.err == nil {
		return
	}

	switch {
	case res.up != nil && res.up.eof && domain.IsTimeout(res.err):
		// The client finished sending and all data already came back; the
		// upstream's trailing read timing out is not the proxy's fault.
		res.err = nil
	case scheme == domain.SchemeHTTPS && !errors.Is(res.err, context.Canceled):
		res.label = domain.LabelSSL
	}
}

// readRequest pulls the client's opening bytes and parses them. A POST
// whose first read ends exactly at the header boundary gets one more read
// so the body is in the forwarded bytes.
func (l *Listener) readRequest(client net.Conn) ([]byte, wire.Header, error) {
	buf := make([]byte, readChunkSize)

	_ = client.SetReadDeadline(time.Now().Add(l.timeout))
	defer client.SetReadDeadline(time.Time{})

	n, err := client.Read(buf)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, wire.Header{}, err
	}
	req := append([]byte(nil), buf[:n]...)

	hdr, err := wire.ParseHeaders(req)
	if err != nil {
		return nil, wire.Header{}, err
	}

	if hdr.Method == http.MethodPost && bytes.HasSuffix(req, []byte("\r\n\r\n")) {
		// The body arrives on a second read for some user agents.
		_ = client.SetReadDeadline(time.Now().Add(l.timeout))
		if m, _ := client.Read(buf); m > 0 {
			req = append(req, buf[:m]...)
		}
	}
	return req, hdr, nil
}

// emit builds and sends the request record. Always called, even on the
// error paths; failures inside the sink stay inside the sink.
func (l *Listener) emit(ctx context.Context, id string, hdr wire.Header, scheme domain.Scheme, proxy *domain.UpstreamProxy, poolName string, requestedAt time.Time, res *outcome) {
	elapsed := time.Since(requestedAt)
	rec := &domain.RequestRecord{
		ID:           id,
		Proxy:        proxy.Addr(),
		Domain:       hdr.Host,
		Scheme:       scheme,
		TotalTimeMs:  elapsed.Milliseconds(),
		RequestedAt:  requestedAt.Unix(),
		PoolName:     poolName,
		ListenerPort: l.Port(),
	}

	if scheme == domain.SchemeHTTP && strings.Contains(hdr.Path, "/") {
		segments := strings.Split(hdr.Path, "/")
		path := "/" + segments[len(segments)-1]
		rec.Path = &path
	}

	if res.up != nil {
		up := res.up.n + proxy.Stats.BytesUp
		rec.BytesUp = &up
	}
	if res.down != nil {
		down := res.down.n + proxy.Stats.BytesDown
		rec.BytesDown = &down
		if len(res.down.firstLine) > 0 {
			if sl, err := wire.ParseStatusLine(string(res.down.firstLine)); err == nil && sl.IsResponse {
				status := sl.Status
				rec.StatusCode = &status
			}
		}
	}

	label := res.label
	if label == "" {
		label = domain.ErrorLabel(res.err)
	}
	if label != "" {
		rec.Error = &label
	}

	l.collector.RecordRequest(rec.Proxy, !rec.Failed(), elapsed, orZero(rec.BytesUp), orZero(rec.BytesDown))
	l.sink.Emit(ctx, rec)
}

func orZero(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
