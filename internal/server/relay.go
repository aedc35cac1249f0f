package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/thushan/pxlb/internal/core/domain"
	"github.com/thushan/pxlb/internal/wire"
	"github.com/thushan/pxlb/pkg/pool"
)

const relayBufferSize = 64 * 1024

// relayBuffers recycles the chunk buffers shared by every live relay.
var relayBuffers = pool.NewLitePool(func() *[]byte {
	b := make([]byte, relayBufferSize)
	return &b
})

// relaySide is one end of the tunnel: a deadline-capable reader, a writer,
// and a half-close for signalling EOF to the peer.
type relaySide interface {
	io.Reader
	io.Writer
	SetReadDeadline(t time.Time) error
	CloseWrite()
}

// clientSide adapts the accepted client conn.
type clientSide struct {
	net.Conn
}

func (c clientSide) CloseWrite() {
	if tc, ok := c.Conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
}

// upstreamSide adapts a borrowed upstream proxy: reads drain its buffered
// reader so bytes consumed during negotiation stay ordered.
type upstreamSide struct {
	proxy *domain.UpstreamProxy
}

func (u upstreamSide) Read(p []byte) (int, error)  { return u.proxy.Reader().Read(p) }
func (u upstreamSide) Write(p []byte) (int, error) { return u.proxy.Conn().Write(p) }
func (u upstreamSide) SetReadDeadline(t time.Time) error {
	return u.proxy.Conn().SetReadDeadline(t)
}
func (u upstreamSide) CloseWrite() { u.proxy.CloseWrite() }

// relayResult is what one directional pump accumulated.
type relayResult struct {
	firstLine []byte
	n         int64
	eof       bool // peer closed cleanly
}

// relay pumps src to dst until EOF, reading up to 64 KiB per iteration
// under the per-chunk timeout. With validate set, the first CRLF-delimited
// line of the first chunk must parse as a response status line. All
// failures surface wrapped as StreamError; cancellation surfaces as the
// context's error.
func relay(ctx context.Context, src, dst relaySide, direction string, timeout time.Duration, validate bool) (*relayResult, error) {
	bufp := relayBuffers.Get()
	defer relayBuffers.Put(bufp)
	buf := *bufp

	res := &relayResult{}
	checked := !validate

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_ = src.SetReadDeadline(time.Now().Add(timeout))
		n, err := src.Read(buf)

		if n > 0 {
			chunk := buf[:n]
			if !checked {
				checked = true
				line, _, _ := bytes.Cut(chunk, []byte("\r\n"))
				res.firstLine = append([]byte(nil), line...)
				if sl, perr := wire.ParseStatusLine(string(line)); perr != nil || !sl.IsResponse {
					return res, &domain.StreamError{
						Direction: direction,
						Err:       &domain.BadResponseError{Line: string(line)},
					}
				}
			}
			res.n += int64(n)
			if _, werr := dst.Write(chunk); werr != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				return res, &domain.StreamError{Direction: direction, Err: werr}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				res.eof = true
				dst.CloseWrite()
				return res, nil
			}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, &domain.StreamError{Direction: direction, Err: err}
		}
	}
}
