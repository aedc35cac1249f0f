package server

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/thushan/pxlb/internal/core/domain"
)

// connectedResponse is the canonical tunnel acknowledgement written to the
// client once the upstream leg is ready.
var connectedResponse = []byte("HTTP/1.1 200 Connection established\r\n\r\n")

const (
	socks4Version = 0x04
	socks5Version = 0x05

	socksCmdConnect = 0x01

	socks5AuthNone  = 0x00
	socks5AtypIPv4  = 0x01
	socks5AtypFQDN  = 0x03
	socks5AtypIPv6  = 0x04
	socks5RepOK     = 0x00
	socks4Granted   = 0x5A
)

// socksConnect runs the CONNECT handshake with a SOCKS4/SOCKS5 upstream so
// the tunnel really exists before the client is told it does.
func socksConnect(p *domain.UpstreamProxy, proto domain.Proto, host string, port int) error {
	conn := p.Conn()
	_ = conn.SetDeadline(time.Now().Add(p.Timeout))
	defer conn.SetDeadline(time.Time{})

	var err error
	switch proto {
	case domain.ProtoSOCKS5:
		err = socks5Connect(p, host, port)
	case domain.ProtoSOCKS4:
		err = socks4Connect(p, host, port)
	default:
		err = fmt.Errorf("protocol %s is not a SOCKS protocol", proto)
	}

	if err != nil {
		if domain.IsTimeout(err) {
			return &domain.ProxyTimeoutError{Op: "socks handshake", Proxy: p.Addr()}
		}
		return &domain.ProxyConnError{Proxy: p.Addr(), Err: err}
	}
	return nil
}

func socks5Connect(p *domain.UpstreamProxy, host string, port int) error {
	conn := p.Conn()

	// Greeting: no-auth only.
	if _, err := conn.Write([]byte{socks5Version, 1, socks5AuthNone}); err != nil {
		return err
	}
	reply := make([]byte, 2)
	if _, err := io.ReadFull(p.Reader(), reply); err != nil {
		return err
	}
	if reply[0] != socks5Version || reply[1] != socks5AuthNone {
		return fmt.Errorf("socks5 method rejected: %#x", reply[1])
	}

	// CONNECT request. IP literals go as-is, hostnames as FQDN so the
	// upstream resolves them.
	req := []byte{socks5Version, socksCmdConnect, 0x00}
	if ip := net.ParseIP(host); ip != nil && ip.To4() != nil {
		req = append(req, socks5AtypIPv4)
		req = append(req, ip.To4()...)
	} else if len(host) <= 255 {
		req = append(req, socks5AtypFQDN, byte(len(host)))
		req = append(req, host...)
	} else {
		return fmt.Errorf("socks5 host too long: %d bytes", len(host))
	}
	req = binary.BigEndian.AppendUint16(req, uint16(port))
	if _, err := conn.Write(req); err != nil {
		return err
	}

	head := make([]byte, 4)
	if _, err := io.ReadFull(p.Reader(), head); err != nil {
		return err
	}
	if head[1] != socks5RepOK {
		return fmt.Errorf("socks5 connect refused: %#x", head[1])
	}

	var addrLen int
	switch head[3] {
	case socks5AtypIPv4:
		addrLen = 4
	case socks5AtypIPv6:
		addrLen = 16
	case socks5AtypFQDN:
		one := make([]byte, 1)
		if _, err := io.ReadFull(p.Reader(), one); err != nil {
			return err
		}
		addrLen = int(one[0])
	default:
		return fmt.Errorf("socks5 reply address type: %#x", head[3])
	}
	rest := make([]byte, addrLen+2)
	_, err := io.ReadFull(p.Reader(), rest)
	return err
}

func socks4Connect(p *domain.UpstreamProxy, host string, port int) error {
	ip := net.ParseIP(host)
	if ip == nil {
		addr, err := net.ResolveIPAddr("ip4", host)
		if err != nil {
			return fmt.Errorf("socks4 resolve %s: %w", host, err)
		}
		ip = addr.IP
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("socks4 requires an IPv4 destination, got %s", ip)
	}

	req := []byte{socks4Version, socksCmdConnect}
	req = binary.BigEndian.AppendUint16(req, uint16(port))
	req = append(req, ip4...)
	req = append(req, 0x00) // empty userid
	if _, err := p.Conn().Write(req); err != nil {
		return err
	}

	reply := make([]byte, 8)
	if _, err := io.ReadFull(p.Reader(), reply); err != nil {
		return err
	}
	if reply[1] != socks4Granted {
		return fmt.Errorf("socks4 connect refused: %#x", reply[1])
	}
	return nil
}
