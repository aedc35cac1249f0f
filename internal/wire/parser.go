// Package wire parses the HTTP/1.1 start lines and header blocks the proxy
// touches on its hot path. The proxy forwards the raw bytes untouched, so
// parsing works on a byte slice that may hold only part of a message and
// never rewrites anything.
package wire

import (
	"net/textproto"
	"strconv"
	"strings"
	"unicode"

	"github.com/thushan/pxlb/internal/core/domain"
)

// StartLine is the parsed first line of an HTTP/1.1 message. Requests fill
// Method/Path (and Host/Port for CONNECT); responses fill Status/Reason.
type StartLine struct {
	Version    string
	Method     string
	Path       string
	Host       string
	Port       int
	Status     int
	Reason     string
	IsResponse bool
}

// Header is a parsed header block: the start line plus the remaining
// fields, title-cased.
type Header struct {
	StartLine
	Fields map[string]string
}

// Get returns a header field by its title-cased name.
func (h *Header) Get(name string) string {
	return h.Fields[textproto.CanonicalMIMEHeaderKey(name)]
}

// ParseStatusLine parses the first CRLF-delimited line of a message.
// Lines beginning with "HTTP/" are responses and must split into version,
// integer status and a reason; anything else is a request and must split
// into exactly method, path and version.
func ParseStatusLine(line string) (StartLine, error) {
	fields := strings.Fields(line)

	if strings.HasPrefix(line, "HTTP/") {
		if len(fields) < 2 {
			return StartLine{}, &domain.BadStatusLineError{Line: line}
		}
		status, err := strconv.Atoi(fields[1])
		if err != nil {
			return StartLine{}, &domain.BadStatusLineError{Line: line}
		}
		return StartLine{
			Version:    strings.ToUpper(fields[0]),
			Status:     status,
			Reason:     normaliseReason(strings.Join(fields[2:], " ")),
			IsResponse: true,
		}, nil
	}

	if len(fields) != 3 {
		return StartLine{}, &domain.BadStatusLineError{Line: line}
	}
	sl := StartLine{
		Version: strings.ToUpper(fields[2]),
		Method:  strings.ToUpper(fields[0]),
		Path:    fields[1],
	}
	if sl.Method == "CONNECT" {
		host, portStr, ok := strings.Cut(sl.Path, ":")
		if !ok {
			return StartLine{}, &domain.BadStatusLineError{Line: line}
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return StartLine{}, &domain.BadStatusLineError{Line: line}
		}
		sl.Host, sl.Port = host, port
	}
	return sl, nil
}

// ParseHeaders parses a header block: the start line, then one
// "Name: value" field per line until the first empty line. Field names are
// title-cased, values trimmed. A Host field carrying a port is split.
// Invalid UTF-8 is tolerated; the bytes pass through the relay untouched
// either way.
func ParseHeaders(b []byte) (Header, error) {
	lines := strings.Split(string(b), "\r\n")

	sl, err := ParseStatusLine(lines[0])
	if err != nil {
		return Header{}, err
	}
	h := Header{StartLine: sl, Fields: make(map[string]string)}

	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		name, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		h.Fields[textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))] = strings.TrimSpace(val)
	}

	if host := h.Fields["Host"]; strings.Contains(host, ":") {
		name, portStr, _ := strings.Cut(host, ":")
		port, perr := strconv.Atoi(portStr)
		if perr != nil {
			return Header{}, &domain.BadStatusLineError{Line: host}
		}
		h.Fields["Host"] = name
		if h.Host == "" {
			h.Host = name
		}
		if h.Port == 0 {
			h.Port = port
		}
	} else if h.Host == "" {
		h.Host = host
	}

	return h, nil
}

// normaliseReason upper-cases a lone "ok" and title-cases anything else.
func normaliseReason(reason string) string {
	if strings.EqualFold(reason, "ok") {
		return "OK"
	}
	words := strings.Fields(reason)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
