package domain

// Proto is an upstream proxy protocol as declared in configuration.
type Proto string

const (
	ProtoHTTP      Proto = "HTTP"
	ProtoHTTPS     Proto = "HTTPS"
	ProtoConnect80 Proto = "CONNECT:80"
	ProtoConnect25 Proto = "CONNECT:25"
	ProtoSOCKS4    Proto = "SOCKS4"
	ProtoSOCKS5    Proto = "SOCKS5"
)

// Scheme is how the client reached us: a plain proxied request or a
// CONNECT tunnel.
type Scheme string

const (
	SchemeHTTP  Scheme = "HTTP"
	SchemeHTTPS Scheme = "HTTPS"
)

var knownProtos = map[Proto]struct{}{
	ProtoHTTP:      {},
	ProtoHTTPS:     {},
	ProtoConnect80: {},
	ProtoConnect25: {},
	ProtoSOCKS4:    {},
	ProtoSOCKS5:    {},
}

// httpProtoOrder is the preference order for plain HTTP requests.
// CONNECT:80 first, matching upstream proxies that only tunnel.
var httpProtoOrder = []Proto{ProtoConnect80, ProtoHTTP, ProtoSOCKS4, ProtoSOCKS5}

// httpsProtoOrder is the preference order for CONNECT tunnels.
var httpsProtoOrder = []Proto{ProtoHTTPS, ProtoSOCKS5, ProtoSOCKS4}

// ParseProtos filters raw config values down to the protocols we know about.
// Unknown entries are dropped rather than rejected, same as unknown YAML keys.
func ParseProtos(raw []string) map[Proto]struct{} {
	types := make(map[Proto]struct{}, len(raw))
	for _, r := range raw {
		p := Proto(r)
		if _, ok := knownProtos[p]; ok {
			types[p] = struct{}{}
		}
	}
	return types
}

// ChooseProto picks the upstream protocol for a request scheme from the
// proxy's supported set. For HTTP, CONNECT:80 wins when present; otherwise
// the first supported protocol in preference order is used.
func ChooseProto(types map[Proto]struct{}, scheme Scheme) (Proto, error) {
	order := httpProtoOrder
	if scheme == SchemeHTTPS {
		order = httpsProtoOrder
	}
	for _, p := range order {
		if _, ok := types[p]; ok {
			return p, nil
		}
	}
	return "", &NoProtoError{Scheme: scheme}
}
