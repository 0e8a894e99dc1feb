package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// proxyHeaders are consulted in order when the proxy is trusted.
// X-Forwarded-For may carry a chain; the left-most entry is the client.
var proxyHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// ClientIP resolves the real client IP.
// Proxy headers are only honored with trustProxy, which must only be set when
// the origin is reachable solely through a trusted reverse proxy or tunnel
// (e.g. cloudflared on localhost).
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range proxyHeaders {
			v, _, _ := strings.Cut(r.Header.Get(h), ",")
			if ip := stripPort(strings.TrimSpace(v)); ip != "" {
				return ip
			}
		}
	}
	return stripPort(r.RemoteAddr)
}

// stripPort accepts "ip", "ip:port" and "[v6]:port".
func stripPort(s string) string {
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return s
}

// IPMatcher matches client addresses against single IPs and CIDR prefixes.
// A single IP is stored as a full-length prefix.
type IPMatcher struct {
	prefixes []netip.Prefix
}

// NewIPMatcher parses list, skipping blank and unparsable entries.
func NewIPMatcher(list []string) *IPMatcher {
	m := &IPMatcher{}
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if p, err := netip.ParsePrefix(s); err == nil {
			m.prefixes = append(m.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			a = a.Unmap()
			m.prefixes = append(m.prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return m
}

func (m *IPMatcher) IsEmpty() bool { return len(m.prefixes) == 0 }

func (m *IPMatcher) Allow(ipStr string) bool {
	a, err := netip.ParseAddr(ipStr)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range m.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
