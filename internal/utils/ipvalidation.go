package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// UnknownIdentity is used whenever a caller's address cannot be determined.
// It is a real identity: it is rate limited and can be blocked like any other.
const UnknownIdentity = "unknown"

// Proxy header trust modes accepted by TRUST_PROXY_HEADERS.
const (
	TrustProxyAuto  = "auto"
	TrustProxyTrue  = "true"
	TrustProxyFalse = "false"
)

// ParseTrustedProxies parses a comma-separated list of IPs and CIDR ranges.
// Invalid entries are skipped.
// Examples: "127.0.0.1,192.168.1.0/24" or "10.0.0.0/8"
func ParseTrustedProxies(trustedProxies string) []netip.Prefix {
	var prefixes []netip.Prefix
	for _, proxy := range strings.Split(trustedProxies, ",") {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}
		if strings.Contains(proxy, "/") {
			if p, err := netip.ParsePrefix(proxy); err == nil {
				prefixes = append(prefixes, p.Masked())
			}
			continue
		}
		if addr, err := netip.ParseAddr(proxy); err == nil {
			addr = addr.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return prefixes
}

// IsTrustedProxyIP checks if the given IP address is in the trusted proxy list.
// trustedProxies is a comma-separated string of IPs and CIDR ranges.
func IsTrustedProxyIP(ipStr string, trustedProxies string) bool {
	return isTrusted(ipStr, ParseTrustedProxies(trustedProxies))
}

func isTrusted(ipStr string, prefixes []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ipStr)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractIP extracts the IP address from a "host:port" string.
// If no port is present, returns the input as-is.
func ExtractIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

// NormalizeIP returns the canonical text form of ip, or UnknownIdentity
// when ip does not parse. IPv4-mapped IPv6 addresses collapse to IPv4 so a
// client cannot dodge its counter by switching notation.
func NormalizeIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return UnknownIdentity
	}
	return addr.Unmap().WithZone("").String()
}

// ClientIPResolver determines the client identity for admission checks.
type ClientIPResolver struct {
	mode    string
	trusted []netip.Prefix
}

// NewClientIPResolver builds a resolver for a trust mode ("auto", "true",
// "false") and a comma-separated trusted proxy list. Unknown modes behave
// like "auto".
func NewClientIPResolver(trustProxyHeaders, trustedProxyIPs string) *ClientIPResolver {
	return &ClientIPResolver{
		mode:    trustProxyHeaders,
		trusted: ParseTrustedProxies(trustedProxyIPs),
	}
}

// ClientIP returns the normalized client IP, or UnknownIdentity. Never empty.
//
// When proxy headers are trusted the first hop of X-Forwarded-For wins, then
// X-Real-IP, then the connection's remote address.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	remoteIP := ExtractIP(r.RemoteAddr)

	var shouldTrust bool
	switch c.mode {
	case TrustProxyTrue:
		shouldTrust = true
	case TrustProxyFalse:
		shouldTrust = false
	default:
		shouldTrust = isTrusted(remoteIP, c.trusted)
	}

	if shouldTrust {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return NormalizeIP(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return NormalizeIP(xri)
		}
	}

	return NormalizeIP(remoteIP)
}

// GetClientIPWithTrust is a convenience wrapper for one-off lookups.
func GetClientIPWithTrust(r *http.Request, trustProxyHeaders string, trustedProxyIPs string) string {
	return NewClientIPResolver(trustProxyHeaders, trustedProxyIPs).ClientIP(r)
}
