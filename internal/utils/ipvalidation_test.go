package utils

import (
	"net/http/httptest"
	"testing"
)

func TestIsTrustedProxyIP(t *testing.T) {
	tests := []struct {
		name           string
		ipStr          string
		trustedProxies string
		want           bool
	}{
		{"exact match single IP", "192.168.1.1", "192.168.1.1", true},
		{"no match single IP", "192.168.1.2", "192.168.1.1", false},
		{"CIDR match", "192.168.1.50", "192.168.1.0/24", true},
		{"CIDR no match", "192.168.2.50", "192.168.1.0/24", false},
		{"multiple proxies - match second CIDR", "192.168.1.100", "10.0.0.1,192.168.1.0/24", true},
		{"localhost IPv6", "::1", "127.0.0.1,::1", true},
		{"mapped IPv4 matches IPv4 entry", "::ffff:10.0.0.5", "10.0.0.0/8", true},
		{"empty trusted proxies", "192.168.1.1", "", false},
		{"invalid IP", "not-an-ip", "192.168.1.0/24", false},
		{"whitespace in trusted proxies", "192.168.1.1", " 192.168.1.1 , 10.0.0.1 ", true},
		{"invalid CIDR", "192.168.1.1", "192.168.1.0/invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTrustedProxyIP(tt.ipStr, tt.trustedProxies); got != tt.want {
				t.Errorf("IsTrustedProxyIP(%q, %q) = %v, want %v", tt.ipStr, tt.trustedProxies, got, tt.want)
			}
		})
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"1.2.3.4:8080", "1.2.3.4"},
		{"[::1]:8080", "::1"},
		{"[::1]", "::1"},
		{"1.2.3.4", "1.2.3.4"},
		{"2001:db8::1", "2001:db8::1"},
	}

	for _, tt := range tests {
		if got := ExtractIP(tt.addr); got != tt.want {
			t.Errorf("ExtractIP(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.2.3.4", "1.2.3.4"},
		{" 1.2.3.4 ", "1.2.3.4"},
		{"::ffff:1.2.3.4", "1.2.3.4"},
		{"2001:DB8::1", "2001:db8::1"},
		{"fe80::1%eth0", "fe80::1"},
		{"", UnknownIdentity},
		{"garbage", UnknownIdentity},
	}

	for _, tt := range tests {
		if got := NormalizeIP(tt.in); got != tt.want {
			t.Errorf("NormalizeIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientIPResolver(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		trusted    string
		remoteAddr string
		xff        string
		xRealIP    string
		want       string
	}{
		{
			name:       "auto trusts proxy in list",
			mode:       TrustProxyAuto,
			trusted:    "10.0.0.0/8",
			remoteAddr: "10.0.0.2:5000",
			xff:        "1.2.3.4, 10.0.0.2",
			want:       "1.2.3.4",
		},
		{
			name:       "auto ignores headers from untrusted peer",
			mode:       TrustProxyAuto,
			trusted:    "10.0.0.0/8",
			remoteAddr: "203.0.113.9:5000",
			xff:        "1.2.3.4",
			want:       "203.0.113.9",
		},
		{
			name:       "true always trusts",
			mode:       TrustProxyTrue,
			remoteAddr: "203.0.113.9:5000",
			xff:        "1.2.3.4",
			want:       "1.2.3.4",
		},
		{
			name:       "false never trusts",
			mode:       TrustProxyFalse,
			trusted:    "0.0.0.0/0",
			remoteAddr: "203.0.113.9:5000",
			xff:        "1.2.3.4",
			want:       "203.0.113.9",
		},
		{
			name:       "X-Real-IP fallback",
			mode:       TrustProxyTrue,
			remoteAddr: "10.0.0.2:5000",
			xRealIP:    "5.6.7.8",
			want:       "5.6.7.8",
		},
		{
			name:       "garbage forwarded-for becomes unknown",
			mode:       TrustProxyTrue,
			remoteAddr: "10.0.0.2:5000",
			xff:        "not-an-ip",
			want:       UnknownIdentity,
		},
		{
			name:       "empty remote addr becomes unknown",
			mode:       TrustProxyFalse,
			remoteAddr: "",
			want:       UnknownIdentity,
		},
		{
			name:       "unknown mode behaves like auto",
			mode:       "sometimes",
			trusted:    "127.0.0.1",
			remoteAddr: "127.0.0.1:1234",
			xff:        "9.9.9.9",
			want:       "9.9.9.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/auth/login", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			got := NewClientIPResolver(tt.mode, tt.trusted).ClientIP(r)
			if got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
