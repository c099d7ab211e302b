// ABOUTME: Tests for client IP extraction and the trusted-proxy TLS signal
// ABOUTME: Forwarding headers only count when the direct peer is trusted

package webauth

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{"10.0.0.0/8", "2001:db8::/32"})
	require.NoError(t, err)
	assert.Len(t, prefixes, 2)

	_, err = ParseTrustedProxies([]string{"10.0.0.0/8", "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")

	// Bare addresses need an explicit prefix length.
	_, err = ParseTrustedProxies([]string{"10.0.0.1"})
	require.Error(t, err)

	prefixes, err = ParseTrustedProxies(nil)
	require.NoError(t, err)
	assert.Empty(t, prefixes)
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	cases := []struct {
		name       string
		remoteAddr string
		xff        string
		xrip       string
		proxies    []netip.Prefix
		want       string
	}{
		{"remote addr only", "203.0.113.7:4455", "", "", nil, "203.0.113.7"},
		{"ipv6 remote addr", "[2001:db8::1]:443", "", "", nil, "2001:db8::1"},
		{"zone stripped", "[fe80::1%eth0]:443", "", "", nil, "fe80::1"},
		{"headers ignored from untrusted peer", "203.0.113.7:4455", "198.51.100.9", "198.51.100.23", trusted, "203.0.113.7"},
		{"xff honored from trusted peer", "10.1.2.3:9000", "198.51.100.9, 10.0.0.1", "", trusted, "198.51.100.9"},
		{"xff skips invalid entries", "10.1.2.3:9000", "not-an-ip, 198.51.100.9", "", trusted, "198.51.100.9"},
		{"x-real-ip fallback", "10.1.2.3:9000", "garbage", "198.51.100.23", trusted, "198.51.100.23"},
		{"remote addr fallback", "10.1.2.3:9000", "", "", trusted, "10.1.2.3"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xrip != "" {
				req.Header.Set("X-Real-IP", tc.xrip)
			}
			assert.Equal(t, tc.want, clientIP(req, tc.proxies))
		})
	}
}

func TestRequestIsTLS(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	cases := []struct {
		name       string
		remoteAddr string
		tls        bool
		proto      string
		proxies    []netip.Prefix
		want       bool
	}{
		{"direct tls", "203.0.113.7:4455", true, "", nil, true},
		{"plain http", "203.0.113.7:4455", false, "", nil, false},
		{"trusted proxy says https", "10.1.2.3:9000", false, "https", trusted, true},
		{"header is case insensitive", "10.1.2.3:9000", false, "HTTPS", trusted, true},
		{"trusted proxy says http", "10.1.2.3:9000", false, "http", trusted, false},
		{"untrusted peer claims https", "203.0.113.7:4455", false, "https", trusted, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.tls {
				req.TLS = &tls.ConnectionState{}
			}
			if tc.proto != "" {
				req.Header.Set("X-Forwarded-Proto", tc.proto)
			}
			assert.Equal(t, tc.want, requestIsTLS(req, tc.proxies))
		})
	}
}

func TestParseIPCandidate(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"203.0.113.7:4455", "203.0.113.7", true},
		{"203.0.113.7", "203.0.113.7", true},
		{" 203.0.113.7 ", "203.0.113.7", true},
		{"[2001:db8::1]:443", "2001:db8::1", true},
		{"2001:db8::1", "2001:db8::1", true},
		{"fe80::1%eth0", "fe80::1", true},
		{"", "", false},
		{"not-an-ip", "", false},
		{"300.1.2.3:80", "", false},
	}

	for _, tc := range cases {
		got, ok := parseIPCandidate(tc.in)
		assert.Equal(t, tc.wantOK, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
