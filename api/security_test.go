package api

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		trustProxy bool
		networks   []string
		headers    map[string]string
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:51234",
			want:       "203.0.113.7",
		},
		{
			name:       "proxy headers ignored when trust_proxy is off",
			remoteAddr: "10.0.0.5:443",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "10.0.0.5",
		},
		{
			name:       "proxy headers ignored without trusted networks",
			remoteAddr: "10.0.0.5:443",
			trustProxy: true,
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "10.0.0.5",
		},
		{
			name:       "x-forwarded-for from trusted proxy",
			remoteAddr: "10.0.0.5:443",
			trustProxy: true,
			networks:   []string{"10.0.0.0/8"},
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "203.0.113.7",
		},
		{
			name:       "first hop wins in a forwarding chain",
			remoteAddr: "10.0.0.5:443",
			trustProxy: true,
			networks:   []string{"10.0.0.0/8"},
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.9, 10.0.0.5"},
			want:       "203.0.113.7",
		},
		{
			name:       "untrusted proxy cannot spoof",
			remoteAddr: "198.51.100.20:443",
			trustProxy: true,
			networks:   []string{"10.0.0.0/8"},
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7"},
			want:       "198.51.100.20",
		},
		{
			name:       "garbage x-forwarded-for falls through",
			remoteAddr: "10.0.0.5:443",
			trustProxy: true,
			networks:   []string{"10.0.0.0/8"},
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip", "X-Real-IP": "203.0.113.9"},
			want:       "203.0.113.9",
		},
		{
			name:       "cf-connecting-ip as last resort",
			remoteAddr: "10.0.0.5:443",
			trustProxy: true,
			networks:   []string{"10.0.0.0/8"},
			headers:    map[string]string{"CF-Connecting-IP": "203.0.113.11"},
			want:       "203.0.113.11",
		},
		{
			name:       "exact ip in trusted list",
			remoteAddr: "192.168.1.5:443",
			trustProxy: true,
			networks:   []string{"192.168.1.5"},
			headers:    map[string]string{"X-Real-IP": "203.0.113.13"},
			want:       "203.0.113.13",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, getRealIP(req, tt.trustProxy, tt.networks))
		})
	}
}

func TestIsTrustedProxy(t *testing.T) {
	assert.False(t, isTrustedProxy("10.0.0.5", nil))
	assert.True(t, isTrustedProxy("10.0.0.5", []string{"10.0.0.0/8"}))
	assert.False(t, isTrustedProxy("11.0.0.5", []string{"10.0.0.0/8"}))
	assert.True(t, isTrustedProxy("192.168.1.5", []string{"192.168.1.5"}))
	assert.False(t, isTrustedProxy("not-an-ip", []string{"10.0.0.0/8"}))
	assert.False(t, isTrustedProxy("10.0.0.5", []string{"bad/cidr"}))
}
