package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsLoopbackHost(t *testing.T) {
	tests := []struct {
		name string
		host string
		want bool
	}{
		{name: "IPv4 loopback with port", host: "127.0.0.1:53682", want: true},
		{name: "IPv4 loopback without port", host: "127.0.0.1", want: true},
		{name: "other 127/8 address", host: "127.0.0.2:80", want: true},
		{name: "localhost", host: "localhost:8080", want: true},
		{name: "localhost uppercase", host: "LOCALHOST", want: true},
		{name: "IPv6 loopback with port", host: "[::1]:8080", want: true},
		{name: "IPv6 loopback without port", host: "[::1]", want: true},
		{name: "rebinding hostname", host: "evil.example.com:53682", want: false},
		{name: "LAN address", host: "192.168.1.10:53682", want: false},
		{name: "empty", host: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLoopbackHost(tt.host); got != tt.want {
				t.Errorf("IsLoopbackHost(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestLoopbackOnly(t *testing.T) {
	called := false
	handler := LoopbackOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/callback/", nil)
	req.Host = "evil.example.com"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
	if called {
		t.Error("handler should not run for a non-loopback host")
	}

	req.Host = "127.0.0.1:4000"
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called {
		t.Error("handler should run for a loopback host")
	}
}

func TestNoStore(t *testing.T) {
	handler := NoStore(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/callback/?public_token=x", nil))

	want := map[string]string{
		"Cache-Control":   "no-store",
		"Referrer-Policy": "no-referrer",
		"X-Frame-Options": "DENY",
	}
	for k, v := range want {
		if got := rr.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
