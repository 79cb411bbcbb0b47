package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddr(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "127.0.0.1:8080"},
		{"not-an-addr", "127.0.0.1:8080"},
		{"0.0.0.0:9090", "127.0.0.1:9090"},
		{":8081", "127.0.0.1:8081"},
		{"192.168.1.5:8080", "192.168.1.5:8080"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, normalizeAddr(tc.in), "input %q", tc.in)
	}
}

// serveHealth points the checker's env var at a local server returning the
// given response for /api/v1/health.
func serveHealth(t *testing.T, status int, body string) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("LIFESYNC_LISTEN_ADDR", strings.TrimPrefix(srv.URL, "http://"))
}

func TestCheck_Healthy(t *testing.T) {
	serveHealth(t, http.StatusOK, `{"status":"ok","time":"2026-09-01T00:00:00Z"}`)

	assert.Equal(t, 0, check())
}

func TestCheck_BadStatus(t *testing.T) {
	serveHealth(t, http.StatusServiceUnavailable, `{"status":"down"}`)

	assert.Equal(t, 1, check())
}

func TestCheck_WrongBody(t *testing.T) {
	// A 200 from something that is not this API must not pass the check.
	serveHealth(t, http.StatusOK, `<html>login</html>`)

	assert.Equal(t, 1, check())
}

func TestCheck_NothingListening(t *testing.T) {
	t.Setenv("LIFESYNC_LISTEN_ADDR", "127.0.0.1:1")

	assert.Equal(t, 1, check())
}
