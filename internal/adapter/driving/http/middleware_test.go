package httphandler

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware_IncludesOwner(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/data", nil)
	req.Header.Set(ownerHeader, "user_1")
	rec := httptest.NewRecorder()

	loggingMiddleware(logger, inner).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	line := buf.String()
	assert.Contains(t, line, "owner=user_1")
	assert.Contains(t, line, "status=201")
	assert.Contains(t, line, "path=/api/v1/data")
	assert.Contains(t, line, "bytes=11")
}

func TestLoggingMiddleware_NoOwnerHeader(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	loggingMiddleware(logger, inner).ServeHTTP(rec, req)

	assert.NotContains(t, buf.String(), "owner=")
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	inner := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("payload exploded")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/data", nil)
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() {
		recoveryMiddleware(logger, inner).ServeHTTP(rec, req)
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "payload exploded")
}
