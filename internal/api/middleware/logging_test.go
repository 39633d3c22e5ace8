package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/runcoach/internal/api/middleware"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestLogger_StatusAndLevel(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status float64
		bytes  float64
		level  string
	}{
		{
			name:   "implicit ok",
			write:  func(w http.ResponseWriter) { _, _ = w.Write([]byte(`{"status":"ok"}`)) },
			status: 200, bytes: 15, level: "info",
		},
		{
			name:   "unknown region",
			write:  func(w http.ResponseWriter) { w.WriteHeader(http.StatusNotFound) },
			status: 404, level: "warn",
		},
		{
			name:   "rate limited",
			write:  func(w http.ResponseWriter) { w.WriteHeader(http.StatusTooManyRequests) },
			status: 429, level: "warn",
		},
		{
			name:   "provider down",
			write:  func(w http.ResponseWriter) { w.WriteHeader(http.StatusServiceUnavailable) },
			status: 503, level: "error",
		},
		{
			name: "first status wins",
			write: func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusCreated)
				w.WriteHeader(http.StatusInternalServerError)
			},
			status: 201, level: "info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.write(w)
			}))

			req := httptest.NewRequest(http.MethodPost, "/v1/routes/recommend", http.NoBody)
			req.Header.Set("User-Agent", "runcoach-ios/2.1")
			h.ServeHTTP(httptest.NewRecorder(), req)

			entry := logLine(t, &buf)
			assert.Equal(t, "request completed", entry["message"])
			assert.Equal(t, "POST", entry["method"])
			assert.Equal(t, "/v1/routes/recommend", entry["path"])
			assert.Equal(t, tt.status, entry["status"])
			assert.Equal(t, tt.bytes, entry["bytes"])
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "runcoach-ios/2.1", entry["user_agent"])
			assert.Contains(t, entry, "duration")
		})
	}
}

func TestLogger_Correlation(t *testing.T) {
	recordSpans(t)
	var buf bytes.Buffer

	h := middleware.RequestID(middleware.Tracing(middleware.Logger(zerolog.New(&buf))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/ready", http.NoBody))

	entry := logLine(t, &buf)
	assert.Contains(t, entry["request_id"], "req_")
	assert.Len(t, entry["trace_id"], 32)
	assert.Len(t, entry["span_id"], 16)
}

func TestLogger_NoTraceWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	h := middleware.Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/health", http.NoBody))

	entry := logLine(t, &buf)
	assert.NotContains(t, entry, "trace_id")
	assert.Equal(t, "", entry["request_id"])
}

func TestLogger_RoutePatternAndUser(t *testing.T) {
	var buf bytes.Buffer

	r := chi.NewRouter()
	r.Use(middleware.Logger(zerolog.New(&buf)))
	r.Get("/v1/regions/{name}", func(w http.ResponseWriter, r *http.Request) {})
	r.With(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), "runner-1")))
		})
	}).Get("/v1/me/exposure/budget", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/regions/amsterdam", http.NoBody))
	entry := logLine(t, &buf)
	assert.Equal(t, "/v1/regions/amsterdam", entry["path"])
	assert.Equal(t, "/v1/regions/{name}", entry["route"])
	assert.NotContains(t, entry, "user_id")

	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/me/exposure/budget", http.NoBody))
	entry = logLine(t, &buf)
	assert.Equal(t, "/v1/me/exposure/budget", entry["route"])
	assert.Equal(t, "runner-1", entry["user_id"])
}
