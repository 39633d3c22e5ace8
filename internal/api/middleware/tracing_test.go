package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/breatheroute/runcoach/internal/api/middleware"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return sr
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[string]string {
	out := map[string]string{}
	for _, kv := range s.Attributes() {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestTracing_StatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode codes.Code
	}{
		{name: "ok", status: http.StatusOK, wantCode: codes.Unset},
		{name: "unknown region", status: http.StatusNotFound, wantCode: codes.Unset},
		{name: "no candidates", status: http.StatusUnprocessableEntity, wantCode: codes.Unset},
		{name: "provider down", status: http.StatusServiceUnavailable, wantCode: codes.Error},
		{name: "panic recovered", status: http.StatusInternalServerError, wantCode: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := recordSpans(t)
			h := middleware.Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.True(t, trace.SpanFromContext(r.Context()).SpanContext().IsValid())
				w.WriteHeader(tt.status)
			}))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/pollution/heatmap?region=amsterdam", nil))

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
			assert.Equal(t, tt.wantCode, spans[0].Status().Code)

			attrs := spanAttrs(spans[0])
			assert.Equal(t, "region=amsterdam", attrs["url.query"])
			assert.Equal(t, strconv.Itoa(tt.status), attrs["http.response.status_code"])
		})
	}
}

func TestTracing_ContinuesPropagatedTrace(t *testing.T) {
	sr := recordSpans(t)
	h := middleware.Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/v1/times/optimal", nil)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "b7ad6b7169203331", spans[0].Parent().SpanID().String())
}

func TestTracing_RequestIDAndScheme(t *testing.T) {
	sr := recordSpans(t)
	h := middleware.RequestID(middleware.Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	h.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	attrs := spanAttrs(spans[0])
	assert.Contains(t, attrs["request.id"], "req_")
	assert.Equal(t, "https", attrs["url.scheme"])
}

func TestTracing_NamesSpanAfterRoute(t *testing.T) {
	sr := recordSpans(t)

	r := chi.NewRouter()
	r.Use(middleware.Tracing)
	r.Use(middleware.Auth(testJWTService(nil)))
	r.Get("/v1/regions/{name}", func(w http.ResponseWriter, r *http.Request) {})

	token, _, err := testJWTService(nil).GenerateAccessToken("runner-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/regions/amsterdam", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/regions/{name}", spans[0].Name())

	attrs := spanAttrs(spans[0])
	assert.Equal(t, "/v1/regions/{name}", attrs["http.route"])
	assert.Equal(t, "runner-1", attrs["enduser.id"])
}

func TestTracing_UnroutedKeepsPath(t *testing.T) {
	sr := recordSpans(t)
	h := middleware.Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/unknown", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/unknown", spans[0].Name())
	assert.Equal(t, "418", spanAttrs(spans[0])["http.response.status_code"])
}
