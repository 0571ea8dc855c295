package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tracer, err := NewTracer("walstore-test", "", sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracer.Shutdown(context.Background()) })
	return tracer, recorder
}

func TestTraceOperationRecordsError(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	err := TraceOperation(context.Background(), tracer.Tracer(), "store.put", func(context.Context) error {
		return errors.New("disk full")
	})
	require.EqualError(t, err, "disk full")

	require.NoError(t, TraceOperation(context.Background(), tracer.Tracer(), "store.get", func(context.Context) error {
		return nil
	}))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "store.put", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Len(t, spans[0].Events(), 1)
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}

func TestMiddlewareStartsServerSpan(t *testing.T) {
	tracer, recorder := newRecordingTracer(t)

	handler := tracer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/health", spans[0].Name())
}
