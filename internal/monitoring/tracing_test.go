package monitoring

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

func newRecordingTracer() (*Tracer, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	return &Tracer{tracer: provider.Tracer("test"), provider: provider}, exporter
}

func TestNewTracer_DisabledIsNoop(t *testing.T) {
	tracer, err := NewTracer(&TracingConfig{Enabled: false}, nil)
	require.NoError(t, err)

	_, span := tracer.StartNotificationSpan(context.Background(), "email", "a_1", "error")
	assert.False(t, span.SpanContext().IsValid())
	EndSpan(span, nil)
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestStartNotificationSpan_RecordsError(t *testing.T) {
	tracer, exporter := newRecordingTracer()

	_, span := tracer.StartNotificationSpan(context.Background(), "webhook", "cpu_1", "critical")
	EndSpan(span, errors.New("502 from sink"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "notification.send", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Len(t, spans[0].Events, 1)
}

func TestTracingMiddleware_NamesSpanAfterRoute(t *testing.T) {
	tracer, exporter := newRecordingTracer()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/alerts/{id}/resolve", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	TracingMiddleware(tracer)(mux).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/alerts/x/resolve", nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /api/alerts/{id}/resolve", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}
