package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndEnd(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(sdktrace.NewTracerProvider())

	_, span := StartSpan(context.Background(), "ingest.source", attribute.String("source.url", "https://example.com/feed"))
	End(span, nil)

	_, span = StartSpan(context.Background(), "label.batch")
	End(span, errors.New("no result"))

	require.NoError(t, tp.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "ingest.source", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("source.url", "https://example.com/feed"))
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	assert.Equal(t, "label.batch", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "no result", spans[1].Status.Description)
}
