package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/consensusnet/consensusnet"

// StartSpan starts a span using the globally configured tracer provider.
// Exporter setup is left to the embedding application; with no provider
// configured these spans are no-ops.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}
