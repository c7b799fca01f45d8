// Package tracing wraps the OpenTelemetry trace API surface this module
// needs at its handful of span-worthy boundaries (a retrieval, an
// ingestion run, an orchestrated turn), grounded on the prior art's
// o11y.StartSpan shape. Only go.opentelemetry.io/otel and its trace
// subpackage are imported here: this module starts spans on whatever
// TracerProvider the embedding application has already configured (or
// the OTel no-op default when none has), and never configures an
// exporter or SDK of its own.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/deskmind/core")

// Attrs is a convenience alias for span attribute maps.
type Attrs map[string]any

// Start begins a span named name under ctx's existing trace, if any,
// returning the span-carrying context and the span itself. Callers must
// call span.End().
func Start(ctx context.Context, name string, attrs Attrs) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(toOTel(attrs)...))
}

// End finishes span, recording err on it (and marking the span errored)
// when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func toOTel(attrs Attrs) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			kvs = append(kvs, attribute.String(k, val))
		case int:
			kvs = append(kvs, attribute.Int(k, val))
		case int64:
			kvs = append(kvs, attribute.Int64(k, val))
		case float64:
			kvs = append(kvs, attribute.Float64(k, val))
		case bool:
			kvs = append(kvs, attribute.Bool(k, val))
		}
	}
	return kvs
}
