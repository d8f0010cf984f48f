// Package correlation ties published events and spans back to the request
// that caused them.
package correlation

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/billbook/internal/observability/context"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	MetadataCorrelationID = "correlation_id"
	MetadataTraceID       = "trace_id"
	MetadataSpanID        = "span_id"
	MetadataPublishedAt   = "published_at"
)

type idKey struct{}

// WithID pins an explicit correlation id, e.g. one carried by an inbound event.
func WithID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, idKey{}, id)
}

// ID returns the pinned correlation id, falling back to the HTTP request id.
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(idKey{}).(string); ok {
		return id
	}
	return obscontext.RequestIDFromContext(ctx)
}

// Stamp fills correlation and trace ids into event metadata. Values already
// present are kept. Background work without a request gets a fresh ULID.
func Stamp(ctx context.Context, md map[string]string, at time.Time) map[string]string {
	if md == nil {
		md = make(map[string]string, 4)
	}
	if md[MetadataCorrelationID] == "" {
		id := ID(ctx)
		if id == "" {
			id = ulid.Make().String()
		}
		md[MetadataCorrelationID] = id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		md[MetadataTraceID] = sc.TraceID().String()
		md[MetadataSpanID] = sc.SpanID().String()
	}
	md[MetadataPublishedAt] = at.UTC().Format(time.RFC3339)
	return md
}

// SpanProcessor tags every started span with the correlation id.
type SpanProcessor struct{}

func (SpanProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if id := ID(ctx); id != "" {
		s.SetAttributes(attribute.String(MetadataCorrelationID, id))
	}
}

func (SpanProcessor) OnEnd(sdktrace.ReadOnlySpan) {}

func (SpanProcessor) Shutdown(context.Context) error { return nil }

func (SpanProcessor) ForceFlush(context.Context) error { return nil }
