package correlation

import (
	"context"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/billbook/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestIDFallsBackToRequestID(t *testing.T) {
	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	assert.Equal(t, "req-9", ID(ctx))
	assert.Equal(t, "evt-1", ID(WithID(ctx, "evt-1")))
	assert.Empty(t, ID(context.Background()))
}

func TestStamp(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled, Remote: true,
	}))
	ctx = obscontext.WithRequestID(ctx, "req-2")
	at := time.Date(2024, 4, 1, 10, 30, 0, 0, time.FixedZone("IST", 19800))

	md := Stamp(ctx, nil, at)
	assert.Equal(t, "req-2", md[MetadataCorrelationID])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", md[MetadataTraceID])
	assert.Equal(t, "00f067aa0ba902b7", md[MetadataSpanID])
	assert.Equal(t, "2024-04-01T05:00:00Z", md[MetadataPublishedAt])
}

func TestStampKeepsExistingCorrelation(t *testing.T) {
	md := Stamp(context.Background(), map[string]string{MetadataCorrelationID: "upstream"}, time.Unix(0, 0))
	assert.Equal(t, "upstream", md[MetadataCorrelationID])

	generated := Stamp(context.Background(), nil, time.Unix(0, 0))
	assert.Len(t, generated[MetadataCorrelationID], 26)
}
