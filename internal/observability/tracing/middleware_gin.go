package tracing

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/billbook/internal/observability/context"
	obslogger "github.com/smallbiznis/billbook/internal/observability/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "billbook/http"

// GinMiddleware opens a server span per request, continuing any trace the
// device propagated. Health checks are not traced.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "/health" || route == "/metrics" {
			c.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx = withRequestBaggage(ctx)
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		// Authentication runs further down the chain, so the tenant is only
		// known once handlers have returned.
		reqCtx := c.Request.Context()
		attrs := []attribute.KeyValue{attribute.Int("http.status_code", c.Writer.Status())}
		if id := obscontext.RequestIDFromContext(reqCtx); id != "" {
			attrs = append(attrs, attribute.String("request_id", id))
		}
		if orgID := obscontext.OrgIDFromContext(reqCtx); orgID != "" {
			attrs = append(attrs, attribute.String("org_id", orgID))
		}
		if n := c.GetInt(obslogger.ContextKeyMutationCount); n > 0 {
			attrs = append(attrs, attribute.Int("sync.mutation_count", n))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if c.Writer.Status() < http.StatusInternalServerError {
			return
		}
		if last := c.Errors.Last(); last != nil {
			if err := SafeError(last.Err); err != nil {
				span.RecordError(err)
			}
		}
		span.SetStatus(codes.Error, http.StatusText(c.Writer.Status()))
	}
}

func withRequestBaggage(ctx context.Context) context.Context {
	id := obscontext.RequestIDFromContext(ctx)
	if id == "" {
		return ctx
	}
	member, err := baggage.NewMember("request_id", id)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
