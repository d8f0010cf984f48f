package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/billbook/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextKeyMutationCount is set by the batch handler so access logs and spans
// carry batch size.
const ContextKeyMutationCount = "mutation_count"

const (
	headerRequestID = "X-Request-Id"
	// Client generated request ids longer than this are replaced.
	maxRequestIDLen = 128
)

type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the last handler error to (error_type, error_code).
	ErrorClassifier func(err error) (string, string)
}

type accessEntry struct {
	method    string
	path      string
	route     string
	status    int
	elapsed   time.Duration
	bytesIn   int64
	bytesOut  int64
	mutations int
	errType   string
	errCode   string
}

func (e accessEntry) fields() []zap.Field {
	fields := make([]zap.Field, 0, 10)
	fields = append(fields,
		zap.String("method", e.method),
		zap.String("path", e.path),
		zap.String("route", e.route),
		zap.Int("status", e.status),
		zap.Int64("duration_ms", e.elapsed.Milliseconds()),
		zap.Int64("bytes_in", clampZero(e.bytesIn)),
		zap.Int64("bytes_out", clampZero(e.bytesOut)),
	)
	if e.mutations > 0 {
		fields = append(fields, zap.Int("mutation_count", e.mutations))
	}
	if e.errType != "" || e.errCode != "" {
		fields = append(fields, zap.String("error_type", e.errType), zap.String("error_code", e.errCode))
	}
	return fields
}

// level keeps health checks and client validation noise out of info logs.
func (e accessEntry) level() zapcore.Level {
	switch {
	case e.status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case e.route == "/health" || e.route == "/metrics":
		return zapcore.DebugLevel
	case e.status == http.StatusTooManyRequests:
		return zapcore.WarnLevel
	case e.status >= http.StatusBadRequest && e.errType == "validation_error":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// GinMiddleware assigns a request id and writes one access log line per request.
// The line is written after the handler chain so tenant and actor set by
// authentication are included.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Set("request_id", requestID)
		c.Header(headerRequestID, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		entry := accessEntry{
			method:    c.Request.Method,
			path:      c.Request.URL.Path,
			route:     c.FullPath(),
			status:    c.Writer.Status(),
			elapsed:   time.Since(start),
			bytesIn:   c.Request.ContentLength,
			bytesOut:  int64(c.Writer.Size()),
			mutations: c.GetInt(ContextKeyMutationCount),
		}
		if entry.route == "" {
			entry.route = "unknown"
		}
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			entry.errType, entry.errCode = cfg.ErrorClassifier(last.Err)
		}

		log := FromContext(c.Request.Context())
		ce := log.Check(entry.level(), "http_request")
		if ce == nil {
			return
		}
		fields := entry.fields()
		if cfg.Debug && len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}
		ce.Write(fields...)
	}
}

func requestIDFor(c *gin.Context) string {
	id := strings.TrimSpace(c.GetHeader(headerRequestID))
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.NewString()
	}
	return id
}

func clampZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
