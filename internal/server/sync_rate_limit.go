package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"go.uber.org/zap"
)

const rateLimitReasonOrgRate = "org-rate"

// SyncBatchRateLimit takes one token from the tenant's batch bucket. Redis
// failures let the request through so devices can still drain their queues.
func (s *Server) SyncBatchRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.RateEnabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		orgID, ok := orgcontext.OrgIDFromContext(ctx)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		endpoint := normalizeRateLimitEndpoint(c)

		result, err := s.limiter.AllowBatch(ctx, orgID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("sync batch rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if result != nil && result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if result != nil && !result.Allowed {
			retryAfter := 1
			if secs := int(math.Ceil(result.RetryAfter.Seconds())); secs > retryAfter {
				retryAfter = secs
			}
			logger.FromContext(ctx).Warn("sync batch rate limit exceeded",
				zap.String("reason", rateLimitReasonOrgRate),
				zap.String("endpoint", endpoint),
			)
			recordRateLimitDenied(ctx, endpoint, orgID.String(), rateLimitReasonOrgRate, s.obsMetrics)

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonOrgRate)
			AbortWithError(c, ErrRateLimited)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, orgID.String(), s.obsMetrics)
		c.Next()
	}
}

func recordRateLimitAllowed(ctx context.Context, endpoint, orgID string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, orgID, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, orgID, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, orgID, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
