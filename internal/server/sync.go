package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	obsmiddleware "github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	syncdomain "github.com/smallbiznis/billbook/internal/sync/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

const defaultMaxBatchSize = 200

type batchRequest struct {
	Mutations []syncdomain.Mutation `json:"mutations"`
}

func (s *Server) GetDelta(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	since, err := parseOptionalTime(c.Query("lastSyncAt"))
	if err != nil {
		AbortWithError(c, newValidationError("lastSyncAt", "invalid_time", "lastSyncAt must be an RFC3339 timestamp"))
		return
	}

	delta, err := s.provider.GetDelta(ctx, orgID, since)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, delta)
}

func (s *Server) GetFullSync(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("pageSize", "invalid_page_size", "pageSize must be a number"))
		return
	}

	snapshot, err := s.provider.GetFullSync(ctx, orgID, page.PageToken, page.PageSize)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

// PostBatch applies queued offline mutations in order and answers with one
// result per mutation. Only transport-level problems fail the whole request.
func (s *Server) PostBatch(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	maxBatch := s.cfg.Sync.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatchSize
	}
	if len(req.Mutations) > maxBatch {
		AbortWithError(c, newValidationError("mutations", syncdomain.ErrBatchTooLarge.Error(),
			fmt.Sprintf("a batch carries at most %d mutations", maxBatch)))
		return
	}
	c.Set(obsmiddleware.ContextKeyMutationCount, len(req.Mutations))

	results := s.dispatcher.Process(ctx, orgID, req.Mutations)
	if results == nil {
		results = []syncdomain.Result{}
	}

	c.JSON(http.StatusOK, gin.H{"data": results})
}
