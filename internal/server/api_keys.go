package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/billbook/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"go.uber.org/zap"
)

type createAPIKeyRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

func (s *Server) ListAPIKeys(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	keys, err := s.apiKeySvc.List(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": keys})
}

func (s *Server) ListAPIKeyScopes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": apikeydomain.AllScopes})
}

func (s *Server) CreateAPIKey(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.apiKeySvc.Create(c.Request.Context(), orgID, apikeydomain.CreateRequest{Name: req.Name, Scopes: req.Scopes})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAPIKeyAudit(c, "api_key.created", resp.KeyID, map[string]any{
		"name": strings.TrimSpace(req.Name),
	})
	c.JSON(http.StatusCreated, resp)
}

// RotateAPIKey issues a replacement key. The old key keeps working through a
// grace period so devices can pick up the new one.
func (s *Server) RotateAPIKey(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	keyID := strings.TrimSpace(c.Param("key_id"))
	resp, err := s.apiKeySvc.Rotate(c.Request.Context(), orgID, keyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAPIKeyAudit(c, "api_key.rotated", resp.KeyID, map[string]any{
		"rotated_from_key_id": keyID,
	})
	c.JSON(http.StatusOK, resp)
}

func (s *Server) RevokeAPIKey(c *gin.Context) {
	orgID, ok := orgcontext.OrgIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	keyID := strings.TrimSpace(c.Param("key_id"))
	if err := s.apiKeySvc.Revoke(c.Request.Context(), orgID, keyID); err != nil {
		AbortWithError(c, err)
		return
	}

	s.recordAPIKeyAudit(c, "api_key.revoked", keyID, nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) recordAPIKeyAudit(c *gin.Context, action, keyID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	ctx := c.Request.Context()
	orgID, _ := orgcontext.OrgIDFromContext(ctx)
	if err := s.auditSvc.Record(ctx, orgID, auditdomain.Entry{
		Action:     action,
		TargetType: "api_key",
		TargetID:   keyID,
		Metadata:   metadata,
	}); err != nil {
		s.log.Warn("api key audit failed", zap.String("action", action), zap.Error(err))
	}
}
