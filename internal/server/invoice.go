package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	syncdomain "github.com/smallbiznis/billbook/internal/sync/domain"
	"go.uber.org/zap"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

type invoiceStatusRequest struct {
	Reason string `json:"reason"`
}

type invoiceStatusPayload struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) IssueInvoice(c *gin.Context) {
	s.applyInvoiceMutation(c, syncdomain.MutationIssueInvoice)
}

func (s *Server) PayInvoice(c *gin.Context) {
	s.applyInvoiceMutation(c, syncdomain.MutationPayInvoice)
}

func (s *Server) CancelInvoice(c *gin.Context) {
	s.applyInvoiceMutation(c, syncdomain.MutationCancelInvoice)
}

func (s *Server) VoidInvoice(c *gin.Context) {
	s.applyInvoiceMutation(c, syncdomain.MutationVoidInvoice)
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	s.applyInvoiceMutation(c, syncdomain.MutationDeleteInvoice)
}

// applyInvoiceMutation runs a single status change through the dispatcher so
// online calls share the idempotency cache and error taxonomy of sync batches.
func (s *Server) applyInvoiceMutation(c *gin.Context, typ syncdomain.MutationType) {
	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		AbortWithError(c, newValidationError("id", "required", "id is required"))
		return
	}

	var req invoiceStatusRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	data, err := json.Marshal(invoiceStatusPayload{ID: id, Reason: strings.TrimSpace(req.Reason)})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	results := s.dispatcher.Process(ctx, orgID, []syncdomain.Mutation{{
		ID:             id,
		Type:           typ,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)),
		Data:           data,
	}})
	if len(results) != 1 {
		AbortWithError(c, errors.New("dispatcher returned no result"))
		return
	}

	result := results[0]
	if !result.Succeeded() {
		c.JSON(statusForCode(result.Code), errorResponse{Error: errorPayload{
			Type:    string(result.Code),
			Message: result.Error,
			Details: result.Details,
		}})
		return
	}
	if result.Cached {
		c.Header(headerReplayed, "true")
	}

	c.JSON(http.StatusOK, gin.H{"data": result.Data})
}

// GetInvoicePDF renders the printable tax invoice.
func (s *Server) GetInvoicePDF(c *gin.Context) {
	ctx := c.Request.Context()
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	invoice, err := s.invoiceSvc.Get(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	profile, err := s.business.GetProfile(ctx, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.renderer.Render(ctx, profile, invoice)
	if err != nil {
		s.log.Error("failed to render invoice pdf", zap.String("invoice_id", invoice.ID), zap.Error(err))
		AbortWithError(c, err)
		return
	}

	filename := invoice.DocumentNumber
	if filename == "" {
		filename = invoice.ID
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", sanitizeFilename(filename)+".pdf"))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ' ':
			return '-'
		}
		return r
	}, name)
}
