package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/billbook/internal/apikey"
	apikeydomain "github.com/smallbiznis/billbook/internal/apikey/domain"
	"github.com/smallbiznis/billbook/internal/audit"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/authorization"
	"github.com/smallbiznis/billbook/internal/business"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/customer"
	"github.com/smallbiznis/billbook/internal/events"
	"github.com/smallbiznis/billbook/internal/idempotency"
	"github.com/smallbiznis/billbook/internal/invoice"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	invoicepdf "github.com/smallbiznis/billbook/internal/invoice/pdf"
	"github.com/smallbiznis/billbook/internal/observability"
	obsmiddleware "github.com/smallbiznis/billbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	obstracing "github.com/smallbiznis/billbook/internal/observability/tracing"
	"github.com/smallbiznis/billbook/internal/product"
	"github.com/smallbiznis/billbook/internal/ratelimit"
	"github.com/smallbiznis/billbook/internal/sequence"
	"github.com/smallbiznis/billbook/internal/sync"
	syncdomain "github.com/smallbiznis/billbook/internal/sync/domain"
	"github.com/smallbiznis/billbook/internal/usage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	events.Module,
	apikey.Module,
	business.Module,
	customer.Module,
	product.Module,
	sequence.Module,
	usage.Module,
	invoice.Module,
	idempotency.Module,
	ratelimit.Module,
	sync.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	apiKeySvc  apikeydomain.Service
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	invoiceSvc invoicedomain.Service
	business   businessdomain.Service
	renderer   invoicepdf.Renderer
	dispatcher syncdomain.Dispatcher
	provider   syncdomain.Provider
	limiter    *ratelimit.SyncLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	APIKeySvc  apikeydomain.Service
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service   `optional:"true"`
	InvoiceSvc invoicedomain.Service
	Business   businessdomain.Service
	Renderer   invoicepdf.Renderer    `optional:"true"`
	Dispatcher syncdomain.Dispatcher
	Provider   syncdomain.Provider
	Limiter    *ratelimit.SyncLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		apiKeySvc:  p.APIKeySvc,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		invoiceSvc: p.InvoiceSvc,
		business:   p.Business,
		renderer:   p.Renderer,
		dispatcher: p.Dispatcher,
		provider:   p.Provider,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
	if svc.renderer == nil {
		svc.renderer = invoicepdf.New()
	}

	svc.registerSyncRoutes()
	svc.registerInvoiceRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerSyncRoutes() {
	sync := s.engine.Group("/sync", s.APIKeyRequired())

	sync.GET("/delta", s.authorize(authorization.ObjectSync, authorization.ActionSyncRead), s.GetDelta)
	sync.GET("/full", s.authorize(authorization.ObjectSync, authorization.ActionSyncRead), s.GetFullSync)
	sync.POST("/batch", s.authorize(authorization.ObjectSync, authorization.ActionSyncWrite), s.SyncBatchRateLimit(), s.PostBatch)
}

func (s *Server) registerInvoiceRoutes() {
	invoices := s.engine.Group("/invoices", s.APIKeyRequired())

	invoices.GET("/:id/pdf", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoicePDF)
	invoices.POST("/:id/issue", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceIssue), s.IssueInvoice)
	invoices.POST("/:id/pay", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoicePay), s.PayInvoice)
	invoices.POST("/:id/cancel", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCancel), s.CancelInvoice)
	invoices.POST("/:id/void", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceVoid), s.VoidInvoice)
	invoices.DELETE("/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceDelete), s.DeleteInvoice)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.APIKeyRequired())

	admin.GET("/api-keys/scopes", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeyScopes)
	admin.GET("/api-keys", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeys)
	admin.POST("/api-keys", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate), s.CreateAPIKey)
	admin.POST("/api-keys/:key_id/rotate", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyRotate), s.RotateAPIKey)
	admin.POST("/api-keys/:key_id/revoke", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyRevoke), s.RevokeAPIKey)
}
