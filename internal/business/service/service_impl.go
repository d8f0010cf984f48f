package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/billbook/internal/business/domain"
	"github.com/smallbiznis/billbook/internal/cache"
	"github.com/smallbiznis/billbook/internal/config"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Cfg   config.Config
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	profiles cache.Cache[domain.Profile]
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("business.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		profiles: cache.NewTTLCache[domain.Profile](p.Cfg.Sync.ProfileCacheTTL),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateBusinessRequest) (domain.Business, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Business{}, domain.ErrInvalidName
	}

	var docConfig datatypes.JSON
	if len(req.DocumentTypes) > 0 {
		normalized := make(map[string]domain.DocumentTypeSetting, len(req.DocumentTypes))
		for key, setting := range req.DocumentTypes {
			normalized[NormalizeDocumentType(key)] = setting
		}
		raw, err := json.Marshal(normalized)
		if err != nil {
			return domain.Business{}, err
		}
		docConfig = datatypes.JSON(raw)
	}

	planCode := strings.ToLower(strings.TrimSpace(req.PlanCode))
	if planCode == "" {
		planCode = "free"
	}

	now := time.Now().UTC()
	business := domain.Business{
		ID:                   s.genID.Generate(),
		Name:                 name,
		PlanCode:             planCode,
		GSTIN:                strings.ToUpper(strings.TrimSpace(req.GSTIN)),
		StateCode:            strings.TrimSpace(req.StateCode),
		GSTRegistered:        req.GSTRegistered,
		DisableDraftWorkflow: req.DisableDraftWorkflow,
		InvoicePrefix:        req.InvoicePrefix,
		NextInvoiceNumber:    strings.TrimSpace(req.NextInvoiceNumber),
		DocumentTypeConfig:   docConfig,
		MonthlyInvoiceLimit:  req.MonthlyInvoiceLimit,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Insert(ctx, pkgdb.Conn(ctx, s.db), &business); err != nil {
		return domain.Business{}, err
	}
	return business, nil
}

// GetProfile returns the tenant profile, served from a short-lived cache.
func (s *Service) GetProfile(ctx context.Context, id snowflake.ID) (domain.Profile, error) {
	if id == 0 {
		return domain.Profile{}, domain.ErrNotFound
	}
	key := id.String()
	if profile, ok := s.profiles.Get(key); ok {
		return profile, nil
	}

	business, err := s.repo.FindByID(ctx, pkgdb.Conn(ctx, s.db), id)
	if err != nil {
		return domain.Profile{}, err
	}
	if business == nil {
		return domain.Profile{}, domain.ErrNotFound
	}

	profile := domain.Profile{
		ID:                   business.ID,
		Name:                 business.Name,
		PlanCode:             business.PlanCode,
		StateCode:            strings.TrimSpace(business.StateCode),
		GSTRegistered:        business.GSTRegistered,
		DisableDraftWorkflow: business.DisableDraftWorkflow,
		InvoicePrefix:        business.InvoicePrefix,
		NextInvoiceNumber:    business.NextInvoiceNumber,
		DocumentTypes:        s.decodeDocumentTypes(business),
		MonthlyInvoiceLimit:  business.MonthlyInvoiceLimit,
	}
	s.profiles.Set(key, profile)
	return profile, nil
}

func (s *Service) Invalidate(id snowflake.ID) {
	s.profiles.Delete(id.String())
}

func (s *Service) decodeDocumentTypes(business *domain.Business) map[string]domain.DocumentTypeSetting {
	out := map[string]domain.DocumentTypeSetting{}
	if len(business.DocumentTypeConfig) == 0 {
		return out
	}
	raw := map[string]domain.DocumentTypeSetting{}
	if err := json.Unmarshal(business.DocumentTypeConfig, &raw); err != nil {
		// A malformed blob falls back to the legacy counter and defaults.
		s.log.Warn("ignoring malformed document type config",
			zap.String("org_id", business.ID.String()),
			zap.Error(err),
		)
		return out
	}
	for key, setting := range raw {
		out[NormalizeDocumentType(key)] = setting
	}
	return out
}

// NormalizeDocumentType maps free-form document type names onto stable keys.
func NormalizeDocumentType(value string) string {
	normalized := slug.Make(strings.TrimSpace(value))
	if normalized == "" {
		return domain.DefaultDocumentType
	}
	return normalized
}
