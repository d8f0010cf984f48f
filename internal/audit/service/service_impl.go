package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/audit/masking"
	"github.com/smallbiznis/billbook/internal/clock"
	obscontext "github.com/smallbiznis/billbook/internal/observability/context"
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
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, orgID snowflake.ID, entry auditdomain.Entry) error {
	if orgID == 0 {
		return auditdomain.ErrInvalidOrganization
	}
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}

	actorType, actorID := obscontext.ActorFromContext(ctx)
	if actorType == "" {
		actorType = "system"
	}

	log := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		ActorType:  actorType,
		Action:     action,
		TargetType: targetType,
		TargetID:   strings.TrimSpace(entry.TargetID),
		RequestID:  obscontext.RequestIDFromContext(ctx),
		Metadata:   datatypes.JSONMap(masking.Metadata(entry.Metadata)),
		CreatedAt:  s.clock.Now(),
	}
	if actorID != "" {
		log.ActorID = &actorID
	}

	if err := s.repo.Insert(ctx, pkgdb.Conn(ctx, s.db), &log); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) ListForTarget(ctx context.Context, orgID snowflake.ID, targetType, targetID string) ([]auditdomain.AuditLog, error) {
	if orgID == 0 {
		return nil, auditdomain.ErrInvalidOrganization
	}
	return s.repo.ListByTarget(ctx, pkgdb.Conn(ctx, s.db), orgID, strings.TrimSpace(targetType), strings.TrimSpace(targetID))
}
