package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/idempotency/domain"
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
	Clock clock.Clock
	Repo  domain.Repository
	Cfg   config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
	cfg   config.IdempotencyConfig
}

func New(p Params) domain.Service {
	cfg := p.Cfg.Idempotency
	if cfg.TTL <= 0 {
		cfg.TTL = config.DefaultIdempotencyTTL
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("idempotency.service"),
		clock: p.Clock,
		repo:  p.Repo,
		cfg:   cfg,
	}
}

func (s *Service) Check(ctx context.Context, orgID snowflake.ID, key string) (*domain.Record, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}

	conn := pkgdb.Conn(ctx, s.db)
	record, err := s.repo.Find(ctx, conn, orgID, key)
	if err != nil || record == nil {
		return nil, err
	}

	if s.clock.Now().Sub(record.CreatedAt) > s.cfg.TTL {
		// Only the stale version is removed; a concurrent re-save survives.
		if err := s.repo.DeleteIfCreatedAt(ctx, conn, orgID, key, record.CreatedAt); err != nil {
			return nil, err
		}
		s.log.Debug("purged expired idempotency record",
			zap.String("org_id", orgID.String()),
			zap.String("mutation_type", record.MutationType),
		)
		return nil, nil
	}
	return record, nil
}

func (s *Service) Lookup(ctx context.Context, orgID snowflake.ID, key, fingerprint string) (*domain.Record, error) {
	record, err := s.Check(ctx, orgID, key)
	if err != nil || record == nil {
		return record, err
	}
	if s.cfg.StrictPayload && fingerprint != "" && record.Fingerprint != "" && record.Fingerprint != fingerprint {
		return nil, domain.ErrPayloadMismatch
	}
	return record, nil
}

func (s *Service) Save(ctx context.Context, orgID snowflake.ID, key string, req domain.SaveRequest) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrEmptyKey
	}
	result := datatypes.JSON(req.Result)
	if len(result) == 0 {
		result = datatypes.JSON("null")
	}
	return s.repo.Upsert(ctx, pkgdb.Conn(ctx, s.db), &domain.Record{
		Key:          key,
		OrgID:        orgID,
		MutationType: req.MutationType,
		Fingerprint:  req.Fingerprint,
		Result:       result,
		CreatedAt:    s.clock.Now(),
	})
}

func (s *Service) PurgeExpired(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		limit = s.cfg.SweepBatch
	}
	if limit <= 0 {
		limit = 500
	}
	cutoff := s.clock.Now().Add(-s.cfg.TTL)
	conn := pkgdb.Conn(ctx, s.db)

	expired, err := s.repo.ListExpired(ctx, conn, cutoff, limit)
	if err != nil {
		return 0, err
	}
	byOrg := map[snowflake.ID][]string{}
	for _, record := range expired {
		byOrg[record.OrgID] = append(byOrg[record.OrgID], record.Key)
	}

	var total int64
	for orgID, keys := range byOrg {
		n, err := s.repo.DeleteExpired(ctx, conn, orgID, keys, cutoff)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
