package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/events"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/usage/domain"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTimezone = "Asia/Kolkata"

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      domain.Repository
	Business  businessdomain.Service
	Plans     *config.PlanConfigHolder
	Cfg       config.Config
	Publisher events.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	business  businessdomain.Service
	plans     *config.PlanConfigHolder
	publisher events.Publisher
	metrics   *metrics.Metrics
	location  *time.Location
	nearLimit int
}

func New(p Params) (domain.Service, error) {
	tz := p.Cfg.Usage.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	nearLimit := p.Cfg.Usage.NearLimitPercent
	if nearLimit <= 0 || nearLimit > 100 {
		nearLimit = 80
	}
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("usage.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		business:  p.Business,
		plans:     p.Plans,
		publisher: publisher,
		metrics:   p.Metrics,
		location:  loc,
		nearLimit: nearLimit,
	}, nil
}

// MonthKey formats t as YYYY-MM in the billing location.
func (s *Service) MonthKey(t time.Time) string {
	return t.In(s.location).Format("2006-01")
}

func (s *Service) CanIssue(ctx context.Context, orgID snowflake.ID) (domain.Snapshot, error) {
	snapshot, err := s.load(ctx, orgID, true)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !snapshot.Unlimited && snapshot.Used >= snapshot.Limit {
		s.metrics.RecordQuotaDenied(ctx, snapshot.Plan)
		return snapshot, &domain.QuotaExceededError{
			Limit: snapshot.Limit,
			Used:  snapshot.Used,
			Month: snapshot.Month,
			Plan:  snapshot.Plan,
		}
	}
	return snapshot, nil
}

func (s *Service) Increment(ctx context.Context, orgID snowflake.ID) (domain.Snapshot, error) {
	if orgID == 0 {
		return domain.Snapshot{}, domain.ErrInvalidOrganization
	}
	conn := pkgdb.Conn(ctx, s.db)
	now := s.clock.Now()
	month := s.MonthKey(now)

	if _, err := s.ensure(ctx, conn, orgID, month, false); err != nil {
		return domain.Snapshot{}, err
	}
	if err := s.repo.Increment(ctx, conn, orgID, month, now); err != nil {
		return domain.Snapshot{}, err
	}

	snapshot, err := s.load(ctx, orgID, false)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if s.isNearLimit(snapshot) {
		pkgdb.AfterCommit(ctx, func(ctx context.Context) {
			s.publishNearLimit(ctx, orgID, snapshot)
		})
	}
	return snapshot, nil
}

func (s *Service) Current(ctx context.Context, orgID snowflake.ID) (domain.Snapshot, error) {
	return s.load(ctx, orgID, false)
}

func (s *Service) load(ctx context.Context, orgID snowflake.ID, lock bool) (domain.Snapshot, error) {
	if orgID == 0 {
		return domain.Snapshot{}, domain.ErrInvalidOrganization
	}
	profile, err := s.business.GetProfile(ctx, orgID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snapshot := s.entitlement(profile)
	snapshot.Month = s.MonthKey(s.clock.Now())

	counter, err := s.ensure(ctx, pkgdb.Conn(ctx, s.db), orgID, snapshot.Month, lock)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snapshot.Used = counter.IssuedCount
	return snapshot, nil
}

// ensure returns the month's counter, seeding it from a live count of
// documents already issued this month when the row does not exist yet.
func (s *Service) ensure(ctx context.Context, conn *gorm.DB, orgID snowflake.ID, month string, lock bool) (*domain.Counter, error) {
	find := s.repo.Find
	if lock && pkgdb.InTransaction(ctx) {
		find = s.repo.FindForUpdate
	}

	counter, err := find(ctx, conn, orgID, month)
	if err != nil || counter != nil {
		return counter, err
	}

	from, to, err := s.monthBounds(month)
	if err != nil {
		return nil, err
	}
	issued, err := s.repo.CountIssued(ctx, conn, orgID, from, to)
	if err != nil {
		return nil, err
	}
	if err := s.repo.InsertIfAbsent(ctx, conn, &domain.Counter{
		OrgID:       orgID,
		MonthKey:    month,
		IssuedCount: issued,
		UpdatedAt:   s.clock.Now(),
	}); err != nil {
		return nil, err
	}

	counter, err = find(ctx, conn, orgID, month)
	if err != nil {
		return nil, err
	}
	if counter == nil {
		return &domain.Counter{OrgID: orgID, MonthKey: month, IssuedCount: issued}, nil
	}
	return counter, nil
}

// entitlement resolves the limit: tenant override, then plan config, then unlimited.
func (s *Service) entitlement(profile businessdomain.Profile) domain.Snapshot {
	plans := config.DefaultPlanConfig()
	if s.plans != nil {
		plans = s.plans.Get()
	}
	code, plan := plans.Resolve(profile.PlanCode)
	snapshot := domain.Snapshot{Plan: code, Limit: plan.MonthlyInvoiceLimit}
	if profile.MonthlyInvoiceLimit != nil {
		snapshot.Limit = *profile.MonthlyInvoiceLimit
	}
	snapshot.Unlimited = snapshot.Limit <= 0
	if snapshot.Unlimited {
		snapshot.Limit = 0
	}
	return snapshot
}

func (s *Service) monthBounds(month string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01", month, s.location)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start.UTC(), start.AddDate(0, 1, 0).UTC(), nil
}

func (s *Service) isNearLimit(snapshot domain.Snapshot) bool {
	if snapshot.Unlimited || snapshot.Limit <= 0 {
		return false
	}
	return snapshot.Used*100 >= snapshot.Limit*int64(s.nearLimit)
}

func (s *Service) publishNearLimit(ctx context.Context, orgID snowflake.ID, snapshot domain.Snapshot) {
	err := s.publisher.Publish(ctx, events.Event{
		Topic:      events.TopicUsageNearLimit,
		OrgID:      orgID.String(),
		OccurredAt: s.clock.Now(),
		Data: map[string]any{
			"plan":  snapshot.Plan,
			"limit": snapshot.Limit,
			"used":  snapshot.Used,
			"month": snapshot.Month,
		},
	})
	if err != nil {
		s.log.Warn("failed to publish near-limit event",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
	}
}
