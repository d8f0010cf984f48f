package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	businesssvc "github.com/smallbiznis/billbook/internal/business/service"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/sequence/domain"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCollisionRetries = 3

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Business businessdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	business businessdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("sequence.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		business: p.Business,
		metrics:  p.Metrics,
	}
}

func (s *Service) Allocate(ctx context.Context, orgID snowflake.ID, documentType string) (domain.Allocation, error) {
	if orgID == 0 {
		return domain.Allocation{}, domain.ErrInvalidOrganization
	}
	docType := businesssvc.NormalizeDocumentType(documentType)

	var alloc domain.Allocation
	err := pkgdb.WithTransaction(ctx, s.db, func(ctx context.Context) error {
		conn := pkgdb.Conn(ctx, s.db)

		seq, err := s.ensure(ctx, conn, orgID, docType)
		if err != nil {
			return err
		}
		if seq.NextNumber <= 0 {
			if _, err := s.repair(ctx, conn, orgID, docType); err != nil {
				return err
			}
		}

		for attempt := 0; attempt < maxCollisionRetries; attempt++ {
			row, err := s.repo.Increment(ctx, conn, orgID, docType, s.clock.Now())
			if err != nil {
				return err
			}
			if row == nil {
				return domain.ErrAllocationConflict
			}

			formatted := domain.Format(row.Prefix, row.Padding, row.NextNumber)
			taken, err := s.repo.NumberTaken(ctx, conn, orgID, formatted)
			if err != nil {
				return err
			}
			if !taken {
				alloc = domain.Allocation{
					DocumentType: docType,
					Prefix:       row.Prefix,
					Number:       row.NextNumber,
					Formatted:    formatted,
				}
				return nil
			}

			s.log.Warn("allocated number already in use, reseeding counter",
				zap.String("org_id", orgID.String()),
				zap.String("document_type", docType),
				zap.String("document_number", formatted),
			)
			if _, err := s.repair(ctx, conn, orgID, docType); err != nil {
				return err
			}
		}
		return domain.ErrAllocationConflict
	})
	if err != nil {
		return domain.Allocation{}, err
	}

	pkgdb.AfterCommit(ctx, func(ctx context.Context) {
		s.metrics.RecordNumberAllocated(ctx, docType)
	})
	return alloc, nil
}

func (s *Service) Repair(ctx context.Context, orgID snowflake.ID, documentType string) (domain.Sequence, error) {
	if orgID == 0 {
		return domain.Sequence{}, domain.ErrInvalidOrganization
	}
	docType := businesssvc.NormalizeDocumentType(documentType)

	var out domain.Sequence
	err := pkgdb.WithTransaction(ctx, s.db, func(ctx context.Context) error {
		conn := pkgdb.Conn(ctx, s.db)
		if _, err := s.ensure(ctx, conn, orgID, docType); err != nil {
			return err
		}
		seq, err := s.repair(ctx, conn, orgID, docType)
		if err != nil {
			return err
		}
		out = seq
		return nil
	})
	return out, err
}

func (s *Service) RepairAll(ctx context.Context, orgID snowflake.ID) ([]domain.Sequence, error) {
	seqs, err := s.repo.ListByOrg(ctx, pkgdb.Conn(ctx, s.db), orgID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Sequence, 0, len(seqs))
	for _, seq := range seqs {
		repaired, err := s.Repair(ctx, orgID, seq.DocumentType)
		if err != nil {
			return out, err
		}
		out = append(out, repaired)
	}
	return out, nil
}

// ensure returns the counter row, seeding it on first use.
func (s *Service) ensure(ctx context.Context, conn *gorm.DB, orgID snowflake.ID, docType string) (*domain.Sequence, error) {
	seq, err := s.repo.Find(ctx, conn, orgID, docType)
	if err != nil || seq != nil {
		return seq, err
	}

	profile, err := s.business.GetProfile(ctx, orgID)
	if err != nil {
		return nil, err
	}

	seed := seedFor(profile, docType)
	floor, err := s.maxConsumed(ctx, conn, orgID, seed.Prefix)
	if err != nil {
		return nil, err
	}
	next := seed.NextNumber
	if next <= 0 {
		next = 1
	}
	if floor+1 > next {
		next = floor + 1
	}
	if seed.Corrupt {
		s.log.Warn("reseeding corrupted counter from consumed numbers",
			zap.String("org_id", orgID.String()),
			zap.String("document_type", docType),
			zap.Int64("next_number", next),
		)
	}

	if err := s.repo.InsertIfAbsent(ctx, conn, &domain.Sequence{
		OrgID:        orgID,
		DocumentType: docType,
		Prefix:       seed.Prefix,
		Padding:      seed.Padding,
		NextNumber:   next,
		UpdatedAt:    s.clock.Now(),
	}); err != nil {
		return nil, err
	}

	// Another seeder may have won the insert; the stored row is authoritative.
	seq, err = s.repo.Find(ctx, conn, orgID, docType)
	if err != nil {
		return nil, err
	}
	if seq == nil {
		return nil, domain.ErrAllocationConflict
	}
	return seq, nil
}

func (s *Service) repair(ctx context.Context, conn *gorm.DB, orgID snowflake.ID, docType string) (domain.Sequence, error) {
	seq, err := s.repo.FindForUpdate(ctx, conn, orgID, docType)
	if err != nil {
		return domain.Sequence{}, err
	}
	if seq == nil {
		return domain.Sequence{}, domain.ErrAllocationConflict
	}

	floor, err := s.maxConsumed(ctx, conn, orgID, seq.Prefix)
	if err != nil {
		return domain.Sequence{}, err
	}
	next := seq.NextNumber
	if next <= 0 || next <= floor {
		next = floor + 1
	}
	if next != seq.NextNumber {
		now := s.clock.Now()
		if err := s.repo.SetNext(ctx, conn, orgID, docType, next, now); err != nil {
			return domain.Sequence{}, err
		}
		s.log.Info("sequence repaired",
			zap.String("org_id", orgID.String()),
			zap.String("document_type", docType),
			zap.Int64("from", seq.NextNumber),
			zap.Int64("to", next),
		)
		seq.NextNumber = next
		seq.UpdatedAt = now
	}
	return *seq, nil
}

func (s *Service) maxConsumed(ctx context.Context, conn *gorm.DB, orgID snowflake.ID, prefix string) (int64, error) {
	numbers, err := s.repo.ConsumedNumbers(ctx, conn, orgID, prefix)
	if err != nil {
		return 0, err
	}
	return MaxNumericSuffix(numbers, prefix), nil
}

type seed struct {
	Prefix     string
	Padding    int
	NextNumber int64
	Corrupt    bool
}

// seedFor resolves the starting point: per-type config, then the legacy
// invoice counter, then defaults.
func seedFor(profile businessdomain.Profile, docType string) seed {
	out := seed{Prefix: defaultPrefix(docType), Padding: domain.DefaultPadding}

	if setting, ok := profile.DocumentTypes[docType]; ok {
		if strings.TrimSpace(setting.Prefix) != "" {
			out.Prefix = setting.Prefix
		}
		if setting.Padding > 0 {
			out.Padding = setting.Padding
		}
		n, valid := setting.NextNumberValue()
		out.NextNumber = n
		out.Corrupt = !valid && len(setting.NextNumber) > 0
		return out
	}

	if docType == businessdomain.DefaultDocumentType {
		if strings.TrimSpace(profile.InvoicePrefix) != "" {
			out.Prefix = profile.InvoicePrefix
		}
		raw := strings.TrimSpace(profile.NextInvoiceNumber)
		n, valid := businessdomain.ParseCounter(raw)
		out.NextNumber = n
		out.Corrupt = !valid && raw != ""
	}
	return out
}

func defaultPrefix(docType string) string {
	if docType == businessdomain.DefaultDocumentType {
		return "INV-"
	}
	return strings.ToUpper(docType) + "-"
}

// MaxNumericSuffix returns the largest integer that follows prefix in numbers.
// Entries whose remainder is not purely numeric are ignored.
func MaxNumericSuffix(numbers []string, prefix string) int64 {
	var max int64
	for _, number := range numbers {
		if !strings.HasPrefix(number, prefix) {
			continue
		}
		suffix := strings.TrimPrefix(number, prefix)
		if suffix == "" || strings.IndexFunc(suffix, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			continue
		}
		n, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}
