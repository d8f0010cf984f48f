package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"github.com/smallbiznis/billbook/internal/product/domain"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{1,64}$`)
	hsnPattern      = regexp.MustCompile(`^[0-9]{2,8}$`)
	maxTaxRate      = decimal.NewFromInt(100)
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Product, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Product{}, domain.ErrInvalidOrganization
	}

	id := strings.TrimSpace(req.ID)
	if id != "" {
		if !clientIDPattern.MatchString(id) {
			return domain.Product{}, domain.ErrInvalidID
		}
		existing, err := s.owned(ctx, orgID, id)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Product{}, err
		}
	} else {
		id = s.genID.Generate().String()
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, domain.ErrInvalidName
	}
	if req.UnitPrice < 0 {
		return domain.Product{}, domain.ErrInvalidUnitPrice
	}
	if err := validateTaxRate(req.TaxRate); err != nil {
		return domain.Product{}, err
	}
	hsn, err := normalizeHSN(req.HSNCode)
	if err != nil {
		return domain.Product{}, err
	}

	now := s.clock.Now()
	product := domain.Product{
		ID:        id,
		OrgID:     orgID,
		Name:      name,
		SKU:       strings.TrimSpace(req.SKU),
		HSNCode:   hsn,
		Unit:      strings.TrimSpace(req.Unit),
		UnitPrice: req.UnitPrice,
		TaxRate:   req.TaxRate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = pkgdb.WithTransaction(ctx, s.db, func(ctx context.Context) error {
		return s.repo.Create(ctx, pkgdb.Conn(ctx, s.db), &product)
	})
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return s.owned(ctx, orgID, id)
		}
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (domain.Product, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Product{}, domain.ErrInvalidOrganization
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return domain.Product{}, domain.ErrInvalidID
	}
	product, err := s.owned(ctx, orgID, id)
	if err != nil {
		return domain.Product{}, err
	}

	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, domain.ErrInvalidName
		}
		product.Name = name
		fields["name"] = name
	}
	if req.SKU != nil {
		product.SKU = strings.TrimSpace(*req.SKU)
		fields["sku"] = product.SKU
	}
	if req.HSNCode != nil {
		hsn, err := normalizeHSN(*req.HSNCode)
		if err != nil {
			return domain.Product{}, err
		}
		product.HSNCode = hsn
		fields["hsn_code"] = hsn
	}
	if req.Unit != nil {
		product.Unit = strings.TrimSpace(*req.Unit)
		fields["unit"] = product.Unit
	}
	if req.UnitPrice != nil {
		if *req.UnitPrice < 0 {
			return domain.Product{}, domain.ErrInvalidUnitPrice
		}
		product.UnitPrice = *req.UnitPrice
		fields["unit_price"] = product.UnitPrice
	}
	if req.TaxRate != nil {
		if err := validateTaxRate(*req.TaxRate); err != nil {
			return domain.Product{}, err
		}
		product.TaxRate = *req.TaxRate
		fields["tax_rate"] = product.TaxRate
	}
	if len(fields) == 0 {
		return product, nil
	}

	product.UpdatedAt = s.clock.Now()
	fields["updated_at"] = product.UpdatedAt
	if err := s.repo.Update(ctx, pkgdb.Conn(ctx, s.db), orgID, id, fields); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Product{}, domain.ErrInvalidOrganization
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, domain.ErrInvalidID
	}
	return s.owned(ctx, orgID, id)
}

func (s *Service) GetOwned(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	ids = lo.Uniq(lo.Compact(lo.Map(ids, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})))
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}

	items, err := s.repo.FindByIDs(ctx, pkgdb.Conn(ctx, s.db), ids)
	if err != nil {
		return nil, err
	}
	found := lo.KeyBy(items, func(p domain.Product) string { return p.ID })
	for _, id := range ids {
		item, ok := found[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		if item.OrgID != orgID {
			return nil, domain.ErrForbidden
		}
	}
	return found, nil
}

func (s *Service) ListUpdatedSince(ctx context.Context, since time.Time) ([]domain.Product, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListUpdatedSince(ctx, pkgdb.Conn(ctx, s.db), orgID, since)
}

func (s *Service) ListPage(ctx context.Context, after pagination.Cursor, limit int) ([]domain.Product, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListPage(ctx, pkgdb.Conn(ctx, s.db), orgID, after, limit)
}

func (s *Service) owned(ctx context.Context, orgID snowflake.ID, id string) (domain.Product, error) {
	item, err := s.repo.FindByID(ctx, pkgdb.Conn(ctx, s.db), id)
	if err != nil {
		return domain.Product{}, err
	}
	if item == nil {
		return domain.Product{}, domain.ErrNotFound
	}
	if item.OrgID != orgID {
		return domain.Product{}, domain.ErrForbidden
	}
	return *item, nil
}

func validateTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(maxTaxRate) {
		return domain.ErrInvalidTaxRate
	}
	return nil
}

func normalizeHSN(value string) (string, error) {
	hsn := strings.TrimSpace(value)
	if hsn == "" {
		return "", nil
	}
	if !hsnPattern.MatchString(hsn) {
		return "", domain.ErrInvalidHSNCode
	}
	return hsn, nil
}
