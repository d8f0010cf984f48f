package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/customer/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{1,64}$`)
	gstinPattern    = regexp.MustCompile(`^[0-9]{2}[A-Z0-9]{13}$`)
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
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCustomerRequest) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}

	id := strings.TrimSpace(req.ID)
	if id != "" {
		if !clientIDPattern.MatchString(id) {
			return domain.Customer{}, domain.ErrInvalidID
		}
		existing, err := s.owned(ctx, orgID, id)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Customer{}, err
		}
	} else {
		id = s.genID.Generate().String()
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, domain.ErrInvalidName
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return domain.Customer{}, err
	}
	gstin, err := normalizeGSTIN(req.GSTIN)
	if err != nil {
		return domain.Customer{}, err
	}

	now := s.clock.Now()
	customer := domain.Customer{
		ID:        id,
		OrgID:     orgID,
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     email,
		GSTIN:     gstin,
		StateCode: stateCode(req.StateCode, gstin),
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The savepoint keeps an outer transaction usable after a duplicate key.
	err = pkgdb.WithTransaction(ctx, s.db, func(ctx context.Context) error {
		return s.repo.Insert(ctx, pkgdb.Conn(ctx, s.db), &customer)
	})
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			// Lost a race with another device replaying the same create.
			return s.owned(ctx, orgID, id)
		}
		return domain.Customer{}, err
	}

	s.log.Debug("customer created",
		zap.String("org_id", orgID.String()),
		zap.String("customer_id", customer.ID),
	)
	return customer, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateCustomerRequest) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		return domain.Customer{}, domain.ErrInvalidID
	}
	existing, err := s.owned(ctx, orgID, id)
	if err != nil {
		return domain.Customer{}, err
	}

	fields := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, domain.ErrInvalidName
		}
		fields["name"] = name
		existing.Name = name
	}
	if req.Phone != nil {
		existing.Phone = strings.TrimSpace(*req.Phone)
		fields["phone"] = existing.Phone
	}
	if req.Email != nil {
		email, err := normalizeEmail(*req.Email)
		if err != nil {
			return domain.Customer{}, err
		}
		existing.Email = email
		fields["email"] = email
	}
	if req.GSTIN != nil {
		gstin, err := normalizeGSTIN(*req.GSTIN)
		if err != nil {
			return domain.Customer{}, err
		}
		existing.GSTIN = gstin
		fields["gstin"] = gstin
		if req.StateCode == nil && gstin != "" {
			existing.StateCode = stateCode("", gstin)
			fields["state_code"] = existing.StateCode
		}
	}
	if req.StateCode != nil {
		existing.StateCode = stateCode(*req.StateCode, existing.GSTIN)
		fields["state_code"] = existing.StateCode
	}
	if req.Address != nil {
		existing.Address = strings.TrimSpace(*req.Address)
		fields["address"] = existing.Address
	}
	if len(fields) == 0 {
		return existing, nil
	}

	existing.UpdatedAt = s.clock.Now()
	fields["updated_at"] = existing.UpdatedAt
	if err := s.repo.Update(ctx, pkgdb.Conn(ctx, s.db), orgID, id, fields); err != nil {
		return domain.Customer{}, err
	}
	return existing, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Customer{}, domain.ErrInvalidOrganization
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Customer{}, domain.ErrInvalidID
	}
	return s.owned(ctx, orgID, id)
}

func (s *Service) GetByIDs(ctx context.Context, ids []string) (map[string]domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	items, err := s.repo.FindByIDs(ctx, pkgdb.Conn(ctx, s.db), orgID, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Customer, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (s *Service) ListUpdatedSince(ctx context.Context, since time.Time) ([]domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListUpdatedSince(ctx, pkgdb.Conn(ctx, s.db), orgID, since)
}

func (s *Service) ListPage(ctx context.Context, after pagination.Cursor, limit int) ([]domain.Customer, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListPage(ctx, pkgdb.Conn(ctx, s.db), orgID, after, limit)
}

func (s *Service) owned(ctx context.Context, orgID snowflake.ID, id string) (domain.Customer, error) {
	item, err := s.repo.FindByID(ctx, pkgdb.Conn(ctx, s.db), id)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	if item.OrgID != orgID {
		s.log.Warn("cross-tenant customer access",
			zap.String("org_id", orgID.String()),
			zap.String("customer_id", id),
		)
		return domain.Customer{}, domain.ErrForbidden
	}
	return *item, nil
}

func normalizeEmail(value string) (string, error) {
	email := strings.TrimSpace(value)
	if email == "" {
		return "", nil
	}
	if !strings.Contains(email, "@") {
		return "", domain.ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}

func normalizeGSTIN(value string) (string, error) {
	gstin := strings.ToUpper(strings.TrimSpace(value))
	if gstin == "" {
		return "", nil
	}
	if !gstinPattern.MatchString(gstin) {
		return "", domain.ErrInvalidGSTIN
	}
	return gstin, nil
}

// stateCode falls back to the two-digit prefix of the GSTIN.
func stateCode(explicit, gstin string) string {
	if code := strings.TrimSpace(explicit); code != "" {
		return code
	}
	if len(gstin) >= 2 {
		return gstin[:2]
	}
	return ""
}
