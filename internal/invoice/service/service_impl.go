package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	businesssvc "github.com/smallbiznis/billbook/internal/business/service"
	"github.com/smallbiznis/billbook/internal/clock"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	"github.com/smallbiznis/billbook/internal/events"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	sequencedomain "github.com/smallbiznis/billbook/internal/sequence/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	usagedomain "github.com/smallbiznis/billbook/internal/usage/domain"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]{1,64}$`)

const maxDocumentNumberLength = 128

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      invoicedomain.Repository
	Business  businessdomain.Service
	Customers customerdomain.Service
	Products  productdomain.Service
	Sequence  sequencedomain.Service
	Usage     usagedomain.Service
	Tax       taxdomain.Calculator
	Publisher events.Publisher
	Audit     auditdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      invoicedomain.Repository
	business  businessdomain.Service
	customers customerdomain.Service
	products  productdomain.Service
	sequence  sequencedomain.Service
	usage     usagedomain.Service
	tax       taxdomain.Calculator
	publisher events.Publisher
	auditSvc  auditdomain.Service
}

func NewService(p ServiceParam) invoicedomain.Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		business:  p.Business,
		customers: p.Customers,
		products:  p.Products,
		sequence:  p.Sequence,
		usage:     p.Usage,
		tax:       p.Tax,
		publisher: publisher,
		auditSvc:  p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	id := strings.TrimSpace(req.ID)
	if id != "" {
		if !clientIDPattern.MatchString(id) {
			return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
		}
		existing, err := s.findOwned(ctx, orgID, id)
		if err == nil {
			return s.hydrateOne(ctx, *existing)
		}
		if !errors.Is(err, invoicedomain.ErrNotFound) {
			return invoicedomain.Invoice{}, err
		}
	} else {
		id = s.genID.Generate().String()
	}

	number := strings.TrimSpace(req.DocumentNumber)
	if len(number) > maxDocumentNumberLength {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidDocumentNumber
	}

	profile, err := s.business.GetProfile(ctx, orgID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	var created invoicedomain.Invoice
	err = pkgdb.WithTransaction(ctx, s.db, func(ctx context.Context) error {
		conn := pkgdb.Conn(ctx, s.db)
		now := s.clock.Now()

		var customer *customerdomain.Customer
		if customerID := strings.TrimSpace(req.CustomerID); customerID != "" {
			c, err := s.customers.GetByID(ctx, customerID)
			if err != nil {
				return err
			}
			customer = &c
		}

		lines, firstRate, err := s.buildLines(ctx, orgID, id, req.Items, now)
		if err != nil {
			return err
		}

		taxRate := firstRate
		if req.TaxRate != nil {
			taxRate = *req.TaxRate
		}

		invoice := invoicedomain.Invoice{
			ID:            id,
			OrgID:         orgID,
			DocumentType:  businesssvc.NormalizeDocumentType(req.DocumentType),
			Status:        invoicedomain.StatusDraft,
			InvoiceDate:   now,
			DueDate:       req.DueDate,
			Notes:         strings.TrimSpace(req.Notes),
			PlaceOfSupply: buyerState(req.PlaceOfSupply, customer),
			DiscountType:  normalizeDiscountType(req.DiscountType),
			DiscountValue: req.DiscountValue,
			TaxRate:       taxRate,
			CreatedAt:     now,
			UpdatedAt:     now,
			Customer:      customer,
		}
		if customer != nil {
			invoice.CustomerID = &customer.ID
		}
		if req.InvoiceDate != nil {
			invoice.InvoiceDate = req.InvoiceDate.UTC()
		}
		if err := s.applyTotals(&invoice, profile, lines); err != nil {
			return err
		}

		if number != "" {
			taken, err := s.repo.NumberTaken(ctx, conn, orgID, number)
			if err != nil {
				return err
			}
			if taken {
				return invoicedomain.ErrDuplicateNumber
			}
			invoice.DocumentNumber = number
		} else {
			alloc, err := s.sequence.Allocate(ctx, orgID, invoice.DocumentType)
			if err != nil {
				return err
			}
			invoice.DocumentNumber = alloc.Formatted
		}

		// Tenants without a draft workflow issue and settle at creation.
		issueNow := !profile.DraftWorkflow()
		if issueNow {
			if _, err := s.usage.CanIssue(ctx, orgID); err != nil {
				return err
			}
			invoice.Status = invoicedomain.StatusPaid
			invoice.IssuedAt = &now
			invoice.PaidAt = &now
		}

		if err := s.repo.Insert(ctx, conn, &invoice); err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return invoicedomain.ErrDuplicateNumber
			}
			return err
		}
		if err := s.repo.InsertItems(ctx, conn, lines); err != nil {
			return err
		}
		invoice.Items = lines

		if issueNow {
			if _, err := s.usage.Increment(ctx, orgID); err != nil {
				return err
			}
			s.publishAfterCommit(ctx, events.TopicInvoiceIssued, invoice)
			s.publishAfterCommit(ctx, events.TopicInvoicePaid, invoice)
		}
		if err := s.emitAudit(ctx, "invoice.created", &invoice, nil); err != nil {
			return err
		}

		created = invoice
		return nil
	})
	if err != nil {
		if errors.Is(err, invoicedomain.ErrDuplicateNumber) && strings.TrimSpace(req.ID) != "" {
			// Another device may have landed the same create first.
			if existing, findErr := s.findOwned(ctx, orgID, id); findErr == nil {
				return s.hydrateOne(ctx, *existing)
			}
		}
		return invoicedomain.Invoice{}, err
	}

	s.log.Debug("invoice created",
		zap.String("org_id", orgID.String()),
		zap.String("invoice_id", created.ID),
		zap.String("document_number", created.DocumentNumber),
		zap.String("status", string(created.Status)),
	)
	return created, nil
}

func (s *Service) Update(ctx context.Context, req invoicedomain.UpdateInvoiceRequest) (invoicedomain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}

	profile, err := s.business.GetProfile(ctx, orgID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	var updated invoicedomain.Invoice
	err = pkgdb.WithTransaction(ctx, s.db, func(ctx context.Context) error {
		conn := pkgdb.Conn(ctx, s.db)
		invoice, err := s.lockOwned(ctx, conn, orgID, id)
		if err != nil {
			return err
		}
		if invoice.Status != invoicedomain.StatusDraft {
			return invoicedomain.ErrNotEditable
		}
		now := s.clock.Now()

		var customer *customerdomain.Customer
		if req.CustomerID != nil {
			if customerID := strings.TrimSpace(*req.CustomerID); customerID != "" {
				c, err := s.customers.GetByID(ctx, customerID)
				if err != nil {
					return err
				}
				customer = &c
				invoice.CustomerID = &c.ID
			} else {
				invoice.CustomerID = nil
			}
			if req.PlaceOfSupply == nil {
				invoice.PlaceOfSupply = buyerState("", customer)
			}
		} else if invoice.CustomerID != nil {
			c, err := s.customers.GetByID(ctx, *invoice.CustomerID)
			if err != nil && !errors.Is(err, customerdomain.ErrNotFound) {
				return err
			}
			if err == nil {
				customer = &c
			}
		}
		invoice.Customer = customer

		if req.PlaceOfSupply != nil {
			invoice.PlaceOfSupply = buyerState(*req.PlaceOfSupply, customer)
		}
		if req.InvoiceDate != nil {
			invoice.InvoiceDate = req.InvoiceDate.UTC()
		}
		if req.DueDate != nil {
			invoice.DueDate = req.DueDate
		}
		if req.Notes != nil {
			invoice.Notes = strings.TrimSpace(*req.Notes)
		}
		if req.DiscountType != nil {
			invoice.DiscountType = normalizeDiscountType(*req.DiscountType)
		}
		if req.DiscountValue != nil {
			invoice.DiscountValue = *req.DiscountValue
		}
		if req.TaxRate != nil {
			invoice.TaxRate = *req.TaxRate
		}

		var lines []invoicedomain.LineItem
		if req.Items != nil {
			// Full replace: the client always sends the complete item list.
			lines, _, err = s.buildLines(ctx, orgID, invoice.ID, *req.Items, now)
			if err != nil {
				return err
			}
			if err := s.repo.DeleteItems(ctx, conn, invoice.ID); err != nil {
				return err
			}
			if err := s.repo.InsertItems(ctx, conn, lines); err != nil {
				return err
			}
		} else {
			lines, err = s.repo.ListItems(ctx, conn, []string{invoice.ID})
			if err != nil {
				return err
			}
		}

		if err := s.applyTotals(invoice, profile, lines); err != nil {
			return err
		}
		invoice.UpdatedAt = now
		if err := s.repo.Save(ctx, conn, invoice); err != nil {
			return err
		}
		invoice.Items = lines

		if err := s.emitAudit(ctx, "invoice.updated", invoice, map[string]any{
			"items_replaced": req.Items != nil,
		}); err != nil {
			return err
		}
		updated = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidID
	}
	invoice, err := s.findOwned(ctx, orgID, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice.Deleted() {
		return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
	}
	return s.hydrateOne(ctx, *invoice)
}

func (s *Service) ListUpdatedSince(ctx context.Context, since time.Time) ([]invoicedomain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListUpdatedSince(ctx, pkgdb.Conn(ctx, s.db), orgID, since)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, items)
}

func (s *Service) ListPage(ctx context.Context, after pagination.Cursor, limit int) ([]invoicedomain.Invoice, error) {
	orgID, err := s.orgIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListPage(ctx, pkgdb.Conn(ctx, s.db), orgID, after, limit)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, items)
}

// hydrate attaches line items and customers. Tombstones carry neither.
func (s *Service) hydrate(ctx context.Context, invoices []invoicedomain.Invoice) ([]invoicedomain.Invoice, error) {
	if len(invoices) == 0 {
		return []invoicedomain.Invoice{}, nil
	}
	live := lo.Filter(invoices, func(inv invoicedomain.Invoice, _ int) bool { return !inv.Deleted() })

	items, err := s.repo.ListItems(ctx, pkgdb.Conn(ctx, s.db), lo.Map(live, func(inv invoicedomain.Invoice, _ int) string {
		return inv.ID
	}))
	if err != nil {
		return nil, err
	}
	byInvoice := lo.GroupBy(items, func(item invoicedomain.LineItem) string { return item.InvoiceID })

	customerIDs := lo.Uniq(lo.FilterMap(live, func(inv invoicedomain.Invoice, _ int) (string, bool) {
		if inv.CustomerID == nil {
			return "", false
		}
		return *inv.CustomerID, true
	}))
	customers, err := s.customers.GetByIDs(ctx, customerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]invoicedomain.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		inv.Items = []invoicedomain.LineItem{}
		if !inv.Deleted() {
			if rows, ok := byInvoice[inv.ID]; ok {
				inv.Items = rows
			}
			if inv.CustomerID != nil {
				if c, ok := customers[*inv.CustomerID]; ok {
					inv.Customer = &c
				}
			}
		}
		out = append(out, inv)
	}
	return out, nil
}

func (s *Service) hydrateOne(ctx context.Context, invoice invoicedomain.Invoice) (invoicedomain.Invoice, error) {
	out, err := s.hydrate(ctx, []invoicedomain.Invoice{invoice})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return out[0], nil
}

func (s *Service) findOwned(ctx context.Context, orgID snowflake.ID, id string) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, pkgdb.Conn(ctx, s.db), id)
	if err != nil {
		return nil, err
	}
	return s.checkOwner(orgID, id, invoice)
}

func (s *Service) lockOwned(ctx context.Context, conn *gorm.DB, orgID snowflake.ID, id string) (*invoicedomain.Invoice, error) {
	invoice, err := s.repo.FindByIDForUpdate(ctx, conn, id)
	if err != nil {
		return nil, err
	}
	invoice, err = s.checkOwner(orgID, id, invoice)
	if err != nil {
		return nil, err
	}
	if invoice.Deleted() {
		return nil, invoicedomain.ErrNotFound
	}
	return invoice, nil
}

func (s *Service) checkOwner(orgID snowflake.ID, id string, invoice *invoicedomain.Invoice) (*invoicedomain.Invoice, error) {
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if invoice.OrgID != orgID {
		s.log.Warn("cross-tenant invoice access",
			zap.String("org_id", orgID.String()),
			zap.String("invoice_id", id),
		)
		return nil, invoicedomain.ErrForbidden
	}
	return invoice, nil
}

func (s *Service) orgIDFromContext(ctx context.Context) (snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return 0, invoicedomain.ErrInvalidOrganization
	}
	return orgID, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice, extra map[string]any) error {
	if s.auditSvc == nil || invoice == nil {
		return nil
	}
	metadata := map[string]any{
		"document_number": invoice.DocumentNumber,
		"document_type":   invoice.DocumentType,
		"status":          string(invoice.Status),
		"grand_total":     invoice.GrandTotal,
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	return s.auditSvc.Record(ctx, invoice.OrgID, auditdomain.Entry{
		Action:     action,
		TargetType: "invoice",
		TargetID:   invoice.ID,
		Metadata:   metadata,
	})
}

// publishAfterCommit defers the event until the outermost transaction commits.
func (s *Service) publishAfterCommit(ctx context.Context, topic string, invoice invoicedomain.Invoice) {
	evt := events.Event{
		Topic:      topic,
		OrgID:      invoice.OrgID.String(),
		OccurredAt: invoice.UpdatedAt,
		Data: map[string]any{
			"invoice_id":      invoice.ID,
			"document_number": invoice.DocumentNumber,
			"status":          string(invoice.Status),
			"grand_total":     invoice.GrandTotal,
		},
	}
	pkgdb.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.log.Warn("failed to publish invoice event",
				zap.String("topic", topic),
				zap.String("invoice_id", invoice.ID),
				zap.Error(err),
			)
		}
	})
}

func buyerState(explicit string, customer *customerdomain.Customer) string {
	if code := strings.TrimSpace(explicit); code != "" {
		return code
	}
	if customer != nil {
		return customer.StateCode
	}
	return ""
}

func normalizeDiscountType(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
