// Package testutil wires the service stack on an in-memory sqlite database
// for package tests that need more than one service.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	auditrepo "github.com/smallbiznis/billbook/internal/audit/repository"
	auditsvc "github.com/smallbiznis/billbook/internal/audit/service"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	businessrepo "github.com/smallbiznis/billbook/internal/business/repository"
	businesssvc "github.com/smallbiznis/billbook/internal/business/service"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	customerrepo "github.com/smallbiznis/billbook/internal/customer/repository"
	customersvc "github.com/smallbiznis/billbook/internal/customer/service"
	"github.com/smallbiznis/billbook/internal/events"
	idempotencydomain "github.com/smallbiznis/billbook/internal/idempotency/domain"
	idempotencyrepo "github.com/smallbiznis/billbook/internal/idempotency/repository"
	idempotencysvc "github.com/smallbiznis/billbook/internal/idempotency/service"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/billbook/internal/invoice/repository"
	invoicesvc "github.com/smallbiznis/billbook/internal/invoice/service"
	"github.com/smallbiznis/billbook/internal/migration"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	productrepo "github.com/smallbiznis/billbook/internal/product/repository"
	productsvc "github.com/smallbiznis/billbook/internal/product/service"
	sequencedomain "github.com/smallbiznis/billbook/internal/sequence/domain"
	sequencerepo "github.com/smallbiznis/billbook/internal/sequence/repository"
	sequencesvc "github.com/smallbiznis/billbook/internal/sequence/service"
	taxservice "github.com/smallbiznis/billbook/internal/tax/service"
	usagedomain "github.com/smallbiznis/billbook/internal/usage/domain"
	usagerepo "github.com/smallbiznis/billbook/internal/usage/repository"
	usagesvc "github.com/smallbiznis/billbook/internal/usage/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Epoch is the fake clock start used by every stack: mid-April 2024, IST.
var Epoch = time.Date(2024, 4, 15, 6, 0, 0, 0, time.UTC)

// Stack bundles the services a sync request touches.
type Stack struct {
	DB          *gorm.DB
	Clock       *clock.FakeClock
	Cfg         config.Config
	Node        *snowflake.Node
	Publisher   events.Publisher
	Business    businessdomain.Service
	Customers   customerdomain.Service
	Products    productdomain.Service
	Invoices    invoicedomain.Service
	Sequence    sequencedomain.Service
	Usage       usagedomain.Service
	Idempotency idempotencydomain.Service
	Audit       auditdomain.Service
}

type Option func(*options)

type options struct {
	cfg       config.Config
	publisher events.Publisher
}

// WithConfig overrides the default config.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithPublisher replaces the noop event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// DefaultConfig mirrors the env defaults that matter to services.
func DefaultConfig() config.Config {
	return config.Config{
		Sync: config.SyncConfig{
			BatchTimeout:     25 * time.Second,
			MaxBatchSize:     200,
			FullPageSize:     500,
			FullMaxPageSize:  2000,
			DefaultDocType:   "invoice",
			SerializeRetries: 3,
		},
		Idempotency: config.IdempotencyConfig{
			TTL:        config.DefaultIdempotencyTTL,
			SweepBatch: 500,
		},
		Usage: config.UsageConfig{
			Timezone:         "Asia/Kolkata",
			NearLimitPercent: 80,
		},
	}
}

// OpenDB opens a private in-memory database with the full schema.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection: nested non-tx queries inside a tx would deadlock, so
	// this also catches services that bypass the context transaction.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, migration.Run(db))
	return db
}

// NewStack builds every service against a fresh database.
func NewStack(t *testing.T, opts ...Option) *Stack {
	t.Helper()
	o := options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	publisher := o.publisher
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}

	db := OpenDB(t)
	log := zap.NewNop()
	fake := clock.NewFakeClock(Epoch)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	business := businesssvc.New(businesssvc.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  businessrepo.Provide(),
		Cfg:   o.cfg,
	})
	customers := customersvc.New(customersvc.Params{DB: db, Log: log, GenID: node, Clock: fake, Repo: customerrepo.Provide()})
	products := productsvc.New(productsvc.Params{DB: db, Log: log, GenID: node, Clock: fake, Repo: productrepo.Provide()})
	audit := auditsvc.NewService(auditsvc.Params{DB: db, Log: log, GenID: node, Clock: fake, Repo: auditrepo.Provide()})
	sequence := sequencesvc.New(sequencesvc.Params{
		DB:       db,
		Log:      log,
		Clock:    fake,
		Repo:     sequencerepo.Provide(),
		Business: business,
	})
	usage, err := usagesvc.New(usagesvc.Params{
		DB:        db,
		Log:       log,
		Clock:     fake,
		Repo:      usagerepo.Provide(),
		Business:  business,
		Plans:     config.NewStaticPlanConfigHolder(config.DefaultPlanConfig()),
		Cfg:       o.cfg,
		Publisher: publisher,
	})
	require.NoError(t, err)
	idempotency := idempotencysvc.New(idempotencysvc.Params{
		DB:    db,
		Log:   log,
		Clock: fake,
		Repo:  idempotencyrepo.Provide(),
		Cfg:   o.cfg,
	})
	invoices := invoicesvc.NewService(invoicesvc.ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Repo:      invoicerepo.Provide(),
		Business:  business,
		Customers: customers,
		Products:  products,
		Sequence:  sequence,
		Usage:     usage,
		Tax:       taxservice.NewCalculator(),
		Publisher: publisher,
		Audit:     audit,
	})

	return &Stack{
		DB:          db,
		Clock:       fake,
		Cfg:         o.cfg,
		Node:        node,
		Publisher:   publisher,
		Business:    business,
		Customers:   customers,
		Products:    products,
		Invoices:    invoices,
		Sequence:    sequence,
		Usage:       usage,
		Idempotency: idempotency,
		Audit:       audit,
	}
}

// Tenant creates a business and returns a context scoped to it.
func (s *Stack) Tenant(t *testing.T, req businessdomain.CreateBusinessRequest) (context.Context, snowflake.ID) {
	t.Helper()
	if req.Name == "" {
		req.Name = "Sharma Traders"
	}
	business, err := s.Business.Create(context.Background(), req)
	require.NoError(t, err)
	return orgcontext.WithOrgID(context.Background(), business.ID), business.ID
}

// RegisteredTenant is a GST-registered Maharashtra business on the free plan.
func (s *Stack) RegisteredTenant(t *testing.T) (context.Context, snowflake.ID) {
	t.Helper()
	return s.Tenant(t, businessdomain.CreateBusinessRequest{
		PlanCode:      "free",
		GSTIN:         "27AAPFU0939F1ZV",
		StateCode:     "27",
		GSTRegistered: true,
		InvoicePrefix: "INV-",
	})
}

func Int64(v int64) *int64 { return &v }

func String(v string) *string { return &v }
