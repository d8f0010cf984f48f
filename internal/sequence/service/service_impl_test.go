package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	businessrepo "github.com/smallbiznis/billbook/internal/business/repository"
	businesssvc "github.com/smallbiznis/billbook/internal/business/service"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/sequence/domain"
	"github.com/smallbiznis/billbook/internal/sequence/repository"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	business businessdomain.Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&businessdomain.Business{}, &domain.Sequence{}))
	require.NoError(t, db.Exec(`CREATE TABLE invoices (id TEXT PRIMARY KEY, org_id INTEGER NOT NULL, document_number TEXT NOT NULL)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	business := businesssvc.New(businesssvc.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  businessrepo.Provide(),
		Cfg:   config.Config{},
	})
	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Business: business,
	})
	return fixture{db: db, svc: svc, business: business}
}

func (f fixture) createBusiness(t *testing.T, req businessdomain.CreateBusinessRequest) snowflake.ID {
	t.Helper()
	if req.Name == "" {
		req.Name = "Acme"
	}
	b, err := f.business.Create(context.Background(), req)
	require.NoError(t, err)
	return b.ID
}

func (f fixture) insertInvoice(t *testing.T, orgID snowflake.ID, number string) {
	t.Helper()
	require.NoError(t, f.db.Exec(`INSERT INTO invoices (id, org_id, document_number) VALUES (?, ?, ?)`,
		fmt.Sprintf("%d-%s", orgID, number), orgID, number).Error)
}

func TestAllocateDefaults(t *testing.T) {
	f := setup(t)
	orgID := f.createBusiness(t, businessdomain.CreateBusinessRequest{})
	ctx := context.Background()

	first, err := f.svc.Allocate(ctx, orgID, "")
	require.NoError(t, err)
	second, err := f.svc.Allocate(ctx, orgID, "Invoice")
	require.NoError(t, err)

	assert.Equal(t, "INV-0001", first.Formatted)
	assert.Equal(t, "INV-0002", second.Formatted)
	assert.Equal(t, "invoice", second.DocumentType)
}

func TestAllocatePerTypeConfig(t *testing.T) {
	f := setup(t)
	orgID := f.createBusiness(t, businessdomain.CreateBusinessRequest{
		DocumentTypes: map[string]businessdomain.DocumentTypeSetting{
			"credit-note": {Prefix: "CN-", NextNumber: json.RawMessage(`5`), Padding: 3},
		},
	})

	alloc, err := f.svc.Allocate(context.Background(), orgID, "Credit Note")
	require.NoError(t, err)
	assert.Equal(t, "CN-005", alloc.Formatted)

	other, err := f.svc.Allocate(context.Background(), orgID, "quotation")
	require.NoError(t, err)
	assert.Equal(t, "QUOTATION-0001", other.Formatted)
}

func TestAllocateLegacyCounter(t *testing.T) {
	f := setup(t)
	orgID := f.createBusiness(t, businessdomain.CreateBusinessRequest{
		InvoicePrefix:     "ACME/",
		NextInvoiceNumber: "42",
	})

	alloc, err := f.svc.Allocate(context.Background(), orgID, "invoice")
	require.NoError(t, err)
	assert.Equal(t, "ACME/0042", alloc.Formatted)
}

func TestAllocateRepairsCorruptedLegacyCounter(t *testing.T) {
	f := setup(t)
	orgID := f.createBusiness(t, businessdomain.CreateBusinessRequest{
		InvoicePrefix:     "ACME/",
		NextInvoiceNumber: "4x2",
	})
	f.insertInvoice(t, orgID, "ACME/0007")
	f.insertInvoice(t, orgID, "ACME/DRAFT")

	alloc, err := f.svc.Allocate(context.Background(), orgID, "invoice")
	require.NoError(t, err)
	assert.Equal(t, "ACME/0008", alloc.Formatted)
}

func TestAllocateSkipsNumberClaimedByClient(t *testing.T) {
	f := setup(t)
	orgID := f.createBusiness(t, businessdomain.CreateBusinessRequest{})
	ctx := context.Background()

	_, err := f.svc.Allocate(ctx, orgID, "invoice")
	require.NoError(t, err)
	f.insertInvoice(t, orgID, "INV-0001")
	f.insertInvoice(t, orgID, "INV-0002")

	alloc, err := f.svc.Allocate(ctx, orgID, "invoice")
	require.NoError(t, err)
	assert.Equal(t, "INV-0003", alloc.Formatted)
}

func TestRollbackReleasesNumber(t *testing.T) {
	f := setup(t)
	orgID := f.createBusiness(t, businessdomain.CreateBusinessRequest{})
	ctx := context.Background()

	errBoom := errors.New("boom")
	err := pkgdb.WithTransaction(ctx, f.db, func(ctx context.Context) error {
		alloc, err := f.svc.Allocate(ctx, orgID, "invoice")
		require.NoError(t, err)
		assert.Equal(t, "INV-0001", alloc.Formatted)
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	alloc, err := f.svc.Allocate(ctx, orgID, "invoice")
	require.NoError(t, err)
	assert.Equal(t, "INV-0001", alloc.Formatted)
}

func TestConcurrentAllocationIsGapFree(t *testing.T) {
	f := setup(t)
	orgID := f.createBusiness(t, businessdomain.CreateBusinessRequest{NextInvoiceNumber: "100"})

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alloc, err := f.svc.Allocate(context.Background(), orgID, "invoice")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, alloc.Number)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numbers, workers)
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i, n := range numbers {
		assert.EqualValues(t, 100+i, n)
	}
}

func TestRepairResetsNonPositiveCounter(t *testing.T) {
	f := setup(t)
	orgID := f.createBusiness(t, businessdomain.CreateBusinessRequest{})
	ctx := context.Background()

	_, err := f.svc.Allocate(ctx, orgID, "invoice")
	require.NoError(t, err)
	f.insertInvoice(t, orgID, "INV-0009")
	require.NoError(t, f.db.Exec(`UPDATE document_sequences SET next_number = 0 WHERE org_id = ?`, orgID).Error)

	repaired, err := f.svc.RepairAll(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, repaired, 1)
	assert.EqualValues(t, 10, repaired[0].NextNumber)

	alloc, err := f.svc.Allocate(ctx, orgID, "invoice")
	require.NoError(t, err)
	assert.Equal(t, "INV-0010", alloc.Formatted)
}

func TestAllocateUnknownBusiness(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Allocate(context.Background(), snowflake.ID(77), "invoice")
	assert.ErrorIs(t, err, businessdomain.ErrNotFound)
}

func TestMaxNumericSuffix(t *testing.T) {
	numbers := []string{"INV-0003", "INV-0012", "INV-12a", "CN-0099", "INV-"}
	assert.EqualValues(t, 12, MaxNumericSuffix(numbers, "INV-"))
	assert.EqualValues(t, 0, MaxNumericSuffix(nil, "INV-"))
}
