package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	"github.com/smallbiznis/billbook/internal/sync/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultFullPageSize = 500
	maxFullPageSize     = 2000
)

const (
	cursorInvoices  = "invoices"
	cursorCustomers = "customers"
	cursorProducts  = "products"
)

type ProviderParams struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Cfg       config.Config
	Invoices  invoicedomain.Service
	Customers customerdomain.Service
	Products  productdomain.Service
}

type Provider struct {
	log       *zap.Logger
	clock     clock.Clock
	invoices  invoicedomain.Service
	customers customerdomain.Service
	products  productdomain.Service
	pageSize  int
	maxPage   int
	commitLag time.Duration
}

func NewProvider(p ProviderParams) domain.Provider {
	pageSize := p.Cfg.Sync.FullPageSize
	if pageSize <= 0 {
		pageSize = defaultFullPageSize
	}
	maxPage := p.Cfg.Sync.FullMaxPageSize
	if maxPage <= 0 {
		maxPage = maxFullPageSize
	}
	if pageSize > maxPage {
		pageSize = maxPage
	}
	return &Provider{
		log:       p.Log.Named("sync.provider"),
		clock:     p.Clock,
		invoices:  p.Invoices,
		customers: p.Customers,
		products:  p.Products,
		pageSize:  pageSize,
		maxPage:   maxPage,
		commitLag: max(p.Cfg.Sync.CommitLag, 0),
	}
}

func (p *Provider) GetDelta(ctx context.Context, orgID snowflake.ID, since *time.Time) (domain.Delta, error) {
	if orgID == 0 {
		return domain.Delta{}, invoicedomain.ErrInvalidOrganization
	}
	ctx = orgcontext.WithOrgID(ctx, orgID)

	watermark := time.Unix(0, 0).UTC()
	if since != nil {
		watermark = since.UTC()
	}
	syncedAt := p.syncedAt(watermark)

	snapshot := domain.Snapshot{SyncedAt: syncedAt}
	g := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	g.Go(func(ctx context.Context) error {
		items, err := p.invoices.ListUpdatedSince(ctx, watermark)
		snapshot.Invoices = items
		return err
	})
	g.Go(func(ctx context.Context) error {
		items, err := p.customers.ListUpdatedSince(ctx, watermark)
		snapshot.Customers = items
		return err
	})
	g.Go(func(ctx context.Context) error {
		items, err := p.products.ListUpdatedSince(ctx, watermark)
		snapshot.Products = items
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Delta{}, err
	}
	normalize(&snapshot)

	p.log.Debug("delta sync",
		zap.String("org_id", orgID.String()),
		zap.Time("since", watermark),
		zap.Int("invoices", len(snapshot.Invoices)),
		zap.Int("customers", len(snapshot.Customers)),
		zap.Int("products", len(snapshot.Products)),
	)
	return domain.Delta{Snapshot: snapshot}, nil
}

// syncedAt is captured before reading and held back by the commit lag. Rows
// are stamped inside their transaction, so one stamped before now may commit
// after the reads; it stays above the returned watermark. The watermark never
// moves backwards.
func (p *Provider) syncedAt(since time.Time) time.Time {
	at := p.clock.Now().Add(-p.commitLag)
	if at.Before(since) {
		return since
	}
	return at
}

// GetFullSync pages each entity type independently with its own keyset
// cursor. The token carries all three, and an exhausted type is marked done.
func (p *Provider) GetFullSync(ctx context.Context, orgID snowflake.ID, pageToken string, pageSize int) (domain.FullSync, error) {
	if orgID == 0 {
		return domain.FullSync{}, invoicedomain.ErrInvalidOrganization
	}
	ctx = orgcontext.WithOrgID(ctx, orgID)

	cursors := map[string]pagination.Cursor{}
	if err := pagination.DecodeCursor(pageToken, &cursors); err != nil {
		return domain.FullSync{}, err
	}
	limit := pagination.ClampPageSize(pageSize, p.pageSize, p.maxPage)
	syncedAt := p.syncedAt(time.Time{})

	snapshot := domain.Snapshot{SyncedAt: syncedAt}
	next := map[string]pagination.Cursor{}

	invoices, cursor, err := fetchPage(ctx, cursors[cursorInvoices], limit, p.invoices.ListPage, func(inv invoicedomain.Invoice) pagination.Cursor {
		return pagination.Cursor{ID: inv.ID, UpdatedAt: inv.UpdatedAt}
	})
	if err != nil {
		return domain.FullSync{}, err
	}
	snapshot.Invoices, next[cursorInvoices] = invoices, cursor

	customers, cursor, err := fetchPage(ctx, cursors[cursorCustomers], limit, p.customers.ListPage, func(c customerdomain.Customer) pagination.Cursor {
		return pagination.Cursor{ID: c.ID, UpdatedAt: c.UpdatedAt}
	})
	if err != nil {
		return domain.FullSync{}, err
	}
	snapshot.Customers, next[cursorCustomers] = customers, cursor

	products, cursor, err := fetchPage(ctx, cursors[cursorProducts], limit, p.products.ListPage, func(pr productdomain.Product) pagination.Cursor {
		return pagination.Cursor{ID: pr.ID, UpdatedAt: pr.UpdatedAt}
	})
	if err != nil {
		return domain.FullSync{}, err
	}
	snapshot.Products, next[cursorProducts] = products, cursor
	normalize(&snapshot)

	out := domain.FullSync{Snapshot: snapshot}
	for _, c := range next {
		if !c.Done {
			out.HasMore = true
			break
		}
	}
	if out.HasMore {
		token, err := pagination.EncodeCursor(next)
		if err != nil {
			return domain.FullSync{}, err
		}
		out.NextPageToken = token
	}
	return out, nil
}

// fetchPage reads one extra row to learn whether the type has more pages.
func fetchPage[T any](
	ctx context.Context,
	after pagination.Cursor,
	limit int,
	list func(ctx context.Context, after pagination.Cursor, limit int) ([]T, error),
	cursorOf func(T) pagination.Cursor,
) ([]T, pagination.Cursor, error) {
	if after.Done {
		return []T{}, after, nil
	}
	items, err := list(ctx, after, limit+1)
	if err != nil {
		return nil, pagination.Cursor{}, err
	}
	items, more := pagination.Trim(items, limit)
	if !more {
		return items, pagination.Cursor{Done: true}, nil
	}
	return items, cursorOf(items[len(items)-1]), nil
}

// normalize keeps empty collections as [] on the wire.
func normalize(s *domain.Snapshot) {
	if s.Invoices == nil {
		s.Invoices = []invoicedomain.Invoice{}
	}
	if s.Customers == nil {
		s.Customers = []customerdomain.Customer{}
	}
	if s.Products == nil {
		s.Products = []productdomain.Product{}
	}
}
