package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

// Dispatcher applies a batch strictly in order. The returned slice always has
// one result per input mutation, in the same order.
type Dispatcher interface {
	Process(ctx context.Context, orgID snowflake.ID, mutations []Mutation) []Result
}

type Provider interface {
	// GetDelta returns every entity changed after since. A nil since means everything.
	GetDelta(ctx context.Context, orgID snowflake.ID, since *time.Time) (Delta, error)
	// GetFullSync returns one page of the bootstrap snapshot, newest first.
	GetFullSync(ctx context.Context, orgID snowflake.ID, pageToken string, pageSize int) (FullSync, error)
}

// Snapshot is the entity payload shared by delta and full sync responses.
type Snapshot struct {
	Invoices  []invoicedomain.Invoice   `json:"invoices"`
	Customers []customerdomain.Customer `json:"customers"`
	Products  []productdomain.Product   `json:"products"`
	SyncedAt  time.Time                 `json:"syncedAt"`
}

type Delta struct {
	Snapshot
}

type FullSync struct {
	Snapshot
	pagination.PageInfo
}
