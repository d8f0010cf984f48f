package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Product, error)
	Update(ctx context.Context, req UpdateRequest) (Product, error)
	Get(ctx context.Context, id string) (Product, error)
	// GetOwned resolves every id and fails if any is missing or foreign.
	GetOwned(ctx context.Context, ids []string) (map[string]Product, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]Product, error)
	ListPage(ctx context.Context, after pagination.Cursor, limit int) ([]Product, error)
}

type CreateRequest struct {
	ID        string
	Name      string
	SKU       string
	HSNCode   string
	Unit      string
	UnitPrice int64
	TaxRate   decimal.Decimal
}

type UpdateRequest struct {
	ID        string
	Name      *string
	SKU       *string
	HSNCode   *string
	Unit      *string
	UnitPrice *int64
	TaxRate   *decimal.Decimal
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_product_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidUnitPrice    = errors.New("invalid_unit_price")
	ErrInvalidTaxRate      = errors.New("invalid_tax_rate")
	ErrInvalidHSNCode      = errors.New("invalid_hsn_code")
	ErrNotFound            = errors.New("product_not_found")
	ErrForbidden           = errors.New("product_forbidden")
)
