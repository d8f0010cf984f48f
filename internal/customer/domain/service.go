package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

type CreateCustomerRequest struct {
	ID        string
	Name      string
	Phone     string
	Email     string
	GSTIN     string
	StateCode string
	Address   string
}

// UpdateCustomerRequest applies only the non-nil fields.
type UpdateCustomerRequest struct {
	ID        string
	Name      *string
	Phone     *string
	Email     *string
	GSTIN     *string
	StateCode *string
	Address   *string
}

type Service interface {
	Create(ctx context.Context, req CreateCustomerRequest) (Customer, error)
	Update(ctx context.Context, req UpdateCustomerRequest) (Customer, error)
	// GetByID enforces tenant ownership.
	GetByID(ctx context.Context, id string) (Customer, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]Customer, error)
	ListUpdatedSince(ctx context.Context, since time.Time) ([]Customer, error)
	ListPage(ctx context.Context, after pagination.Cursor, limit int) ([]Customer, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_customer_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidGSTIN        = errors.New("invalid_gstin")
	ErrNotFound            = errors.New("customer_not_found")
	ErrForbidden           = errors.New("customer_forbidden")
)
