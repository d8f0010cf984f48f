package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

// LineItemInput is one client-supplied row. UnitPrice and Description fall
// back to the referenced product when omitted.
type LineItemInput struct {
	ProductID   string
	Description string
	HSNCode     string
	Quantity    decimal.Decimal
	UnitPrice   *int64
}

type CreateInvoiceRequest struct {
	ID             string
	CustomerID     string
	DocumentType   string
	DocumentNumber string
	InvoiceDate    *time.Time
	DueDate        *time.Time
	Notes          string
	PlaceOfSupply  string
	DiscountType   string
	DiscountValue  decimal.Decimal
	TaxRate        *decimal.Decimal
	Items          []LineItemInput
}

// UpdateInvoiceRequest leaves nil fields untouched. A non-nil Items replaces
// every existing line item.
type UpdateInvoiceRequest struct {
	ID            string
	CustomerID    *string
	InvoiceDate   *time.Time
	DueDate       *time.Time
	Notes         *string
	PlaceOfSupply *string
	DiscountType  *string
	DiscountValue *decimal.Decimal
	TaxRate       *decimal.Decimal
	Items         *[]LineItemInput
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	Update(ctx context.Context, req UpdateInvoiceRequest) (Invoice, error)
	Get(ctx context.Context, id string) (Invoice, error)

	Issue(ctx context.Context, id string) (Invoice, error)
	Pay(ctx context.Context, id string) (Invoice, error)
	Cancel(ctx context.Context, id, reason string) (Invoice, error)
	Void(ctx context.Context, id, reason string) (Invoice, error)
	Delete(ctx context.Context, id string) (Invoice, error)

	// ListUpdatedSince includes tombstones.
	ListUpdatedSince(ctx context.Context, since time.Time) ([]Invoice, error)
	// ListPage excludes tombstones.
	ListPage(ctx context.Context, after pagination.Cursor, limit int) ([]Invoice, error)
}

var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrInvalidID             = errors.New("invalid_invoice_id")
	ErrInvalidLineItem       = errors.New("invalid_line_item")
	ErrInvalidDocumentNumber = errors.New("invalid_document_number")
	ErrDuplicateNumber       = errors.New("duplicate_document_number")
	ErrNotFound              = errors.New("invoice_not_found")
	ErrForbidden             = errors.New("invoice_forbidden")
	ErrNotEditable           = errors.New("invoice_not_editable")
	ErrInvalidTransition     = errors.New("invalid_status_transition")
)
