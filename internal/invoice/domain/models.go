// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
)

// Status represents the invoice lifecycle states.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusIssued    Status = "ISSUED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
	StatusVoid      Status = "VOID"
)

// Invoice is a tenant document. Amounts are in paise and always derived from
// the current line items. A non-nil DeletedAt marks a tombstone kept so delta
// sync can tell clients to drop the row.
type Invoice struct {
	ID             string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OrgID          snowflake.ID    `gorm:"not null;uniqueIndex:ux_invoices_org_number,priority:1;index:idx_invoices_org_updated,priority:1" json:"orgId"`
	CustomerID     *string         `gorm:"type:varchar(64);index" json:"customerId,omitempty"`
	DocumentType   string          `gorm:"type:varchar(64);not null" json:"documentType"`
	DocumentNumber string          `gorm:"type:varchar(128);not null;uniqueIndex:ux_invoices_org_number,priority:2" json:"documentNumber"`
	Status         Status          `gorm:"type:varchar(16);not null" json:"status"`
	InvoiceDate    time.Time       `gorm:"not null" json:"invoiceDate"`
	DueDate        *time.Time      `json:"dueDate,omitempty"`
	Notes          string          `gorm:"type:text" json:"notes,omitempty"`
	PlaceOfSupply  string          `gorm:"type:varchar(8)" json:"placeOfSupply,omitempty"`
	DiscountType   string          `gorm:"type:varchar(16)" json:"discountType,omitempty"`
	DiscountValue  decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"discountValue"`
	TaxRate        decimal.Decimal `gorm:"type:numeric(5,2);not null" json:"taxRate"`
	TaxMode        string          `gorm:"type:varchar(16);not null" json:"taxMode"`
	Subtotal       int64           `gorm:"not null" json:"subtotal"`
	DiscountAmount int64           `gorm:"not null" json:"discountAmount"`
	TaxableAmount  int64           `gorm:"not null" json:"taxableAmount"`
	CGST           int64           `gorm:"column:cgst;not null" json:"cgst"`
	SGST           int64           `gorm:"column:sgst;not null" json:"sgst"`
	IGST           int64           `gorm:"column:igst;not null" json:"igst"`
	TaxTotal       int64           `gorm:"not null" json:"taxTotal"`
	GrandTotal     int64           `gorm:"not null" json:"grandTotal"`
	IssuedAt       *time.Time      `gorm:"index" json:"issuedAt,omitempty"`
	PaidAt         *time.Time      `json:"paidAt,omitempty"`
	CancelledAt    *time.Time      `json:"cancelledAt,omitempty"`
	VoidedAt       *time.Time      `json:"voidedAt,omitempty"`
	DeletedAt      *time.Time      `gorm:"index" json:"deletedAt,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"not null;index:idx_invoices_org_updated,priority:2" json:"updatedAt"`

	Items    []LineItem               `gorm:"-" json:"items"`
	Customer *customerdomain.Customer `gorm:"-" json:"customer,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Deleted reports whether the invoice is a tombstone.
func (i Invoice) Deleted() bool { return i.DeletedAt != nil }

// LineItem is one priced row of an invoice. It never outlives its invoice.
type LineItem struct {
	ID          string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OrgID       snowflake.ID    `gorm:"not null" json:"-"`
	InvoiceID   string          `gorm:"type:varchar(64);not null;index" json:"invoiceId"`
	ProductID   *string         `gorm:"type:varchar(64)" json:"productId,omitempty"`
	Position    int             `gorm:"not null" json:"position"`
	Description string          `gorm:"type:text;not null" json:"description"`
	HSNCode     string          `gorm:"column:hsn_code;type:text" json:"hsnCode,omitempty"`
	Quantity    decimal.Decimal `gorm:"type:numeric(18,3);not null" json:"quantity"`
	UnitPrice   int64           `gorm:"not null" json:"unitPrice"`
	Amount      int64           `gorm:"not null" json:"amount"`
	CreatedAt   time.Time       `gorm:"not null" json:"createdAt"`
}

// TableName sets the database table name.
func (LineItem) TableName() string { return "invoice_line_items" }
