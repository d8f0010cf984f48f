package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Product is a catalogue entry. UnitPrice is in paise; TaxRate is a percent.
type Product struct {
	ID        string          `json:"id" gorm:"primaryKey;type:varchar(64)"`
	OrgID     snowflake.ID    `json:"orgId" gorm:"column:org_id;not null;index:idx_products_org_updated,priority:1"`
	Name      string          `json:"name" gorm:"type:text;not null"`
	SKU       string          `json:"sku,omitempty" gorm:"column:sku;type:text"`
	HSNCode   string          `json:"hsnCode,omitempty" gorm:"column:hsn_code;type:text"`
	Unit      string          `json:"unit,omitempty" gorm:"type:text"`
	UnitPrice int64           `json:"unitPrice" gorm:"column:unit_price;not null"`
	TaxRate   decimal.Decimal `json:"taxRate" gorm:"column:tax_rate;type:numeric(5,2);not null"`
	CreatedAt time.Time       `json:"createdAt" gorm:"not null"`
	UpdatedAt time.Time       `json:"updatedAt" gorm:"not null;index:idx_products_org_updated,priority:2"`
}

func (Product) TableName() string { return "products" }
