package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Customer ids are strings because offline clients mint them before the
// server ever sees the row.
type Customer struct {
	ID        string       `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index:idx_customers_org_updated,priority:1" json:"orgId"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Phone     string       `gorm:"type:text" json:"phone,omitempty"`
	Email     string       `gorm:"type:text" json:"email,omitempty"`
	GSTIN     string       `gorm:"column:gstin;type:text" json:"gstin,omitempty"`
	StateCode string       `gorm:"column:state_code;type:text" json:"stateCode,omitempty"`
	Address   string       `gorm:"type:text" json:"address,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time    `gorm:"not null;index:idx_customers_org_updated,priority:2" json:"updatedAt"`
}

func (Customer) TableName() string { return "customers" }
