package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Record caches the outcome of the first mutation executed under a key.
type Record struct {
	Key          string         `gorm:"column:idempotency_key;primaryKey;type:varchar(255)" json:"key"`
	OrgID        snowflake.ID   `gorm:"column:org_id;primaryKey" json:"org_id"`
	MutationType string         `gorm:"column:mutation_type;type:varchar(64);not null" json:"mutation_type"`
	Fingerprint  string         `gorm:"column:fingerprint;type:varchar(64);not null" json:"fingerprint"`
	Result       datatypes.JSON `gorm:"column:result;not null" json:"result"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (Record) TableName() string { return "idempotency_records" }
