package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

const DefaultPadding = 4

// Sequence is the per-tenant, per-document-type counter. NextNumber is the
// number the next allocation hands out.
type Sequence struct {
	OrgID        snowflake.ID `gorm:"column:org_id;primaryKey" json:"org_id"`
	DocumentType string       `gorm:"column:document_type;primaryKey;type:varchar(64)" json:"document_type"`
	Prefix       string       `gorm:"column:prefix;type:varchar(64);not null" json:"prefix"`
	Padding      int          `gorm:"column:padding;not null" json:"padding"`
	NextNumber   int64        `gorm:"column:next_number;not null" json:"next_number"`
	UpdatedAt    time.Time    `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Sequence) TableName() string { return "document_sequences" }

// Allocation is one consumed document number.
type Allocation struct {
	DocumentType string `json:"documentType"`
	Prefix       string `json:"prefix"`
	Number       int64  `json:"number"`
	Formatted    string `json:"formatted"`
}

// Format renders prefix plus the zero-padded number.
func Format(prefix string, padding int, number int64) string {
	if padding <= 0 {
		padding = DefaultPadding
	}
	return fmt.Sprintf("%s%0*d", prefix, padding, number)
}
