// Package domain contains the monthly issuance counters behind the quota gate.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Counter tracks documents issued by a tenant in one billing month. It only
// ever grows.
type Counter struct {
	OrgID       snowflake.ID `gorm:"column:org_id;primaryKey" json:"org_id"`
	MonthKey    string       `gorm:"column:month_key;primaryKey;type:varchar(7)" json:"month_key"`
	IssuedCount int64        `gorm:"column:issued_count;not null" json:"issued_count"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Counter) TableName() string { return "usage_counters" }

// Snapshot is the usage state returned to callers and embedded in quota errors.
type Snapshot struct {
	Plan      string `json:"plan"`
	Limit     int64  `json:"limit"`
	Used      int64  `json:"used"`
	Month     string `json:"month"`
	Unlimited bool   `json:"unlimited"`
}

// Remaining is zero for exhausted or unlimited plans.
func (s Snapshot) Remaining() int64 {
	if s.Unlimited || s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// QuotaExceededError carries the usage snapshot so clients can render an
// upgrade prompt without a follow-up call.
type QuotaExceededError struct {
	Limit int64
	Used  int64
	Month string
	Plan  string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota_exceeded: %d of %d documents issued in %s", e.Used, e.Limit, e.Month)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Details renders the snapshot for API error payloads.
func (e *QuotaExceededError) Details() map[string]any {
	return map[string]any{
		"limit": e.Limit,
		"used":  e.Used,
		"month": e.Month,
		"plan":  e.Plan,
	}
}
