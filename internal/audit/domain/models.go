package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog records one state change of a tenant document.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID      `gorm:"not null;index:idx_audit_logs_target,priority:1" json:"orgId"`
	ActorType  string            `gorm:"type:text;not null" json:"actorType"`
	ActorID    *string           `gorm:"type:text" json:"actorId,omitempty"`
	Action     string            `gorm:"type:text;not null" json:"action"`
	TargetType string            `gorm:"type:text;not null;index:idx_audit_logs_target,priority:2" json:"targetType"`
	TargetID   string            `gorm:"type:text;not null;index:idx_audit_logs_target,priority:3" json:"targetId"`
	RequestID  string            `gorm:"type:text" json:"requestId,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"createdAt"`
}

func (AuditLog) TableName() string { return "audit_logs" }
