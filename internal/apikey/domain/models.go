package domain

import (
	"context"
	"database/sql/driver"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// APIKey stores hashed credentials for one business. Devices present the
// plain key; only its hash is kept.
type APIKey struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	OrgID            snowflake.ID `gorm:"column:org_id;not null;index"`
	KeyID            string       `gorm:"column:key_id;type:varchar(64);not null;uniqueIndex:ux_api_keys_key_id"`
	Name             string       `gorm:"type:text;not null"`
	Scopes           Scopes       `gorm:"not null"`
	KeyHash          string       `gorm:"column:key_hash;type:text;not null"`
	IsActive         bool         `gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time    `gorm:"not null"`
	UpdatedAt        time.Time    `gorm:"not null"`
	LastUsedAt       *time.Time   `gorm:"column:last_used_at"`
	ExpiresAt        *time.Time   `gorm:"column:expires_at"`
	RotatedFromKeyID *string      `gorm:"column:rotated_from_key_id;type:text"`
}

func (APIKey) TableName() string { return "api_keys" }

// Usable reports whether the key may authenticate at now.
func (k *APIKey) Usable(now time.Time) bool {
	if k == nil || !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// Scopes is a postgres text[] column. Other dialects store the same array
// literal as text.
type Scopes pq.StringArray

func (s Scopes) Value() (driver.Value, error) {
	return pq.StringArray(s).Value()
}

func (s *Scopes) Scan(src any) error {
	return (*pq.StringArray)(s).Scan(src)
}

// GormDataType lets gorm treat the slice as a column rather than a relation.
func (Scopes) GormDataType() string {
	return "text"
}

func (Scopes) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	OrgID  snowflake.ID
	KeyID  string
	Scopes []string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
