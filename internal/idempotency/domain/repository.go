package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*Record, error)
	Upsert(ctx context.Context, db *gorm.DB, record *Record) error
	DeleteIfCreatedAt(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string, createdAt time.Time) error
	ListExpired(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Record, error)
	DeleteExpired(ctx context.Context, db *gorm.DB, orgID snowflake.ID, keys []string, cutoff time.Time) (int64, error)
}
