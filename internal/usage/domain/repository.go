package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, monthKey string) (*Counter, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, monthKey string) (*Counter, error)
	InsertIfAbsent(ctx context.Context, db *gorm.DB, counter *Counter) error
	Increment(ctx context.Context, db *gorm.DB, orgID snowflake.ID, monthKey string, now time.Time) error
	CountIssued(ctx context.Context, db *gorm.DB, orgID snowflake.ID, from, to time.Time) (int64, error)
}
