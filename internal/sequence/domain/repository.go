package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, documentType string) (*Sequence, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, documentType string) (*Sequence, error)
	ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Sequence, error)
	InsertIfAbsent(ctx context.Context, db *gorm.DB, seq *Sequence) error
	// Increment bumps next_number and returns the row as it was before the bump.
	Increment(ctx context.Context, db *gorm.DB, orgID snowflake.ID, documentType string, now time.Time) (*Sequence, error)
	SetNext(ctx context.Context, db *gorm.DB, orgID snowflake.ID, documentType string, next int64, now time.Time) error
	ConsumedNumbers(ctx context.Context, db *gorm.DB, orgID snowflake.ID, prefix string) ([]string, error)
	NumberTaken(ctx context.Context, db *gorm.DB, orgID snowflake.ID, number string) (bool, error)
}
