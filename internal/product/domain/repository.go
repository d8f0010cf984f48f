package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Product, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]Product, error)
	Update(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id string, fields map[string]any) error
	ListUpdatedSince(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) ([]Product, error)
	ListPage(ctx context.Context, db *gorm.DB, orgID snowflake.ID, after pagination.Cursor, limit int) ([]Product, error)
}
