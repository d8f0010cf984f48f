package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, customer *Customer) error
	// FindByID looks the id up across tenants so callers can tell a foreign
	// row apart from a missing one.
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Customer, error)
	FindByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []string) ([]Customer, error)
	Update(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id string, fields map[string]any) error
	ListUpdatedSince(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) ([]Customer, error)
	ListPage(ctx context.Context, db *gorm.DB, orgID snowflake.ID, after pagination.Cursor, limit int) ([]Customer, error)
}
