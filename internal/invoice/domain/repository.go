package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	// FindByID ignores tenant scope so the service can report foreign rows as forbidden.
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id string) (*Invoice, error)
	Save(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	NumberTaken(ctx context.Context, db *gorm.DB, orgID snowflake.ID, number string) (bool, error)
	ListUpdatedSince(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) ([]Invoice, error)
	ListPage(ctx context.Context, db *gorm.DB, orgID snowflake.ID, after pagination.Cursor, limit int) ([]Invoice, error)

	InsertItems(ctx context.Context, db *gorm.DB, items []LineItem) error
	DeleteItems(ctx context.Context, db *gorm.DB, invoiceID string) error
	ListItems(ctx context.Context, db *gorm.DB, invoiceIDs []string) ([]LineItem, error)
}
