package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/invoice/domain"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == "" {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := pkgdb.ForUpdate(db.WithContext(ctx)).Where("id = ?", id).Limit(1).Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == "" {
		return nil, nil
	}
	return &invoice, nil
}

// Save rewrites every column but created_at. UpdateColumns keeps the caller's
// updated_at, which delta sync compares against watermarks.
func (r *repo) Save(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Select("*").Omit("created_at").UpdateColumns(invoice).Error
}

func (r *repo) NumberTaken(ctx context.Context, db *gorm.DB, orgID snowflake.ID, number string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("org_id = ? AND document_number = ?", orgID, number).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) ListUpdatedSince(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := db.WithContext(ctx).
		Where("org_id = ? AND updated_at > ?", orgID, since).
		Order("updated_at asc, id asc").
		Find(&items).Error
	return items, err
}

func (r *repo) ListPage(ctx context.Context, db *gorm.DB, orgID snowflake.ID, after pagination.Cursor, limit int) ([]domain.Invoice, error) {
	stmt := db.WithContext(ctx).Where("org_id = ? AND deleted_at IS NULL", orgID)
	if !after.IsZero() {
		stmt = stmt.Where("(updated_at < ? OR (updated_at = ? AND id < ?))", after.UpdatedAt, after.UpdatedAt, after.ID)
	}
	var items []domain.Invoice
	err := stmt.Order("updated_at desc, id desc").Limit(limit).Find(&items).Error
	return items, err
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []domain.LineItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(items, 100).Error
}

func (r *repo) DeleteItems(ctx context.Context, db *gorm.DB, invoiceID string) error {
	return db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Delete(&domain.LineItem{}).Error
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceIDs []string) ([]domain.LineItem, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	var items []domain.LineItem
	err := db.WithContext(ctx).
		Where("invoice_id IN ?", invoiceIDs).
		Order("invoice_id asc, position asc").
		Find(&items).Error
	return items, err
}
