package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/product/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, sku, hsn_code, unit, unit_price, tax_rate, created_at, updated_at
		 FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []domain.Product
	err := db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id string, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Updates(fields).Error
}

func (r *repo) ListUpdatedSince(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).
		Where("org_id = ? AND updated_at > ?", orgID, since).
		Order("updated_at asc, id asc").
		Find(&items).Error
	return items, err
}

func (r *repo) ListPage(ctx context.Context, db *gorm.DB, orgID snowflake.ID, after pagination.Cursor, limit int) ([]domain.Product, error) {
	stmt := db.WithContext(ctx).Where("org_id = ?", orgID)
	if !after.IsZero() {
		stmt = stmt.Where("(updated_at < ? OR (updated_at = ? AND id < ?))", after.UpdatedAt, after.UpdatedAt, after.ID)
	}
	var items []domain.Product
	err := stmt.Order("updated_at desc, id desc").Limit(limit).Find(&items).Error
	return items, err
}
