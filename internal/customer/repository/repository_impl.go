package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/customer/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, customer *domain.Customer) error {
	return db.WithContext(ctx).Create(customer).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, phone, email, gstin, state_code, address, created_at, updated_at
		 FROM customers WHERE id = ?`,
		id,
	).Scan(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.ID == "" {
		return nil, nil
	}
	return &customer, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []string) ([]domain.Customer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var customers []domain.Customer
	err := db.WithContext(ctx).
		Where("org_id = ? AND id IN ?", orgID, ids).
		Find(&customers).Error
	return customers, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, orgID snowflake.ID, id string, fields map[string]any) error {
	return db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Updates(fields).Error
}

func (r *repo) ListUpdatedSince(ctx context.Context, db *gorm.DB, orgID snowflake.ID, since time.Time) ([]domain.Customer, error) {
	var customers []domain.Customer
	err := db.WithContext(ctx).
		Where("org_id = ? AND updated_at > ?", orgID, since).
		Order("updated_at asc, id asc").
		Find(&customers).Error
	return customers, err
}

func (r *repo) ListPage(ctx context.Context, db *gorm.DB, orgID snowflake.ID, after pagination.Cursor, limit int) ([]domain.Customer, error) {
	stmt := db.WithContext(ctx).Where("org_id = ?", orgID)
	if !after.IsZero() {
		stmt = stmt.Where("(updated_at < ? OR (updated_at = ? AND id < ?))", after.UpdatedAt, after.UpdatedAt, after.ID)
	}
	var customers []domain.Customer
	err := stmt.
		Order("updated_at desc, id desc").
		Limit(limit).
		Find(&customers).Error
	return customers, err
}
