package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/business/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, business *domain.Business) error {
	return db.WithContext(ctx).Create(business).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Business, error) {
	var business domain.Business
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, plan_code, gstin, state_code, gst_registered, disable_draft_workflow,
		        invoice_prefix, next_invoice_number, document_type_config, monthly_invoice_limit,
		        created_at, updated_at
		 FROM businesses WHERE id = ?`,
		id,
	).Scan(&business).Error
	if err != nil {
		return nil, err
	}
	if business.ID == 0 {
		return nil, nil
	}
	return &business, nil
}
