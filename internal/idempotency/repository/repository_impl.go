package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/idempotency/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*domain.Record, error) {
	var record domain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT idempotency_key, org_id, mutation_type, fingerprint, result, created_at
		 FROM idempotency_records WHERE org_id = ? AND idempotency_key = ?`,
		orgID,
		key,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.Key == "" {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}, {Name: "org_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"mutation_type", "fingerprint", "result", "created_at"}),
	}).Create(record).Error
}

func (r *repo) DeleteIfCreatedAt(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string, createdAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM idempotency_records WHERE org_id = ? AND idempotency_key = ? AND created_at <= ?`,
		orgID,
		key,
		createdAt,
	).Error
}

func (r *repo) ListExpired(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Record, error) {
	var records []domain.Record
	err := db.WithContext(ctx).
		Select("idempotency_key", "org_id").
		Where("created_at < ?", cutoff).
		Order("created_at asc").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *repo) DeleteExpired(ctx context.Context, db *gorm.DB, orgID snowflake.ID, keys []string, cutoff time.Time) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`DELETE FROM idempotency_records WHERE org_id = ? AND idempotency_key IN ? AND created_at < ?`,
		orgID,
		keys,
		cutoff,
	)
	return res.RowsAffected, res.Error
}
