package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/usage/domain"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectCounter = `SELECT org_id, month_key, issued_count, updated_at
	FROM usage_counters WHERE org_id = ? AND month_key = ?`

func (r *repo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, monthKey string) (*domain.Counter, error) {
	return r.scanOne(ctx, db, selectCounter, orgID, monthKey)
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, monthKey string) (*domain.Counter, error) {
	return r.scanOne(ctx, db, selectCounter+pkgdb.LockSuffix(db), orgID, monthKey)
}

func (r *repo) scanOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Counter, error) {
	var counter domain.Counter
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&counter).Error; err != nil {
		return nil, err
	}
	if counter.OrgID == 0 {
		return nil, nil
	}
	return &counter, nil
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, counter *domain.Counter) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(counter).Error
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, orgID snowflake.ID, monthKey string, now time.Time) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "org_id"}, {Name: "month_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"issued_count": gorm.Expr("usage_counters.issued_count + 1"),
				"updated_at":   now,
			}),
		}).
		Create(&domain.Counter{
			OrgID:       orgID,
			MonthKey:    monthKey,
			IssuedCount: 1,
			UpdatedAt:   now,
		}).Error
}

func (r *repo) CountIssued(ctx context.Context, db *gorm.DB, orgID snowflake.ID, from, to time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Table("invoices").
		Where("org_id = ? AND issued_at IS NOT NULL AND issued_at >= ? AND issued_at < ?", orgID, from, to).
		Count(&count).Error
	return count, err
}
