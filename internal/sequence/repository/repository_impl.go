package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/sequence/domain"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectSequence = `SELECT org_id, document_type, prefix, padding, next_number, updated_at
	FROM document_sequences WHERE org_id = ? AND document_type = ?`

func (r *repo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID, documentType string) (*domain.Sequence, error) {
	return r.scanOne(ctx, db, selectSequence, orgID, documentType)
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, orgID snowflake.ID, documentType string) (*domain.Sequence, error) {
	return r.scanOne(ctx, db, selectSequence+pkgdb.LockSuffix(db), orgID, documentType)
}

func (r *repo) scanOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Sequence, error) {
	var seq domain.Sequence
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&seq).Error; err != nil {
		return nil, err
	}
	if seq.OrgID == 0 {
		return nil, nil
	}
	return &seq, nil
}

func (r *repo) ListByOrg(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]domain.Sequence, error) {
	var seqs []domain.Sequence
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("document_type asc").
		Find(&seqs).Error
	return seqs, err
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, seq *domain.Sequence) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(seq).Error
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, orgID snowflake.ID, documentType string, now time.Time) (*domain.Sequence, error) {
	if pkgdb.IsMySQL(db) {
		// No RETURNING on MySQL: lock the row, then bump it in the same transaction.
		seq, err := r.FindForUpdate(ctx, db, orgID, documentType)
		if err != nil || seq == nil {
			return seq, err
		}
		if err := r.SetNext(ctx, db, orgID, documentType, seq.NextNumber+1, now); err != nil {
			return nil, err
		}
		return seq, nil
	}

	var seq domain.Sequence
	err := db.WithContext(ctx).Raw(
		`UPDATE document_sequences
		 SET next_number = next_number + 1, updated_at = ?
		 WHERE org_id = ? AND document_type = ?
		 RETURNING org_id, document_type, prefix, padding, next_number, updated_at`,
		now,
		orgID,
		documentType,
	).Scan(&seq).Error
	if err != nil {
		return nil, err
	}
	if seq.OrgID == 0 {
		return nil, nil
	}
	seq.NextNumber--
	return &seq, nil
}

func (r *repo) SetNext(ctx context.Context, db *gorm.DB, orgID snowflake.ID, documentType string, next int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE document_sequences SET next_number = ?, updated_at = ? WHERE org_id = ? AND document_type = ?`,
		next,
		now,
		orgID,
		documentType,
	).Error
}

func (r *repo) ConsumedNumbers(ctx context.Context, db *gorm.DB, orgID snowflake.ID, prefix string) ([]string, error) {
	stmt := db.WithContext(ctx).
		Table("invoices").
		Where("org_id = ?", orgID)
	if prefix != "" && !strings.ContainsAny(prefix, `%_\`) {
		stmt = stmt.Where("document_number LIKE ?", prefix+"%")
	}
	var numbers []string
	if err := stmt.Pluck("document_number", &numbers).Error; err != nil {
		return nil, err
	}
	return numbers, nil
}

func (r *repo) NumberTaken(ctx context.Context, db *gorm.DB, orgID snowflake.ID, number string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Table("invoices").
		Where("org_id = ? AND document_number = ?", orgID, number).
		Count(&count).Error
	return count > 0, err
}
