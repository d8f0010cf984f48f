package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/billbook/internal/apikey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

// mutableColumns are rewritten by Update. UpdateColumns keeps updated_at
// on the service clock.
var mutableColumns = []string{
	"name", "scopes", "key_hash", "is_active", "updated_at",
	"last_used_at", "expires_at", "rotated_from_key_id",
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Create(key).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).
		Model(&apikeydomain.APIKey{}).
		Where("org_id = ? AND key_id = ?", key.OrgID, key.KeyID).
		Select(mutableColumns).
		UpdateColumns(key).Error
}

// FindByKeyID looks a key up across tenants; authentication only knows the
// key id. A missing key returns nil, nil.
func (r *repo) FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	if err := db.WithContext(ctx).Where("key_id = ?", keyID).Limit(1).Find(&keys).Error; err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return &keys[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at desc, id desc").
		Find(&keys).Error
	return keys, err
}

// TouchLastUsed only moves last_used_at forward.
func (r *repo) TouchLastUsed(ctx context.Context, db *gorm.DB, keyID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&apikeydomain.APIKey{}).
		Where("key_id = ? AND (last_used_at IS NULL OR last_used_at < ?)", keyID, at).
		UpdateColumn("last_used_at", at).Error
}
