package domain

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type SaveRequest struct {
	MutationType string
	Fingerprint  string
	Result       json.RawMessage
}

type Service interface {
	// Check returns the live record for key, or nil. An expired record is purged.
	Check(ctx context.Context, orgID snowflake.ID, key string) (*Record, error)
	// Lookup is Check plus the payload guard applied in strict mode.
	Lookup(ctx context.Context, orgID snowflake.ID, key, fingerprint string) (*Record, error)
	// Save upserts the result, overwriting any previous record and resetting its age.
	Save(ctx context.Context, orgID snowflake.ID, key string, req SaveRequest) error
	// PurgeExpired deletes up to limit expired records and reports how many went.
	PurgeExpired(ctx context.Context, limit int) (int64, error)
}

var (
	ErrEmptyKey        = errors.New("empty_idempotency_key")
	ErrPayloadMismatch = errors.New("idempotency_key_reused")
)
