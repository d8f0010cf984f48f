package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	MonthKey(t time.Time) string
	// CanIssue locks the current month's counter and fails with
	// *QuotaExceededError when the tenant has no issuance left.
	CanIssue(ctx context.Context, orgID snowflake.ID) (Snapshot, error)
	// Increment records one issuance. Call only after the entity write succeeded.
	Increment(ctx context.Context, orgID snowflake.ID) (Snapshot, error)
	Current(ctx context.Context, orgID snowflake.ID) (Snapshot, error)
}

var (
	ErrQuotaExceeded       = errors.New("quota_exceeded")
	ErrInvalidOrganization = errors.New("invalid_organization")
)
