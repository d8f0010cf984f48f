package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Entry struct {
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type Service interface {
	// Record writes through the transaction carried on ctx, so a rolled back
	// change leaves no trail.
	Record(ctx context.Context, orgID snowflake.ID, entry Entry) error
	ListForTarget(ctx context.Context, orgID snowflake.ID, targetType, targetID string) ([]AuditLog, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAction       = errors.New("invalid_action")
)
