package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Allocate consumes the next number inside the caller's transaction.
	Allocate(ctx context.Context, orgID snowflake.ID, documentType string) (Allocation, error)
	// Repair reseeds a counter from the highest consumed number.
	Repair(ctx context.Context, orgID snowflake.ID, documentType string) (Sequence, error)
	// RepairAll repairs every counter the tenant has.
	RepairAll(ctx context.Context, orgID snowflake.ID) ([]Sequence, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrAllocationConflict  = errors.New("sequence_allocation_conflict")
)
