package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateBusinessRequest struct {
	Name                 string
	PlanCode             string
	GSTIN                string
	StateCode            string
	GSTRegistered        bool
	DisableDraftWorkflow bool
	InvoicePrefix        string
	NextInvoiceNumber    string
	DocumentTypes        map[string]DocumentTypeSetting
	MonthlyInvoiceLimit  *int64
}

type Service interface {
	Create(ctx context.Context, req CreateBusinessRequest) (Business, error)
	GetProfile(ctx context.Context, id snowflake.ID) (Profile, error)
	Invalidate(id snowflake.ID)
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrNotFound    = errors.New("business_not_found")
)
