package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	ScopeSyncRead  = "sync:read"
	ScopeSyncWrite = "sync:write"
	ScopeInvoices  = "invoices:write"
	ScopeAdmin     = "admin"
)

// DefaultScopes is granted to device keys created without explicit scopes.
var DefaultScopes = []string{ScopeSyncRead, ScopeSyncWrite, ScopeInvoices}

// AllScopes lists every scope a key may carry.
var AllScopes = []string{ScopeSyncRead, ScopeSyncWrite, ScopeInvoices, ScopeAdmin}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	Update(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByKeyID(ctx context.Context, db *gorm.DB, keyID string) (*APIKey, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]APIKey, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, keyID string, at time.Time) error
}

type Service interface {
	List(ctx context.Context, orgID snowflake.ID) ([]Response, error)
	Create(ctx context.Context, orgID snowflake.ID, req CreateRequest) (*SecretResponse, error)
	Rotate(ctx context.Context, orgID snowflake.ID, keyID string) (*SecretResponse, error)
	Revoke(ctx context.Context, orgID snowflake.ID, keyID string) error
	// Authenticate resolves a plain key presented by a device.
	Authenticate(ctx context.Context, raw string) (Principal, error)
}

type CreateRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type Response struct {
	KeyID            string     `json:"key_id"`
	Name             string     `json:"name"`
	Scopes           []string   `json:"scopes"`
	IsActive         bool       `json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	ExpiresAt        *time.Time `json:"expires_at"`
	RotatedFromKeyID *string    `json:"rotated_from_key_id"`
}

type SecretResponse struct {
	KeyID  string `json:"key_id"`
	APIKey string `json:"api_key"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidKeyID        = errors.New("invalid_key_id")
	ErrInvalidScope        = errors.New("invalid_scope")
	ErrNotFound            = errors.New("api_key_not_found")
	ErrUnauthenticated     = errors.New("unauthenticated")
)
