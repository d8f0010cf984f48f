package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	apikeydomain "github.com/smallbiznis/billbook/internal/apikey/domain"
	"github.com/smallbiznis/billbook/internal/clock"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	apiKeyPrefix              = "bb_live_"
	apiKeySecretBytes         = 32
	apiKeyRotationGracePeriod = 24 * time.Hour
	lastUsedResolution        = time.Minute
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  apikeydomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  apikeydomain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) apikeydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("apikey.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) List(ctx context.Context, orgID snowflake.ID) ([]apikeydomain.Response, error) {
	if orgID == 0 {
		return nil, apikeydomain.ErrInvalidOrganization
	}
	items, err := s.repo.List(ctx, pkgdb.Conn(ctx, s.db), orgID)
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(item apikeydomain.APIKey, _ int) apikeydomain.Response {
		return toResponse(&item)
	}), nil
}

func (s *Service) Create(ctx context.Context, orgID snowflake.ID, req apikeydomain.CreateRequest) (*apikeydomain.SecretResponse, error) {
	if orgID == 0 {
		return nil, apikeydomain.ErrInvalidOrganization
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apikeydomain.ErrInvalidName
	}
	scopes, err := normalizeScopes(req.Scopes)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	keyID := newKeyID(id)
	plain, hash, err := generateAPIKey(keyID)
	if err != nil {
		return nil, err
	}

	key := &apikeydomain.APIKey{
		ID:        id,
		OrgID:     orgID,
		KeyID:     keyID,
		Name:      name,
		Scopes:    scopes,
		KeyHash:   hash,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, pkgdb.Conn(ctx, s.db), key); err != nil {
		return nil, err
	}

	s.log.Info("api key created",
		zap.String("org_id", orgID.String()),
		zap.String("key_id", keyID),
		zap.Strings("scopes", scopes),
	)
	return &apikeydomain.SecretResponse{KeyID: key.KeyID, APIKey: plain}, nil
}

// Rotate issues a replacement key. The old key keeps working for a grace
// period so devices can pick up the new one.
func (s *Service) Rotate(ctx context.Context, orgID snowflake.ID, keyID string) (*apikeydomain.SecretResponse, error) {
	if orgID == 0 {
		return nil, apikeydomain.ErrInvalidOrganization
	}
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return nil, apikeydomain.ErrInvalidKeyID
	}

	var result *apikeydomain.SecretResponse
	err := pkgdb.WithTransaction(ctx, s.db, func(ctx context.Context) error {
		conn := pkgdb.Conn(ctx, s.db)
		now := s.clock.Now()
		current, err := s.repo.FindByKeyID(ctx, conn, trimmed)
		if err != nil {
			return err
		}
		if current == nil || current.OrgID != orgID || !current.Usable(now) {
			return apikeydomain.ErrNotFound
		}

		current.ExpiresAt = ptrTime(now.Add(apiKeyRotationGracePeriod))
		current.UpdatedAt = now
		if err := s.repo.Update(ctx, conn, current); err != nil {
			return err
		}

		id := s.genID.Generate()
		nextKeyID := newKeyID(id)
		plain, hash, err := generateAPIKey(nextKeyID)
		if err != nil {
			return err
		}
		rotatedFrom := current.KeyID
		next := &apikeydomain.APIKey{
			ID:               id,
			OrgID:            orgID,
			KeyID:            nextKeyID,
			Name:             current.Name,
			Scopes:           current.Scopes,
			KeyHash:          hash,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
			RotatedFromKeyID: &rotatedFrom,
		}
		if err := s.repo.Insert(ctx, conn, next); err != nil {
			return err
		}
		result = &apikeydomain.SecretResponse{KeyID: next.KeyID, APIKey: plain}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Revoke(ctx context.Context, orgID snowflake.ID, keyID string) error {
	if orgID == 0 {
		return apikeydomain.ErrInvalidOrganization
	}
	trimmed := strings.TrimSpace(keyID)
	if trimmed == "" {
		return apikeydomain.ErrInvalidKeyID
	}

	conn := pkgdb.Conn(ctx, s.db)
	key, err := s.repo.FindByKeyID(ctx, conn, trimmed)
	if err != nil {
		return err
	}
	if key == nil || key.OrgID != orgID {
		return apikeydomain.ErrNotFound
	}

	now := s.clock.Now()
	key.IsActive = false
	key.UpdatedAt = now
	if key.ExpiresAt == nil || key.ExpiresAt.After(now) {
		key.ExpiresAt = &now
	}
	return s.repo.Update(ctx, conn, key)
}

func (s *Service) Authenticate(ctx context.Context, raw string) (apikeydomain.Principal, error) {
	raw = strings.TrimSpace(raw)
	keyID, ok := parseKeyID(raw)
	if !ok {
		return apikeydomain.Principal{}, apikeydomain.ErrUnauthenticated
	}

	conn := pkgdb.Conn(ctx, s.db)
	key, err := s.repo.FindByKeyID(ctx, conn, keyID)
	if err != nil {
		return apikeydomain.Principal{}, err
	}
	now := s.clock.Now()
	if !key.Usable(now) || !apikeydomain.MatchesHash(raw, key.KeyHash) {
		return apikeydomain.Principal{}, apikeydomain.ErrUnauthenticated
	}

	if key.LastUsedAt == nil || now.Sub(*key.LastUsedAt) >= lastUsedResolution {
		if err := s.repo.TouchLastUsed(ctx, conn, key.KeyID, now); err != nil {
			s.log.Warn("failed to record api key use", zap.String("key_id", key.KeyID), zap.Error(err))
		}
	}

	return apikeydomain.Principal{
		OrgID:  key.OrgID,
		KeyID:  key.KeyID,
		Scopes: append([]string(nil), key.Scopes...),
	}, nil
}

func toResponse(key *apikeydomain.APIKey) apikeydomain.Response {
	return apikeydomain.Response{
		KeyID:            key.KeyID,
		Name:             key.Name,
		Scopes:           append([]string(nil), key.Scopes...),
		IsActive:         key.IsActive,
		CreatedAt:        key.CreatedAt,
		LastUsedAt:       key.LastUsedAt,
		ExpiresAt:        key.ExpiresAt,
		RotatedFromKeyID: key.RotatedFromKeyID,
	}
}

func normalizeScopes(scopes []string) (apikeydomain.Scopes, error) {
	if len(scopes) == 0 {
		return apikeydomain.Scopes(apikeydomain.DefaultScopes), nil
	}
	out := lo.Uniq(lo.Map(scopes, func(scope string, _ int) string {
		return strings.ToLower(strings.TrimSpace(scope))
	}))
	for _, scope := range out {
		if !lo.Contains(apikeydomain.AllScopes, scope) {
			return nil, fmt.Errorf("%w: %s", apikeydomain.ErrInvalidScope, scope)
		}
	}
	return apikeydomain.Scopes(out), nil
}

func generateAPIKey(keyID string) (string, string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", err
	}

	secretPart := hex.EncodeToString(secret)
	trimmed := strings.TrimPrefix(keyID, "key_")
	plain := fmt.Sprintf("%s%s_%s", apiKeyPrefix, trimmed, secretPart)
	return plain, apikeydomain.HashAPIKey(plain), nil
}

// parseKeyID extracts the key id embedded in a plain key.
func parseKeyID(raw string) (string, bool) {
	rest, ok := strings.CutPrefix(raw, apiKeyPrefix)
	if !ok {
		return "", false
	}
	id, secret, ok := strings.Cut(rest, "_")
	if !ok || id == "" || len(secret) != apiKeySecretBytes*2 {
		return "", false
	}
	return "key_" + id, true
}

func newKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}

func ptrTime(value time.Time) *time.Time {
	return &value
}
