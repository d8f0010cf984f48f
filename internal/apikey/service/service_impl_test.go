package service

import (
	"context"
	"strings"
	"testing"
	"time"

	apikeydomain "github.com/smallbiznis/billbook/internal/apikey/domain"
	"github.com/smallbiznis/billbook/internal/apikey/repository"
	"github.com/smallbiznis/billbook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*testutil.Stack, apikeydomain.Service) {
	t.Helper()
	s := testutil.NewStack(t)
	svc := New(Params{
		DB:    s.DB,
		Log:   zap.NewNop(),
		GenID: s.Node,
		Clock: s.Clock,
		Repo:  repository.Provide(),
	})
	return s, svc
}

func TestCreateAndAuthenticate(t *testing.T) {
	s, svc := setup(t)
	_, orgID := s.RegisteredTenant(t)
	ctx := context.Background()

	secret, err := svc.Create(ctx, orgID, apikeydomain.CreateRequest{Name: "Counter tablet"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret.APIKey, apiKeyPrefix))

	principal, err := svc.Authenticate(ctx, secret.APIKey)
	require.NoError(t, err)
	assert.Equal(t, orgID, principal.OrgID)
	assert.Equal(t, secret.KeyID, principal.KeyID)
	assert.ElementsMatch(t, apikeydomain.DefaultScopes, principal.Scopes)

	keys, err := svc.List(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "Counter tablet", keys[0].Name)
	require.NotNil(t, keys[0].LastUsedAt)
	assert.True(t, keys[0].LastUsedAt.Equal(testutil.Epoch))
}

func TestAuthenticateRejectsBadKeys(t *testing.T) {
	s, svc := setup(t)
	_, orgID := s.RegisteredTenant(t)
	ctx := context.Background()

	secret, err := svc.Create(ctx, orgID, apikeydomain.CreateRequest{Name: "Shop PC"})
	require.NoError(t, err)

	tampered := secret.APIKey[:len(secret.APIKey)-1] + "0"
	if tampered == secret.APIKey {
		tampered = secret.APIKey[:len(secret.APIKey)-1] + "1"
	}
	for _, raw := range []string{"", "Bearer nope", "bb_live_ABC", tampered} {
		_, err := svc.Authenticate(ctx, raw)
		assert.ErrorIs(t, err, apikeydomain.ErrUnauthenticated, "key %q", raw)
	}
}

func TestCreateValidatesScopes(t *testing.T) {
	s, svc := setup(t)
	_, orgID := s.RegisteredTenant(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, orgID, apikeydomain.CreateRequest{Name: "x", Scopes: []string{"billing:everything"}})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidScope)
	_, err = svc.Create(ctx, orgID, apikeydomain.CreateRequest{Name: " "})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidName)
	_, err = svc.Create(ctx, 0, apikeydomain.CreateRequest{Name: "x"})
	assert.ErrorIs(t, err, apikeydomain.ErrInvalidOrganization)

	secret, err := svc.Create(ctx, orgID, apikeydomain.CreateRequest{Name: "Reader", Scopes: []string{" SYNC:READ ", "sync:read"}})
	require.NoError(t, err)
	principal, err := svc.Authenticate(ctx, secret.APIKey)
	require.NoError(t, err)
	assert.Equal(t, []string{apikeydomain.ScopeSyncRead}, principal.Scopes)
}

func TestRotateKeepsOldKeyDuringGrace(t *testing.T) {
	s, svc := setup(t)
	_, orgID := s.RegisteredTenant(t)
	ctx := context.Background()

	old, err := svc.Create(ctx, orgID, apikeydomain.CreateRequest{Name: "Billing desk"})
	require.NoError(t, err)
	next, err := svc.Rotate(ctx, orgID, old.KeyID)
	require.NoError(t, err)
	assert.NotEqual(t, old.KeyID, next.KeyID)

	_, err = svc.Authenticate(ctx, old.APIKey)
	assert.NoError(t, err)
	_, err = svc.Authenticate(ctx, next.APIKey)
	assert.NoError(t, err)

	s.Clock.Advance(apiKeyRotationGracePeriod + time.Second)
	_, err = svc.Authenticate(ctx, old.APIKey)
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthenticated)
	_, err = svc.Authenticate(ctx, next.APIKey)
	assert.NoError(t, err)
}

func TestRevokeIsTenantScoped(t *testing.T) {
	s, svc := setup(t)
	_, orgA := s.RegisteredTenant(t)
	_, orgB := s.RegisteredTenant(t)
	ctx := context.Background()

	secret, err := svc.Create(ctx, orgA, apikeydomain.CreateRequest{Name: "Tablet"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Revoke(ctx, orgB, secret.KeyID), apikeydomain.ErrNotFound)
	_, err = svc.Rotate(ctx, orgB, secret.KeyID)
	assert.ErrorIs(t, err, apikeydomain.ErrNotFound)

	require.NoError(t, svc.Revoke(ctx, orgA, secret.KeyID))
	_, err = svc.Authenticate(ctx, secret.APIKey)
	assert.ErrorIs(t, err, apikeydomain.ErrUnauthenticated)
}
