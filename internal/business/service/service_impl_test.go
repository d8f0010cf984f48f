package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/billbook/internal/business/domain"
	"github.com/smallbiznis/billbook/internal/business/repository"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T, ttl time.Duration) (domain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Business{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{}
	cfg.Sync.ProfileCacheTTL = ttl
	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Cfg:   cfg,
	}), db
}

func TestCreateAndGetProfile(t *testing.T) {
	svc, _ := setupService(t, time.Minute)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateBusinessRequest{
		Name:          "Acme Traders",
		StateCode:     "27",
		GSTRegistered: true,
		InvoicePrefix: "ACME/",
		DocumentTypes: map[string]domain.DocumentTypeSetting{
			"Credit Note": {Prefix: "CN-", NextNumber: json.RawMessage(`5`), Padding: 3},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "free", created.PlanCode)

	profile, err := svc.GetProfile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "27", profile.StateCode)
	assert.True(t, profile.DraftWorkflow())

	setting, ok := profile.DocumentTypes["credit-note"]
	require.True(t, ok)
	next, ok := setting.NextNumberValue()
	assert.True(t, ok)
	assert.EqualValues(t, 5, next)
}

func TestGetProfileUsesCacheUntilInvalidated(t *testing.T) {
	svc, db := setupService(t, time.Minute)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateBusinessRequest{Name: "Cached"})
	require.NoError(t, err)
	_, err = svc.GetProfile(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&domain.Business{}).Where("id = ?", created.ID).Update("state_code", "29").Error)

	profile, err := svc.GetProfile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "", profile.StateCode)

	svc.Invalidate(created.ID)
	profile, err = svc.GetProfile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "29", profile.StateCode)
}

func TestGetProfileMalformedConfigFallsBack(t *testing.T) {
	svc, db := setupService(t, 0)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateBusinessRequest{Name: "Broken"})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`UPDATE businesses SET document_type_config = ? WHERE id = ?`, `["not","a","map"]`, created.ID).Error)

	profile, err := svc.GetProfile(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, profile.DocumentTypes)
}

func TestGetProfileNotFound(t *testing.T) {
	svc, _ := setupService(t, time.Minute)
	_, err := svc.GetProfile(context.Background(), snowflake.ID(42))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNormalizeDocumentType(t *testing.T) {
	assert.Equal(t, "invoice", NormalizeDocumentType(""))
	assert.Equal(t, "credit-note", NormalizeDocumentType(" Credit Note "))
	assert.Equal(t, "quotation", NormalizeDocumentType("QUOTATION"))
}

func TestParseCounter(t *testing.T) {
	n, ok := domain.ParseCounter("12")
	assert.True(t, ok)
	assert.EqualValues(t, 12, n)

	_, ok = domain.ParseCounter("12abc")
	assert.False(t, ok)
	_, ok = domain.ParseCounter("0")
	assert.False(t, ok)

	n, ok = domain.DocumentTypeSetting{NextNumber: json.RawMessage(`"7"`)}.NextNumberValue()
	assert.True(t, ok)
	assert.EqualValues(t, 7, n)
}
