package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/idempotency/domain"
	"github.com/smallbiznis/billbook/internal/idempotency/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const orgA = snowflake.ID(1001)

func setupService(t *testing.T, strict bool) (domain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Record{}))

	fake := clock.NewFakeClock(time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{}
	cfg.Idempotency = config.IdempotencyConfig{TTL: 24 * time.Hour, StrictPayload: strict, SweepBatch: 2}

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fake,
		Repo:  repository.Provide(),
		Cfg:   cfg,
	})
	return svc, fake, db
}

func TestCheckMissingAndEmptyKey(t *testing.T) {
	svc, _, _ := setupService(t, false)
	ctx := context.Background()

	record, err := svc.Check(ctx, orgA, "absent")
	require.NoError(t, err)
	assert.Nil(t, record)

	record, err = svc.Check(ctx, orgA, "  ")
	require.NoError(t, err)
	assert.Nil(t, record)

	assert.ErrorIs(t, svc.Save(ctx, orgA, "", domain.SaveRequest{}), domain.ErrEmptyKey)
}

func TestSaveThenCheckIsScopedByTenant(t *testing.T) {
	svc, _, _ := setupService(t, false)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, orgA, "k1", domain.SaveRequest{
		MutationType: "CREATE_CUSTOMER",
		Fingerprint:  "abc",
		Result:       json.RawMessage(`{"id":"c1"}`),
	}))

	record, err := svc.Check(ctx, orgA, "k1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.JSONEq(t, `{"id":"c1"}`, string(record.Result))

	other, err := svc.Check(ctx, snowflake.ID(2002), "k1")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSaveOverwritesAndResetsAge(t *testing.T) {
	svc, fake, _ := setupService(t, false)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, orgA, "k1", domain.SaveRequest{Result: json.RawMessage(`{"id":"c1","version":1}`)}))
	fake.Advance(20 * time.Hour)
	require.NoError(t, svc.Save(ctx, orgA, "k1", domain.SaveRequest{Result: json.RawMessage(`{"id":"c1","version":2}`)}))
	fake.Advance(20 * time.Hour)

	record, err := svc.Check(ctx, orgA, "k1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.JSONEq(t, `{"id":"c1","version":2}`, string(record.Result))
}

func TestSaveWithoutResultStoresNull(t *testing.T) {
	svc, _, _ := setupService(t, false)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, orgA, "k-empty", domain.SaveRequest{MutationType: "DELETE_INVOICE"}))

	record, err := svc.Check(ctx, orgA, "k-empty")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "null", string(record.Result))
}

func TestCheckPurgesExpiredRecord(t *testing.T) {
	svc, fake, db := setupService(t, false)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, orgA, "k1", domain.SaveRequest{Result: json.RawMessage(`{}`)}))
	fake.Advance(24*time.Hour + time.Second)

	record, err := svc.Check(ctx, orgA, "k1")
	require.NoError(t, err)
	assert.Nil(t, record)

	var count int64
	require.NoError(t, db.Model(&domain.Record{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLookupStrictRejectsDifferentPayload(t *testing.T) {
	svc, _, _ := setupService(t, true)
	ctx := context.Background()

	fp := Fingerprint([]byte(`{"name":"A","email":"a@x.in"}`))
	require.NoError(t, svc.Save(ctx, orgA, "k1", domain.SaveRequest{Fingerprint: fp, Result: json.RawMessage(`{}`)}))

	same := Fingerprint([]byte(`{ "email":"a@x.in", "name":"A" }`))
	record, err := svc.Lookup(ctx, orgA, "k1", same)
	require.NoError(t, err)
	assert.NotNil(t, record)

	_, err = svc.Lookup(ctx, orgA, "k1", Fingerprint([]byte(`{"name":"B"}`)))
	assert.ErrorIs(t, err, domain.ErrPayloadMismatch)
}

func TestLookupLenientReplaysDifferentPayload(t *testing.T) {
	svc, _, _ := setupService(t, false)
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, orgA, "k1", domain.SaveRequest{Fingerprint: "one", Result: json.RawMessage(`{"v":1}`)}))
	record, err := svc.Lookup(ctx, orgA, "k1", "two")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.JSONEq(t, `{"v":1}`, string(record.Result))
}

func TestPurgeExpiredInBatches(t *testing.T) {
	svc, fake, db := setupService(t, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Save(ctx, orgA, fmt.Sprintf("old-%d", i), domain.SaveRequest{Result: json.RawMessage(`{}`)}))
	}
	fake.Advance(25 * time.Hour)
	require.NoError(t, svc.Save(ctx, orgA, "fresh", domain.SaveRequest{Result: json.RawMessage(`{}`)}))

	n, err := svc.PurgeExpired(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = svc.PurgeExpired(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var keys []string
	require.NoError(t, db.Model(&domain.Record{}).Pluck("idempotency_key", &keys).Error)
	assert.Equal(t, []string{"fresh"}, keys)
}

func TestFingerprintCanonicalizes(t *testing.T) {
	a := Fingerprint([]byte(`{"b":1.50,"a":[1,2]}`))
	b := Fingerprint([]byte("{\n \"a\": [1,2], \"b\": 1.50 }"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Fingerprint([]byte(`{"a":[2,1],"b":1.50}`)))
}
