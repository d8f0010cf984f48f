package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/billbook/internal/audit/domain"
	"github.com/smallbiznis/billbook/internal/audit/repository"
	"github.com/smallbiznis/billbook/internal/clock"
	obscontext "github.com/smallbiznis/billbook/internal/observability/context"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, domain.Service) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.AuditLog{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return db, NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestRecordCapturesActorAndMasksSecrets(t *testing.T) {
	_, svc := setup(t)
	ctx := obscontext.WithActor(context.Background(), "api_key", "key-1")
	ctx = obscontext.WithRequestID(ctx, "req-9")

	err := svc.Record(ctx, 7, domain.Entry{
		Action:     "invoice.issued",
		TargetType: "invoice",
		TargetID:   "inv-1",
		Metadata:   map[string]any{"token": "bb_live_abcdef123456", "number": "INV-0001"},
	})
	require.NoError(t, err)

	logs, err := svc.ListForTarget(context.Background(), 7, "invoice", "inv-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "api_key", logs[0].ActorType)
	require.NotNil(t, logs[0].ActorID)
	assert.Equal(t, "key-1", *logs[0].ActorID)
	assert.Equal(t, "req-9", logs[0].RequestID)
	assert.Equal(t, "bb_live_****3456", logs[0].Metadata["token"])
	assert.Equal(t, "INV-0001", logs[0].Metadata["number"])
}

func TestRecordRolledBackWithTransaction(t *testing.T) {
	db, svc := setup(t)
	boom := errors.New("boom")
	err := pkgdb.WithTransaction(context.Background(), db, func(ctx context.Context) error {
		require.NoError(t, svc.Record(ctx, 7, domain.Entry{Action: "invoice.paid", TargetType: "invoice", TargetID: "inv-2"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	logs, err := svc.ListForTarget(context.Background(), 7, "invoice", "inv-2")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestRecordValidation(t *testing.T) {
	_, svc := setup(t)
	assert.ErrorIs(t, svc.Record(context.Background(), 0, domain.Entry{Action: "x"}), domain.ErrInvalidOrganization)
	assert.ErrorIs(t, svc.Record(context.Background(), 1, domain.Entry{}), domain.ErrInvalidAction)
}
