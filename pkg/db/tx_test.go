package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type txRow struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func openTxDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&txRow{}))
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&txRow{}).Count(&n).Error)
	return n
}

func TestWithTransactionCommitsAndRunsHooks(t *testing.T) {
	conn := openTxDB(t)
	var fired []string

	err := WithTransaction(context.Background(), conn, func(ctx context.Context) error {
		require.True(t, InTransaction(ctx))
		AfterCommit(ctx, func(hookCtx context.Context) {
			assert.False(t, InTransaction(hookCtx))
			fired = append(fired, "outer")
		})
		return Conn(ctx, conn).Create(&txRow{ID: 1, Name: "a"}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer"}, fired)
	assert.EqualValues(t, 1, countRows(t, conn))
}

func TestWithTransactionRollbackDropsHooks(t *testing.T) {
	conn := openTxDB(t)
	fired := false

	err := WithTransaction(context.Background(), conn, func(ctx context.Context) error {
		AfterCommit(ctx, func(context.Context) { fired = true })
		if err := Conn(ctx, conn).Create(&txRow{ID: 1, Name: "a"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.False(t, fired)
	assert.EqualValues(t, 0, countRows(t, conn))
}

func TestNestedTransactionUsesSavepoint(t *testing.T) {
	conn := openTxDB(t)
	var fired []string

	err := WithTransaction(context.Background(), conn, func(ctx context.Context) error {
		require.NoError(t, Conn(ctx, conn).Create(&txRow{ID: 1, Name: "kept"}).Error)

		inner := WithTransaction(ctx, conn, func(ctx context.Context) error {
			AfterCommit(ctx, func(context.Context) { fired = append(fired, "rolled-back") })
			require.NoError(t, Conn(ctx, conn).Create(&txRow{ID: 2, Name: "dropped"}).Error)
			return errors.New("inner failure")
		})
		require.Error(t, inner)

		return WithTransaction(ctx, conn, func(ctx context.Context) error {
			AfterCommit(ctx, func(context.Context) { fired = append(fired, "nested") })
			return Conn(ctx, conn).Create(&txRow{ID: 3, Name: "nested"}).Error
		})
	})
	require.NoError(t, err)

	var names []string
	require.NoError(t, conn.Model(&txRow{}).Order("id").Pluck("name", &names).Error)
	assert.Equal(t, []string{"kept", "nested"}, names)
	assert.Equal(t, []string{"nested"}, fired)
}

func TestAfterCommitWithoutTransactionRunsImmediately(t *testing.T) {
	fired := false
	AfterCommit(context.Background(), func(context.Context) { fired = true })
	assert.True(t, fired)
}

func TestForUpdateSkippedOnSQLite(t *testing.T) {
	conn := openTxDB(t)
	assert.True(t, IsSQLite(conn))
	assert.Equal(t, "", LockSuffix(conn))
}

func TestIsDuplicateKeyErr(t *testing.T) {
	conn := openTxDB(t)
	require.NoError(t, conn.Create(&txRow{ID: 1, Name: "a"}).Error)
	err := conn.Create(&txRow{ID: 1, Name: "b"}).Error
	require.Error(t, err)
	assert.True(t, IsDuplicateKeyErr(err))
	assert.False(t, IsDuplicateKeyErr(errors.New("other")))
	assert.False(t, IsDuplicateKeyErr(nil))
}
