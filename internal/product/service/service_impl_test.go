package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"github.com/smallbiznis/billbook/internal/product/domain"
	"github.com/smallbiznis/billbook/internal/product/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Product{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	}), fake
}

func orgCtx(id int64) context.Context {
	return orgcontext.WithOrgID(context.Background(), snowflake.ID(id))
}

func TestCreateProduct(t *testing.T) {
	svc, _ := setup(t)
	ctx := orgCtx(1)

	p, err := svc.Create(ctx, domain.CreateRequest{
		ID:        "p-1",
		Name:      "Cement bag",
		HSNCode:   "2523",
		UnitPrice: 42000,
		TaxRate:   decimal.NewFromInt(28),
	})
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)

	again, err := svc.Create(ctx, domain.CreateRequest{ID: "p-1", Name: "ignored", UnitPrice: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 42000, again.UnitPrice)
	assert.True(t, again.TaxRate.Equal(decimal.NewFromInt(28)))

	_, err = svc.Create(orgCtx(9), domain.CreateRequest{ID: "p-1", Name: "x"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := setup(t)
	ctx := orgCtx(1)

	_, err := svc.Create(ctx, domain.CreateRequest{Name: ""})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	_, err = svc.Create(ctx, domain.CreateRequest{Name: "x", UnitPrice: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidUnitPrice)
	_, err = svc.Create(ctx, domain.CreateRequest{Name: "x", TaxRate: decimal.NewFromInt(120)})
	assert.ErrorIs(t, err, domain.ErrInvalidTaxRate)
	_, err = svc.Create(ctx, domain.CreateRequest{Name: "x", HSNCode: "12ab"})
	assert.ErrorIs(t, err, domain.ErrInvalidHSNCode)
}

func TestUpdateProductPartial(t *testing.T) {
	svc, fake := setup(t)
	ctx := orgCtx(1)
	_, err := svc.Create(ctx, domain.CreateRequest{ID: "p-1", Name: "Tile", Unit: "box", UnitPrice: 1000})
	require.NoError(t, err)

	fake.Advance(time.Minute)
	price := int64(1250)
	updated, err := svc.Update(ctx, domain.UpdateRequest{ID: "p-1", UnitPrice: &price})
	require.NoError(t, err)
	assert.EqualValues(t, 1250, updated.UnitPrice)
	assert.Equal(t, "box", updated.Unit)

	stored, err := svc.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1250, stored.UnitPrice)
	assert.Equal(t, "Tile", stored.Name)

	_, err = svc.Update(orgCtx(2), domain.UpdateRequest{ID: "p-1", UnitPrice: &price})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Update(ctx, domain.UpdateRequest{ID: "missing", UnitPrice: &price})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOwned(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Create(orgCtx(1), domain.CreateRequest{ID: "a", Name: "A"})
	require.NoError(t, err)
	_, err = svc.Create(orgCtx(2), domain.CreateRequest{ID: "b", Name: "B"})
	require.NoError(t, err)

	found, err := svc.GetOwned(orgCtx(1), []string{"a", "a", " "})
	require.NoError(t, err)
	assert.Len(t, found, 1)

	_, err = svc.GetOwned(orgCtx(1), []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.GetOwned(orgCtx(1), []string{"zzz"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
