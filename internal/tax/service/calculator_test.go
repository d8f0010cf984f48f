package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestComputeIntraStateSplit(t *testing.T) {
	calc := NewCalculator()
	totals, err := calc.Compute(domain.Input{
		Lines: []domain.Line{
			{Quantity: d("2"), UnitPrice: 10000},
			{Quantity: d("1.5"), UnitPrice: 3333},
		},
		TaxRate:          d("18"),
		SellerStateCode:  "27",
		BuyerStateCode:   "27",
		SellerRegistered: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{20000, 5000}, totals.LineAmounts)
	assert.EqualValues(t, 25000, totals.Subtotal)
	assert.EqualValues(t, 4500, totals.TaxTotal)
	assert.EqualValues(t, 2250, totals.CGST)
	assert.EqualValues(t, 2250, totals.SGST)
	assert.Zero(t, totals.IGST)
	assert.EqualValues(t, 29500, totals.GrandTotal)
	assert.Equal(t, domain.ModeIntraState, totals.Mode)
}

func TestComputeOddTaxSplitKeepsTotal(t *testing.T) {
	totals, err := NewCalculator().Compute(domain.Input{
		Lines:            []domain.Line{{Quantity: d("1"), UnitPrice: 1005}},
		TaxRate:          d("5"),
		SellerRegistered: true,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 50, totals.TaxTotal)
	assert.Equal(t, totals.TaxTotal, totals.CGST+totals.SGST)
}

func TestComputeInterState(t *testing.T) {
	totals, err := NewCalculator().Compute(domain.Input{
		Lines:            []domain.Line{{Quantity: d("3"), UnitPrice: 1000}},
		DiscountType:     domain.DiscountPercent,
		DiscountValue:    d("10"),
		TaxRate:          d("12"),
		SellerStateCode:  "27",
		BuyerStateCode:   "29",
		SellerRegistered: true,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3000, totals.Subtotal)
	assert.EqualValues(t, 300, totals.Discount)
	assert.EqualValues(t, 2700, totals.Taxable)
	assert.EqualValues(t, 324, totals.IGST)
	assert.EqualValues(t, 3024, totals.GrandTotal)
	assert.Equal(t, domain.ModeInterState, totals.Mode)
}

func TestComputeUnregisteredIsUntaxed(t *testing.T) {
	totals, err := NewCalculator().Compute(domain.Input{
		Lines:         []domain.Line{{Quantity: d("1"), UnitPrice: 5000}},
		DiscountType:  domain.DiscountFlat,
		DiscountValue: d("9000"),
		TaxRate:       d("18"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ModeNone, totals.Mode)
	assert.EqualValues(t, 5000, totals.Discount)
	assert.Zero(t, totals.TaxTotal)
	assert.Zero(t, totals.GrandTotal)
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	calc := NewCalculator()
	_, err := calc.Compute(domain.Input{Lines: []domain.Line{{Quantity: d("-1"), UnitPrice: 1}}})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = calc.Compute(domain.Input{Lines: []domain.Line{{Quantity: d("1"), UnitPrice: -1}}})
	assert.ErrorIs(t, err, domain.ErrInvalidUnitPrice)

	_, err = calc.Compute(domain.Input{TaxRate: d("101")})
	assert.ErrorIs(t, err, domain.ErrInvalidTaxRate)

	_, err = calc.Compute(domain.Input{DiscountType: "BOGUS", DiscountValue: d("1")})
	assert.ErrorIs(t, err, domain.ErrInvalidDiscountType)

	_, err = calc.Compute(domain.Input{DiscountType: domain.DiscountPercent, DiscountValue: d("150")})
	assert.ErrorIs(t, err, domain.ErrInvalidDiscount)
}

func TestComputeEmptyLines(t *testing.T) {
	totals, err := NewCalculator().Compute(domain.Input{TaxRate: d("18"), SellerRegistered: true})
	require.NoError(t, err)
	assert.Zero(t, totals.GrandTotal)
	assert.Empty(t, totals.LineAmounts)
}
