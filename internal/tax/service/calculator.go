package service

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/billbook/internal/tax/domain"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

type calculator struct{}

func NewCalculator() domain.Calculator {
	return calculator{}
}

// Compute derives every total from the line list alone. Rounding happens per
// line, on the discount and on the tax total; nothing is adjusted incrementally.
func (calculator) Compute(in domain.Input) (domain.Totals, error) {
	if in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(hundred) {
		return domain.Totals{}, domain.ErrInvalidTaxRate
	}

	out := domain.Totals{LineAmounts: make([]int64, 0, len(in.Lines))}
	for _, line := range in.Lines {
		if line.Quantity.IsNegative() {
			return domain.Totals{}, domain.ErrInvalidQuantity
		}
		if line.UnitPrice < 0 {
			return domain.Totals{}, domain.ErrInvalidUnitPrice
		}
		amount := line.Quantity.Mul(decimal.NewFromInt(line.UnitPrice)).Round(0).IntPart()
		out.LineAmounts = append(out.LineAmounts, amount)
		out.Subtotal += amount
	}

	discount, err := computeDiscount(out.Subtotal, in.DiscountType, in.DiscountValue)
	if err != nil {
		return domain.Totals{}, err
	}
	out.Discount = discount
	out.Taxable = out.Subtotal - discount

	out.Mode = resolveMode(in)
	if out.Mode != domain.ModeNone && out.Taxable > 0 {
		tax := decimal.NewFromInt(out.Taxable).Mul(in.TaxRate).Div(hundred).Round(0)
		out.TaxTotal = tax.IntPart()
		if out.Mode == domain.ModeIntraState {
			out.CGST = tax.Div(two).Floor().IntPart()
			out.SGST = out.TaxTotal - out.CGST
		} else {
			out.IGST = out.TaxTotal
		}
	}
	out.GrandTotal = out.Taxable + out.TaxTotal
	return out, nil
}

func (calculator) ResolveMode(in domain.Input) domain.Mode {
	return resolveMode(in)
}

func resolveMode(in domain.Input) domain.Mode {
	if !in.SellerRegistered || !in.TaxRate.IsPositive() {
		return domain.ModeNone
	}
	seller := strings.TrimSpace(in.SellerStateCode)
	buyer := strings.TrimSpace(in.BuyerStateCode)
	// Without a buyer jurisdiction the supply is treated as local.
	if buyer == "" || seller == "" || strings.EqualFold(seller, buyer) {
		return domain.ModeIntraState
	}
	return domain.ModeInterState
}

func computeDiscount(subtotal int64, kind domain.DiscountType, value decimal.Decimal) (int64, error) {
	if value.IsZero() {
		return 0, nil
	}
	if value.IsNegative() {
		return 0, domain.ErrInvalidDiscount
	}

	var discount int64
	switch domain.DiscountType(strings.ToUpper(strings.TrimSpace(string(kind)))) {
	case domain.DiscountFlat, "":
		discount = value.Round(0).IntPart()
	case domain.DiscountPercent:
		if value.GreaterThan(hundred) {
			return 0, domain.ErrInvalidDiscount
		}
		discount = decimal.NewFromInt(subtotal).Mul(value).Div(hundred).Round(0).IntPart()
	default:
		return 0, domain.ErrInvalidDiscountType
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount, nil
}
