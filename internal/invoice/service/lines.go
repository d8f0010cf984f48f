package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
)

// buildLines resolves product defaults and returns the rows to persist plus
// the tax rate of the first referenced product.
func (s *Service) buildLines(ctx context.Context, orgID snowflake.ID, invoiceID string, inputs []invoicedomain.LineItemInput, now time.Time) ([]invoicedomain.LineItem, decimal.Decimal, error) {
	productIDs := lo.FilterMap(inputs, func(in invoicedomain.LineItemInput, _ int) (string, bool) {
		id := strings.TrimSpace(in.ProductID)
		return id, id != ""
	})
	products, err := s.products.GetOwned(ctx, productIDs)
	if err != nil {
		return nil, decimal.Zero, err
	}

	firstRate := decimal.Zero
	rateSet := false
	lines := make([]invoicedomain.LineItem, 0, len(inputs))
	for i, in := range inputs {
		if !in.Quantity.IsPositive() {
			return nil, decimal.Zero, invoicedomain.ErrInvalidLineItem
		}
		line := invoicedomain.LineItem{
			ID:          ulid.Make().String(),
			OrgID:       orgID,
			InvoiceID:   invoiceID,
			Position:    i,
			Description: strings.TrimSpace(in.Description),
			HSNCode:     strings.TrimSpace(in.HSNCode),
			Quantity:    in.Quantity,
			CreatedAt:   now,
		}

		if productID := strings.TrimSpace(in.ProductID); productID != "" {
			product := products[productID]
			line.ProductID = &product.ID
			line.UnitPrice = product.UnitPrice
			if line.Description == "" {
				line.Description = product.Name
			}
			if line.HSNCode == "" {
				line.HSNCode = product.HSNCode
			}
			if !rateSet {
				firstRate = product.TaxRate
				rateSet = true
			}
		}
		if in.UnitPrice != nil {
			line.UnitPrice = *in.UnitPrice
		}
		if line.UnitPrice < 0 || line.Description == "" {
			return nil, decimal.Zero, invoicedomain.ErrInvalidLineItem
		}
		lines = append(lines, line)
	}
	return lines, firstRate, nil
}

// applyTotals recomputes every amount from lines. Nothing is adjusted incrementally.
func (s *Service) applyTotals(invoice *invoicedomain.Invoice, profile businessdomain.Profile, lines []invoicedomain.LineItem) error {
	totals, err := s.tax.Compute(taxdomain.Input{
		Lines: lo.Map(lines, func(line invoicedomain.LineItem, _ int) taxdomain.Line {
			return taxdomain.Line{Quantity: line.Quantity, UnitPrice: line.UnitPrice}
		}),
		DiscountType:     taxdomain.DiscountType(invoice.DiscountType),
		DiscountValue:    invoice.DiscountValue,
		TaxRate:          invoice.TaxRate,
		SellerStateCode:  profile.StateCode,
		BuyerStateCode:   invoice.PlaceOfSupply,
		SellerRegistered: profile.GSTRegistered,
	})
	if err != nil {
		return err
	}
	for i := range lines {
		lines[i].Amount = totals.LineAmounts[i]
	}
	invoice.TaxMode = string(totals.Mode)
	invoice.Subtotal = totals.Subtotal
	invoice.DiscountAmount = totals.Discount
	invoice.TaxableAmount = totals.Taxable
	invoice.CGST = totals.CGST
	invoice.SGST = totals.SGST
	invoice.IGST = totals.IGST
	invoice.TaxTotal = totals.TaxTotal
	invoice.GrandTotal = totals.GrandTotal
	return nil
}
