package pdf

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInvoice() invoicedomain.Invoice {
	return invoicedomain.Invoice{
		ID:             "inv-1",
		DocumentType:   "invoice",
		DocumentNumber: "INV-0001",
		Status:         invoicedomain.StatusIssued,
		InvoiceDate:    time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC),
		PlaceOfSupply:  "27",
		TaxRate:        decimal.RequireFromString("18"),
		Subtotal:       20000,
		TaxableAmount:  20000,
		CGST:           1800,
		SGST:           1800,
		TaxTotal:       3600,
		GrandTotal:     23600,
		Items: []invoicedomain.LineItem{{
			Description: "Widget",
			HSNCode:     "8471",
			Quantity:    decimal.NewFromInt(2),
			UnitPrice:   10000,
			Amount:      20000,
		}},
		Customer: &customerdomain.Customer{Name: "Patil Stores", GSTIN: "27AAPFU0939F1ZV"},
	}
}

func TestRenderProducesPDF(t *testing.T) {
	doc, err := New().Render(context.Background(), businessdomain.Profile{Name: "Sharma Traders", StateCode: "27"}, sampleInvoice())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestRenderRejectsEmptyInvoice(t *testing.T) {
	_, err := New().Render(context.Background(), businessdomain.Profile{}, invoicedomain.Invoice{})
	assert.ErrorIs(t, err, ErrNothingToRender)
}

func TestTotalsSplitIntraStateTax(t *testing.T) {
	lines := totals(sampleInvoice())
	labels := make([]string, 0, len(lines))
	for _, l := range lines {
		labels = append(labels, l.label)
	}
	assert.Equal(t, []string{"Subtotal", "Taxable value", "CGST @ 9%", "SGST @ 9%", "Total"}, labels)
	assert.Equal(t, int64(23600), lines[len(lines)-1].amount)
}

func TestTotalsInterStateTax(t *testing.T) {
	inv := sampleInvoice()
	inv.CGST, inv.SGST, inv.IGST = 0, 0, 3600
	inv.DiscountAmount = 500
	lines := totals(inv)
	assert.Equal(t, "Discount", lines[1].label)
	assert.Equal(t, int64(-500), lines[1].amount)
	assert.Equal(t, "IGST @ 18%", lines[3].label)
}

func TestMoneyAndTitle(t *testing.T) {
	assert.Equal(t, "INR 1234.50", Money(123450))
	assert.Equal(t, "INR -5.00", Money(-500))
	assert.Equal(t, "Tax Invoice", documentTitle(invoicedomain.Invoice{}))
	assert.Equal(t, "Credit Note", documentTitle(invoicedomain.Invoice{DocumentType: "credit-note"}))
}
