package domain

import (
	"github.com/shopspring/decimal"
)

// Mode is how GST applies to a document.
type Mode string

const (
	// ModeIntraState splits tax evenly into CGST and SGST.
	ModeIntraState Mode = "CGST_SGST"
	ModeInterState Mode = "IGST"
	ModeNone       Mode = "NONE"
)

type DiscountType string

const (
	DiscountFlat    DiscountType = "FLAT"
	DiscountPercent DiscountType = "PERCENT"
)

// Line is a priced quantity. UnitPrice is in minor units (paise).
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice int64
}

type Input struct {
	Lines            []Line
	DiscountType     DiscountType
	DiscountValue    decimal.Decimal
	TaxRate          decimal.Decimal // percent, e.g. 18
	SellerStateCode  string
	BuyerStateCode   string
	SellerRegistered bool
}

// Totals are all in minor units and always satisfy
// GrandTotal = Subtotal - Discount + TaxTotal.
type Totals struct {
	LineAmounts []int64
	Subtotal    int64
	Discount    int64
	Taxable     int64
	CGST        int64
	SGST        int64
	IGST        int64
	TaxTotal    int64
	GrandTotal  int64
	Mode        Mode
}

type Calculator interface {
	Compute(in Input) (Totals, error)
	ResolveMode(in Input) Mode
}
