package domain

import "errors"

var (
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidUnitPrice    = errors.New("invalid_unit_price")
	ErrInvalidDiscount     = errors.New("invalid_discount")
	ErrInvalidDiscountType = errors.New("invalid_discount_type")
	ErrInvalidTaxRate      = errors.New("invalid_tax_rate")
)
