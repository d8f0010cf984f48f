package service

import (
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
)

type lineItemPayload struct {
	ProductID   string          `json:"productId" validate:"omitempty,max=64"`
	Description string          `json:"description" validate:"max=500"`
	HSNCode     string          `json:"hsnCode" validate:"omitempty,numeric,min=2,max=8"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   *int64          `json:"unitPrice" validate:"omitempty,gte=0"`
}

func (p lineItemPayload) toInput() invoicedomain.LineItemInput {
	return invoicedomain.LineItemInput{
		ProductID:   p.ProductID,
		Description: p.Description,
		HSNCode:     p.HSNCode,
		Quantity:    p.Quantity,
		UnitPrice:   p.UnitPrice,
	}
}

func toInputs(items []lineItemPayload) []invoicedomain.LineItemInput {
	return lo.Map(items, func(item lineItemPayload, _ int) invoicedomain.LineItemInput {
		return item.toInput()
	})
}

type createInvoicePayload struct {
	ID             string            `json:"id" validate:"omitempty,max=64"`
	CustomerID     string            `json:"customerId" validate:"omitempty,max=64"`
	DocumentType   string            `json:"documentType" validate:"omitempty,max=64"`
	DocumentNumber string            `json:"documentNumber" validate:"omitempty,max=128"`
	InvoiceDate    *time.Time        `json:"invoiceDate"`
	DueDate        *time.Time        `json:"dueDate"`
	Notes          string            `json:"notes" validate:"max=2000"`
	PlaceOfSupply  string            `json:"placeOfSupply" validate:"omitempty,numeric,len=2"`
	DiscountType   string            `json:"discountType" validate:"omitempty,oneof=FLAT PERCENT flat percent"`
	DiscountValue  decimal.Decimal   `json:"discountValue"`
	TaxRate        *decimal.Decimal  `json:"taxRate"`
	Items          []lineItemPayload `json:"items" validate:"max=500,dive"`
}

func (p createInvoicePayload) toRequest(id string) invoicedomain.CreateInvoiceRequest {
	return invoicedomain.CreateInvoiceRequest{
		ID:             id,
		CustomerID:     p.CustomerID,
		DocumentType:   p.DocumentType,
		DocumentNumber: p.DocumentNumber,
		InvoiceDate:    p.InvoiceDate,
		DueDate:        p.DueDate,
		Notes:          p.Notes,
		PlaceOfSupply:  p.PlaceOfSupply,
		DiscountType:   p.DiscountType,
		DiscountValue:  p.DiscountValue,
		TaxRate:        p.TaxRate,
		Items:          toInputs(p.Items),
	}
}

type updateInvoicePayload struct {
	ID            string             `json:"id" validate:"omitempty,max=64"`
	CustomerID    *string            `json:"customerId" validate:"omitempty,max=64"`
	InvoiceDate   *time.Time         `json:"invoiceDate"`
	DueDate       *time.Time         `json:"dueDate"`
	Notes         *string            `json:"notes" validate:"omitempty,max=2000"`
	PlaceOfSupply *string            `json:"placeOfSupply" validate:"omitempty,max=2"`
	DiscountType  *string            `json:"discountType" validate:"omitempty,oneof=FLAT PERCENT flat percent"`
	DiscountValue *decimal.Decimal   `json:"discountValue"`
	TaxRate       *decimal.Decimal   `json:"taxRate"`
	Items         *[]lineItemPayload `json:"items" validate:"omitempty,max=500,dive"`
}

func (p updateInvoicePayload) toRequest(id string) invoicedomain.UpdateInvoiceRequest {
	req := invoicedomain.UpdateInvoiceRequest{
		ID:            id,
		CustomerID:    p.CustomerID,
		InvoiceDate:   p.InvoiceDate,
		DueDate:       p.DueDate,
		Notes:         p.Notes,
		PlaceOfSupply: p.PlaceOfSupply,
		DiscountType:  p.DiscountType,
		DiscountValue: p.DiscountValue,
		TaxRate:       p.TaxRate,
	}
	if p.Items != nil {
		items := toInputs(*p.Items)
		req.Items = &items
	}
	return req
}

// statusPayload drives the issue/pay/cancel/void/delete mutations.
type statusPayload struct {
	ID     string `json:"id" validate:"omitempty,max=64"`
	Reason string `json:"reason" validate:"max=500"`
}

type createCustomerPayload struct {
	ID        string `json:"id" validate:"omitempty,max=64"`
	Name      string `json:"name" validate:"required,max=200"`
	Phone     string `json:"phone" validate:"omitempty,max=32"`
	Email     string `json:"email" validate:"omitempty,email"`
	GSTIN     string `json:"gstin" validate:"omitempty,len=15"`
	StateCode string `json:"stateCode" validate:"omitempty,numeric,len=2"`
	Address   string `json:"address" validate:"max=1000"`
}

func (p createCustomerPayload) toRequest(id string) customerdomain.CreateCustomerRequest {
	return customerdomain.CreateCustomerRequest{
		ID:        id,
		Name:      p.Name,
		Phone:     p.Phone,
		Email:     p.Email,
		GSTIN:     p.GSTIN,
		StateCode: p.StateCode,
		Address:   p.Address,
	}
}

type updateCustomerPayload struct {
	ID        string  `json:"id" validate:"omitempty,max=64"`
	Name      *string `json:"name" validate:"omitempty,min=1,max=200"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
	Email     *string `json:"email" validate:"omitempty"`
	GSTIN     *string `json:"gstin" validate:"omitempty"`
	StateCode *string `json:"stateCode" validate:"omitempty,max=2"`
	Address   *string `json:"address" validate:"omitempty,max=1000"`
}

func (p updateCustomerPayload) toRequest(id string) customerdomain.UpdateCustomerRequest {
	return customerdomain.UpdateCustomerRequest{
		ID:        id,
		Name:      p.Name,
		Phone:     p.Phone,
		Email:     p.Email,
		GSTIN:     p.GSTIN,
		StateCode: p.StateCode,
		Address:   p.Address,
	}
}

type createProductPayload struct {
	ID        string          `json:"id" validate:"omitempty,max=64"`
	Name      string          `json:"name" validate:"required,max=200"`
	SKU       string          `json:"sku" validate:"omitempty,max=64"`
	HSNCode   string          `json:"hsnCode" validate:"omitempty,numeric,min=2,max=8"`
	Unit      string          `json:"unit" validate:"omitempty,max=16"`
	UnitPrice int64           `json:"unitPrice" validate:"gte=0"`
	TaxRate   decimal.Decimal `json:"taxRate"`
}

func (p createProductPayload) toRequest(id string) productdomain.CreateRequest {
	return productdomain.CreateRequest{
		ID:        id,
		Name:      p.Name,
		SKU:       p.SKU,
		HSNCode:   p.HSNCode,
		Unit:      p.Unit,
		UnitPrice: p.UnitPrice,
		TaxRate:   p.TaxRate,
	}
}

type updateProductPayload struct {
	ID        string           `json:"id" validate:"omitempty,max=64"`
	Name      *string          `json:"name" validate:"omitempty,min=1,max=200"`
	SKU       *string          `json:"sku" validate:"omitempty,max=64"`
	HSNCode   *string          `json:"hsnCode" validate:"omitempty,max=8"`
	Unit      *string          `json:"unit" validate:"omitempty,max=16"`
	UnitPrice *int64           `json:"unitPrice" validate:"omitempty,gte=0"`
	TaxRate   *decimal.Decimal `json:"taxRate"`
}

func (p updateProductPayload) toRequest(id string) productdomain.UpdateRequest {
	return productdomain.UpdateRequest{
		ID:        id,
		Name:      p.Name,
		SKU:       p.SKU,
		HSNCode:   p.HSNCode,
		Unit:      p.Unit,
		UnitPrice: p.UnitPrice,
		TaxRate:   p.TaxRate,
	}
}
