package service

import (
	"context"

	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/sync/domain"
)

func (d *Dispatcher) routes() map[domain.MutationType]handlerFunc {
	return map[domain.MutationType]handlerFunc{
		domain.MutationCreateInvoice:  d.createInvoice,
		domain.MutationUpdateInvoice:  d.updateInvoice,
		domain.MutationIssueInvoice:   d.invoiceStatus(func(ctx context.Context, id, _ string) (invoicedomain.Invoice, error) { return d.invoices.Issue(ctx, id) }),
		domain.MutationPayInvoice:     d.invoiceStatus(func(ctx context.Context, id, _ string) (invoicedomain.Invoice, error) { return d.invoices.Pay(ctx, id) }),
		domain.MutationCancelInvoice:  d.invoiceStatus(d.invoices.Cancel),
		domain.MutationVoidInvoice:    d.invoiceStatus(d.invoices.Void),
		domain.MutationDeleteInvoice:  d.invoiceStatus(func(ctx context.Context, id, _ string) (invoicedomain.Invoice, error) { return d.invoices.Delete(ctx, id) }),
		domain.MutationCreateCustomer: d.createCustomer,
		domain.MutationUpdateCustomer: d.updateCustomer,
		domain.MutationCreateProduct:  d.createProduct,
		domain.MutationUpdateProduct:  d.updateProduct,
	}
}

func (d *Dispatcher) createInvoice(ctx context.Context, m domain.Mutation) (any, error) {
	var p createInvoicePayload
	if err := d.decode(m, &p); err != nil {
		return nil, err
	}
	return d.invoices.Create(ctx, p.toRequest(entityID(p.ID, m)))
}

func (d *Dispatcher) updateInvoice(ctx context.Context, m domain.Mutation) (any, error) {
	var p updateInvoicePayload
	if err := d.decode(m, &p); err != nil {
		return nil, err
	}
	return d.invoices.Update(ctx, p.toRequest(entityID(p.ID, m)))
}

func (d *Dispatcher) invoiceStatus(op func(ctx context.Context, id, reason string) (invoicedomain.Invoice, error)) handlerFunc {
	return func(ctx context.Context, m domain.Mutation) (any, error) {
		var p statusPayload
		if err := d.decode(m, &p); err != nil {
			return nil, err
		}
		return op(ctx, entityID(p.ID, m), p.Reason)
	}
}

func (d *Dispatcher) createCustomer(ctx context.Context, m domain.Mutation) (any, error) {
	var p createCustomerPayload
	if err := d.decode(m, &p); err != nil {
		return nil, err
	}
	return d.customers.Create(ctx, p.toRequest(entityID(p.ID, m)))
}

func (d *Dispatcher) updateCustomer(ctx context.Context, m domain.Mutation) (any, error) {
	var p updateCustomerPayload
	if err := d.decode(m, &p); err != nil {
		return nil, err
	}
	return d.customers.Update(ctx, p.toRequest(entityID(p.ID, m)))
}

func (d *Dispatcher) createProduct(ctx context.Context, m domain.Mutation) (any, error) {
	var p createProductPayload
	if err := d.decode(m, &p); err != nil {
		return nil, err
	}
	return d.products.Create(ctx, p.toRequest(entityID(p.ID, m)))
}

func (d *Dispatcher) updateProduct(ctx context.Context, m domain.Mutation) (any, error) {
	var p updateProductPayload
	if err := d.decode(m, &p); err != nil {
		return nil, err
	}
	return d.products.Update(ctx, p.toRequest(entityID(p.ID, m)))
}
