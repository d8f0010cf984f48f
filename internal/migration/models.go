package migration

import (
	apikeydomain "github.com/smallbiznis/billbook/internal/apikey/domain"
	auditdomain "github.com/smallbiznis/billbook/internal/audit/domain"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	idempotencydomain "github.com/smallbiznis/billbook/internal/idempotency/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	sequencedomain "github.com/smallbiznis/billbook/internal/sequence/domain"
	usagedomain "github.com/smallbiznis/billbook/internal/usage/domain"
)

// Models lists every table owned by the service, in dependency order.
func Models() []any {
	return []any{
		&businessdomain.Business{},
		&customerdomain.Customer{},
		&productdomain.Product{},
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
		&sequencedomain.Sequence{},
		&usagedomain.Counter{},
		&idempotencydomain.Record{},
		&auditdomain.AuditLog{},
		&apikeydomain.APIKey{},
	}
}
