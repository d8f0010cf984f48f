package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/bwmarrin/snowflake"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"github.com/smallbiznis/billbook/internal/sync/domain"
	syncservice "github.com/smallbiznis/billbook/internal/sync/service"
	"github.com/smallbiznis/billbook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newDispatcher(s *testutil.Stack) domain.Dispatcher {
	return syncservice.NewDispatcher(syncservice.Params{
		DB:          s.DB,
		Log:         zap.NewNop(),
		Cfg:         s.Cfg,
		Invoices:    s.Invoices,
		Customers:   s.Customers,
		Products:    s.Products,
		Idempotency: s.Idempotency,
	})
}

func contextFor(orgID snowflake.ID) context.Context {
	return orgcontext.WithOrgID(context.Background(), orgID)
}

func mutation(id, typ, key, data string) domain.Mutation {
	return domain.Mutation{
		ID:             id,
		Type:           domain.MutationType(typ),
		IdempotencyKey: key,
		Data:           json.RawMessage(data),
	}
}

func countRows(t *testing.T, s *testutil.Stack, table string, orgID snowflake.ID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.DB.Table(table).Where("org_id = ?", orgID).Count(&n).Error)
	return n
}

func TestProcessReplaysCachedResult(t *testing.T) {
	s := testutil.NewStack(t)
	_, orgID := s.RegisteredTenant(t)
	d := newDispatcher(s)

	m := mutation("m-1", "CREATE_CUSTOMER", "key-1", `{"id":"cust-1","name":"Patil Stores"}`)
	first := d.Process(context.Background(), orgID, []domain.Mutation{m})
	require.Len(t, first, 1)
	require.True(t, first[0].Succeeded(), "first result: %+v", first[0])
	assert.False(t, first[0].Cached)

	second := d.Process(context.Background(), orgID, []domain.Mutation{m})
	require.Len(t, second, 1)
	require.True(t, second[0].Succeeded())
	assert.True(t, second[0].Cached)
	assert.JSONEq(t, string(first[0].Data), string(second[0].Data))
	assert.Equal(t, int64(1), countRows(t, s, "customers", orgID))
}

func TestProcessIsolatesFailures(t *testing.T) {
	s := testutil.NewStack(t)
	_, orgID := s.RegisteredTenant(t)
	d := newDispatcher(s)

	batch := []domain.Mutation{
		mutation("m-1", "CREATE_CUSTOMER", "k-1", `{"id":"cust-1","name":"Patil Stores","gstin":"27AAACP1234A1Z5"}`),
		mutation("m-2", "CREATE_PRODUCT", "k-2", `{"id":"prod-1","name":"Widget","unitPrice":10000,"taxRate":"18"}`),
		mutation("m-3", "CREATE_INVOICE", "k-3", `{"id":"inv-x","customerId":"missing","items":[{"productId":"prod-1","quantity":"1"}]}`),
		mutation("m-4", "CREATE_INVOICE", "k-4", `{"id":"inv-1","customerId":"cust-1","items":[{"productId":"prod-1","quantity":"2"}]}`),
		mutation("m-5", "UPDATE_CUSTOMER", "k-5", `{"id":"cust-1","phone":"9820000000"}`),
	}
	results := d.Process(context.Background(), orgID, batch)
	require.Len(t, results, 5)

	for i, r := range results {
		assert.Equal(t, batch[i].ID, r.ID)
	}
	assert.True(t, results[0].Succeeded())
	assert.True(t, results[1].Succeeded())
	assert.Equal(t, domain.StatusError, results[2].Status)
	assert.Equal(t, domain.CodeNotFound, results[2].Code)
	assert.True(t, results[3].Succeeded(), "result: %+v", results[3])
	assert.True(t, results[4].Succeeded())

	var inv invoicedomain.Invoice
	require.NoError(t, json.Unmarshal(results[3].Data, &inv))
	assert.Equal(t, "INV-0001", inv.DocumentNumber)
	assert.Equal(t, int64(23600), inv.GrandTotal)
	assert.Equal(t, int64(1), countRows(t, s, "invoices", orgID))

	// The failed mutation left nothing cached, so a fixed retry can succeed.
	record, err := s.Idempotency.Check(context.Background(), orgID, "k-3")
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestProcessRejectsUnknownType(t *testing.T) {
	s := testutil.NewStack(t)
	_, orgID := s.RegisteredTenant(t)

	results := newDispatcher(s).Process(context.Background(), orgID, []domain.Mutation{
		mutation("m-1", "ARCHIVE_INVOICE", "", `{}`),
		mutation("m-2", " create_customer ", "", `{"id":"cust-1","name":"Patil Stores"}`),
	})
	require.Len(t, results, 2)
	assert.Equal(t, domain.CodeValidation, results[0].Code)
	assert.Equal(t, domain.ErrUnknownMutationType.Error(), results[0].Error)
	assert.True(t, results[1].Succeeded())
}

func TestProcessReportsPayloadFields(t *testing.T) {
	s := testutil.NewStack(t)
	_, orgID := s.RegisteredTenant(t)
	d := newDispatcher(s)

	results := d.Process(context.Background(), orgID, []domain.Mutation{
		mutation("m-1", "CREATE_CUSTOMER", "k-1", `{"id":"cust-1","email":"not-an-email"}`),
		mutation("m-2", "CREATE_PRODUCT", "k-2", `{"name":`),
	})
	require.Len(t, results, 2)

	assert.Equal(t, domain.CodeValidation, results[0].Code)
	assert.Equal(t, "required", results[0].Details["name"])
	assert.Equal(t, "email", results[0].Details["email"])

	assert.Equal(t, domain.CodeValidation, results[1].Code)
	assert.Equal(t, "malformed", results[1].Details["data"])
	assert.Equal(t, int64(0), countRows(t, s, "customers", orgID))
}

func TestProcessStrictPayloadMismatch(t *testing.T) {
	cfg := testutil.DefaultConfig()
	cfg.Idempotency.StrictPayload = true
	s := testutil.NewStack(t, testutil.WithConfig(cfg))
	_, orgID := s.RegisteredTenant(t)
	d := newDispatcher(s)

	ok := d.Process(context.Background(), orgID, []domain.Mutation{
		mutation("m-1", "CREATE_CUSTOMER", "key-1", `{"id":"cust-1","name":"Patil Stores"}`),
	})
	require.True(t, ok[0].Succeeded())

	// Key order and whitespace do not change the fingerprint.
	same := d.Process(context.Background(), orgID, []domain.Mutation{
		mutation("m-1", "CREATE_CUSTOMER", "key-1", `{ "name": "Patil Stores", "id": "cust-1" }`),
	})
	assert.True(t, same[0].Cached)

	changed := d.Process(context.Background(), orgID, []domain.Mutation{
		mutation("m-1", "CREATE_CUSTOMER", "key-1", `{"id":"cust-1","name":"Rao Enterprises"}`),
	})
	assert.Equal(t, domain.CodeConflict, changed[0].Code)
}

func TestProcessReportsQuotaDetails(t *testing.T) {
	s := testutil.NewStack(t)
	_, orgID := s.Tenant(t, businessdomain.CreateBusinessRequest{
		PlanCode:            "free",
		StateCode:           "27",
		InvoicePrefix:       "INV-",
		MonthlyInvoiceLimit: testutil.Int64(1),
	})
	d := newDispatcher(s)

	results := d.Process(context.Background(), orgID, []domain.Mutation{
		mutation("m-1", "CREATE_INVOICE", "k-1", `{"id":"inv-1","items":[{"description":"Service","quantity":"1","unitPrice":5000}]}`),
		mutation("m-2", "ISSUE_INVOICE", "k-2", `{"id":"inv-1"}`),
		mutation("m-3", "CREATE_INVOICE", "k-3", `{"id":"inv-2","items":[{"description":"Service","quantity":"1","unitPrice":5000}]}`),
		mutation("m-4", "ISSUE_INVOICE", "k-4", `{"id":"inv-2"}`),
	})
	require.Len(t, results, 4)
	assert.True(t, results[0].Succeeded())
	assert.True(t, results[1].Succeeded(), "result: %+v", results[1])
	assert.True(t, results[2].Succeeded())

	assert.Equal(t, domain.CodeQuotaExceeded, results[3].Code)
	assert.EqualValues(t, 1, results[3].Details["limit"])
	assert.EqualValues(t, 1, results[3].Details["used"])
	assert.Equal(t, "2024-04", results[3].Details["month"])

	got, err := s.Invoices.Get(contextFor(orgID), "inv-2")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusDraft, got.Status)
}

func TestProcessTimesOutRemainingMutations(t *testing.T) {
	s := testutil.NewStack(t)
	_, orgID := s.RegisteredTenant(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := newDispatcher(s).Process(ctx, orgID, []domain.Mutation{
		mutation("m-1", "CREATE_CUSTOMER", "k-1", `{"id":"cust-1","name":"Patil Stores"}`),
		mutation("m-2", "CREATE_CUSTOMER", "k-2", `{"id":"cust-2","name":"Rao Enterprises"}`),
	})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, domain.CodeRequestTimeout, r.Code)
	}
	assert.Equal(t, int64(0), countRows(t, s, "customers", orgID))
}

func TestProcessStatusMutations(t *testing.T) {
	s := testutil.NewStack(t)
	_, orgID := s.RegisteredTenant(t)
	d := newDispatcher(s)

	create := func(id string) domain.Mutation {
		return mutation("c-"+id, "CREATE_INVOICE", "create-"+id,
			`{"id":"`+id+`","items":[{"description":"Consulting","quantity":"1","unitPrice":10000}]}`)
	}
	results := d.Process(context.Background(), orgID, []domain.Mutation{
		create("inv-1"),
		create("inv-2"),
		create("inv-3"),
		mutation("s-1", "ISSUE_INVOICE", "s-1", `{"id":"inv-1"}`),
		mutation("s-2", "PAY_INVOICE", "s-2", `{"id":"inv-1"}`),
		mutation("s-3", "ISSUE_INVOICE", "s-3", `{"id":"inv-2"}`),
		mutation("s-4", "VOID_INVOICE", "s-4", `{"id":"inv-2","reason":"wrong buyer"}`),
		mutation("s-5", "CANCEL_INVOICE", "s-5", `{"id":"inv-3"}`),
		mutation("s-6", "ISSUE_INVOICE", "s-6", `{"id":"inv-3"}`),
		mutation("s-7", "CANCEL_INVOICE", "s-7", `{"id":"inv-3","reason":"duplicate"}`),
		mutation("s-8", "PAY_INVOICE", "s-8", `{"id":"inv-3"}`),
	})
	require.Len(t, results, 11)
	for _, i := range []int{0, 1, 2, 3, 4, 5, 6, 8, 9} {
		assert.True(t, results[i].Succeeded(), "mutation %d: %+v", i, results[i])
	}
	// Drafts cannot be cancelled, and cancelled invoices cannot be paid.
	assert.Equal(t, domain.CodeForbidden, results[7].Code)
	assert.Equal(t, domain.CodeForbidden, results[10].Code)

	ctx := contextFor(orgID)
	paid, err := s.Invoices.Get(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, paid.Status)
	voided, err := s.Invoices.Get(ctx, "inv-2")
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusVoid, voided.Status)

	deleted := d.Process(context.Background(), orgID, []domain.Mutation{
		create("inv-4"),
		mutation("d-1", "DELETE_INVOICE", "d-1", `{"id":"inv-4"}`),
	})
	assert.True(t, deleted[1].Succeeded(), "result: %+v", deleted[1])
	_, err = s.Invoices.Get(ctx, "inv-4")
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestProcessFallsBackToMutationID(t *testing.T) {
	s := testutil.NewStack(t)
	_, orgID := s.RegisteredTenant(t)

	results := newDispatcher(s).Process(context.Background(), orgID, []domain.Mutation{
		mutation("cust-from-mutation", "CREATE_CUSTOMER", "", `{"name":"Patil Stores"}`),
	})
	require.True(t, results[0].Succeeded())

	var c customerdomain.Customer
	require.NoError(t, json.Unmarshal(results[0].Data, &c))
	assert.Equal(t, "cust-from-mutation", c.ID)
}

func TestProcessForbidsCrossTenantIDs(t *testing.T) {
	s := testutil.NewStack(t)
	_, orgA := s.RegisteredTenant(t)
	_, orgB := s.Tenant(t, businessdomain.CreateBusinessRequest{Name: "Rao Enterprises", StateCode: "29"})
	d := newDispatcher(s)

	seeded := d.Process(context.Background(), orgA, []domain.Mutation{
		mutation("m-1", "CREATE_CUSTOMER", "k-1", `{"id":"cust-1","name":"Patil Stores"}`),
		mutation("m-2", "CREATE_INVOICE", "k-2", `{"id":"inv-1","customerId":"cust-1","items":[{"description":"Fees","quantity":"1","unitPrice":100}]}`),
	})
	require.True(t, seeded[0].Succeeded())
	require.True(t, seeded[1].Succeeded())

	// Same keys under another tenant are a different namespace.
	results := d.Process(context.Background(), orgB, []domain.Mutation{
		mutation("m-1", "UPDATE_CUSTOMER", "k-1", `{"id":"cust-1","name":"Hijacked"}`),
		mutation("m-2", "ISSUE_INVOICE", "k-2", `{"id":"inv-1"}`),
		mutation("m-3", "CREATE_INVOICE", "k-3", `{"id":"inv-b","customerId":"cust-1","items":[{"description":"Fees","quantity":"1","unitPrice":100}]}`),
	})
	require.Len(t, results, 3)
	for _, r := range results {
		assert.False(t, r.Cached)
		assert.Equal(t, domain.CodeForbidden, r.Code, "result: %+v", r)
	}

	c, err := s.Customers.GetByID(contextFor(orgA), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "Patil Stores", c.Name)
}

func TestProcessEmptyBatch(t *testing.T) {
	s := testutil.NewStack(t)
	_, orgID := s.RegisteredTenant(t)
	assert.Empty(t, newDispatcher(s).Process(context.Background(), orgID, nil))
}
