// Package domain defines the offline sync contract: client mutations, their
// per-mutation results and the delta/full snapshot shapes.
package domain

import (
	"encoding/json"
	"strings"
)

type MutationType string

const (
	MutationCreateInvoice  MutationType = "CREATE_INVOICE"
	MutationUpdateInvoice  MutationType = "UPDATE_INVOICE"
	MutationIssueInvoice   MutationType = "ISSUE_INVOICE"
	MutationPayInvoice     MutationType = "PAY_INVOICE"
	MutationCancelInvoice  MutationType = "CANCEL_INVOICE"
	MutationVoidInvoice    MutationType = "VOID_INVOICE"
	MutationDeleteInvoice  MutationType = "DELETE_INVOICE"
	MutationCreateCustomer MutationType = "CREATE_CUSTOMER"
	MutationUpdateCustomer MutationType = "UPDATE_CUSTOMER"
	MutationCreateProduct  MutationType = "CREATE_PRODUCT"
	MutationUpdateProduct  MutationType = "UPDATE_PRODUCT"
)

// Normalize upper-cases the type so "create_invoice" dispatches too.
func (t MutationType) Normalize() MutationType {
	return MutationType(strings.ToUpper(strings.TrimSpace(string(t))))
}

// Mutation is one queued client write. ID is the client-generated id used to
// align results with the request.
type Mutation struct {
	ID             string          `json:"id"`
	Type           MutationType    `json:"type"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// Result is the outcome of exactly one mutation. A failed mutation never
// affects its neighbours in the batch.
type Result struct {
	ID      string          `json:"id"`
	Status  ResultStatus    `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    ErrorCode       `json:"code,omitempty"`
	Details map[string]any  `json:"details,omitempty"`
	Cached  bool            `json:"cached,omitempty"`
}

func Success(id string, data json.RawMessage, cached bool) Result {
	return Result{ID: id, Status: StatusSuccess, Data: data, Cached: cached}
}

func Failure(id string, err *Error) Result {
	if err == nil {
		err = &Error{Code: CodeInternal, Message: "internal error"}
	}
	return Result{
		ID:      id,
		Status:  StatusError,
		Error:   err.Message,
		Code:    err.Code,
		Details: err.Details,
	}
}

// Succeeded reports whether the mutation was applied or replayed.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Outcome is the low-cardinality label used for metrics.
func (r Result) Outcome() string {
	switch {
	case r.Cached:
		return "cached"
	case r.Succeeded():
		return "success"
	default:
		return string(r.Code)
	}
}
