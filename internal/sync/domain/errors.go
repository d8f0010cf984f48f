package domain

import (
	"context"
	"errors"
	"sort"
	"strings"

	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	idempotencydomain "github.com/smallbiznis/billbook/internal/idempotency/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	productdomain "github.com/smallbiznis/billbook/internal/product/domain"
	sequencedomain "github.com/smallbiznis/billbook/internal/sequence/domain"
	taxdomain "github.com/smallbiznis/billbook/internal/tax/domain"
	usagedomain "github.com/smallbiznis/billbook/internal/usage/domain"
	"github.com/smallbiznis/billbook/pkg/db/pagination"
)

type ErrorCode string

const (
	CodeValidation     ErrorCode = "validation_error"
	CodeNotFound       ErrorCode = "not_found"
	CodeForbidden      ErrorCode = "forbidden"
	CodeConflict       ErrorCode = "conflict"
	CodeQuotaExceeded  ErrorCode = "quota_exceeded"
	CodeInternal       ErrorCode = "internal_error"
	CodeRequestTimeout ErrorCode = "request_timeout"
)

var (
	ErrUnknownMutationType = errors.New("unknown_mutation_type")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrMutationInProgress  = errors.New("mutation_in_progress")
	ErrBatchTooLarge       = errors.New("batch_too_large")
	ErrEmptyBatch          = errors.New("empty_batch")
)

// Error is a classified failure safe to return to clients.
type Error struct {
	Code      ErrorCode
	Message   string
	Details   map[string]any
	Retryable bool
}

func (e *Error) Error() string {
	return e.Message
}

// PayloadError lists the fields of a mutation payload that failed validation.
type PayloadError struct {
	Fields map[string]string
}

func (e *PayloadError) Error() string {
	if len(e.Fields) == 0 {
		return ErrInvalidPayload.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return ErrInvalidPayload.Error() + ": " + strings.Join(names, ", ")
}

func (e *PayloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}

// Classify maps a handler error onto the client error taxonomy. Unknown
// errors become internal errors with a generic message.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var quota *usagedomain.QuotaExceededError
	if errors.As(err, &quota) {
		return &Error{Code: CodeQuotaExceeded, Message: usagedomain.ErrQuotaExceeded.Error(), Details: quota.Details()}
	}

	var payload *PayloadError
	if errors.As(err, &payload) {
		details := make(map[string]any, len(payload.Fields))
		for field, reason := range payload.Fields {
			details[field] = reason
		}
		return &Error{Code: CodeValidation, Message: ErrInvalidPayload.Error(), Details: details}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Code: CodeRequestTimeout, Message: "request_timeout", Retryable: true}
	case isValidation(err):
		return &Error{Code: CodeValidation, Message: err.Error()}
	case isNotFound(err):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case isForbidden(err):
		return &Error{Code: CodeForbidden, Message: err.Error()}
	case errors.Is(err, ErrMutationInProgress), errors.Is(err, sequencedomain.ErrAllocationConflict):
		return &Error{Code: CodeConflict, Message: err.Error(), Retryable: true}
	case errors.Is(err, idempotencydomain.ErrPayloadMismatch):
		return &Error{Code: CodeConflict, Message: err.Error()}
	default:
		return &Error{Code: CodeInternal, Message: "internal error", Retryable: true}
	}
}

func isValidation(err error) bool {
	switch {
	case errors.Is(err, ErrUnknownMutationType),
		errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrBatchTooLarge),
		errors.Is(err, ErrEmptyBatch),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, idempotencydomain.ErrEmptyKey):
		return true
	case errors.Is(err, invoicedomain.ErrInvalidOrganization),
		errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidLineItem),
		errors.Is(err, invoicedomain.ErrInvalidDocumentNumber),
		errors.Is(err, invoicedomain.ErrDuplicateNumber):
		return true
	case errors.Is(err, customerdomain.ErrInvalidOrganization),
		errors.Is(err, customerdomain.ErrInvalidID),
		errors.Is(err, customerdomain.ErrInvalidName),
		errors.Is(err, customerdomain.ErrInvalidEmail),
		errors.Is(err, customerdomain.ErrInvalidGSTIN):
		return true
	case errors.Is(err, productdomain.ErrInvalidOrganization),
		errors.Is(err, productdomain.ErrInvalidID),
		errors.Is(err, productdomain.ErrInvalidName),
		errors.Is(err, productdomain.ErrInvalidUnitPrice),
		errors.Is(err, productdomain.ErrInvalidTaxRate),
		errors.Is(err, productdomain.ErrInvalidHSNCode):
		return true
	case errors.Is(err, taxdomain.ErrInvalidQuantity),
		errors.Is(err, taxdomain.ErrInvalidUnitPrice),
		errors.Is(err, taxdomain.ErrInvalidDiscount),
		errors.Is(err, taxdomain.ErrInvalidDiscountType),
		errors.Is(err, taxdomain.ErrInvalidTaxRate):
		return true
	default:
		return false
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, invoicedomain.ErrNotFound) ||
		errors.Is(err, customerdomain.ErrNotFound) ||
		errors.Is(err, productdomain.ErrNotFound) ||
		errors.Is(err, businessdomain.ErrNotFound)
}

// isForbidden covers cross-tenant ids and invoices outside an editable state.
func isForbidden(err error) bool {
	return errors.Is(err, invoicedomain.ErrForbidden) ||
		errors.Is(err, customerdomain.ErrForbidden) ||
		errors.Is(err, productdomain.ErrForbidden) ||
		errors.Is(err, invoicedomain.ErrNotEditable) ||
		errors.Is(err, invoicedomain.ErrInvalidTransition)
}
