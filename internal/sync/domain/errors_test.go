package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	customerdomain "github.com/smallbiznis/billbook/internal/customer/domain"
	idempotencydomain "github.com/smallbiznis/billbook/internal/idempotency/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
	sequencedomain "github.com/smallbiznis/billbook/internal/sequence/domain"
	usagedomain "github.com/smallbiznis/billbook/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		code      ErrorCode
		retryable bool
	}{
		{"unknown type", ErrUnknownMutationType, CodeValidation, false},
		{"invalid line", fmt.Errorf("build: %w", invoicedomain.ErrInvalidLineItem), CodeValidation, false},
		{"duplicate number", invoicedomain.ErrDuplicateNumber, CodeValidation, false},
		{"missing customer", customerdomain.ErrNotFound, CodeNotFound, false},
		{"cross tenant", invoicedomain.ErrForbidden, CodeForbidden, false},
		{"not editable", invoicedomain.ErrNotEditable, CodeForbidden, false},
		{"bad transition", invoicedomain.ErrInvalidTransition, CodeForbidden, false},
		{"in progress", ErrMutationInProgress, CodeConflict, true},
		{"allocation", sequencedomain.ErrAllocationConflict, CodeConflict, true},
		{"payload mismatch", idempotencydomain.ErrPayloadMismatch, CodeConflict, false},
		{"deadline", context.DeadlineExceeded, CodeRequestTimeout, true},
		{"cancelled", fmt.Errorf("query: %w", context.Canceled), CodeRequestTimeout, true},
		{"unexpected", errors.New("pq: connection reset"), CodeInternal, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			require.NotNil(t, got)
			assert.Equal(t, tc.code, got.Code)
			assert.Equal(t, tc.retryable, got.Retryable)
		})
	}
}

func TestClassifyHidesInternalMessages(t *testing.T) {
	got := Classify(errors.New("pq: password authentication failed for user billbook"))
	assert.Equal(t, "internal error", got.Message)
}

func TestClassifyQuotaDetails(t *testing.T) {
	err := fmt.Errorf("issue: %w", &usagedomain.QuotaExceededError{Limit: 10, Used: 10, Month: "2024-04", Plan: "free"})
	got := Classify(err)
	assert.Equal(t, CodeQuotaExceeded, got.Code)
	assert.Equal(t, int64(10), got.Details["limit"])
	assert.Equal(t, "2024-04", got.Details["month"])
}

func TestClassifyPayloadFields(t *testing.T) {
	got := Classify(&PayloadError{Fields: map[string]string{"items[0].quantity": "required"}})
	assert.Equal(t, CodeValidation, got.Code)
	assert.Equal(t, "required", got.Details["items[0].quantity"])
	assert.True(t, errors.Is(&PayloadError{}, ErrInvalidPayload))
}

func TestClassifyKeepsClassifiedErrors(t *testing.T) {
	original := &Error{Code: CodeConflict, Message: "busy"}
	assert.Same(t, original, Classify(fmt.Errorf("wrap: %w", original)))
	assert.Nil(t, Classify(nil))
}

func TestMutationTypeNormalize(t *testing.T) {
	assert.Equal(t, MutationCreateInvoice, MutationType("  create_invoice ").Normalize())
}
