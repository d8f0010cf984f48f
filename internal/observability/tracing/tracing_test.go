package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/sync/batch"),
		attribute.String("authorization", "Bearer secret"),
		attribute.String("idempotency_key", "k-1"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsTopLevelMessage(t *testing.T) {
	err := fmt.Errorf("allocate_sequence: %w", errors.New(`ERROR: relation "document_sequences" does not exist`))
	assert.EqualError(t, SafeError(err), "allocate_sequence")
	assert.Nil(t, SafeError(nil))
}
