// Package events publishes fire-and-forget domain notifications for
// downstream consumers such as billing and push delivery.
package events

import (
	"context"
	"time"
)

//go:generate mockgen -source=events.go -destination=mock/publisher_mock.go -package=mock

const (
	TopicUsageNearLimit   = "usage.near_limit"
	TopicInvoiceIssued    = "invoice.issued"
	TopicInvoicePaid      = "invoice.paid"
	TopicInvoiceCancelled = "invoice.cancelled"
	TopicInvoiceVoided    = "invoice.voided"
)

type Event struct {
	ID         string            `json:"id"`
	Topic      string            `json:"topic"`
	OrgID      string            `json:"org_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]any    `json:"data,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

type noopPublisher struct{}

// NewNoopPublisher discards events.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(context.Context, Event) error { return nil }
