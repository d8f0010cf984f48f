package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/billbook/internal/observability/correlation"
)

// RedisPublisher fans events out over Redis pub/sub; the topic is appended to
// the configured channel prefix.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "billbook.events"
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = ulid.Make().String()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	evt.Metadata = correlation.Stamp(ctx, evt.Metadata, evt.OccurredAt)

	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.ChannelFor(evt.Topic), payload).Err()
}

func (p *RedisPublisher) ChannelFor(topic string) string {
	return p.channel + "." + strings.TrimSpace(topic)
}
