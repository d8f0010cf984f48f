package events

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/billbook/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

type PublisherParams struct {
	fx.In

	Cfg    config.Config
	Log    *zap.Logger
	Client *redis.Client `optional:"true"`
}

// NewPublisher picks Redis pub/sub when enabled and reachable, otherwise a no-op.
func NewPublisher(p PublisherParams) Publisher {
	if !p.Cfg.Events.Enabled {
		return NewNoopPublisher()
	}
	if p.Client == nil {
		p.Log.Warn("events enabled without REDIS_ADDR; publishing disabled")
		return NewNoopPublisher()
	}
	return NewRedisPublisher(p.Client, p.Cfg.Events.Channel)
}
