package sync

import (
	"github.com/smallbiznis/billbook/internal/sync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sync.service",
	fx.Provide(service.NewDispatcher),
	fx.Provide(service.NewProvider),
)
