package business

import (
	"github.com/smallbiznis/billbook/internal/business/repository"
	"github.com/smallbiznis/billbook/internal/business/service"
	"go.uber.org/fx"
)

var Module = fx.Module("business.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
