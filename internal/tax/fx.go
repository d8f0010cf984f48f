package tax

import (
	"github.com/smallbiznis/billbook/internal/tax/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tax.calculator",
	fx.Provide(service.NewCalculator),
)
