package invoice

import (
	"github.com/smallbiznis/billbook/internal/invoice/pdf"
	"github.com/smallbiznis/billbook/internal/invoice/repository"
	"github.com/smallbiznis/billbook/internal/invoice/service"
	"github.com/smallbiznis/billbook/internal/tax"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	tax.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(pdf.New),
)
