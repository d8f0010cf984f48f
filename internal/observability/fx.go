package observability

import (
	"github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the process logger, tracer and meters from config.Config.
var Module = fx.Module("observability",
	fx.Provide(LoadConfig, Config.Logger, Config.Tracing, Config.Metrics),
	fx.Provide(logger.New),
	fx.Provide(tracing.NewProvider),
	fx.Provide(metrics.NewProvider, metrics.New, metrics.NewHTTPMetrics),
	// Nothing depends on the tracer provider directly; it installs itself
	// as the otel global.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(func(cfg metrics.Config) { metrics.SchedulerWithConfig(cfg) }),
)
