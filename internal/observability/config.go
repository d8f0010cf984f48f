package observability

import (
	"strings"

	"github.com/smallbiznis/billbook/internal/config"
	"github.com/smallbiznis/billbook/internal/observability/logger"
	"github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/observability/tracing"
)

const defaultSamplingRatio = 0.1

// Config is the normalized telemetry view shared by the logger, tracer and
// metrics providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry

	out := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             lower(t.LogLevel, "info"),
		LogFormat:            lower(t.LogFormat, "json"),
		OtelEnabled:          t.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: lower(t.OtelProtocol, "grpc"),
		OtelSamplingRatio:    t.SamplingRatio,
	}
	if out.ServiceName == "" {
		out.ServiceName = "billbook"
	}
	if out.OtelSamplingRatio <= 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = defaultSamplingRatio
	}
	if out.OtelExporterEndpoint == "" {
		out.OtelEnabled = false
	}
	return out
}

// Debug turns on console logs and stack traces for local work.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func lower(value, def string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return def
	}
	return value
}

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
