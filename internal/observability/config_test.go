package observability

import (
	"testing"

	"github.com/smallbiznis/billbook/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigNormalizes(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:      " ",
		Environment:  "staging",
		AppVersion:   "1.2.3",
		OTLPEndpoint: "collector:4317",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "WARN",
			OtelEnabled:   true,
			OtelProtocol:  " HTTP ",
			SamplingRatio: 7,
		},
	})

	assert.Equal(t, "billbook", cfg.ServiceName)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, 0.1, cfg.OtelSamplingRatio)
	assert.True(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDisablesOtelWithoutEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{Telemetry: config.TelemetryConfig{OtelEnabled: true, SamplingRatio: 0.5}})
	assert.False(t, cfg.OtelEnabled)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
}

func TestDebugInDevelopment(t *testing.T) {
	assert.True(t, Config{Environment: "local", LogLevel: "info"}.Debug())
	assert.True(t, Config{Environment: "production", LogLevel: "debug"}.Debug())
	assert.False(t, Config{Environment: "production", LogLevel: "info"}.Debug())
}
