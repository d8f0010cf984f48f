package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanConfigResolveFallsBackToDefault(t *testing.T) {
	cfg := DefaultPlanConfig()

	code, plan := cfg.Resolve("GROWTH")
	assert.Equal(t, "growth", code)
	assert.Equal(t, int64(1000), plan.MonthlyInvoiceLimit)

	code, plan = cfg.Resolve("legacy-gold")
	assert.Equal(t, "free", code)
	assert.Equal(t, int64(10), plan.MonthlyInvoiceLimit)
}

func TestValidatePlanConfig(t *testing.T) {
	assert.Error(t, validatePlanConfig(PlanConfig{}))
	assert.Error(t, validatePlanConfig(PlanConfig{DefaultPlan: "gold", Items: map[string]Plan{"free": {}}}))
	assert.NoError(t, validatePlanConfig(DefaultPlanConfig()))
}

func TestNewPlanConfigHolderReadsYAML(t *testing.T) {
	dir := t.TempDir()
	body := []byte("plans:\n  default: basic\n  items:\n    basic:\n      monthlyInvoiceLimit: 3\n    unlimited:\n      monthlyInvoiceLimit: 0\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plans.yml"), body, 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	holder, err := NewPlanConfigHolder()
	require.NoError(t, err)

	code, plan := holder.Get().Resolve("basic")
	assert.Equal(t, "basic", code)
	assert.Equal(t, int64(3), plan.MonthlyInvoiceLimit)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYNC_MAX_BATCH", "")
	t.Setenv("IDEMPOTENCY_TTL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, 200, cfg.Sync.MaxBatchSize)
	assert.Equal(t, "24h0m0s", cfg.Idempotency.TTL.String())
	assert.False(t, cfg.Idempotency.StrictPayload)
	assert.Equal(t, "Asia/Kolkata", cfg.Usage.Timezone)
}
