package scheduler

import (
	"time"

	"github.com/smallbiznis/billbook/internal/config"
)

const JobIdempotencySweep = "idempotency_sweep"

// Config controls scheduler intervals and batch sizes.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	SweepBatch  int
	JobTimeout  time.Duration
	// EnabledJobs limits the run to the named jobs. Empty runs every job.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: 15 * time.Minute,
		SweepBatch:  500,
		JobTimeout:  time.Minute,
	}
}

// ProvideConfig derives the scheduler settings from the idempotency config.
// A non-positive sweep interval turns the scheduler off.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Idempotency.SweepInterval > 0,
		RunInterval: cfg.Idempotency.SweepInterval,
		SweepBatch:  cfg.Idempotency.SweepBatch,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = defaults.SweepBatch
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
