package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/billbook/internal/clock"
	idempotencydomain "github.com/smallbiznis/billbook/internal/idempotency/domain"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Idempotency idempotencydomain.Service
	Config      Config                       `optional:"true"`
	Metrics     *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	genID       *snowflake.Node
	clock       clock.Clock
	idempotency idempotencydomain.Service
	metrics     *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Idempotency == nil {
		return nil, ErrInvalidConfig
	}
	m := p.Metrics
	if m == nil {
		m = obsmetrics.Scheduler()
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		genID:       p.GenID,
		clock:       p.Clock,
		idempotency: p.Idempotency,
		metrics:     m,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.beginRun(ctx, name, batchSize)
	log := s.logger(ctx).With(run.fields()...)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.failures == 0 {
			run.fail()
		}
		s.endRun(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadlines are soft: the next tick picks up where this one stopped.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobIdempotencySweep, func(ctx context.Context) error {
			return s.runJob(ctx, JobIdempotencySweep, s.cfg.SweepBatch, s.cfg.JobTimeout, s.IdempotencySweepJob)
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()

	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// IdempotencySweepJob deletes expired idempotency records batch by batch
// until a batch comes back short.
func (s *Scheduler) IdempotencySweepJob(ctx context.Context) error {
	ctx, run, owner := s.beginRun(ctx, JobIdempotencySweep, s.cfg.SweepBatch)
	if owner {
		defer s.endRun(ctx, run)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var deleted int64
		acquired, err := s.withJobLock(ctx, JobIdempotencySweep, func(ctx context.Context) error {
			n, err := s.idempotency.PurgeExpired(ctx, s.cfg.SweepBatch)
			deleted = n
			return err
		})
		if err != nil {
			s.jobFailed(ctx, run, "scheduler.sweep.failed", err)
			return err
		}
		if !acquired {
			s.logger(ctx).Debug("scheduler.sweep.skipped", zap.String("reason", "locked_by_peer"))
			return nil
		}

		run.addProcessed(int(deleted))
		s.metrics.AddBatchProcessed(JobIdempotencySweep, "idempotency_records", int(deleted))
		if deleted < int64(s.cfg.SweepBatch) {
			return nil
		}
	}
}
