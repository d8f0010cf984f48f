package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/billbook/internal/observability/context"
	obslogger "github.com/smallbiznis/billbook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	pkgdb "github.com/smallbiznis/billbook/pkg/db"
	"go.uber.org/zap"
)

// jobRun tracks one execution of a job. Nested calls for the same job share
// the run stored on the context.
type jobRun struct {
	job       string
	id        string
	batchSize int
	started   time.Time
	processed int
	failures  int
}

type runCtxKey struct{}

func (r *jobRun) fields() []zap.Field {
	return []zap.Field{zap.String("job", r.job), zap.String("run_id", r.id)}
}

func (r *jobRun) addProcessed(n int) {
	if r != nil && n > 0 {
		r.processed += n
	}
}

func (r *jobRun) fail() {
	if r != nil {
		r.failures++
	}
}

// beginRun returns the run already on ctx, or starts a new one. owner is true
// only for the call that started it; that call logs start and finish.
func (s *Scheduler) beginRun(ctx context.Context, job string, batchSize int) (_ context.Context, run *jobRun, owner bool) {
	if run, ok := ctx.Value(runCtxKey{}).(*jobRun); ok {
		return ctx, run, false
	}
	run = &jobRun{
		job:       job,
		id:        s.genID.Generate().String(),
		batchSize: batchSize,
		started:   s.clock.Now(),
	}
	ctx = obscontext.WithActor(context.WithValue(ctx, runCtxKey{}, run), "system", "scheduler")
	s.logger(ctx).Info("scheduler.job.start", append(run.fields(), zap.Int("batch_size", batchSize))...)
	return ctx, run, true
}

func (s *Scheduler) endRun(ctx context.Context, run *jobRun) {
	fields := append(run.fields(),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.started).Milliseconds()),
		zap.Int("processed_count", run.processed),
		zap.Int("error_count", run.failures),
	)
	if run.failures > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) jobFailed(ctx context.Context, run *jobRun, msg string, err error) {
	run.fail()
	s.logger(ctx).Error(msg, append(run.fields(),
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", pkgdb.IsRetryableTxErr(err)),
		zap.Error(err),
	)...)
}
