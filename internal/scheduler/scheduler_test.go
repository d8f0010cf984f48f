package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	idempotencydomain "github.com/smallbiznis/billbook/internal/idempotency/domain"
	obsmetrics "github.com/smallbiznis/billbook/internal/observability/metrics"
	"github.com/smallbiznis/billbook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *testutil.Stack, *prometheus.Registry) {
	t.Helper()
	s := testutil.NewStack(t)
	registry := prometheus.NewRegistry()
	sched, err := New(Params{
		DB:          s.DB,
		Log:         zap.NewNop(),
		GenID:       s.Node,
		Clock:       s.Clock,
		Idempotency: s.Idempotency,
		Config:      cfg,
		Metrics: obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{
			ServiceName: "billbook",
			Environment: "test",
		}),
	})
	require.NoError(t, err)
	return sched, s, registry
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	sched, _, registry := newTestScheduler(t, Config{})

	err := sched.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{"service": "billbook", "env": "test", "job": "timeout_job"}
	assert.Equal(t, float64(1), counterValue(t, registry, "billbook_scheduler_job_timeouts_total", labels))

	labels["reason"] = obsmetrics.SchedulerJobReasonDeadlineExceeded
	assert.Equal(t, float64(1), counterValue(t, registry, "billbook_scheduler_job_errors_total", labels))
}

func TestRunJobWrapsFailures(t *testing.T) {
	sched, _, _ := newTestScheduler(t, Config{})
	boom := fmt.Errorf("boom")

	err := sched.runJob(context.Background(), "failing_job", 0, time.Second, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestIdempotencySweepPurgesExpiredRecords(t *testing.T) {
	sched, s, registry := newTestScheduler(t, Config{SweepBatch: 2})
	_, orgID := s.RegisteredTenant(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Idempotency.Save(ctx, orgID, fmt.Sprintf("old-%d", i), idempotencydomain.SaveRequest{Result: json.RawMessage(`{}`)}))
	}
	s.Clock.Advance(s.Cfg.Idempotency.TTL + time.Hour)
	require.NoError(t, s.Idempotency.Save(ctx, orgID, "fresh", idempotencydomain.SaveRequest{Result: json.RawMessage(`{}`)}))

	require.NoError(t, sched.RunOnce(ctx))

	var keys []string
	require.NoError(t, s.DB.Model(&idempotencydomain.Record{}).Pluck("idempotency_key", &keys).Error)
	assert.Equal(t, []string{"fresh"}, keys)

	labels := map[string]string{
		"service":  "billbook",
		"env":      "test",
		"job":      JobIdempotencySweep,
		"resource": "idempotency_records",
	}
	assert.Equal(t, float64(5), counterValue(t, registry, "billbook_scheduler_batch_processed_total", labels))
	assert.Equal(t, float64(1), counterValue(t, registry, "billbook_scheduler_job_runs_total", map[string]string{
		"service": "billbook", "env": "test", "job": JobIdempotencySweep,
	}))
}

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	sched, s, _ := newTestScheduler(t, Config{EnabledJobs: []string{"something_else"}})
	_, orgID := s.RegisteredTenant(t)
	ctx := context.Background()

	require.NoError(t, s.Idempotency.Save(ctx, orgID, "old", idempotencydomain.SaveRequest{Result: json.RawMessage(`{}`)}))
	s.Clock.Advance(s.Cfg.Idempotency.TTL + time.Hour)
	require.NoError(t, sched.RunOnce(ctx))

	var count int64
	require.NoError(t, s.DB.Model(&idempotencydomain.Record{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.True(t, sched.isJobEnabled("SOMETHING_ELSE"))
}

func TestJobLockKeyIsStable(t *testing.T) {
	assert.Equal(t, jobLockKey(JobIdempotencySweep), jobLockKey(JobIdempotencySweep))
	assert.NotEqual(t, jobLockKey(JobIdempotencySweep), jobLockKey("other"))
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m.GetLabel(), labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, pair := range pairs {
		if want[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}
