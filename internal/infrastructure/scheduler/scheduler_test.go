package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
	panic bool
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.panic {
		panic("boom")
	}
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func newTestScheduler() *Scheduler {
	cfg := DefaultConfig()
	cfg.Logger = nil
	cfg.TickInterval = 5 * time.Millisecond
	cfg.JobTimeout = time.Second
	return New(cfg)
}

func TestScheduler_Register(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "a"}

	require.NoError(t, s.Register(job, Every(time.Minute)))
	assert.ErrorIs(t, s.Register(job, Every(time.Minute)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, Every(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "b"}, nil), ErrNilSchedule)

	infos := s.ListJobs()
	require.Len(t, infos, 1)
	assert.Equal(t, "a", infos[0].Name)
	assert.Equal(t, "@every 1m0s", infos[0].Schedule)
	assert.True(t, infos[0].Enabled)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))

	done := make(chan JobResult, 16)
	s.OnJobComplete(func(r JobResult) { done <- r })

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	select {
	case r := <-done:
		assert.True(t, r.Success)
		assert.Equal(t, "tick", r.JobName)
		assert.False(t, r.Manual)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())
	assert.GreaterOrEqual(t, job.runs.Load(), int32(1))
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("boom")
	job := &countingJob{name: "manual", err: boom}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "manual")
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	info := s.ListJobs()[0]
	assert.Equal(t, int64(1), info.RunCount)
	assert.Equal(t, int64(1), info.FailCount)
	assert.Len(t, s.GetHistory(0), 1)
}

func TestScheduler_RunNowWhileRunning(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, Every(time.Hour)))

	go func() { _, _ = s.RunNow(context.Background(), "slow") }()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)
	close(job.block)
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&countingJob{name: "panics", panic: true}, Every(time.Hour)))

	_, err := s.RunNow(context.Background(), "panics")
	assert.ErrorIs(t, err, ErrJobPanicked)
}

func TestScheduler_DisableJob(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&countingJob{name: "a"}, Every(time.Minute)))

	require.NoError(t, s.DisableJob("a"))
	assert.False(t, s.ListJobs()[0].Enabled)
	require.NoError(t, s.EnableJob("a"))
	assert.True(t, s.ListJobs()[0].Enabled)
	assert.ErrorIs(t, s.DisableJob("b"), ErrJobNotFound)
}

func TestCron_Next(t *testing.T) {
	at := time.Date(2024, 3, 13, 10, 17, 30, 0, time.UTC) // Wednesday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"*/15 * * * *", time.Date(2024, 3, 13, 10, 30, 0, 0, time.UTC)},
		{"5 0 * * 1", time.Date(2024, 3, 18, 0, 5, 0, 0, time.UTC)},
		{"30 2 1 * *", time.Date(2024, 4, 1, 2, 30, 0, 0, time.UTC)},
		{"0 9-17/4 * * *", time.Date(2024, 3, 13, 13, 0, 0, 0, time.UTC)},
		{"0 0 29 2 *", time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"0 12 * * 0,6", time.Date(2024, 3, 16, 12, 0, 0, 0, time.UTC)},
		{"0 0 * * 7", time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC)},
		{"0 0 1 * 5", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ce, err := ParseCron(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ce.Next(at))
			assert.Equal(t, tt.expr, ce.String())
		})
	}
}

func TestCron_Invalid(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "a * * * *", "5-2 * * * *"} {
		_, err := ParseCron(expr)
		assert.Error(t, err, expr)
	}
	assert.Panics(t, func() { MustParseCron("bad") })
}

func TestGap(t *testing.T) {
	at := time.Date(2024, 3, 13, 10, 17, 30, 0, time.UTC)

	assert.Equal(t, time.Hour, Gap(Every(time.Hour), at))
	assert.Equal(t, 15*time.Minute, Gap(MustParseCron("*/15 * * * *"), at))
	assert.Equal(t, 7*24*time.Hour, Gap(MustParseCron("5 0 * * 1"), at))
	assert.Zero(t, Gap(MustParseCron("0 0 31 2 *"), at), "February 31st never comes")
}
