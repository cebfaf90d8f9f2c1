// Package jobs contains the scheduled jobs of the worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gymstats/gymstats-hub/internal/application/command"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// ClimberLister lists the climbers to snapshot.
type ClimberLister interface {
	ListClimbers(ctx context.Context) ([]shared.ClimberID, error)
}

// SnapshotRunner is implemented by command.SnapshotIntervalHandler.
type SnapshotRunner interface {
	Handle(ctx context.Context, cmd command.SnapshotIntervalCommand) (*command.SnapshotIntervalResult, error)
}

// Locker guards a run against concurrent workers. ok is false when another
// worker holds the lock.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// Recorder receives job outcomes.
type Recorder interface {
	JobRun(job, status string)
	SnapshotSaved(interval string, reused bool)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT INTERVALS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotIntervalsName is the job name, also used as lock name and metric label.
const SnapshotIntervalsName = "snapshot_intervals"

// SnapshotIntervalsConfig contains configuration for the job.
type SnapshotIntervalsConfig struct {
	// Intervals to refresh on each run.
	Intervals []command.Interval

	// LockTTL bounds how long one run holds the lock.
	LockTTL time.Duration

	// IncludePrevious also snapshots the period before the current one, so
	// that a period closed since the last run gets its final numbers.
	IncludePrevious bool
}

// DefaultSnapshotIntervalsConfig returns sensible defaults.
func DefaultSnapshotIntervalsConfig() SnapshotIntervalsConfig {
	return SnapshotIntervalsConfig{
		Intervals:       []command.Interval{command.IntervalWeek, command.IntervalMonth, command.IntervalYear},
		LockTTL:         10 * time.Minute,
		IncludePrevious: true,
	}
}

// SnapshotStats contains statistics from one run.
type SnapshotStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Climbers  int
	Saved     int
	Reused    int
	Failed    int
	Skipped   bool
}

// SnapshotIntervalsJob stores the interval statistics of every climber.
type SnapshotIntervalsJob struct {
	climbers ClimberLister
	runner   SnapshotRunner
	locker   Locker
	recorder Recorder
	logger   *logger.Logger
	config   SnapshotIntervalsConfig
	now      func() time.Time

	lastStats atomic.Pointer[SnapshotStats]
}

// NewSnapshotIntervalsJob creates the job. locker and recorder may be nil.
func NewSnapshotIntervalsJob(
	climbers ClimberLister,
	runner SnapshotRunner,
	locker Locker,
	recorder Recorder,
	log *logger.Logger,
	config SnapshotIntervalsConfig,
) *SnapshotIntervalsJob {
	if log == nil {
		log = logger.Nop()
	}
	if len(config.Intervals) == 0 {
		config.Intervals = DefaultSnapshotIntervalsConfig().Intervals
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultSnapshotIntervalsConfig().LockTTL
	}
	return &SnapshotIntervalsJob{
		climbers: climbers,
		runner:   runner,
		locker:   locker,
		recorder: recorder,
		logger:   log.With(logger.Component("job"), logger.String("job", SnapshotIntervalsName)),
		config:   config,
		now:      time.Now,
	}
}

// Name returns the job name.
func (j *SnapshotIntervalsJob) Name() string {
	return SnapshotIntervalsName
}

// Description returns a human-readable description.
func (j *SnapshotIntervalsJob) Description() string {
	return "Stores week, month and year statistics of every climber"
}

// LastStats returns the statistics of the last run, nil before the first one.
func (j *SnapshotIntervalsJob) LastStats() *SnapshotStats {
	return j.lastStats.Load()
}

// Run executes the job. A failure for one climber does not stop the others;
// the run fails if any snapshot failed.
func (j *SnapshotIntervalsJob) Run(ctx context.Context) (err error) {
	stats := &SnapshotStats{StartedAt: j.now()}
	defer func() {
		stats.Duration = j.now().Sub(stats.StartedAt)
		j.lastStats.Store(stats)
		j.record(stats, err)
	}()

	if j.locker != nil {
		unlock, ok, err := j.locker.TryLock(ctx, SnapshotIntervalsName, j.config.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			stats.Skipped = true
			j.logger.Info("another worker is running the job, skipping")
			return nil
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				j.logger.Warn("failed to release lock", logger.Err(err))
			}
		}()
	}

	climbers, err := j.climbers.ListClimbers(ctx)
	if err != nil {
		return fmt.Errorf("list climbers: %w", err)
	}
	stats.Climbers = len(climbers)

	var errs []error
	for _, climber := range climbers {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, interval := range j.config.Intervals {
			for _, at := range j.referenceDates(interval) {
				res, err := j.runner.Handle(ctx, command.SnapshotIntervalCommand{
					ClimberID: climber,
					Interval:  interval,
					At:        at,
				})
				if err != nil {
					stats.Failed++
					errs = append(errs, fmt.Errorf("%s %s: %w", climber, interval, err))
					j.logger.Error("snapshot failed",
						logger.ClimberID(climber.String()),
						logger.String("interval", interval.String()),
						logger.Err(err),
					)
					continue
				}
				if res.Reused {
					stats.Reused++
				} else {
					stats.Saved++
				}
				if j.recorder != nil {
					j.recorder.SnapshotSaved(interval.String(), res.Reused)
				}
			}
		}
	}

	j.logger.Info("snapshots refreshed",
		logger.Int("climbers", stats.Climbers),
		logger.Int("saved", stats.Saved),
		logger.Int("reused", stats.Reused),
		logger.Int("failed", stats.Failed),
	)
	return errors.Join(errs...)
}

// referenceDates returns a date inside the current period and, when
// configured, one inside the previous period.
func (j *SnapshotIntervalsJob) referenceDates(interval command.Interval) []time.Time {
	now := j.now()
	dates := []time.Time{now}
	if !j.config.IncludePrevious {
		return dates
	}
	id, year, err := command.IntervalOf(interval, now)
	if err != nil {
		return dates
	}
	from, _, err := command.IntervalBounds(interval, id, year)
	if err != nil {
		return dates
	}
	return append([]time.Time{from.Add(-time.Hour)}, dates...)
}

func (j *SnapshotIntervalsJob) record(stats *SnapshotStats, err error) {
	if j.recorder == nil {
		return
	}
	status := "success"
	switch {
	case stats.Skipped:
		status = "skipped"
	case err != nil:
		status = "failure"
	}
	j.recorder.JobRun(SnapshotIntervalsName, status)
}
