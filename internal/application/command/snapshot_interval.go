// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gymstats/gymstats-hub/internal/application/query"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/logger"
	"github.com/gymstats/gymstats-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERVALS
// A snapshot covers one calendar week (ISO), month or year.
// ══════════════════════════════════════════════════════════════════════════════

// Interval is the length of a snapshot period. Values are persisted.
type Interval int

const (
	IntervalWeek  Interval = 1
	IntervalMonth Interval = 2
	IntervalYear  Interval = 3
)

// String returns the interval name.
func (i Interval) String() string {
	switch i {
	case IntervalWeek:
		return "week"
	case IntervalMonth:
		return "month"
	case IntervalYear:
		return "year"
	default:
		return fmt.Sprintf("interval(%d)", int(i))
	}
}

// IsValid checks the interval.
func (i Interval) IsValid() bool {
	return i == IntervalWeek || i == IntervalMonth || i == IntervalYear
}

// ParseInterval parses "week", "month" or "year".
func ParseInterval(s string) (Interval, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "week", "w", "1":
		return IntervalWeek, nil
	case "month", "m", "2":
		return IntervalMonth, nil
	case "year", "y", "3":
		return IntervalYear, nil
	default:
		return 0, shared.WrapError("snapshot", "ParseInterval", shared.ErrInvalidInput,
			fmt.Sprintf("unknown interval %q", s), shared.ErrInvalidInterval)
	}
}

// IntervalOf returns the interval id and year of the period containing t.
// Weeks use ISO numbering, so the year of week 1 may differ from t.Year().
// The id of a year interval is always 1.
func IntervalOf(interval Interval, t time.Time) (id, year int, err error) {
	switch interval {
	case IntervalWeek:
		year, id = t.ISOWeek()
		return id, year, nil
	case IntervalMonth:
		return int(t.Month()), t.Year(), nil
	case IntervalYear:
		return 1, t.Year(), nil
	default:
		return 0, 0, shared.ErrInvalidInterval
	}
}

// IntervalBounds returns the half-open date range of a period.
func IntervalBounds(interval Interval, id, year int) (time.Time, time.Time, error) {
	switch interval {
	case IntervalWeek:
		from, to, err := timeutil.WeekBounds(year, id)
		if err != nil {
			return time.Time{}, time.Time{}, shared.WrapError("snapshot", "IntervalBounds", shared.ErrValueOutOfRange, "invalid week", err)
		}
		return from, to, nil
	case IntervalMonth:
		from, to, err := timeutil.MonthBounds(year, id)
		if err != nil {
			return time.Time{}, time.Time{}, shared.WrapError("snapshot", "IntervalBounds", shared.ErrValueOutOfRange, "invalid month", err)
		}
		return from, to, nil
	case IntervalYear:
		if id != 1 {
			return time.Time{}, time.Time{}, shared.NewDomainError("snapshot", "IntervalBounds", shared.ErrValueOutOfRange, "year interval id must be 1")
		}
		from, to := timeutil.YearBounds(year)
		return from, to, nil
	default:
		return time.Time{}, time.Time{}, shared.ErrInvalidInterval
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is the stored statistics of one climber over one period.
type Snapshot struct {
	ID         string
	ClimberID  shared.ClimberID
	Interval   Interval
	IntervalID int
	Year       int

	// Payload is the JSON encoded query.WindowStatistics.
	Payload json.RawMessage

	CreatedAt time.Time
}

// Statistics decodes the payload.
func (s *Snapshot) Statistics() (*query.WindowStatistics, error) {
	var stats query.WindowStatistics
	if err := json.Unmarshal(s.Payload, &stats); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", s.ID, err)
	}
	return &stats, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository persists snapshots.
type SnapshotRepository interface {
	// Save inserts the snapshot or replaces the one with the same
	// (climber, interval, interval id, year).
	Save(ctx context.Context, s *Snapshot) error

	// Find returns ErrSnapshotNotFound when there is no such snapshot.
	Find(ctx context.Context, climber shared.ClimberID, interval Interval, intervalID, year int) (*Snapshot, error)

	// List returns the snapshots of a climber for one interval kind,
	// most recent period first.
	List(ctx context.Context, climber shared.ClimberID, interval Interval) ([]*Snapshot, error)
}

// StatisticsSource computes window statistics. Implemented by
// query.WindowStatisticsHandler.
type StatisticsSource interface {
	Handle(ctx context.Context, q query.WindowQuery) (*query.WindowStatistics, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT INTERVAL COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotIntervalCommand asks for the statistics of the period containing At.
type SnapshotIntervalCommand struct {
	ClimberID shared.ClimberID
	Interval  Interval
	At        time.Time

	// Force recomputes a closed period that already has a snapshot.
	Force bool
}

// Validate validates the command.
func (c SnapshotIntervalCommand) Validate() error {
	if c.ClimberID.IsEmpty() {
		return shared.NewDomainError("snapshot", "Validate", shared.ErrInvalidInput, "climber is required")
	}
	if !c.Interval.IsValid() {
		return shared.ErrInvalidInterval
	}
	if c.At.IsZero() {
		return shared.NewDomainError("snapshot", "Validate", shared.ErrInvalidInput, "reference date is required")
	}
	return nil
}

// SnapshotIntervalResult is the outcome of the command.
type SnapshotIntervalResult struct {
	Snapshot   *Snapshot
	Statistics *query.WindowStatistics
	From, To   time.Time

	// Reused is set when a stored snapshot of a closed period was returned
	// without recomputation.
	Reused bool
}

// SnapshotIntervalHandler handles SnapshotIntervalCommand.
type SnapshotIntervalHandler struct {
	stats  StatisticsSource
	repo   SnapshotRepository
	logger *logger.Logger
	now    func() time.Time
}

// NewSnapshotIntervalHandler creates a new handler.
func NewSnapshotIntervalHandler(stats StatisticsSource, repo SnapshotRepository, log *logger.Logger) *SnapshotIntervalHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SnapshotIntervalHandler{
		stats:  stats,
		repo:   repo,
		logger: log.With(logger.Component("snapshot")),
		now:    time.Now,
	}
}

// Handle computes and stores the snapshot. Closed periods are immutable,
// so a snapshot taken after the period ended is reused unless Force is set.
// The current period is always recomputed.
func (h *SnapshotIntervalHandler) Handle(ctx context.Context, cmd SnapshotIntervalCommand) (*SnapshotIntervalResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	id, year, err := IntervalOf(cmd.Interval, cmd.At)
	if err != nil {
		return nil, err
	}
	from, to, err := IntervalBounds(cmd.Interval, id, year)
	if err != nil {
		return nil, err
	}

	log := h.logger.With(
		logger.ClimberID(cmd.ClimberID.String()),
		logger.String("interval", cmd.Interval.String()),
		logger.Window(from, to),
	)

	closed := !to.After(h.now())
	if closed && !cmd.Force {
		existing, err := h.repo.Find(ctx, cmd.ClimberID, cmd.Interval, id, year)
		switch {
		case err == nil && existing.CreatedAt.Before(to):
			// Taken while the period was still open.
			log.Debug("stale snapshot recomputed")
		case err == nil:
			stats, err := existing.Statistics()
			if err != nil {
				return nil, err
			}
			log.Debug("snapshot reused")
			return &SnapshotIntervalResult{Snapshot: existing, Statistics: stats, From: from, To: to, Reused: true}, nil
		case !errors.Is(err, shared.ErrSnapshotNotFound):
			return nil, fmt.Errorf("find snapshot: %w", err)
		}
	}

	stats, err := h.stats.Handle(ctx, query.WindowQuery{
		ClimberID: cmd.ClimberID,
		From:      from,
		To:        to,
		WithPrior: true,
		Fresh:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("compute statistics: %w", err)
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("encode statistics: %w", err)
	}

	snap := &Snapshot{
		ID:         uuid.NewString(),
		ClimberID:  cmd.ClimberID,
		Interval:   cmd.Interval,
		IntervalID: id,
		Year:       year,
		Payload:    payload,
		CreatedAt:  h.now().UTC(),
	}
	if err := h.repo.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	log.Info("snapshot saved",
		logger.Int("sessions", stats.Sessions),
		logger.Bool("closed", closed),
	)
	return &SnapshotIntervalResult{Snapshot: snap, Statistics: stats, From: from, To: to}, nil
}
