package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gymstats/gymstats-hub/internal/application/command"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository implements command.SnapshotRepository for PostgreSQL.
type SnapshotRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(conn *Connection) *SnapshotRepository {
	return &SnapshotRepository{
		conn:    conn,
		retrier: retry.StoreRetrier(IsTransient),
	}
}

const snapshotColumns = `id, climber_id, period, period_id, year, payload, created_at`

// Save upserts by (climber, period, period id, year).
func (r *SnapshotRepository) Save(ctx context.Context, s *command.Snapshot) error {
	query := `
		INSERT INTO interval_statistics (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (climber_id, period, period_id, year) DO UPDATE SET
			id = EXCLUDED.id,
			payload = EXCLUDED.payload,
			created_at = EXCLUDED.created_at
	`
	_, err := r.conn.Exec(ctx, query,
		s.ID,
		string(s.ClimberID),
		int16(s.Interval),
		int16(s.IntervalID),
		s.Year,
		[]byte(s.Payload),
		s.CreatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.WrapError("snapshot", "Save", shared.ErrIntegrity, "unknown climber "+string(s.ClimberID), err)
		}
		if cerr := checkViolation("snapshot", "Save", err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Find returns one snapshot or shared.ErrSnapshotNotFound.
func (r *SnapshotRepository) Find(ctx context.Context, climber shared.ClimberID, interval command.Interval, intervalID, year int) (*command.Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM interval_statistics
		WHERE climber_id = $1 AND period = $2 AND period_id = $3 AND year = $4
	`
	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) (*command.Snapshot, error) {
		s, err := scanSnapshot(r.conn.QueryRow(ctx, query, string(climber), int16(interval), int16(intervalID), year))
		if IsNoRows(err) {
			return nil, shared.ErrSnapshotNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get snapshot: %w", err)
		}
		return s, nil
	})
}

// List returns the climber's snapshots of one interval, most recent first.
func (r *SnapshotRepository) List(ctx context.Context, climber shared.ClimberID, interval command.Interval) ([]*command.Snapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM interval_statistics
		WHERE climber_id = $1 AND period = $2
		ORDER BY year DESC, period_id DESC
	`
	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) ([]*command.Snapshot, error) {
		rows, err := r.conn.Query(ctx, query, string(climber), int16(interval))
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
		defer rows.Close()

		var out []*command.Snapshot
		for rows.Next() {
			s, err := scanSnapshot(rows)
			if err != nil {
				return nil, fmt.Errorf("failed to scan snapshot: %w", err)
			}
			out = append(out, s)
		}
		return out, rows.Err()
	})
}

// LastSaved returns the creation time of the newest snapshot. ok is false
// when nothing was saved yet.
func (r *SnapshotRepository) LastSaved(ctx context.Context) (last time.Time, ok bool, err error) {
	err = r.retrier.Do(ctx, func(ctx context.Context) error {
		var newest *time.Time
		if err := r.conn.QueryRow(ctx, `SELECT max(created_at) FROM interval_statistics`).Scan(&newest); err != nil {
			return fmt.Errorf("failed to read last snapshot time: %w", err)
		}
		if newest != nil {
			last, ok = newest.UTC(), true
		}
		return nil
	})
	return last, ok, err
}

func scanSnapshot(row pgx.Row) (*command.Snapshot, error) {
	var (
		s                    command.Snapshot
		climber              string
		interval, intervalID int16
		payload              []byte
	)
	if err := row.Scan(&s.ID, &climber, &interval, &intervalID, &s.Year, &payload, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.ClimberID = shared.ClimberID(climber)
	s.Interval = command.Interval(interval)
	s.IntervalID = int(intervalID)
	s.Payload = payload
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}
