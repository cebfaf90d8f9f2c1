package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gymstats/gymstats-hub/internal/application/command"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

// SnapshotRepository implements command.SnapshotRepository.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save upserts by (climber, period, period id, year).
func (r *SnapshotRepository) Save(ctx context.Context, s *command.Snapshot) error {
	query := `
		INSERT INTO interval_statistics (id, climber_id, period, period_id, year, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (climber_id, period, period_id, year) DO UPDATE SET
			id = excluded.id,
			payload = excluded.payload,
			created_at = excluded.created_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		string(s.ClimberID),
		int(s.Interval),
		s.IntervalID,
		s.Year,
		string(s.Payload),
		s.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return shared.WrapError("snapshot", "Save", shared.ErrIntegrity, "unknown climber "+string(s.ClimberID), err)
		}
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Find returns one snapshot or shared.ErrSnapshotNotFound.
func (r *SnapshotRepository) Find(ctx context.Context, climber shared.ClimberID, interval command.Interval, intervalID, year int) (*command.Snapshot, error) {
	query := `
		SELECT id, climber_id, period, period_id, year, payload, created_at
		FROM interval_statistics
		WHERE climber_id = ? AND period = ? AND period_id = ? AND year = ?
	`
	row := r.db.QueryRowContext(ctx, query, string(climber), int(interval), intervalID, year)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return s, nil
}

// List returns the climber's snapshots of one interval, most recent first.
func (r *SnapshotRepository) List(ctx context.Context, climber shared.ClimberID, interval command.Interval) ([]*command.Snapshot, error) {
	query := `
		SELECT id, climber_id, period, period_id, year, payload, created_at
		FROM interval_statistics
		WHERE climber_id = ? AND period = ?
		ORDER BY year DESC, period_id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, string(climber), int(interval))
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
}

// LastSaved returns the creation time of the newest snapshot, to the second.
// ok is false when nothing was saved yet.
func (r *SnapshotRepository) LastSaved(ctx context.Context) (time.Time, bool, error) {
	// created_at is RFC 3339 with a variable fraction, which does not sort as text.
	query := `SELECT max(strftime('%Y-%m-%dT%H:%M:%SZ', created_at)) FROM interval_statistics`
	var newest sql.NullString
	if err := r.db.QueryRowContext(ctx, query).Scan(&newest); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last snapshot time: %w", err)
	}
	if !newest.Valid {
		return time.Time{}, false, nil
	}
	last, err := time.Parse(time.RFC3339, newest.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("bad created_at %q: %w", newest.String, err)
	}
	return last, true, nil
}

func scanSnapshot(row scanner) (*command.Snapshot, error) {
	var (
		s                command.Snapshot
		climber, payload string
		createdAt        string
		interval         int
	)
	if err := row.Scan(&s.ID, &climber, &interval, &s.IntervalID, &s.Year, &payload, &createdAt); err != nil {
		return nil, err
	}
	s.ClimberID = shared.ClimberID(climber)
	s.Interval = command.Interval(interval)
	s.Payload = []byte(payload)

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q: %w", createdAt, err)
	}
	s.CreatedAt = created
	return &s, nil
}
