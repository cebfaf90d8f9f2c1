package handlers

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/application/command"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/persistence/sqlite"
)

func passing(context.Context) error { return nil }

func TestChecker_RequiredAndOptional(t *testing.T) {
	c := NewChecker("v1")
	c.AddCheck("postgres", passing)
	c.AddOptionalCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready, "optional checks do not affect readiness")
	assert.Equal(t, "Some checks failed: redis", status.Message)
	assert.Equal(t, "v1", status.Version)
	assert.True(t, status.Checks["postgres"].Required)
	assert.False(t, status.Checks["redis"].Required)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)

	c.AddCheck("store", func(context.Context) error { return errors.New("no such table: gyms") })
	status = c.Check(context.Background())
	assert.False(t, status.Ready)
	assert.Equal(t, "Some checks failed: redis, store", status.Message)
}

func TestChecker_AddReplacesByName(t *testing.T) {
	c := NewChecker("v1")
	c.AddCheck("redis", func(context.Context) error { return errors.New("down") })
	c.AddOptionalCheck("redis", passing)

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Len(t, status.Checks, 1)
	assert.Equal(t, "All checks passed", status.Message)
}

func TestChecker_Empty(t *testing.T) {
	status := NewChecker("v1").Check(context.Background())
	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "No health checks registered", status.Message)
}

func TestChecker_ChecksHaveDeadline(t *testing.T) {
	c := NewChecker("v1")
	c.AddCheck("deadline", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	})
	assert.True(t, c.Check(context.Background()).Healthy)
}

func TestStoreReadyCheck(t *testing.T) {
	ctx := context.Background()

	// No schema yet.
	raw, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	err = NewStoreReadyCheck(sqlite.NewStore(raw))(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog unavailable")

	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	assert.NoError(t, NewStoreReadyCheck(sqlite.NewStore(db))(ctx), "empty catalog is ready")
}

func TestSnapshotFreshnessCheck(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.NewStore(db).SaveClimber(ctx, "c1", "Alex"))
	repo := sqlite.NewSnapshotRepository(db)

	saved := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	now := saved.Add(2 * time.Hour)
	check := NewSnapshotFreshnessCheck(repo, 3*time.Hour, func() time.Time { return now })

	assert.NoError(t, check(ctx), "no snapshot yet")

	require.NoError(t, repo.Save(ctx, &command.Snapshot{
		ID: "s1", ClimberID: "c1", Interval: command.IntervalMonth, IntervalID: 3, Year: 2024,
		Payload: []byte(`{}`), CreatedAt: saved,
	}))
	assert.NoError(t, check(ctx))

	now = saved.Add(4 * time.Hour)
	err = check(ctx)
	require.ErrorIs(t, err, ErrStaleSnapshots)
	assert.Contains(t, err.Error(), "last saved 4h0m0s ago, limit 3h0m0s")
}

type brokenClock struct{}

func (brokenClock) LastSaved(context.Context) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("db closed")
}

func TestSnapshotFreshnessCheck_SourceError(t *testing.T) {
	err := NewSnapshotFreshnessCheck(brokenClock{}, time.Hour, nil)(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStaleSnapshots)
	assert.Contains(t, err.Error(), "db closed")
}
