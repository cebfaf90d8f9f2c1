package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

func TestPredicateSQL(t *testing.T) {
	t.Run("empty predicate matches everything", func(t *testing.T) {
		where, args := predicateSQL(climbing.ProblemPredicate{})
		assert.Equal(t, "TRUE", where)
		assert.Empty(t, args)
	})

	t.Run("conditions are numbered in order", func(t *testing.T) {
		pred := climbing.ProblemPredicate{}.
			WithAnyOf(climbing.FieldGrade, "Blue", "red").
			WithAnyOf(climbing.FieldGym, "cd1").
			WithTags(climbing.CategoryHandHold, "crimps").
			WithRemoved(false)

		where, args := predicateSQL(pred)
		assert.Contains(t, where, "lower(trim(p.grade)) = ANY($1::text[])")
		assert.Contains(t, where, "lower(g.abv) = ANY($2::text[])")
		assert.Contains(t, where, "a.category = $3 AND a.name = ANY($4::text[])")
		assert.Contains(t, where, "p.removed = $5")
		assert.Equal(t, []any{[]string{"blue", "red"}, []string{"cd1"}, "handhold", []string{"crimps"}, false}, args)
	})

	t.Run("wall type goes through attributes", func(t *testing.T) {
		where, args := predicateSQL(climbing.ProblemPredicate{}.WithAnyOf(climbing.FieldType, "slab"))
		assert.True(t, strings.HasPrefix(where, "EXISTS ("))
		assert.Equal(t, []any{"type", []string{"slab"}}, args)
	})

	t.Run("empty value lists match nothing", func(t *testing.T) {
		where, args := predicateSQL(climbing.ProblemPredicate{}.WithAnyOf(climbing.FieldGrade).WithIDs())
		assert.Equal(t, "FALSE AND FALSE", where)
		assert.Empty(t, args)
	})

	t.Run("ids", func(t *testing.T) {
		where, args := predicateSQL(climbing.ProblemPredicate{}.WithIDs("p2", "p1"))
		assert.Equal(t, "p.id = ANY($1::text[])", where)
		assert.Equal(t, []any{[]string{"p2", "p1"}}, args)
	})
}

func TestWindowSQL(t *testing.T) {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	where, args := windowSQL("c1", shared.DateRange{})
	assert.Equal(t, "s.climber_id = $1", where)
	assert.Equal(t, []any{"c1"}, args)

	where, args = windowSQL("c1", shared.DateRange{From: from, To: to})
	assert.Equal(t, "s.climber_id = $1 AND s.date >= $2::date AND s.date < $3::date", where)
	assert.Equal(t, []any{"c1", from, to}, args)

	where, _ = windowSQL("c1", shared.DateRange{To: to})
	assert.Equal(t, "s.climber_id = $1 AND s.date < $2::date", where)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), false},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"too many connections", &pgconn.PgError{Code: "53300"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestConstraintHelpers(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsForeignKeyViolation(fmt.Errorf("x: %w", &pgconn.PgError{Code: "23503"})))
	assert.True(t, IsCheckViolation(&pgconn.PgError{Code: "23514"}))
	assert.False(t, IsForeignKeyViolation(errors.New("23503")))
}

func TestCheckViolation(t *testing.T) {
	raw := fmt.Errorf("failed to save session: %w", &pgconn.PgError{Code: "23514", ConstraintName: "non_negative_duration"})

	err := checkViolation("climbing", "SaveSession", raw)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.Contains(t, err.Error(), "non_negative_duration")

	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr), "driver error stays wrapped")

	assert.NoError(t, checkViolation("climbing", "SaveSession", &pgconn.PgError{Code: "23503"}))
	assert.NoError(t, checkViolation("climbing", "SaveSession", errors.New("boom")))
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"
	assert.Equal(t,
		"host=localhost port=5432 dbname=gymstats user=gymstats password=secret sslmode=disable connect_timeout=10",
		cfg.DSN())

	pool, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(10), pool.MaxConns)
	assert.Equal(t, time.Hour, pool.MaxConnLifetime)

	cfg.URL = "postgres://u:p@db:6543/stats?sslmode=require"
	assert.Equal(t, cfg.URL, cfg.DSN())
	pool, err = cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, "db", pool.ConnConfig.Host)
	assert.Equal(t, uint16(6543), pool.ConnConfig.Port)
}

func TestMigrationsAreOrdered(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL, m.Name)
		assert.NotEmpty(t, m.DownSQL, m.Name)
	}
}
