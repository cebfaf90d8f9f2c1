// Package cli implements the gymstats command line: search, window
// statistics, gym progress, strengths, interval snapshots and dataset import.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gymstats/gymstats-hub/config"
	"github.com/gymstats/gymstats-hub/internal/application/command"
	"github.com/gymstats/gymstats-hub/internal/application/query"
	"github.com/gymstats/gymstats-hub/internal/domain/achievement"
	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/filter"
	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/domain/overrep"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/gradescale"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/persistence/postgres"
	redisstore "github.com/gymstats/gymstats-hub/internal/infrastructure/persistence/redis"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/persistence/sqlite"
	"github.com/gymstats/gymstats-hub/pkg/logger"
)

// Backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// store is what both persistence adapters implement.
type store interface {
	climbing.Store
	climbing.Writer
}

// App holds the wired dependencies of one CLI invocation.
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *grade.Registry
	Backend  string

	Store     store
	Snapshots command.SnapshotRepository

	cache   *redisstore.StatsCache
	closers []func()
}

// Options selects the backend and overrides configuration values.
type Options struct {
	// DBPath forces the SQLite backend at this path.
	DBPath string

	// ScalesFile overlays the built-in grade scales.
	ScalesFile string

	LogLevel string

	// LogOutput receives log lines (default: stderr).
	LogOutput io.Writer
}

// Open loads the configuration and connects to the stores. PostgreSQL is
// used when DATABASE_URL is set and no SQLite path was given; otherwise the
// SQLite file is opened, created and migrated on first use. The Redis cache
// is attached when REDIS_ADDR is set.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Observability.LogLevel = opts.LogLevel
	}
	if opts.ScalesFile != "" {
		cfg.Stats.GradeScalesFile = opts.ScalesFile
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	log := logger.New(logger.Options{
		Output:  opts.LogOutput,
		Level:   logger.ParseLevel(cfg.Observability.LogLevel),
		Console: cfg.Observability.LogFormat == "text",
	}).With(logger.String("app", cfg.App.Name))

	registry, err := gradescale.Load(cfg.Stats.GradeScalesFile)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: log, Registry: registry}

	if opts.DBPath == "" && cfg.Database.URL != "" {
		err = app.openPostgres(ctx)
	} else {
		path := opts.DBPath
		if path == "" {
			path = cfg.SQLite.Path
		}
		err = app.openSQLite(ctx, path)
	}
	if err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Redis.Enabled() {
		client, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			// The cache is optional: statistics are recomputed without it.
			log.Warn("redis unavailable, running without cache", logger.Err(err))
		} else {
			app.cache = redisstore.NewStatsCache(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
			app.closers = append(app.closers, func() { _ = client.Close() })
		}
	}

	return app, nil
}

func (a *App) openSQLite(ctx context.Context, path string) error {
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	a.Backend = BackendSQLite
	a.Store = sqlite.NewStore(db)
	a.Snapshots = sqlite.NewSnapshotRepository(db)
	a.Logger.Debug("sqlite store opened", logger.String("path", path))
	return nil
}

func (a *App) openPostgres(ctx context.Context) error {
	conn, err := postgres.NewConnection(ctx, a.Config.Database)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	a.closers = append(a.closers, conn.Close)

	applied, err := postgres.NewMigrator(conn).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		a.Logger.Info("migrations applied", logger.Int("count", applied))
	}

	a.Backend = BackendPostgres
	a.Store = postgres.NewStore(conn)
	a.Snapshots = postgres.NewSnapshotRepository(conn)
	return nil
}

// Close releases every connection in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// Cache returns the statistics cache, or nil when Redis is not configured.
func (a *App) Cache() query.Cache {
	if a.cache == nil {
		return nil
	}
	return a.cache
}

// InvalidateCache drops every cached result. A no-op without Redis.
func (a *App) InvalidateCache(ctx context.Context) (int, error) {
	if a.cache == nil {
		return 0, nil
	}
	return a.cache.Invalidate(ctx, "")
}

func (a *App) overrepOptions() overrep.Options {
	return overrep.Options{MaxPValue: a.Config.Stats.MaxPValue, TopK: a.Config.Stats.TopK}
}

func (a *App) engine() *achievement.Engine {
	return achievement.NewEngine(climbing.NewClassifier(a.Registry, true), a.Store)
}

// SearchHandler builds the search handler.
func (a *App) SearchHandler() *query.SearchHandler {
	return query.NewSearchHandler(a.Store, a.Store, filter.NewParser(a.Registry), a.overrepOptions(), a.Cache(), nil, a.Logger)
}

// WindowHandler builds the window statistics handler.
func (a *App) WindowHandler() *query.WindowStatisticsHandler {
	return query.NewWindowStatisticsHandler(a.Store, a.engine(), a.Cache(), nil, a.Logger)
}

// GymProgressHandler builds the gym progress handler.
func (a *App) GymProgressHandler() *query.GymProgressHandler {
	return query.NewGymProgressHandler(a.Store, a.Registry, nil, a.Logger)
}

// StrengthsHandler builds the strengths handler.
func (a *App) StrengthsHandler() *query.StrengthsHandler {
	return query.NewStrengthsHandler(a.Store, a.engine(), a.overrepOptions(), nil, a.Logger)
}

// SnapshotHandler builds the interval snapshot handler.
func (a *App) SnapshotHandler() *command.SnapshotIntervalHandler {
	return command.NewSnapshotIntervalHandler(a.WindowHandler(), a.Snapshots, a.Logger)
}

// SessionReportsHandler builds the session reports handler.
func (a *App) SessionReportsHandler() *query.SessionReportsHandler {
	return query.NewSessionReportsHandler(a.Store, a.Registry, a.Logger)
}
