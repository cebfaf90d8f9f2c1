// Package main - точка входа фонового процесса (Worker) gymstats.
//
// Worker отвечает за периодические задачи:
// - Сохранение недельной, месячной и годовой статистики каждого скалолаза
// - Обновление снимков только что закрытых периодов
//
// Рядом с планировщиком работает служебный HTTP сервер: health/readiness
// проверки, метрики Prometheus, история задач и их включение/выключение.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gymstats/gymstats-hub/config"
	"github.com/gymstats/gymstats-hub/internal/application/command"
	"github.com/gymstats/gymstats-hub/internal/application/query"
	"github.com/gymstats/gymstats-hub/internal/domain/achievement"
	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/gradescale"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/metrics"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/persistence/postgres"
	redisstore "github.com/gymstats/gymstats-hub/internal/infrastructure/persistence/redis"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/scheduler"
	"github.com/gymstats/gymstats-hub/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/gymstats/gymstats-hub/internal/interface/http"
	"github.com/gymstats/gymstats-hub/internal/interface/http/handlers"
	"github.com/gymstats/gymstats-hub/pkg/circuitbreaker"
	"github.com/gymstats/gymstats-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting gymstats worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Location.String()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК МИГРАЦИЙ
	// ─────────────────────────────────────────────────────────────────────────
	applied, err := postgres.NewMigrator(dbConn).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date", logger.Int("applied", applied))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ИНИЦИАЛИЗАЦИЯ REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewPingCheck(dbConn))

	var (
		cache  query.Cache
		locker jobs.Locker
	)
	if cfg.Redis.Enabled() {
		log.Info("connecting to Redis...")
		client, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("failed to connect to Redis, caching and locking disabled", logger.Err(err))
		} else {
			defer client.Close()
			cache = redisstore.NewStatsCache(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL).
				WithBreaker(circuitbreaker.ForCache(func(name string, from, to circuitbreaker.State) {
					log.Warn("cache circuit changed state",
						logger.String("breaker", name),
						logger.String("from", from.String()),
						logger.String("to", to.String()),
					)
				}))
			locker = redisstore.NewLocker(client, cfg.Redis.KeyPrefix)
			health.AddOptionalCheck("redis", func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			})
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ИНИЦИАЛИЗАЦИЯ ОБРАБОТЧИКОВ
	// ─────────────────────────────────────────────────────────────────────────
	registry, err := gradescale.Load(cfg.Stats.GradeScalesFile)
	if err != nil {
		return fmt.Errorf("failed to load grade scales: %w", err)
	}

	m := metrics.New()
	store := postgres.NewStore(dbConn)
	engine := achievement.NewEngine(climbing.NewClassifier(registry, true), store)
	windowStats := query.NewWindowStatisticsHandler(store, engine, cache, m, log)
	snapshotRepo := postgres.NewSnapshotRepository(dbConn)
	snapshots := command.NewSnapshotIntervalHandler(windowStats, snapshotRepo, log)
	health.AddCheck("store", handlers.NewStoreReadyCheck(store))

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	jobConfig := jobs.DefaultSnapshotIntervalsConfig()
	jobConfig.LockTTL = cfg.Scheduler.LockTTL
	jobConfig.Intervals = jobConfig.Intervals[:0]
	for _, name := range cfg.Scheduler.SnapshotIntervals {
		iv, err := command.ParseInterval(name)
		if err != nil {
			return err
		}
		jobConfig.Intervals = append(jobConfig.Intervals, iv)
	}
	snapshotJob := jobs.NewSnapshotIntervalsJob(store, snapshots, locker, m, log, jobConfig)

	schedConfig := scheduler.DefaultConfig()
	schedConfig.Logger = log
	schedConfig.Timezone = cfg.App.Location
	schedConfig.MaxConcurrentJobs = cfg.Scheduler.MaxConcurrentJobs
	schedConfig.JobTimeout = cfg.Scheduler.JobTimeout
	sched := scheduler.New(schedConfig)

	var schedule scheduler.Schedule = scheduler.Every(cfg.Scheduler.SnapshotInterval)
	if cfg.Scheduler.SnapshotCron != "" {
		schedule = scheduler.MustParseCron(cfg.Scheduler.SnapshotCron)
	}
	if err := sched.Register(snapshotJob, schedule); err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}
	sched.OnJobComplete(func(result scheduler.JobResult) {
		if stats := snapshotJob.LastStats(); stats != nil && result.JobName == snapshotJob.Name() {
			log.Info("snapshot run summary",
				logger.Int("climbers", stats.Climbers),
				logger.Int("saved", stats.Saved),
				logger.Int("reused", stats.Reused),
				logger.Int("failed", stats.Failed),
				logger.Bool("skipped", stats.Skipped),
			)
		}
	})

	if cfg.Scheduler.Enabled {
		// Снимки считаются устаревшими после трёх пропущенных запусков.
		if gap := scheduler.Gap(schedule, time.Now()); gap > 0 {
			health.AddOptionalCheck("snapshots", handlers.NewSnapshotFreshnessCheck(snapshotRepo, 3*gap, time.Now))
		}

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		// Первый прогон сразу, не дожидаясь расписания.
		go func() {
			if _, err := sched.RunNow(ctx, snapshotJob.Name()); err != nil {
				log.Warn("initial snapshot run failed", logger.Err(err))
			}
		}()
	} else {
		log.Warn("scheduler disabled, worker only serves health and metrics")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. СЛУЖЕБНЫЙ HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	serverConfig := httpserver.DefaultConfig()
	serverConfig.Port = cfg.Observability.MetricsPort
	deps := httpserver.Dependencies{
		Logger:  log,
		Health:  health,
		Jobs:    sched,
		Version: cfg.App.Version,
	}
	if cfg.Observability.MetricsEnabled {
		deps.Metrics = m.Handler()
	}
	server := httpserver.NewServer(serverConfig, deps)
	serverErr := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("gymstats worker is running", logger.String("ops_address", serverConfig.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("ops server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("ops server shutdown failed", logger.Err(err))
	}
	if sched.IsRunning() {
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			log.Error("scheduler stop failed", logger.Err(err))
		}
	}

	log.Info("shutdown completed")
	return runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование: JSON для
// агрегаторов, консольный вывод при LOG_FORMAT=text.
func setupLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	return logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     level,
		AddCaller: !cfg.IsDevelopment(),
		Console:   cfg.Observability.LogFormat == "text",
	}).With(logger.String("app", cfg.App.Name))
}
