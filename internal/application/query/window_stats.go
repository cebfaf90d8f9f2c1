package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gymstats/gymstats-hub/internal/domain/achievement"
	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/logger"
	"github.com/gymstats/gymstats-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WINDOW STATISTICS QUERY
// Статистика скалолаза за период: число и длительность сессий, сетка
// pb_<rank>_<achievement>, "новые" достижения относительно истории до
// начала периода и разбивка по типам стен.
// ══════════════════════════════════════════════════════════════════════════════

const windowNamespace = "window"

// WindowQuery содержит параметры запроса статистики за период.
type WindowQuery struct {
	ClimberID shared.ClimberID

	// From и To - полуоткрытый диапазон дат сессий [From, To).
	From time.Time
	To   time.Time

	// WithPrior - учитывать историю до From (new tops, hard tops и т.д.).
	WithPrior bool

	// Fresh - не читать кэш. Посчитанный результат всё равно кладётся в кэш.
	Fresh bool
}

// Validate проверяет корректность параметров запроса.
func (q WindowQuery) Validate() error {
	if q.ClimberID.IsEmpty() {
		return shared.NewDomainError("stats", "Validate", shared.ErrInvalidInput, "climber is required")
	}
	return shared.DateRange{From: q.From, To: q.To}.Validate()
}

func (q WindowQuery) cacheKey() string {
	return fmt.Sprintf("%s|%s|%s|%t", q.ClimberID, timeutil.FormatDate(q.From), timeutil.FormatDate(q.To), q.WithPrior)
}

// WindowStatistics - статистика за период.
type WindowStatistics struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Сессии
	// ─────────────────────────────────────────────────────────────────────────

	Sessions int `json:"sessions"`

	// Duration - суммарная длительность в часах.
	Duration float64 `json:"duration"`

	// DurationHuman - длительность в виде "XhY".
	DurationHuman string `json:"duration_human_readable"`

	// ─────────────────────────────────────────────────────────────────────────
	// Достижения
	// ─────────────────────────────────────────────────────────────────────────

	Breakdown achievement.Breakdown `json:"breakdown"`

	// Grid - плоская сетка pb_<rank>_<achievement>.
	Grid map[string]int `json:"grid"`

	// HardTops - nil, если у скалолаза нет диапазонов сложности.
	HardTops *int `json:"hard_tops"`

	// ByRank - отчёт по каждому рангу (unk, lower, expect, higher).
	ByRank map[string]map[string]int `json:"by_rank"`

	// ByWallType - разбивка по типам стен.
	ByWallType map[string]achievement.WallTypeStats `json:"by_wall_type"`

	// Summaries - сводная таблица по трассам.
	Summaries []achievement.Summary `json:"summaries"`
}

// WindowStatisticsHandler обрабатывает запросы статистики за период.
type WindowStatisticsHandler struct {
	store   climbing.Store
	engine  *achievement.Engine
	cache   Cache
	metrics Metrics
	logger  *logger.Logger
}

// NewWindowStatisticsHandler создаёт обработчик. cache может быть nil.
func NewWindowStatisticsHandler(
	store climbing.Store,
	engine *achievement.Engine,
	cache Cache,
	metrics Metrics,
	log *logger.Logger,
) *WindowStatisticsHandler {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WindowStatisticsHandler{
		store:   store,
		engine:  engine,
		cache:   cache,
		metrics: metrics,
		logger:  log.With(logger.Component("window_stats")),
	}
}

// Handle считает статистику за период.
func (h *WindowStatisticsHandler) Handle(ctx context.Context, q WindowQuery) (*WindowStatistics, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	key := q.cacheKey()
	if !q.Fresh {
		if stats, ok := h.fromCache(ctx, key); ok {
			return stats, nil
		}
	}

	start := time.Now()
	window := shared.DateRange{From: q.From, To: q.To}

	sessions, err := h.store.FindSessions(ctx, q.ClimberID, window)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}

	problems, err := loadSessionProblems(ctx, h.store, sessions)
	if err != nil {
		return nil, err
	}

	thresholds, err := h.store.Thresholds(ctx, q.ClimberID)
	if err != nil {
		return nil, fmt.Errorf("thresholds of %s: %w", q.ClimberID, err)
	}

	table, err := h.engine.Build(ctx, achievement.BuildInput{
		Sessions:      sessions,
		Problems:      problems,
		Thresholds:    thresholds,
		ClimberID:     q.ClimberID,
		ReferenceDate: q.From,
		WithPrior:     q.WithPrior,
	})
	if err != nil {
		return nil, fmt.Errorf("build summary table: %w", err)
	}

	stats := newWindowStatistics(sessions, table, problems, len(thresholds) > 0)

	elapsed := time.Since(start)
	h.metrics.ObserveAggregation(windowNamespace, elapsed)
	h.logger.Info("window statistics computed",
		logger.ClimberID(q.ClimberID.String()),
		logger.Window(q.From, q.To),
		logger.Int("sessions", stats.Sessions),
		logger.Int("problems", table.Len()),
		logger.Latency(elapsed),
	)

	h.toCache(ctx, key, stats)
	return stats, nil
}

func newWindowStatistics(sessions []*climbing.Session, table *achievement.Table, problems []*climbing.Problem, hasThresholds bool) *WindowStatistics {
	var duration float64
	for _, s := range sessions {
		duration += s.Duration
	}

	breakdown := achievement.Tally(table)

	byRank := make(map[string]map[string]int, len(climbing.Ranks))
	for _, r := range climbing.Ranks {
		byRank[r.String()] = achievement.RankReport(breakdown.ByRank[r])
	}

	stats := &WindowStatistics{
		Sessions:      len(sessions),
		Duration:      duration,
		DurationHuman: timeutil.FormatHours(duration),
		Breakdown:     breakdown,
		Grid:          breakdown.Grid(),
		ByRank:        byRank,
		ByWallType:    achievement.ByWallType(table, problems),
		Summaries:     table.Summaries(),
	}
	if hasThresholds {
		hard := breakdown.All.HardTops
		stats.HardTops = &hard
	}
	return stats
}

func (h *WindowStatisticsHandler) fromCache(ctx context.Context, key string) (*WindowStatistics, bool) {
	if h.cache == nil {
		return nil, false
	}
	data, ok, err := h.cache.Get(ctx, windowNamespace, key)
	if err != nil {
		h.logger.Warn("window cache read failed", logger.Err(err))
		return nil, false
	}
	h.metrics.CacheResult(windowNamespace, ok)
	if !ok {
		return nil, false
	}
	var stats WindowStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		h.logger.Warn("window cache entry is corrupted", logger.Err(err))
		return nil, false
	}
	return &stats, true
}

func (h *WindowStatisticsHandler) toCache(ctx context.Context, key string, stats *WindowStatistics) {
	if h.cache == nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		h.logger.Warn("window statistics not cacheable", logger.Err(err))
		return
	}
	if err := h.cache.Set(ctx, windowNamespace, key, data); err != nil {
		h.logger.Warn("window cache write failed", logger.Err(err))
	}
}

// loadSessionProblems загружает все трассы, на которые ссылаются сессии.
func loadSessionProblems(ctx context.Context, repo climbing.ProblemRepository, sessions []*climbing.Session) ([]*climbing.Problem, error) {
	seen := make(map[shared.ProblemID]struct{})
	for _, s := range sessions {
		for id := range s.ProblemIDs() {
			seen[id] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, nil
	}

	ids := make([]shared.ProblemID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	problems, err := repo.FindProblems(ctx, climbing.ProblemPredicate{}.WithIDs(ids...))
	if err != nil {
		return nil, fmt.Errorf("find session problems: %w", err)
	}
	return problems, nil
}
