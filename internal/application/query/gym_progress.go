package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gymstats/gymstats-hub/internal/domain/achievement"
	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GYM PROGRESS QUERY
// Гистограмма достижений скалолаза по категориям для трасс, которые сейчас
// висят в зале. Категории берутся из шкалы бренда зала.
// ══════════════════════════════════════════════════════════════════════════════

// UnknownGrades - что делать с трассами, категории которых нет в шкале.
type UnknownGrades string

const (
	// UnknownKeep добавляет каждую неизвестную категорию отдельной меткой.
	UnknownKeep UnknownGrades = "keep"
	// UnknownGroup собирает неизвестные категории под меткой "unknown".
	UnknownGroup UnknownGrades = "group"
	// UnknownDrop не учитывает такие трассы.
	UnknownDrop UnknownGrades = "drop"
)

// UnknownLabel - метка для сгруппированных неизвестных категорий.
const UnknownLabel = "unknown"

// ParseUnknownGrades разбирает режим. Пустая строка - keep.
func ParseUnknownGrades(s string) (UnknownGrades, error) {
	switch UnknownGrades(s) {
	case "", UnknownKeep:
		return UnknownKeep, nil
	case UnknownGroup, UnknownDrop:
		return UnknownGrades(s), nil
	default:
		return "", shared.NewDomainError("gym", "ParseUnknownGrades", shared.ErrInvalidInput,
			fmt.Sprintf("unknown grades mode %q (keep, group, drop)", s))
	}
}

// GymProgressQuery содержит параметры запроса.
type GymProgressQuery struct {
	ClimberID shared.ClimberID
	GymAbv    string
	Unknown   UnknownGrades
}

// GymProgress - гистограмма по категориям.
type GymProgress struct {
	Gym    string   `json:"gym"`
	Labels []string `json:"labels"`

	// Counts: достижение (flash, top, zone, fail, not tried) -> число трасс
	// по каждой метке из Labels.
	Counts map[string][]int `json:"counts"`

	// Since - дата самой старой из текущих трасс.
	Since time.Time `json:"since"`

	// Sessions - число учтённых сессий в зале.
	Sessions int `json:"sessions"`
}

// GymProgressHandler обрабатывает запросы прогресса по залу.
type GymProgressHandler struct {
	store    climbing.Store
	registry *grade.Registry
	engine   *achievement.Engine
	metrics  Metrics
	logger   *logger.Logger
}

// NewGymProgressHandler создаёт обработчик.
func NewGymProgressHandler(store climbing.Store, registry *grade.Registry, metrics Metrics, log *logger.Logger) *GymProgressHandler {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GymProgressHandler{
		store:    store,
		registry: registry,
		engine:   achievement.NewEngine(climbing.NewClassifier(registry, false), nil),
		metrics:  metrics,
		logger:   log.With(logger.Component("gym_progress")),
	}
}

// Handle строит гистограмму.
func (h *GymProgressHandler) Handle(ctx context.Context, q GymProgressQuery) (*GymProgress, error) {
	if q.ClimberID.IsEmpty() {
		return nil, shared.NewDomainError("gym", "Handle", shared.ErrInvalidInput, "climber is required")
	}
	mode, err := ParseUnknownGrades(string(q.Unknown))
	if err != nil {
		return nil, err
	}

	start := time.Now()

	gym, err := h.store.FindGym(ctx, q.GymAbv)
	if err != nil {
		return nil, err
	}

	// Метки только из шкалы бренда: собственная шкала зала сюда не попадает.
	scale := h.registry.ScaleFor("", gym.Brand, false)

	progress := &GymProgress{
		Gym:    gym.Abv,
		Labels: scale.Labels(),
		Counts: make(map[string][]int, len(achievement.Achievements)+1),
	}
	names := achievementNames()
	for _, a := range names {
		progress.Counts[a] = make([]int, scale.Len())
	}

	problems, err := h.store.FindProblems(ctx, climbing.ProblemPredicate{}.
		WithAnyOf(climbing.FieldGym, gym.Abv).
		WithRemoved(false))
	if err != nil {
		return nil, fmt.Errorf("find problems of %s: %w", gym.Abv, err)
	}
	if len(problems) == 0 {
		return progress, nil
	}

	since := problems[0].AddedOn
	for _, p := range problems[1:] {
		if p.AddedOn.Before(since) {
			since = p.AddedOn
		}
	}
	progress.Since = since

	sessions, err := h.store.FindSessions(ctx, q.ClimberID, shared.DateRange{From: since})
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	sessions = restrictSessions(sessions, gym.ID, problems)
	progress.Sessions = len(sessions)

	table, err := h.engine.Build(ctx, achievement.BuildInput{
		Sessions: sessions,
		Problems: problems,
	})
	if err != nil {
		return nil, fmt.Errorf("build summary table: %w", err)
	}

	index := make(map[string]int, scale.Len())
	for i, label := range progress.Labels {
		index[label] = i
	}

	for _, p := range problems {
		label := grade.Display(p.NormalizedGrade())
		if pos, ok := scale.PositionOf(label); ok {
			label = progress.Labels[pos]
		} else if mode == UnknownGroup {
			label = UnknownLabel
		}

		col, ok := index[label]
		if !ok {
			if mode == UnknownDrop {
				continue
			}
			col = len(progress.Labels)
			index[label] = col
			progress.Labels = append(progress.Labels, label)
			for _, a := range names {
				progress.Counts[a] = append(progress.Counts[a], 0)
			}
		}
		progress.Counts[table.AchievementOf(p.ID)][col]++
	}

	h.metrics.ObserveAggregation("gym_progress", time.Since(start))
	h.logger.Debug("gym progress computed",
		logger.ClimberID(q.ClimberID.String()),
		logger.GymAbv(gym.Abv),
		logger.Int("problems", len(problems)),
		logger.Int("sessions", progress.Sessions),
	)
	return progress, nil
}

func achievementNames() []string {
	names := make([]string, 0, len(achievement.Achievements)+1)
	for _, a := range achievement.Achievements {
		names = append(names, string(a))
	}
	return append(names, achievement.NotTried)
}

// restrictSessions оставляет сессии в зале gym и только записи о трассах
// из problems. Исходные сессии не изменяются.
func restrictSessions(sessions []*climbing.Session, gym shared.GymID, problems []*climbing.Problem) []*climbing.Session {
	active := make(map[shared.ProblemID]struct{}, len(problems))
	for _, p := range problems {
		active[p.ID] = struct{}{}
	}
	keep := func(recs []climbing.Attempt) []climbing.Attempt {
		var out []climbing.Attempt
		for _, r := range recs {
			if _, ok := active[r.ProblemID]; ok {
				out = append(out, r)
			}
		}
		return out
	}

	out := make([]*climbing.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Gym.ID != gym {
			continue
		}
		cp := *s
		cp.Tops = keep(s.Tops)
		cp.Zones = keep(s.Zones)
		cp.Fails = keep(s.Fails)
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
