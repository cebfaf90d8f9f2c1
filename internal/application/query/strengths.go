package query

import (
	"context"
	"fmt"
	"time"

	"github.com/gymstats/gymstats-hub/internal/domain/achievement"
	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/overrep"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STRENGTHS QUERY
// Сильные и слабые стороны: какие атрибуты перепредставлены среди
// пройденных трасс (сильные) и среди непройденных (слабые) относительно
// всех опробованных за период.
// ══════════════════════════════════════════════════════════════════════════════

// StrengthsQuery содержит параметры запроса.
type StrengthsQuery struct {
	ClimberID shared.ClimberID
	From      time.Time
	To        time.Time
}

// Strengths - результат анализа.
type Strengths struct {
	Tried      int            `json:"tried"`
	Topped     int            `json:"topped"`
	Strengths  overrep.Result `json:"strengths"`
	Weaknesses overrep.Result `json:"weaknesses"`
}

// StrengthsHandler обрабатывает запросы сильных сторон.
type StrengthsHandler struct {
	store   climbing.Store
	engine  *achievement.Engine
	options overrep.Options
	metrics Metrics
	logger  *logger.Logger
}

// NewStrengthsHandler создаёт обработчик.
func NewStrengthsHandler(store climbing.Store, engine *achievement.Engine, options overrep.Options, metrics Metrics, log *logger.Logger) *StrengthsHandler {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &StrengthsHandler{
		store:   store,
		engine:  engine,
		options: options,
		metrics: metrics,
		logger:  log.With(logger.Component("strengths")),
	}
}

// Handle выполняет анализ.
func (h *StrengthsHandler) Handle(ctx context.Context, q StrengthsQuery) (*Strengths, error) {
	if q.ClimberID.IsEmpty() {
		return nil, shared.NewDomainError("strengths", "Handle", shared.ErrInvalidInput, "climber is required")
	}
	window := shared.DateRange{From: q.From, To: q.To}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	sessions, err := h.store.FindSessions(ctx, q.ClimberID, window)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	problems, err := loadSessionProblems(ctx, h.store, sessions)
	if err != nil {
		return nil, err
	}

	table, err := h.engine.Build(ctx, achievement.BuildInput{Sessions: sessions, Problems: problems})
	if err != nil {
		return nil, fmt.Errorf("build summary table: %w", err)
	}

	var tried, topped, missed []*climbing.Problem
	for _, p := range problems {
		s, ok := table.Get(p.ID)
		if !ok {
			continue
		}
		tried = append(tried, p)
		if s.IsTopped() {
			topped = append(topped, p)
		} else {
			missed = append(missed, p)
		}
	}

	all := overrep.CountFacets(tried)
	res := &Strengths{
		Tried:      len(tried),
		Topped:     len(topped),
		Strengths:  overrep.Analyze(all, overrep.CountFacets(topped), len(tried), len(topped), h.options),
		Weaknesses: overrep.Analyze(all, overrep.CountFacets(missed), len(tried), len(missed), h.options),
	}

	h.metrics.ObserveAggregation("strengths", time.Since(start))
	h.logger.Debug("strengths computed",
		logger.ClimberID(q.ClimberID.String()),
		logger.Window(q.From, q.To),
		logger.Int("tried", res.Tried),
		logger.Int("topped", res.Topped),
	)
	return res, nil
}
