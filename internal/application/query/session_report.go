package query

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
	"github.com/gymstats/gymstats-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REPORT
// Отчёт по одной сессии: доля успехов и разбивка записей по типу стены,
// категории и зацепам. Считаются записи, а не трассы.
// ══════════════════════════════════════════════════════════════════════════════

// TopSplit - [топы, остальные записи (зоны и неудачи)].
type TopSplit [2]int

// GradeSplit - разбивка по одной категории.
type GradeSplit struct {
	Label string   `json:"label"`
	Split TopSplit `json:"split"`
}

// SessionReport - отчёт по сессии.
type SessionReport struct {
	SessionID shared.SessionID `json:"session_id"`
	Gym       string           `json:"gym"`
	Duration  float64          `json:"duration"`

	// Successes - процент топов среди всех записей, nil если записей нет.
	Successes *int `json:"successes"`

	Types map[string]TopSplit `json:"types"`
	Holds map[string]TopSplit `json:"holds"`

	// Grades упорядочены по шкале зала, неизвестные категории - в конце.
	Grades []GradeSplit `json:"grades"`
}

// NewSessionReport строит отчёт. problems должны содержать все трассы сессии.
func NewSessionReport(session *climbing.Session, problems []*climbing.Problem, registry *grade.Registry) (*SessionReport, error) {
	index := make(map[shared.ProblemID]*climbing.Problem, len(problems))
	for _, p := range problems {
		index[p.ID] = p
	}

	report := &SessionReport{
		SessionID: session.ID,
		Gym:       session.Gym.Abv,
		Duration:  session.Duration,
		Types:     make(map[string]TopSplit),
		Holds:     make(map[string]TopSplit),
	}
	grades := make(map[string]TopSplit)

	add := func(rec climbing.Attempt, pos int) error {
		p, ok := index[rec.ProblemID]
		if !ok {
			return fmt.Errorf("%w: problem %s in session %s", shared.ErrUnknownProblem, rec.ProblemID, session.ID)
		}
		if wt := p.WallType(); wt != "" {
			s := report.Types[wt]
			s[pos]++
			report.Types[wt] = s
		}
		g := grades[p.NormalizedGrade()]
		g[pos]++
		grades[p.NormalizedGrade()] = g
		for _, hh := range p.Tags(climbing.CategoryHandHold) {
			s := report.Holds[hh]
			s[pos]++
			report.Holds[hh] = s
		}
		return nil
	}

	for _, rec := range session.Tops {
		if err := add(rec, 0); err != nil {
			return nil, err
		}
	}
	for _, rec := range append(append([]climbing.Attempt{}, session.Fails...), session.Zones...) {
		if err := add(rec, 1); err != nil {
			return nil, err
		}
	}

	tops := len(session.Tops)
	total := tops + len(session.Zones) + len(session.Fails)
	if total > 0 {
		pct := int(math.Floor(float64(tops) * 100 / float64(total)))
		report.Successes = &pct
	}

	var scale grade.Scale
	if registry != nil {
		scale = registry.ScaleFor(session.Gym.Abv, session.Gym.Brand, false)
	}
	report.Grades = orderGrades(grades, scale)
	return report, nil
}

func orderGrades(grades map[string]TopSplit, scale grade.Scale) []GradeSplit {
	labels := make([]string, 0, len(grades))
	for l := range grades {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		pi, oki := scale.PositionOf(labels[i])
		pj, okj := scale.PositionOf(labels[j])
		switch {
		case oki && okj:
			return pi < pj
		case oki != okj:
			return oki
		default:
			return labels[i] < labels[j]
		}
	})

	out := make([]GradeSplit, 0, len(labels))
	for _, l := range labels {
		out = append(out, GradeSplit{Label: grade.Display(l), Split: grades[l]})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REPORTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// SessionReportsQuery запрашивает отчёты по всем сессиям скалолаза за период.
type SessionReportsQuery struct {
	ClimberID shared.ClimberID
	From      time.Time
	To        time.Time
}

// DatedSessionReport - отчёт вместе с датой сессии.
type DatedSessionReport struct {
	Date time.Time `json:"date"`
	*SessionReport
}

// SessionReportsHandler строит отчёты по сессиям.
type SessionReportsHandler struct {
	store    climbing.Store
	registry *grade.Registry
	logger   *logger.Logger
}

// NewSessionReportsHandler создаёт обработчик.
func NewSessionReportsHandler(store climbing.Store, registry *grade.Registry, log *logger.Logger) *SessionReportsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionReportsHandler{
		store:    store,
		registry: registry,
		logger:   log.With(logger.Component("session_reports")),
	}
}

// Handle возвращает отчёты по возрастанию даты сессии.
func (h *SessionReportsHandler) Handle(ctx context.Context, q SessionReportsQuery) ([]DatedSessionReport, error) {
	if q.ClimberID.IsEmpty() {
		return nil, shared.NewDomainError("session", "Validate", shared.ErrInvalidInput, "climber is required")
	}
	window := shared.DateRange{From: q.From, To: q.To}
	if err := window.Validate(); err != nil {
		return nil, err
	}

	sessions, err := h.store.FindSessions(ctx, q.ClimberID, window)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}
	problems, err := loadSessionProblems(ctx, h.store, sessions)
	if err != nil {
		return nil, err
	}

	reports := make([]DatedSessionReport, 0, len(sessions))
	for _, s := range sessions {
		report, err := NewSessionReport(s, problems, h.registry)
		if err != nil {
			return nil, err
		}
		reports = append(reports, DatedSessionReport{Date: s.Date, SessionReport: report})
	}

	h.logger.Debug("session reports built",
		logger.ClimberID(q.ClimberID.String()),
		logger.Int("sessions", len(reports)),
	)
	return reports, nil
}
