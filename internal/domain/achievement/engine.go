package achievement

import (
	"context"
	"fmt"
	"time"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATION ENGINE
// Для каждой трассы - конечный автомат Untried -> Failed -> Zoned -> Topped,
// который движется только вперёд. Сессии обрабатываются по дате,
// записи внутри сессии - в порядке Fail, Zone, Top.
// ══════════════════════════════════════════════════════════════════════════════

// PriorLookup отвечает на вопрос "были ли записи вида kind до даты before".
// Реализуется climbing.AttemptRepository.
type PriorLookup interface {
	CountAttempts(ctx context.Context, climber shared.ClimberID, problem shared.ProblemID, kind climbing.AttemptKind, before time.Time) (int, error)
}

// Engine строит сводные таблицы.
type Engine struct {
	classifier *climbing.Classifier
	prior      PriorLookup
}

// NewEngine создаёт движок. prior может быть nil, если история не нужна.
func NewEngine(classifier *climbing.Classifier, prior PriorLookup) *Engine {
	return &Engine{classifier: classifier, prior: prior}
}

// BuildInput - рабочий набор для построения таблицы.
type BuildInput struct {
	// Sessions - сессии окна анализа (порядок не важен).
	Sessions []*climbing.Session

	// Problems - все трассы, на которые ссылаются записи сессий.
	Problems []*climbing.Problem

	// Thresholds - диапазоны скалолаза для ранжирования.
	Thresholds climbing.Thresholds

	// ClimberID и ReferenceDate нужны только для запроса истории.
	ClimberID     shared.ClimberID
	ReferenceDate time.Time

	// WithPrior - запрашивать ли лучший уровень до ReferenceDate.
	WithPrior bool
}

// Build строит таблицу. Запись, ссылающаяся на трассу вне Problems,
// - ошибка интеграции: возвращается ErrUnknownProblem.
func (e *Engine) Build(ctx context.Context, in BuildInput) (*Table, error) {
	index := make(map[shared.ProblemID]*climbing.Problem, len(in.Problems))
	for _, p := range in.Problems {
		index[p.ID] = p
	}

	sessions := make([]*climbing.Session, len(in.Sessions))
	copy(sessions, in.Sessions)
	climbing.SortSessions(sessions)

	table := NewTable()
	for _, sess := range sessions {
		for _, rec := range sess.Records() {
			if err := rec.Validate(); err != nil {
				return nil, err
			}
			pb, ok := index[rec.ProblemID]
			if !ok {
				return nil, fmt.Errorf("%w: problem %s in session %s", shared.ErrUnknownProblem, rec.ProblemID, sess.ID)
			}

			s, seen := table.rows[rec.ProblemID]
			if !seen {
				s = newSummary(pb.ID, e.classifier.Rank(pb, in.Thresholds))
				table.put(s)
			}
			s.apply(rec.Kind, rec.Attempts)
		}
	}

	if !in.WithPrior {
		return table, nil
	}
	if e.prior == nil {
		return nil, shared.NewDomainError("achievement", "Build", shared.ErrInvalidInput, "prior markers requested without a lookup")
	}

	for _, id := range table.order {
		level, err := e.PriorLevel(ctx, in.ClimberID, id, in.ReferenceDate)
		if err != nil {
			return nil, err
		}
		s := table.rows[id]
		s.Prior = level
		s.PriorKnown = true
	}

	return table, nil
}

// PriorLevel возвращает лучший уровень на трассе строго до даты before.
func (e *Engine) PriorLevel(ctx context.Context, climber shared.ClimberID, problem shared.ProblemID, before time.Time) (climbing.Level, error) {
	for _, kind := range []climbing.AttemptKind{climbing.AttemptTop, climbing.AttemptZone, climbing.AttemptFail} {
		if err := ctx.Err(); err != nil {
			return climbing.LevelNone, err
		}
		n, err := e.prior.CountAttempts(ctx, climber, problem, kind, before)
		if err != nil {
			return climbing.LevelNone, fmt.Errorf("count %s attempts of %s: %w", kind, problem, err)
		}
		if n > 0 {
			return kind.Level(), nil
		}
	}
	return climbing.LevelNone, nil
}
