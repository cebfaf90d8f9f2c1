package climbing

import (
	"context"
	"time"

	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ProblemRepository - каталог трасс.
type ProblemRepository interface {
	// FindProblems возвращает трассы, удовлетворяющие условию,
	// упорядоченные по идентификатору.
	FindProblems(ctx context.Context, pred ProblemPredicate) ([]*Problem, error)
}

// SessionRepository - сессии скалолазов.
type SessionRepository interface {
	// FindSessions возвращает сессии скалолаза в полуоткрытом диапазоне дат
	// вместе со всеми записями о попытках, по возрастанию даты.
	FindSessions(ctx context.Context, climber shared.ClimberID, window shared.DateRange) ([]*Session, error)
}

// AttemptRepository - история попыток.
type AttemptRepository interface {
	// CountAttempts возвращает число записей вида kind скалолаза на трассе
	// в сессиях строго раньше before.
	CountAttempts(ctx context.Context, climber shared.ClimberID, problem shared.ProblemID, kind AttemptKind, before time.Time) (int, error)

	// BestLevels возвращает лучший когда-либо достигнутый уровень по каждой
	// опробованной трассе. Нетронутые трассы в результат не попадают.
	BestLevels(ctx context.Context, climber shared.ClimberID) (map[shared.ProblemID]Level, error)
}

// ClimberRepository - данные скалолазов.
type ClimberRepository interface {
	// Thresholds возвращает диапазоны сложности скалолаза по залам.
	// Скалолаз без настроенных диапазонов получает пустую карту.
	Thresholds(ctx context.Context, climber shared.ClimberID) (Thresholds, error)

	// ListClimbers возвращает всех скалолазов (используется фоновыми задачами).
	ListClimbers(ctx context.Context) ([]shared.ClimberID, error)
}

// GymRepository - справочник залов.
type GymRepository interface {
	// FindGym возвращает зал по коду. Возвращает ErrGymNotFound, если зал не найден.
	FindGym(ctx context.Context, abv string) (*Gym, error)

	// ListGyms возвращает все залы, упорядоченные по коду.
	ListGyms(ctx context.Context) ([]*Gym, error)
}

// Store объединяет все порты хранилища.
type Store interface {
	ProblemRepository
	SessionRepository
	AttemptRepository
	ClimberRepository
	GymRepository
}

// Writer - запись данных: импорт наборов данных и подготовка тестов.
// Все методы - upsert по идентификатору.
type Writer interface {
	SaveGym(ctx context.Context, g *Gym) error
	SaveClimber(ctx context.Context, id shared.ClimberID, name string) error

	// SaveProblem сохраняет трассу вместе с атрибутами; зал должен существовать.
	SaveProblem(ctx context.Context, p *Problem) error

	// SaveSession сохраняет сессию и заменяет все её записи о попытках.
	SaveSession(ctx context.Context, s *Session) error

	SetThresholds(ctx context.Context, climber shared.ClimberID, gym shared.GymID, band ThresholdBand) error
}
