package climbing

import (
	"sort"

	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// THRESHOLDS
// ══════════════════════════════════════════════════════════════════════════════

// ThresholdBand - личный диапазон "ожидаемой" сложности скалолаза в одном зале,
// заданный позициями на шкале категорий.
type ThresholdBand struct {
	positions []int
}

// NewThresholdBand создаёт диапазон из одной или нескольких позиций.
// Возвращает ErrInvalidThresholdBand для пустого списка или отрицательных позиций.
func NewThresholdBand(positions ...int) (ThresholdBand, error) {
	if len(positions) == 0 {
		return ThresholdBand{}, shared.ErrInvalidThresholdBand
	}
	sorted := make([]int, len(positions))
	copy(sorted, positions)
	sort.Ints(sorted)
	if sorted[0] < 0 {
		return ThresholdBand{}, shared.ErrInvalidThresholdBand
	}
	return ThresholdBand{positions: sorted}, nil
}

// IsZero возвращает true для незаданного диапазона.
func (b ThresholdBand) IsZero() bool { return len(b.positions) == 0 }

// Lower - нижняя граница (минимальная позиция).
func (b ThresholdBand) Lower() int {
	if b.IsZero() {
		return -1
	}
	return b.positions[0]
}

// Upper - верхняя граница (максимальная позиция).
func (b ThresholdBand) Upper() int {
	if b.IsZero() {
		return -1
	}
	return b.positions[len(b.positions)-1]
}

// Positions возвращает копию отсортированных позиций.
func (b ThresholdBand) Positions() []int {
	out := make([]int, len(b.positions))
	copy(out, b.positions)
	return out
}

// Thresholds - диапазоны скалолаза по залам.
type Thresholds map[shared.GymID]ThresholdBand

// For возвращает диапазон для зала.
func (t Thresholds) For(gym shared.GymID) (ThresholdBand, bool) {
	if t == nil {
		return ThresholdBand{}, false
	}
	b, ok := t[gym]
	if !ok || b.IsZero() {
		return ThresholdBand{}, false
	}
	return b, true
}

// ══════════════════════════════════════════════════════════════════════════════
// RANK
// ══════════════════════════════════════════════════════════════════════════════

// Rank - сложность трассы относительно диапазона скалолаза.
type Rank int

const (
	RankUnknown  Rank = -1
	RankLower    Rank = 0
	RankExpected Rank = 1
	RankHigher   Rank = 2
)

// Ranks перечисляет все ранги в порядке отображения.
var Ranks = []Rank{RankUnknown, RankLower, RankExpected, RankHigher}

// String возвращает короткое имя ранга, используемое в ключах статистики.
func (r Rank) String() string {
	switch r {
	case RankLower:
		return "lower"
	case RankExpected:
		return "expect"
	case RankHigher:
		return "higher"
	default:
		return "unk"
	}
}

// IsHard возвращает true для рангов Expected и Higher.
func (r Rank) IsHard() bool {
	return r == RankExpected || r == RankHigher
}

// ParseRank разбирает короткое имя ранга. Неизвестное имя даёт RankUnknown.
func ParseRank(s string) Rank {
	for _, r := range Ranks {
		if r.String() == s {
			return r
		}
	}
	return RankUnknown
}

// Classifier определяет ранг трассы по шкале её зала.
// Классификатор чистый и тотальный: любые недостающие данные дают RankUnknown.
type Classifier struct {
	registry *grade.Registry
	fallback bool
}

// NewClassifier создаёт классификатор. При fallback трасса зала без своей
// шкалы ранжируется по шкале по умолчанию.
func NewClassifier(registry *grade.Registry, fallback bool) *Classifier {
	return &Classifier{registry: registry, fallback: fallback}
}

// Rank возвращает ранг трассы относительно порогов скалолаза.
func (c *Classifier) Rank(p *Problem, thresholds Thresholds) Rank {
	if c == nil || c.registry == nil || p == nil {
		return RankUnknown
	}
	band, ok := thresholds.For(p.Gym.ID)
	if !ok {
		return RankUnknown
	}
	scale := c.registry.ScaleFor(p.Gym.Abv, p.Gym.Brand, c.fallback)
	if scale.IsEmpty() {
		return RankUnknown
	}
	pos, ok := scale.PositionOf(p.Grade)
	if !ok {
		return RankUnknown
	}
	return RankFor(pos, band)
}

// RankFor сравнивает позицию на шкале с диапазоном.
func RankFor(pos int, band ThresholdBand) Rank {
	if band.IsZero() || pos < 0 {
		return RankUnknown
	}
	switch {
	case pos < band.Lower():
		return RankLower
	case pos > band.Upper():
		return RankHigher
	default:
		return RankExpected
	}
}
