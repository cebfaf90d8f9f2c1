// Package achievement строит сводную таблицу достижений скалолаза по трассам
// за окно анализа и считает из неё все производные показатели за один проход.
package achievement

import (
	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

// NotTried - достижение для трассы, которой нет в таблице.
const NotTried = "not tried"

// Achievement - итоговое достижение на трассе в окне.
type Achievement string

const (
	AchievementFlash Achievement = "flash"
	AchievementTop   Achievement = "top"
	AchievementZone  Achievement = "zone"
	AchievementFail  Achievement = "fail"
)

// Achievements перечисляет достижения в порядке отображения.
var Achievements = []Achievement{AchievementFlash, AchievementTop, AchievementZone, AchievementFail}

// Summary - состояние одной трассы в окне анализа.
type Summary struct {
	// ProblemID - трасса.
	ProblemID shared.ProblemID `json:"problem_id"`

	// Attempts - сумма попыток по всем записям.
	Attempts int `json:"attempts"`

	// ZoneMarker - значение Attempts в момент первой зоны или топа (-1 - не было).
	ZoneMarker int `json:"zone_marker"`

	// TopMarker - значение Attempts в момент первого топа (-1 - не было).
	TopMarker int `json:"top_marker"`

	// Rank - сложность относительно диапазона скалолаза.
	Rank climbing.Rank `json:"rank"`

	// Prior - лучший уровень до даты начала окна.
	Prior climbing.Level `json:"prior"`

	// PriorKnown - Prior действительно запрашивался у хранилища.
	PriorKnown bool `json:"prior_known"`
}

func newSummary(id shared.ProblemID, rank climbing.Rank) *Summary {
	return &Summary{
		ProblemID:  id,
		ZoneMarker: -1,
		TopMarker:  -1,
		Rank:       rank,
		Prior:      climbing.LevelNone,
	}
}

// apply продвигает состояние трассы на одну запись о попытках.
func (s *Summary) apply(kind climbing.AttemptKind, attempts int) {
	s.Attempts += attempts
	if kind == climbing.AttemptFail {
		return
	}
	if s.ZoneMarker == -1 {
		s.ZoneMarker = s.Attempts
	}
	if kind == climbing.AttemptTop && s.TopMarker == -1 {
		s.TopMarker = s.Attempts
	}
}

// prior возвращает Prior, считая незапрошенное значение как "не пробовал".
func (s Summary) prior() climbing.Level {
	if !s.PriorKnown {
		return climbing.LevelNone
	}
	return s.Prior
}

// IsTopped - трасса пройдена в окне.
func (s Summary) IsTopped() bool { return s.TopMarker != -1 }

// IsZoned - достигнута зона, но не топ.
func (s Summary) IsZoned() bool { return s.TopMarker == -1 && s.ZoneMarker != -1 }

// IsFailed - не достигнута даже зона.
func (s Summary) IsFailed() bool { return s.ZoneMarker == -1 }

// IsFlash - топ с первой попытки на трассе, которую раньше не пробовали.
func (s Summary) IsFlash() bool {
	return s.TopMarker == 1 && s.prior() == climbing.LevelNone
}

// IsNewTop - топ трассы, которая не была пройдена до окна (флеши включены).
func (s Summary) IsNewTop() bool {
	return s.PriorKnown && s.IsTopped() && s.Prior < climbing.LevelTopped
}

// IsNewZone - зона на трассе, где раньше не было ни зоны, ни топа.
func (s Summary) IsNewZone() bool {
	return s.PriorKnown && s.IsZoned() && s.Prior < climbing.LevelZoned
}

// IsNewFail - неудача на трассе, которую раньше не пробовали.
func (s Summary) IsNewFail() bool {
	return s.PriorKnown && s.IsFailed() && s.Prior == climbing.LevelNone
}

// IsHardTop - новый топ на трассе ранга Expected или Higher.
func (s Summary) IsHardTop() bool {
	return s.IsNewTop() && s.Rank.IsHard()
}

// Achievement возвращает итоговое достижение в окне.
func (s Summary) Achievement() Achievement {
	switch {
	case s.IsTopped() && s.IsFlash():
		return AchievementFlash
	case s.IsTopped():
		return AchievementTop
	case s.IsZoned():
		return AchievementZone
	default:
		return AchievementFail
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TABLE
// ══════════════════════════════════════════════════════════════════════════════

// Table - сводная таблица по трассам в порядке первого появления.
type Table struct {
	rows  map[shared.ProblemID]*Summary
	order []shared.ProblemID
}

// NewTable создаёт таблицу из готовых строк.
func NewTable(rows ...Summary) *Table {
	t := &Table{rows: make(map[shared.ProblemID]*Summary, len(rows))}
	for _, r := range rows {
		r := r
		t.put(&r)
	}
	return t
}

func (t *Table) put(s *Summary) {
	if _, ok := t.rows[s.ProblemID]; !ok {
		t.order = append(t.order, s.ProblemID)
	}
	t.rows[s.ProblemID] = s
}

// Get возвращает строку трассы.
func (t *Table) Get(id shared.ProblemID) (Summary, bool) {
	s, ok := t.rows[id]
	if !ok {
		return Summary{}, false
	}
	return *s, true
}

// Len возвращает число трасс в таблице.
func (t *Table) Len() int { return len(t.order) }

// Summaries возвращает копии строк в порядке первого появления.
func (t *Table) Summaries() []Summary {
	out := make([]Summary, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.rows[id])
	}
	return out
}

// AchievementOf возвращает достижение трассы или NotTried.
func (t *Table) AchievementOf(id shared.ProblemID) string {
	s, ok := t.Get(id)
	if !ok {
		return NotTried
	}
	return string(s.Achievement())
}

// Map возвращает таблицу в виде вложенных карт для отчётов.
func (t *Table) Map() map[string]map[string]int {
	out := make(map[string]map[string]int, t.Len())
	for _, s := range t.Summaries() {
		out[s.ProblemID.String()] = map[string]int{
			"attempts":      s.Attempts,
			"zone attempts": s.ZoneMarker,
			"top attempts":  s.TopMarker,
			"rank":          int(s.Rank),
			"previous":      int(s.prior()),
		}
	}
	return out
}
