// Package climbing содержит доменную модель скалодрома: залы, трассы (problems),
// сессии и попытки. Это ядро бизнес-логики - здесь нет внешних зависимостей.
package climbing

import (
	"sort"
	"strings"
	"time"

	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GYM
// ══════════════════════════════════════════════════════════════════════════════

// GymKind - тип зала.
type GymKind string

const (
	// GymKindBoulder - боулдеринговый зал.
	GymKindBoulder GymKind = "boulder"
	// GymKindLead - зал с трудностными трассами.
	GymKindLead GymKind = "lead"
)

// Gym представляет скалодром.
type Gym struct {
	ID    shared.GymID
	Abv   string // короткий код зала, например "cd1"
	Brand string // сеть залов, например "Climbing District"
	Name  string
	City  string
	Kind  GymKind
}

// BrandKey возвращает ключ сети по первым двум буквам кода зала ("cd1" -> "cd").
func BrandKey(abv string) string {
	abv = strings.ToLower(strings.TrimSpace(abv))
	if len(abv) > 2 {
		return abv[:2]
	}
	return abv
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTRIBUTES
// Один тип для зацепов, работы ног, типа стены и движений:
// категория - это данные, а не отдельный тип.
// ══════════════════════════════════════════════════════════════════════════════

// Category - категория описательного атрибута трассы.
type Category string

const (
	CategoryHandHold Category = "handhold"
	CategoryFootwork Category = "footwork"
	CategoryWallType Category = "type"
	CategoryMove     Category = "move"
)

// Categories перечисляет все категории в порядке отображения.
var Categories = []Category{CategoryWallType, CategoryHandHold, CategoryFootwork, CategoryMove}

// Facet возвращает короткое имя фасета для статистики (ty, hh, fw, me).
func (c Category) Facet() string {
	switch c {
	case CategoryHandHold:
		return "hh"
	case CategoryFootwork:
		return "fw"
	case CategoryWallType:
		return "ty"
	case CategoryMove:
		return "me"
	default:
		return ""
	}
}

// IsValid проверяет, что категория известна.
func (c Category) IsValid() bool {
	return c.Facet() != ""
}

// Attribute - описательный тег трассы (например, зацеп "crimps").
type Attribute struct {
	Category    Category
	Name        string
	Description string
	Image       string
}

// Key возвращает нормализованное имя атрибута.
func (a Attribute) Key() string {
	return strings.ToLower(strings.TrimSpace(a.Name))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROBLEM
// ══════════════════════════════════════════════════════════════════════════════

// Problem - боулдеринговая трасса в зале.
type Problem struct {
	ID         shared.ProblemID
	Grade      string // метка категории, интерпретируется только через шкалу зала
	Gym        Gym
	SectorID   string
	Attributes []Attribute
	Removed    bool
	AddedOn    time.Time
}

// Tags возвращает отсортированные имена атрибутов указанной категории.
func (p *Problem) Tags(c Category) []string {
	var tags []string
	for _, a := range p.Attributes {
		if a.Category == c {
			tags = append(tags, a.Key())
		}
	}
	sort.Strings(tags)
	return tags
}

// WallType возвращает тип стены (первый тег категории type) или "".
func (p *Problem) WallType() string {
	tags := p.Tags(CategoryWallType)
	if len(tags) == 0 {
		return ""
	}
	return tags[0]
}

// HasAnyTag проверяет, помечена ли трасса хотя бы одним из names.
func (p *Problem) HasAnyTag(c Category, names []string) bool {
	for _, a := range p.Attributes {
		if a.Category != c {
			continue
		}
		key := a.Key()
		for _, n := range names {
			if key == strings.ToLower(strings.TrimSpace(n)) {
				return true
			}
		}
	}
	return false
}

// NormalizedGrade возвращает метку категории в нижнем регистре.
func (p *Problem) NormalizedGrade() string {
	return strings.ToLower(strings.TrimSpace(p.Grade))
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPTS
// ══════════════════════════════════════════════════════════════════════════════

// AttemptKind - результат записи о попытках.
type AttemptKind string

const (
	AttemptTop  AttemptKind = "top"
	AttemptZone AttemptKind = "zone"
	AttemptFail AttemptKind = "fail"
)

// IsValid проверяет, что вид попытки корректен.
func (k AttemptKind) IsValid() bool {
	switch k {
	case AttemptTop, AttemptZone, AttemptFail:
		return true
	default:
		return false
	}
}

// Level возвращает уровень достижения, который даёт этот вид записи.
func (k AttemptKind) Level() Level {
	switch k {
	case AttemptTop:
		return LevelTopped
	case AttemptZone:
		return LevelZoned
	case AttemptFail:
		return LevelFailed
	default:
		return LevelNone
	}
}

// Level - лучший достигнутый уровень на трассе.
// Значения совпадают с маркером "previous" в сводной таблице.
type Level int

const (
	LevelNone   Level = -1
	LevelFailed Level = 0
	LevelZoned  Level = 1
	LevelTopped Level = 2
)

// String возвращает строковое представление уровня.
func (l Level) String() string {
	switch l {
	case LevelFailed:
		return "fail"
	case LevelZoned:
		return "zone"
	case LevelTopped:
		return "top"
	default:
		return "none"
	}
}

// Attempt - запись о попытках на одной трассе в одной сессии.
type Attempt struct {
	ID        string
	SessionID shared.SessionID
	ProblemID shared.ProblemID
	Kind      AttemptKind
	Attempts  int
}

// Validate проверяет инварианты записи.
func (a Attempt) Validate() error {
	if !a.Kind.IsValid() {
		return shared.NewDomainError("climbing", "Validate", shared.ErrInvalidInput, "unknown attempt kind: "+string(a.Kind))
	}
	if a.Attempts < 1 {
		return shared.ErrInvalidAttempts
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session - одна тренировка скалолаза в зале.
type Session struct {
	ID        shared.SessionID
	ClimberID shared.ClimberID
	Gym       Gym
	Date      time.Time
	Duration  float64 // в часах
	Tops      []Attempt
	Zones     []Attempt
	Fails     []Attempt
}

// Records возвращает все записи сессии в порядке обработки:
// сначала неудачи, затем зоны, затем топы.
func (s *Session) Records() []Attempt {
	out := make([]Attempt, 0, len(s.Fails)+len(s.Zones)+len(s.Tops))
	out = append(out, s.Fails...)
	out = append(out, s.Zones...)
	out = append(out, s.Tops...)
	return out
}

// Add добавляет запись в соответствующий раздел сессии.
func (s *Session) Add(a Attempt) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.SessionID = s.ID
	switch a.Kind {
	case AttemptTop:
		s.Tops = append(s.Tops, a)
	case AttemptZone:
		s.Zones = append(s.Zones, a)
	case AttemptFail:
		s.Fails = append(s.Fails, a)
	}
	return nil
}

// ProblemIDs возвращает множество трасс, встречающихся в сессии.
func (s *Session) ProblemIDs() map[shared.ProblemID]struct{} {
	ids := make(map[shared.ProblemID]struct{})
	for _, r := range s.Records() {
		ids[r.ProblemID] = struct{}{}
	}
	return ids
}

// SortSessions стабильно сортирует сессии по дате.
func SortSessions(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Date.Before(sessions[j].Date)
	})
}
