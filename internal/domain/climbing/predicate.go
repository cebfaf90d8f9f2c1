package climbing

import (
	"strings"

	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROBLEM PREDICATE
// Условие выборки трасс, независимое от хранилища. Хранилища переводят его
// в SQL, а Match позволяет проверить условие в памяти.
// ══════════════════════════════════════════════════════════════════════════════

// Field - скалярное поле трассы, по которому возможна фильтрация на равенство.
type Field string

const (
	FieldGrade Field = "grade"
	FieldType  Field = "type"
	FieldGym   Field = "gym"
)

// Condition - "значение поля входит в Values". Пустой Values не совпадает ни с чем.
type Condition struct {
	Field  Field
	Values []string
}

// TagCondition - "трасса помечена хотя бы одним из Names в категории Category".
type TagCondition struct {
	Category Category
	Names    []string
}

// ProblemPredicate - конъюнкция условий. Нулевое значение совпадает с любой трассой.
type ProblemPredicate struct {
	AnyOf   []Condition
	Tags    []TagCondition
	Removed *bool
	// IDs ограничивает выборку конкретными трассами (nil - без ограничения).
	IDs []shared.ProblemID
}

// WithAnyOf добавляет условие равенства по полю.
func (p ProblemPredicate) WithAnyOf(field Field, values ...string) ProblemPredicate {
	p.AnyOf = append(append([]Condition(nil), p.AnyOf...), Condition{Field: field, Values: lowerAll(values)})
	return p
}

// WithTags добавляет условие по тегам категории.
func (p ProblemPredicate) WithTags(c Category, names ...string) ProblemPredicate {
	p.Tags = append(append([]TagCondition(nil), p.Tags...), TagCondition{Category: c, Names: lowerAll(names)})
	return p
}

// WithRemoved добавляет условие на флаг снятой трассы.
func (p ProblemPredicate) WithRemoved(removed bool) ProblemPredicate {
	p.Removed = &removed
	return p
}

// WithIDs ограничивает выборку указанными трассами.
func (p ProblemPredicate) WithIDs(ids ...shared.ProblemID) ProblemPredicate {
	p.IDs = append([]shared.ProblemID{}, ids...)
	return p
}

// Match проверяет трассу в памяти.
func (p ProblemPredicate) Match(pb *Problem) bool {
	if pb == nil {
		return false
	}
	if p.Removed != nil && pb.Removed != *p.Removed {
		return false
	}
	if p.IDs != nil && !containsID(p.IDs, pb.ID) {
		return false
	}
	for _, c := range p.AnyOf {
		if !c.match(pb) {
			return false
		}
	}
	for _, t := range p.Tags {
		if !pb.HasAnyTag(t.Category, t.Names) {
			return false
		}
	}
	return true
}

// Filter возвращает трассы, удовлетворяющие условию, в исходном порядке.
func (p ProblemPredicate) Filter(problems []*Problem) []*Problem {
	out := make([]*Problem, 0, len(problems))
	for _, pb := range problems {
		if p.Match(pb) {
			out = append(out, pb)
		}
	}
	return out
}

func (c Condition) match(pb *Problem) bool {
	switch c.Field {
	case FieldGrade:
		return containsString(c.Values, pb.NormalizedGrade())
	case FieldGym:
		return containsString(c.Values, strings.ToLower(pb.Gym.Abv))
	case FieldType:
		return pb.HasAnyTag(CategoryWallType, c.Values)
	default:
		return true
	}
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func containsID(ids []shared.ProblemID, id shared.ProblemID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}
