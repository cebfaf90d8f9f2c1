package filter

import (
	"regexp"
	"sort"
	"strings"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/grade"
)

// Diagnostic prefixes and messages shown to users as-is.
const (
	MsgPatternUnknown     = "Pattern unknown: "
	MsgKeyUnknown         = "Key unknown: "
	MsgUnadaptedComparer  = "Unadapted comparer: "
	MsgTooManyValues      = "Too many values given comparer: "
	MsgSeveralGymBrands   = "several gym brand and comparer on grade can lead to inacurate results"
	MsgNoGym              = "no gym and comparer on grade can lead to inacurate results"
	MsgUnknownGradeOrder  = "unknown grade order for gym"
	clauseSeparator       = ";"
	standaloneRemoved     = "rm"
	standaloneRemovedLong = "removed"
)

var (
	// The key is lazy so that textual comparators glued by spaces are not
	// swallowed into it; textual comparators must stand as separate words.
	clausePattern = regexp.MustCompile(`^([^<>=:\s]*?)\s*(<=|>=|<|>|=|:|\b(?:eq|lte|gte|lt|gt)\b)\s*(.*)$`)
	valueSplit    = regexp.MustCompile(`[\s,]+`)
)

// Parser turns query strings into Filters.
type Parser struct {
	registry *grade.Registry
}

// NewParser creates a parser that expands grade ranges with registry.
func NewParser(registry *grade.Registry) *Parser {
	return &Parser{registry: registry}
}

// Option tunes a single Parse call.
type Option func(*parseOptions)

type parseOptions struct {
	gymContext string
}

// WithGymContext supplies the gym the query is made from. It selects the
// grade scale for ranges when the query has no gym clause of its own and
// does not restrict results to that gym.
func WithGymContext(abv string) Option {
	return func(o *parseOptions) {
		o.gymContext = strings.ToLower(strings.TrimSpace(abv))
	}
}

// Parse parses raw. It always returns non-nil filters and diagnostics.
func (p *Parser) Parse(raw string, opts ...Option) (*Filters, []string) {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}

	f := NewFilters()
	diagnostics := []string{}
	sets := make(map[Key]map[Comparator]map[string]struct{})
	top, fail := false, false

	for _, clause := range strings.Split(raw, clauseSeparator) {
		text := strings.TrimSpace(clause)
		if text == "" {
			continue
		}
		norm := strings.ToLower(text)

		switch norm {
		case standaloneRemoved, standaloneRemovedLong:
			v := true
			f.Removed = &v
			continue
		case "!" + standaloneRemoved, "!" + standaloneRemovedLong:
			v := false
			f.Removed = &v
			continue
		case "top":
			top = true
			continue
		case "fail":
			fail = true
			continue
		}

		m := clausePattern.FindStringSubmatch(norm)
		if m == nil {
			diagnostics = append(diagnostics, MsgPatternUnknown+text)
			continue
		}

		key, ok := LookupKey(m[1])
		if !ok {
			diagnostics = append(diagnostics, MsgKeyUnknown+text)
			continue
		}

		cmp, _ := LookupComparator(m[2])
		if key.IsCategorical() && cmp != Eq {
			diagnostics = append(diagnostics, MsgUnadaptedComparer+text)
			continue
		}

		values := splitValues(m[3])
		if len(values) == 0 {
			diagnostics = append(diagnostics, MsgPatternUnknown+text)
			continue
		}
		if cmp.IsRelational() && len(values) > 1 {
			diagnostics = append(diagnostics, MsgTooManyValues+text)
			continue
		}

		if sets[key] == nil {
			sets[key] = make(map[Comparator]map[string]struct{})
		}
		if sets[key][cmp] == nil {
			sets[key][cmp] = make(map[string]struct{})
		}
		for _, v := range values {
			sets[key][cmp][v] = struct{}{}
		}
	}

	if hasRelational(sets[KeyGrade]) {
		scale, diag := p.rangeScale(sets[KeyGym], o.gymContext)
		if diag != "" {
			diagnostics = append(diagnostics, diag)
		}
		sets[KeyGrade] = map[Comparator]map[string]struct{}{Eq: expandGrades(sets[KeyGrade], scale)}
	}

	for key, byCmp := range sets {
		f.Clauses[key] = make(map[Comparator][]string, len(byCmp))
		for cmp, set := range byCmp {
			f.Clauses[key][cmp] = sortedKeys(set)
		}
	}

	switch {
	case top && fail:
		f.Status = StatusNone
	case top:
		f.Status = StatusTop
	case fail:
		f.Status = StatusFail
	}

	return f, diagnostics
}

// rangeScale picks the scale used to expand relational grade clauses.
func (p *Parser) rangeScale(gyms map[Comparator]map[string]struct{}, context string) (grade.Scale, string) {
	if p.registry == nil {
		return grade.Scale{}, MsgUnknownGradeOrder
	}

	abvs := sortedKeys(gyms[Eq])
	if len(abvs) == 0 {
		if context == "" {
			return p.registry.Default(), MsgNoGym
		}
		abvs = []string{context}
	}

	brands := make(map[string]struct{})
	for _, abv := range abvs {
		brands[climbing.BrandKey(abv)] = struct{}{}
	}
	if len(brands) > 1 {
		return p.registry.Default(), MsgSeveralGymBrands
	}

	if len(abvs) == 1 {
		if s, ok := p.registry.Lookup(abvs[0]); ok {
			return s, ""
		}
	}
	if s, ok := p.registry.Lookup(climbing.BrandKey(abvs[0])); ok {
		return s, ""
	}
	return p.registry.Default(), MsgUnknownGradeOrder
}

func expandGrades(byCmp map[Comparator]map[string]struct{}, scale grade.Scale) map[string]struct{} {
	res := make(map[string]struct{})
	for v := range byCmp[Eq] {
		res[v] = struct{}{}
	}
	for _, cmp := range []Comparator{Lt, Lte, Gt, Gte} {
		for pivot := range byCmp[cmp] {
			var labels []string
			switch cmp {
			case Lt, Lte:
				labels = scale.Below(pivot)
			case Gt, Gte:
				labels = scale.Above(pivot)
			}
			for _, l := range labels {
				res[l] = struct{}{}
			}
			if cmp == Lte || cmp == Gte {
				res[pivot] = struct{}{}
			}
		}
	}
	return res
}

func hasRelational(byCmp map[Comparator]map[string]struct{}) bool {
	for cmp := range byCmp {
		if cmp.IsRelational() {
			return true
		}
	}
	return false
}

func splitValues(s string) []string {
	var out []string
	for _, v := range valueSplit.Split(strings.TrimSpace(s), -1) {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// DiagnosticKind classifies a diagnostic for metrics labels.
func DiagnosticKind(msg string) string {
	switch {
	case strings.HasPrefix(msg, MsgPatternUnknown):
		return "pattern"
	case strings.HasPrefix(msg, MsgKeyUnknown):
		return "key"
	case strings.HasPrefix(msg, MsgUnadaptedComparer):
		return "comparer"
	case strings.HasPrefix(msg, MsgTooManyValues):
		return "values"
	case msg == MsgSeveralGymBrands, msg == MsgNoGym, msg == MsgUnknownGradeOrder:
		return "grade_scale"
	default:
		return "other"
	}
}
