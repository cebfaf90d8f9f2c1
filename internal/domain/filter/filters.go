// Package filter parses the free-text problem search language.
//
// A query is a list of clauses separated by ';'. Each clause is either
// "<key> <comparator> <values>" or one of the standalone tokens rm, removed,
// !rm, !removed, top and fail. Parsing never fails: clauses that cannot be
// understood produce human readable diagnostics next to a best-effort result.
package filter

import (
	"sort"
	"strings"
)

// Key is a canonical filter key.
type Key string

const (
	KeyHandHold Key = "handhold"
	KeyFootwork Key = "footwork"
	KeyMove     Key = "move"
	KeyType     Key = "type"
	KeyGrade    Key = "grade"
	KeyGym      Key = "gym"
	KeyDate     Key = "date"
)

// keySynonyms maps each canonical key to the spellings accepted in queries.
var keySynonyms = map[Key][]string{
	KeyHandHold: {"handholds", "handhold", "hh", "h"},
	KeyFootwork: {"footwork", "footworks", "fw", "f"},
	KeyMove:     {"moves", "move", "m", "method", "methods", "me"},
	KeyType:     {"type", "problem-type", "t"},
	KeyGrade:    {"grade", "g"},
	KeyGym:      {"gym", "brand", "abv", "gym-abv"},
	KeyDate:     {"date", "", "d"},
}

var keyBySynonym = func() map[string]Key {
	m := make(map[string]Key)
	for k, syns := range keySynonyms {
		for _, s := range syns {
			m[s] = k
		}
	}
	return m
}()

// LookupKey resolves a key spelling to its canonical key.
func LookupKey(s string) (Key, bool) {
	k, ok := keyBySynonym[strings.ToLower(strings.TrimSpace(s))]
	return k, ok
}

// IsCategorical reports whether the key only supports equality.
func (k Key) IsCategorical() bool {
	switch k {
	case KeyHandHold, KeyFootwork, KeyMove, KeyType, KeyGym:
		return true
	default:
		return false
	}
}

// Comparator is a canonical comparison operator.
type Comparator string

const (
	Eq  Comparator = "eq"
	Lt  Comparator = "lt"
	Lte Comparator = "lte"
	Gt  Comparator = "gt"
	Gte Comparator = "gte"
)

var comparatorAliases = map[string]Comparator{
	"=":   Eq,
	":":   Eq,
	"eq":  Eq,
	"<":   Lt,
	"lt":  Lt,
	"<=":  Lte,
	"lte": Lte,
	">":   Gt,
	"gt":  Gt,
	">=":  Gte,
	"gte": Gte,
}

// LookupComparator resolves a comparator spelling.
func LookupComparator(s string) (Comparator, bool) {
	c, ok := comparatorAliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// IsRelational reports whether the comparator orders values.
func (c Comparator) IsRelational() bool {
	return c != Eq
}

// symbol is the spelling used when re-serialising a clause.
func (c Comparator) symbol() string {
	switch c {
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Gt:
		return ">"
	case Gte:
		return ">="
	default:
		return "="
	}
}

// Status restricts results to the climber's achievement on a problem.
type Status int

const (
	StatusNone Status = iota
	StatusTop
	StatusFail
)

// String returns the query token of the status.
func (s Status) String() string {
	switch s {
	case StatusTop:
		return "top"
	case StatusFail:
		return "fail"
	default:
		return ""
	}
}

// Filters is the canonical result of a parse.
type Filters struct {
	// Clauses holds sorted, de-duplicated values per key and comparator.
	Clauses map[Key]map[Comparator][]string
	// Removed is nil when the query says nothing about removed problems.
	Removed *bool
	Status  Status
}

// NewFilters returns an empty filter set.
func NewFilters() *Filters {
	return &Filters{Clauses: make(map[Key]map[Comparator][]string)}
}

// Values returns the values of key for comparator c.
func (f *Filters) Values(key Key, c Comparator) ([]string, bool) {
	byCmp, ok := f.Clauses[key]
	if !ok {
		return nil, false
	}
	v, ok := byCmp[c]
	return v, ok
}

// Has reports whether key appears in the filters.
func (f *Filters) Has(key Key) bool {
	_, ok := f.Clauses[key]
	return ok
}

// IsEmpty reports whether no filter at all was parsed.
func (f *Filters) IsEmpty() bool {
	return len(f.Clauses) == 0 && f.Removed == nil && f.Status == StatusNone
}

// Map renders the filters as plain nested maps, e.g.
// {"handhold": {"eq": ["crimps"]}, "rm": true}.
func (f *Filters) Map() map[string]any {
	out := make(map[string]any, len(f.Clauses)+2)
	for key, byCmp := range f.Clauses {
		m := make(map[string][]string, len(byCmp))
		for c, values := range byCmp {
			m[string(c)] = append([]string{}, values...)
		}
		out[string(key)] = m
	}
	if f.Removed != nil {
		out["rm"] = *f.Removed
	}
	if f.Status != StatusNone {
		out[f.Status.String()] = true
	}
	return out
}

// String serialises the filters back into the query language.
// Keys and comparators are emitted in sorted order.
func (f *Filters) String() string {
	keys := make([]string, 0, len(f.Clauses))
	for k := range f.Clauses {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		byCmp := f.Clauses[Key(k)]
		cmps := make([]string, 0, len(byCmp))
		for c := range byCmp {
			cmps = append(cmps, string(c))
		}
		sort.Strings(cmps)
		for _, c := range cmps {
			values := byCmp[Comparator(c)]
			if len(values) == 0 {
				continue
			}
			parts = append(parts, k+" "+Comparator(c).symbol()+" "+strings.Join(values, ","))
		}
	}
	if f.Removed != nil {
		if *f.Removed {
			parts = append(parts, "rm")
		} else {
			parts = append(parts, "!rm")
		}
	}
	if f.Status != StatusNone {
		parts = append(parts, f.Status.String())
	}
	return strings.Join(parts, "; ")
}
