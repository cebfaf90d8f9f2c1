// Package grade holds the ordered difficulty scales used by gyms and brands.
// A scale is an immutable list of distinct labels; the position of a label
// is its index in that list. All comparisons are case-insensitive.
package grade

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

// Scale is an ordered, immutable sequence of grade labels.
// Labels are stored in lowercase canonical form.
type Scale struct {
	key    string
	labels []string
	index  map[string]int
}

// NewScale builds a scale from labels, lowest first.
// Labels are trimmed and lowercased; duplicates are rejected.
func NewScale(key string, labels []string) (Scale, error) {
	if len(labels) == 0 {
		return Scale{}, shared.ErrEmptyScale
	}

	s := Scale{
		key:    strings.ToLower(strings.TrimSpace(key)),
		labels: make([]string, 0, len(labels)),
		index:  make(map[string]int, len(labels)),
	}
	for _, raw := range labels {
		label := normalize(raw)
		if label == "" {
			return Scale{}, shared.ErrEmptyScale
		}
		if _, dup := s.index[label]; dup {
			return Scale{}, shared.WrapError("grade", "NewScale", shared.ErrInvalidInput,
				"duplicate label "+label+" in scale "+s.key, shared.ErrDuplicateLabel)
		}
		s.index[label] = len(s.labels)
		s.labels = append(s.labels, label)
	}
	return s, nil
}

// MustScale is NewScale for static tables; it panics on invalid input.
func MustScale(key string, labels ...string) Scale {
	s, err := NewScale(key, labels)
	if err != nil {
		panic(err)
	}
	return s
}

// Key returns the registry key of the scale ("" for the empty scale).
func (s Scale) Key() string { return s.key }

// Len returns the number of labels.
func (s Scale) Len() int { return len(s.labels) }

// IsEmpty reports whether the scale has no labels.
func (s Scale) IsEmpty() bool { return len(s.labels) == 0 }

// Canonical returns a copy of the lowercase labels.
func (s Scale) Canonical() []string {
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

// Labels returns the display labels, capitalised on their first letter.
func (s Scale) Labels() []string {
	out := make([]string, len(s.labels))
	for i, l := range s.labels {
		out[i] = Display(l)
	}
	return out
}

// PositionOf returns the index of label, or false when it is not on the scale.
func (s Scale) PositionOf(label string) (int, bool) {
	if s.index == nil {
		return 0, false
	}
	pos, ok := s.index[normalize(label)]
	return pos, ok
}

// Contains reports whether label belongs to the scale.
func (s Scale) Contains(label string) bool {
	_, ok := s.PositionOf(label)
	return ok
}

// At returns the canonical label at position pos.
func (s Scale) At(pos int) (string, bool) {
	if pos < 0 || pos >= len(s.labels) {
		return "", false
	}
	return s.labels[pos], true
}

// Below returns the labels strictly lower than label.
// An unknown label yields an empty slice.
func (s Scale) Below(label string) []string {
	pos, ok := s.PositionOf(label)
	if !ok {
		return []string{}
	}
	out := make([]string, pos)
	copy(out, s.labels[:pos])
	return out
}

// Above returns the labels strictly higher than label.
// An unknown label yields an empty slice.
func (s Scale) Above(label string) []string {
	pos, ok := s.PositionOf(label)
	if !ok {
		return []string{}
	}
	out := make([]string, len(s.labels)-pos-1)
	copy(out, s.labels[pos+1:])
	return out
}

// Display capitalises the first letter of a label.
func Display(label string) string {
	if label == "" {
		return label
	}
	r, size := utf8.DecodeRuneInString(label)
	return string(unicode.ToUpper(r)) + label[size:]
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
