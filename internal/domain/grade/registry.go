package grade

import (
	"sort"
	"strings"

	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

// DefaultKey is the registry key of the scale used when nothing else applies.
const DefaultKey = "@default"

// Registry resolves gyms and brands to grade scales.
// It is immutable once built and safe for concurrent use.
type Registry struct {
	scales map[string]Scale
	brands map[string]string
}

// NewRegistry builds a registry from raw scale tables and a brand -> key map.
// Every brand must point at a known scale.
func NewRegistry(scales map[string][]string, brands map[string]string) (*Registry, error) {
	r := &Registry{
		scales: make(map[string]Scale, len(scales)),
		brands: make(map[string]string, len(brands)),
	}

	for key, labels := range scales {
		s, err := NewScale(key, labels)
		if err != nil {
			return nil, err
		}
		r.scales[s.Key()] = s
	}

	for brand, key := range brands {
		k := strings.ToLower(strings.TrimSpace(key))
		if _, ok := r.scales[k]; !ok {
			return nil, shared.WrapError("grade", "NewRegistry", shared.ErrNotFound,
				"brand "+brand+" points at unknown scale "+key, shared.ErrScaleNotFound)
		}
		r.brands[brandKey(brand)] = k
	}

	return r, nil
}

// DefaultScales returns the built-in scale table.
func DefaultScales() map[string][]string {
	return map[string][]string{
		DefaultKey: {"white", "yellow", "orange", "green", "blue", "red", "black", "purple"},
		"cd":       {"yellow", "orange", "green", "blue", "pink", "red", "black", "purple"},
		"va":       {"white", "orange", "green", "blue", "red", "black", "purple"},
		"bo":       {"b1", "b2", "b3", "b4", "b5", "b6", "b7", "b8", "b9", "b10", "b11", "b12", "b13", "b14"},
		"bs":       {"blue", "green", "orange", "pink", "black", "gray", "white"},
		"bl":       {"yellow", "orange", "blue", "red", "green", "black"},
		"cu":       {"yellow", "green", "blue", "purple", "red", "white", "black"},
		"lead": {
			"5a", "5a+", "5b", "5b+", "5c", "5c+",
			"6a", "6a+", "6b", "6b+", "6c", "6c+",
			"7a", "7a+", "7b", "7b+", "7c", "7c+",
			"8a", "8a+", "8b", "8b+",
		},
		// gym specific
		"bsm": {"blue", "green", "red", "pink", "black", "gray"},
	}
}

// DefaultBrands returns the built-in brand -> scale key mapping.
func DefaultBrands() map[string]string {
	return map[string]string{
		"Boulder Line":      "bl",
		"Climbing District": "cd",
		"Vertical'Art":      "va",
		"Block'Out":         "bo",
		"Bloc Session":      "bs",
		"Climb Up":          "cu",
		"Altissimo":         "lead",
	}
}

// NewDefaultRegistry returns a registry over DefaultScales and DefaultBrands.
func NewDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultScales(), DefaultBrands())
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the scale registered under key.
func (r *Registry) Lookup(key string) (Scale, bool) {
	s, ok := r.scales[strings.ToLower(strings.TrimSpace(key))]
	return s, ok
}

// Default returns the default scale, or the empty scale if none is registered.
func (r *Registry) Default() Scale {
	return r.scales[DefaultKey]
}

// ScaleFor resolves the scale of a gym: a scale registered under the gym
// abbreviation wins, then the brand mapping, then the default scale when
// fallback is set. Otherwise the empty scale is returned.
func (r *Registry) ScaleFor(abv, brand string, fallback bool) Scale {
	if s, ok := r.Lookup(abv); ok && abv != "" {
		return s
	}
	if key, ok := r.brands[brandKey(brand)]; ok && brand != "" {
		return r.scales[key]
	}
	if fallback {
		return r.Default()
	}
	return Scale{}
}

// Keys returns the registered scale keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.scales))
	for k := range r.scales {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Brands returns a copy of the brand mapping keyed by normalised brand name.
func (r *Registry) Brands() map[string]string {
	out := make(map[string]string, len(r.brands))
	for b, k := range r.brands {
		out[b] = k
	}
	return out
}

func brandKey(brand string) string {
	return strings.ToLower(strings.TrimSpace(brand))
}
