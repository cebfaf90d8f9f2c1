package overrep

import (
	"math"
	"sort"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
)

// Facet is the short name of an attribute family: ty, hh, fw or me.
type Facet string

const (
	FacetType     Facet = "ty"
	FacetHandHold Facet = "hh"
	FacetFootwork Facet = "fw"
	FacetMethod   Facet = "me"
)

// Facets lists the facets in display order.
var Facets = []Facet{FacetType, FacetHandHold, FacetFootwork, FacetMethod}

// FacetCounts holds, per facet, how many problems carry each value.
type FacetCounts map[Facet]map[string]int

// CountFacets counts attribute occurrences over problems. Every facet is
// present in the result, possibly empty.
func CountFacets(problems []*climbing.Problem) FacetCounts {
	counts := make(FacetCounts, len(Facets))
	for _, f := range Facets {
		counts[f] = make(map[string]int)
	}
	for _, p := range problems {
		for _, c := range climbing.Categories {
			for _, tag := range p.Tags(c) {
				counts[Facet(c.Facet())][tag]++
			}
		}
	}
	return counts
}

// Options tunes Analyze.
type Options struct {
	MaxPValue float64
	TopK      int
}

// DefaultOptions returns p < 0.4 and three values per facet.
func DefaultOptions() Options {
	return Options{MaxPValue: 0.4, TopK: 3}
}

// Entry is one over-represented value.
type Entry struct {
	Value     string  `json:"value"`
	OddsRatio float64 `json:"odds_ratio"`
	PValue    float64 `json:"p_value"`
}

// Result maps each facet of the superset to its over-represented values,
// strongest first.
type Result map[Facet][]Entry

// Analyze compares the subset counts against the superset counts for every
// value seen in the superset. A value is kept when its p-value is below
// MaxPValue and its odds ratio is finite and greater than one.
func Analyze(superset, subset FacetCounts, supersetSize, subsetSize int, opts Options) Result {
	res := make(Result)
	if supersetSize <= 0 || subsetSize <= 0 {
		return res
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}

	for facet, values := range superset {
		entries := make([]Entry, 0, len(values))
		for value, superOcc := range values {
			subOcc := subset[facet][value]
			or, p := FisherExact(subOcc, superOcc, subsetSize-subOcc, supersetSize-superOcc)
			if math.IsNaN(or) || math.IsInf(or, 0) || math.IsNaN(p) {
				continue
			}
			if p < opts.MaxPValue && or > 1 {
				entries = append(entries, Entry{Value: value, OddsRatio: or, PValue: p})
			}
		}

		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].OddsRatio != entries[j].OddsRatio {
				return entries[i].OddsRatio > entries[j].OddsRatio
			}
			return entries[i].Value < entries[j].Value
		})
		if len(entries) > opts.TopK {
			entries = entries[:opts.TopK]
		}
		res[facet] = entries
	}
	return res
}

// Map renders the result as plain nested values: facet -> [[value, odds ratio, p-value]].
func (r Result) Map() map[string][][3]any {
	out := make(map[string][][3]any, len(r))
	for facet, entries := range r {
		rows := make([][3]any, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, [3]any{e.Value, e.OddsRatio, e.PValue})
		}
		out[string(facet)] = rows
	}
	return out
}
