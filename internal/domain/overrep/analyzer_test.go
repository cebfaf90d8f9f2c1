package overrep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
)

func TestFisherExact_KnownValues(t *testing.T) {
	tests := []struct {
		name       string
		a, b, c, d int
		oddsRatio  float64
		pValue     float64
	}{
		{"tea tasting", 8, 2, 1, 5, 20, 0.03496503496503495},
		{"classic 2x2", 1, 9, 11, 3, 1.0 * 3 / (9 * 11), 0.002759456185220082},
		{"subset of eight in ten", 8, 10, 2, 40, 16, 0.0005273817739103072},
		{"balanced", 3, 3, 3, 3, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			or, p := FisherExact(tt.a, tt.b, tt.c, tt.d)
			assert.InDelta(t, tt.oddsRatio, or, 1e-9)
			assert.InDelta(t, tt.pValue, p, 1e-9)
		})
	}
}

func TestFisherExact_Degenerate(t *testing.T) {
	or, p := FisherExact(5, 0, 0, 5)
	assert.True(t, math.IsInf(or, 1))
	assert.Less(t, p, 0.01)

	or, _ = FisherExact(0, 3, 0, 4)
	assert.True(t, math.IsNaN(or))

	or, p = FisherExact(0, 0, 0, 0)
	assert.True(t, math.IsNaN(or))
	assert.Equal(t, 1.0, p)

	or, p = FisherExact(-1, 2, 3, 4)
	assert.True(t, math.IsNaN(or))
	assert.True(t, math.IsNaN(p))
}

func handholdCounts() (superset, subset FacetCounts) {
	superset = FacetCounts{
		FacetHandHold: {
			"crimps":  10, // OR 16
			"pinches": 2,  // OR 6
			"jugs":    5,  // OR 3.86
			"edges":   10, // OR 2.67, p 0.22
			"slopers": 20, // OR < 1
			"volumes": 10, // p 0.67
			"monos":   12, // every subset problem: OR +Inf
		},
		FacetFootwork: {"smearing": 5},
	}
	subset = FacetCounts{
		FacetHandHold: {
			"crimps":  8,
			"pinches": 2,
			"jugs":    3,
			"edges":   4,
			"slopers": 1,
			"volumes": 3,
			"monos":   10,
		},
		FacetFootwork: {},
	}
	return superset, subset
}

func values(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out
}

func TestAnalyze_ScenarioEightOfTen(t *testing.T) {
	superset := FacetCounts{FacetHandHold: {"crimps": 10}}
	subset := FacetCounts{FacetHandHold: {"crimps": 8}}

	res := Analyze(superset, subset, 50, 10, DefaultOptions())

	require.Len(t, res[FacetHandHold], 1)
	e := res[FacetHandHold][0]
	assert.Equal(t, "crimps", e.Value)
	assert.Greater(t, e.OddsRatio, 1.0)
	assert.Less(t, e.PValue, 0.4)
}

func TestAnalyze_FiltersAndSorts(t *testing.T) {
	superset, subset := handholdCounts()

	res := Analyze(superset, subset, 50, 10, DefaultOptions())

	assert.Equal(t, []string{"crimps", "pinches", "jugs"}, values(res[FacetHandHold]))
	assert.Empty(t, res[FacetFootwork])
	assert.NotNil(t, res[FacetFootwork])

	for _, entries := range res {
		for _, e := range entries {
			assert.Greater(t, e.OddsRatio, 1.0)
			assert.Less(t, e.PValue, 0.4)
			assert.False(t, math.IsInf(e.OddsRatio, 0))
		}
	}
}

func TestAnalyze_TruncationIsStable(t *testing.T) {
	superset, subset := handholdCounts()

	full := values(Analyze(superset, subset, 50, 10, Options{MaxPValue: 0.4, TopK: 10})[FacetHandHold])
	assert.Equal(t, []string{"crimps", "pinches", "jugs", "edges"}, full)

	for k := 1; k <= len(full); k++ {
		got := values(Analyze(superset, subset, 50, 10, Options{MaxPValue: 0.4, TopK: k})[FacetHandHold])
		assert.Equal(t, full[:k], got, "topK=%d", k)
	}
}

func TestAnalyze_MaxPValue(t *testing.T) {
	superset, subset := handholdCounts()

	res := Analyze(superset, subset, 50, 10, Options{MaxPValue: 0.01, TopK: 3})
	assert.Equal(t, []string{"crimps"}, values(res[FacetHandHold]))
}

func TestAnalyze_ZeroSizes(t *testing.T) {
	superset, subset := handholdCounts()
	assert.Empty(t, Analyze(superset, subset, 0, 10, DefaultOptions()))
	assert.Empty(t, Analyze(superset, subset, 50, 0, DefaultOptions()))
}

func TestAnalyze_TiesOrderedByValue(t *testing.T) {
	superset := FacetCounts{FacetMethod: {"dyno": 2, "campus": 2}}
	subset := FacetCounts{FacetMethod: {"dyno": 2, "campus": 2}}

	res := Analyze(superset, subset, 50, 10, DefaultOptions())
	assert.Equal(t, []string{"campus", "dyno"}, values(res[FacetMethod]))
	assert.Len(t, res.Map()["me"], 2)
}

func TestCountFacets(t *testing.T) {
	problems := []*climbing.Problem{
		{ID: "1", Attributes: []climbing.Attribute{
			{Category: climbing.CategoryWallType, Name: "Slab"},
			{Category: climbing.CategoryHandHold, Name: "crimps"},
			{Category: climbing.CategoryHandHold, Name: "jugs"},
		}},
		{ID: "2", Attributes: []climbing.Attribute{
			{Category: climbing.CategoryWallType, Name: "slab"},
			{Category: climbing.CategoryMove, Name: "dyno"},
			{Category: climbing.CategoryFootwork, Name: "heel hook"},
		}},
	}

	counts := CountFacets(problems)
	assert.Len(t, counts, 4)
	assert.Equal(t, 2, counts[FacetType]["slab"])
	assert.Equal(t, 1, counts[FacetHandHold]["crimps"])
	assert.Equal(t, 1, counts[FacetMethod]["dyno"])
	assert.Equal(t, 1, counts[FacetFootwork]["heel hook"])
}
