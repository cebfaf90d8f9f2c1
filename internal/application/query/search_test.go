package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/filter"
	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/domain/overrep"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

const climber = shared.ClimberID("c1")

func catalog() *memStore {
	removed := newProblem("p5", "black", gymCD1, day(1), hh("crimps")...)
	removed.Removed = true

	return &memStore{
		gyms: []*climbing.Gym{&gymCD1, &gymBO},
		problems: []*climbing.Problem{
			newProblem("p1", "blue", gymCD1, day(1), append(hh("crimps"), wall("slab"))...),
			newProblem("p2", "red", gymCD1, day(1), append(hh("crimps", "jugs"), wall("overhang"))...),
			newProblem("p3", "pink", gymCD1, day(1), hh("jugs")...),
			newProblem("p4", "green", gymCD1, day(1), hh("slopers")...),
			removed,
			newProblem("p6", "purple", gymCD1, day(1), hh("pinches")...),
			newProblem("p7", "b5", gymBO, day(1), hh("crimps")...),
		},
		sessions: []*climbing.Session{
			newSession("s1", climber, gymCD1, day(2), 2, top("p1", 1), fail("p4", 3), zone("p3", 2)),
			newSession("s2", climber, gymCD1, day(5), 1.5, top("p2", 4), fail("p3", 1)),
		},
	}
}

func newSearch(store *memStore, cache Cache, metrics Metrics) *SearchHandler {
	return NewSearchHandler(store, store, filter.NewParser(grade.NewDefaultRegistry()), overrep.DefaultOptions(), cache, metrics, nil)
}

func TestSearch_TagsAndRemoved(t *testing.T) {
	h := newSearch(catalog(), nil, nil)

	res, err := h.Handle(context.Background(), SearchQuery{Raw: "hh = crimps"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p5", "p7"}, ids(res.Problems))
	assert.Empty(t, res.Diagnostics)
	assert.Empty(t, res.Overrepresented)

	res, err = h.Handle(context.Background(), SearchQuery{Raw: "hh = crimps, jugs; !rm; gym = cd1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids(res.Problems))
}

func TestSearch_GradeRangeUsesGymScale(t *testing.T) {
	h := newSearch(catalog(), nil, nil)

	res, err := h.Handle(context.Background(), SearchQuery{Raw: "g >= pink; gym = cd1"})
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, []string{"p2", "p3", "p5", "p6"}, ids(res.Problems))
}

func TestSearch_GradeRangeWithGymContext(t *testing.T) {
	h := newSearch(catalog(), nil, nil)

	res, err := h.Handle(context.Background(), SearchQuery{Raw: "g > red", GymContext: "cd1"})
	require.NoError(t, err)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, []string{"p5", "p6"}, ids(res.Problems))
}

func TestSearch_DiagnosticsDoNotStopSearch(t *testing.T) {
	metrics := newRecordingMetrics()
	h := newSearch(catalog(), nil, metrics)

	res, err := h.Handle(context.Background(), SearchQuery{Raw: "colour = red; hh = pinches"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p6"}, ids(res.Problems))
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "key", filter.DiagnosticKind(res.Diagnostics[0]))
	assert.Equal(t, 1, metrics.searches)
	assert.Equal(t, 1, metrics.diagnostics)
}

func TestSearch_StatusTop(t *testing.T) {
	h := newSearch(catalog(), nil, nil)

	res, err := h.Handle(context.Background(), SearchQuery{Raw: "gym = cd1; top", ClimberID: climber})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, ids(res.Problems))

	for _, f := range overrep.Facets {
		_, ok := res.Overrepresented[f]
		assert.True(t, ok, "facet %s present", f)
	}
	for _, entries := range res.Overrepresented {
		for _, e := range entries {
			assert.Greater(t, e.OddsRatio, 1.0)
			assert.Less(t, e.PValue, 0.4)
		}
	}
}

func TestSearch_StatusFail(t *testing.T) {
	h := newSearch(catalog(), nil, nil)

	res, err := h.Handle(context.Background(), SearchQuery{Raw: "fail", ClimberID: climber})
	require.NoError(t, err)
	// p3 was zoned, p4 failed: tried but never topped.
	assert.Equal(t, []string{"p3", "p4"}, ids(res.Problems))
}

func TestSearch_TopAndFailCancelOut(t *testing.T) {
	h := newSearch(catalog(), nil, nil)

	res, err := h.Handle(context.Background(), SearchQuery{Raw: "top; fail; gym = bo1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p7"}, ids(res.Problems))
	assert.Empty(t, res.Overrepresented)
}

func TestSearch_StatusRequiresClimber(t *testing.T) {
	h := newSearch(catalog(), nil, nil)

	_, err := h.Handle(context.Background(), SearchQuery{Raw: "top"})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestSearch_StoreError(t *testing.T) {
	store := catalog()
	store.failWith = errors.New("connection reset")
	h := newSearch(store, nil, nil)

	_, err := h.Handle(context.Background(), SearchQuery{Raw: "hh = crimps"})
	assert.ErrorIs(t, err, store.failWith)
}

func TestSearch_CachedByNormalisedFilters(t *testing.T) {
	store := catalog()
	cache := newMemCache()
	metrics := newRecordingMetrics()
	h := newSearch(store, cache, metrics)

	first, err := h.Handle(context.Background(), SearchQuery{Raw: "hh = jugs, crimps"})
	require.NoError(t, err)
	second, err := h.Handle(context.Background(), SearchQuery{Raw: "handholds: crimps jugs"})
	require.NoError(t, err)

	assert.Equal(t, 1, store.findProblemsCalls)
	assert.Equal(t, ids(first.Problems), ids(second.Problems))
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
}

func TestSearch_CacheFailureFallsBackToStore(t *testing.T) {
	store := catalog()
	cache := newMemCache()
	cache.failGet = true
	h := newSearch(store, cache, nil)

	res, err := h.Handle(context.Background(), SearchQuery{Raw: "hh = slopers"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p4"}, ids(res.Problems))
}

func TestBuildPredicate(t *testing.T) {
	f, _ := filter.NewParser(grade.NewDefaultRegistry()).Parse("g = blue, red; t = slab; hh = crimps; m = dyno; date > 2024-01-01; rm")
	pred := BuildPredicate(f)

	require.Len(t, pred.AnyOf, 2)
	assert.Equal(t, climbing.Condition{Field: climbing.FieldGrade, Values: []string{"blue", "red"}}, pred.AnyOf[0])
	assert.Equal(t, climbing.Condition{Field: climbing.FieldType, Values: []string{"slab"}}, pred.AnyOf[1])
	require.Len(t, pred.Tags, 2)
	assert.Equal(t, climbing.CategoryHandHold, pred.Tags[0].Category)
	assert.Equal(t, climbing.CategoryMove, pred.Tags[1].Category)
	require.NotNil(t, pred.Removed)
	assert.True(t, *pred.Removed)
}

func TestFilterByStatus(t *testing.T) {
	problems := catalog().problems
	best := map[shared.ProblemID]climbing.Level{
		"p1": climbing.LevelTopped,
		"p2": climbing.LevelFailed,
		"p3": climbing.LevelZoned,
	}

	assert.Equal(t, []string{"p1"}, ids(FilterByStatus(problems, best, filter.StatusTop)))
	assert.Equal(t, []string{"p2", "p3"}, ids(FilterByStatus(problems, best, filter.StatusFail)))
	assert.Len(t, FilterByStatus(problems, best, filter.StatusNone), len(problems))
}
