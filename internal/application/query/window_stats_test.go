package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/domain/achievement"
	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

func withThresholds(t *testing.T, store *memStore) *memStore {
	t.Helper()
	// cd scale: yellow orange green [blue pink] red black purple.
	band, err := climbing.NewThresholdBand(3, 4)
	require.NoError(t, err)
	store.thresholds = map[shared.ClimberID]climbing.Thresholds{
		climber: {gymCD1.ID: band},
	}
	return store
}

func newWindowHandler(store *memStore, cache Cache, metrics Metrics) *WindowStatisticsHandler {
	registry := grade.NewDefaultRegistry()
	engine := achievement.NewEngine(climbing.NewClassifier(registry, true), store)
	return NewWindowStatisticsHandler(store, engine, cache, metrics, nil)
}

func TestWindowStatistics_FullWindow(t *testing.T) {
	metrics := newRecordingMetrics()
	h := newWindowHandler(withThresholds(t, catalog()), nil, metrics)

	stats, err := h.Handle(context.Background(), WindowQuery{
		ClimberID: climber, From: day(1), To: day(10), WithPrior: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Sessions)
	assert.InDelta(t, 3.5, stats.Duration, 1e-9)
	assert.Equal(t, "3h30", stats.DurationHuman)

	all := stats.Breakdown.All
	assert.Equal(t, 4, all.Problems)
	assert.Equal(t, 11, all.Attempts)
	assert.Equal(t, 1, all.Flashes)
	assert.Equal(t, 1, all.Tops)
	assert.Equal(t, 1, all.Zones)
	assert.Equal(t, 1, all.Fails)
	assert.Equal(t, 2, all.TopsAll)
	assert.Equal(t, 2, all.NewTops)
	assert.Equal(t, 1, all.NewZones)
	assert.Equal(t, 1, all.NewFails)

	require.NotNil(t, stats.HardTops)
	assert.Equal(t, 2, *stats.HardTops)

	assert.Equal(t, 4, stats.Grid["pb_all_try"])
	assert.Equal(t, 1, stats.Grid["pb_expect_flash"])
	assert.Equal(t, 1, stats.Grid["pb_expect_zone"])
	assert.Equal(t, 1, stats.Grid["pb_higher_top"])
	assert.Equal(t, 1, stats.Grid["pb_lower_fail"])
	assert.Equal(t, 0, stats.Grid["pb_unk_try"])

	assert.Equal(t, map[string]int{
		"boulders": 2, "attempts": 4, "new flashes": 1, "new tops": 0, "new zones": 1, "new fail": 0,
	}, stats.ByRank["expect"])

	assert.Len(t, stats.Summaries, 4)
	assert.Equal(t, 1, metrics.aggregations[windowNamespace])
}

func TestWindowStatistics_PriorHistory(t *testing.T) {
	h := newWindowHandler(withThresholds(t, catalog()), nil, nil)

	stats, err := h.Handle(context.Background(), WindowQuery{
		ClimberID: climber, From: day(3), To: day(10), WithPrior: true,
	})
	require.NoError(t, err)

	// p3 was zoned on day 2: failing it again is not a new fail.
	all := stats.Breakdown.All
	assert.Equal(t, 2, all.Problems)
	assert.Equal(t, 1, all.NewTops)
	assert.Equal(t, 0, all.NewFails)
	assert.Equal(t, 1, *stats.HardTops)
	assert.True(t, stats.Breakdown.PriorKnown)
}

func TestWindowStatistics_NoThresholds(t *testing.T) {
	h := newWindowHandler(catalog(), nil, nil)

	stats, err := h.Handle(context.Background(), WindowQuery{ClimberID: climber, From: day(1), To: day(10)})
	require.NoError(t, err)

	assert.Nil(t, stats.HardTops)
	assert.Equal(t, 4, stats.Grid["pb_unk_try"])
	assert.Equal(t, 0, stats.Breakdown.All.NewTops, "new counts need prior markers")
	assert.False(t, stats.Breakdown.PriorKnown)
}

func TestWindowStatistics_EmptyWindow(t *testing.T) {
	h := newWindowHandler(catalog(), nil, nil)

	stats, err := h.Handle(context.Background(), WindowQuery{ClimberID: climber, From: day(20), To: day(25)})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Sessions)
	assert.Equal(t, "0h0", stats.DurationHuman)
	assert.Equal(t, 0, stats.Grid["pb_all_try"])
	assert.Empty(t, stats.Summaries)
}

func TestWindowStatistics_Validation(t *testing.T) {
	h := newWindowHandler(catalog(), nil, nil)

	_, err := h.Handle(context.Background(), WindowQuery{From: day(1), To: day(2)})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), WindowQuery{ClimberID: climber, From: day(5), To: day(2)})
	assert.ErrorIs(t, err, shared.ErrInvalidDateRange)
}

func TestWindowStatistics_Cached(t *testing.T) {
	store := withThresholds(t, catalog())
	cache := newMemCache()
	metrics := newRecordingMetrics()
	h := newWindowHandler(store, cache, metrics)

	q := WindowQuery{ClimberID: climber, From: day(1), To: day(10), WithPrior: true}
	first, err := h.Handle(context.Background(), q)
	require.NoError(t, err)
	second, err := h.Handle(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, 1, store.findProblemsCalls)
	assert.Equal(t, first.Grid, second.Grid)
	assert.Equal(t, *first.HardTops, *second.HardTops)
	assert.Equal(t, first.Breakdown, second.Breakdown)
	assert.Equal(t, 1, metrics.hits)

	// A different window is a different entry.
	_, err = h.Handle(context.Background(), WindowQuery{ClimberID: climber, From: day(3), To: day(10), WithPrior: true})
	require.NoError(t, err)
	assert.Equal(t, 2, store.findProblemsCalls)
}

func TestWindowStatistics_FreshSkipsCacheRead(t *testing.T) {
	store := withThresholds(t, catalog())
	cache := newMemCache()
	metrics := newRecordingMetrics()
	h := newWindowHandler(store, cache, metrics)

	q := WindowQuery{ClimberID: climber, From: day(1), To: day(10), WithPrior: true}
	_, err := h.Handle(context.Background(), q)
	require.NoError(t, err)

	q.Fresh = true
	_, err = h.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, store.findProblemsCalls)
	assert.Equal(t, 0, metrics.hits)

	// The fresh result replaced the entry, so a regular read hits it.
	q.Fresh = false
	_, err = h.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 2, store.findProblemsCalls)
	assert.Equal(t, 1, metrics.hits)
}
