package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/domain/filter"
)

func findFamily(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not gathered", name)
	return nil
}

func TestObserveSearch(t *testing.T) {
	m := New()

	m.ObserveSearch(20*time.Millisecond, []string{
		filter.MsgKeyUnknown + ": colour",
		filter.MsgNoGym,
		"something else",
	})
	m.ObserveSearch(5*time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchDiagnostics.WithLabelValues("key")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchDiagnostics.WithLabelValues("grade_scale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchDiagnostics.WithLabelValues("other")))

	family := findFamily(t, m, "gymstats_search_duration_seconds")
	require.Len(t, family.GetMetric(), 1)
	hist := family.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 0.025, hist.GetSampleSum(), 1e-9)
}

func TestAggregationAndCache(t *testing.T) {
	m := New()

	m.ObserveAggregation("window", time.Second)
	m.CacheResult("window", true)
	m.CacheResult("window", false)
	m.CacheResult("window", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("window", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("window", "miss")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.aggregationLatency))
}

func TestJobsAndSnapshots(t *testing.T) {
	m := New()

	m.JobRun("snapshot_intervals", "success")
	m.JobRun("snapshot_intervals", "success")
	m.SnapshotSaved("week", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("snapshot_intervals", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshotsSaved.WithLabelValues("week", "true")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.CacheResult("search", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `gymstats_cache_requests_total{namespace="search",result="hit"} 1`))
	assert.Contains(t, string(body), "go_goroutines")
}
