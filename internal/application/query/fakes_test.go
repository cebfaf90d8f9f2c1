package query

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

// memStore is an in-memory climbing.Store.
type memStore struct {
	gyms       []*climbing.Gym
	problems   []*climbing.Problem
	sessions   []*climbing.Session
	thresholds map[shared.ClimberID]climbing.Thresholds

	findProblemsCalls int
	failWith          error
}

var _ climbing.Store = (*memStore)(nil)

func (m *memStore) FindProblems(_ context.Context, pred climbing.ProblemPredicate) ([]*climbing.Problem, error) {
	m.findProblemsCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := pred.Filter(m.problems)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) FindSessions(_ context.Context, climber shared.ClimberID, window shared.DateRange) ([]*climbing.Session, error) {
	var out []*climbing.Session
	for _, s := range m.sessions {
		if s.ClimberID == climber && window.Contains(s.Date) {
			out = append(out, s)
		}
	}
	climbing.SortSessions(out)
	return out, nil
}

func (m *memStore) CountAttempts(_ context.Context, climber shared.ClimberID, problem shared.ProblemID, kind climbing.AttemptKind, before time.Time) (int, error) {
	n := 0
	for _, s := range m.sessions {
		if s.ClimberID != climber || !s.Date.Before(before) {
			continue
		}
		for _, r := range s.Records() {
			if r.ProblemID == problem && r.Kind == kind {
				n++
			}
		}
	}
	return n, nil
}

func (m *memStore) BestLevels(_ context.Context, climber shared.ClimberID) (map[shared.ProblemID]climbing.Level, error) {
	out := make(map[shared.ProblemID]climbing.Level)
	for _, s := range m.sessions {
		if s.ClimberID != climber {
			continue
		}
		for _, r := range s.Records() {
			if lvl, ok := out[r.ProblemID]; !ok || r.Kind.Level() > lvl {
				out[r.ProblemID] = r.Kind.Level()
			}
		}
	}
	return out, nil
}

func (m *memStore) Thresholds(_ context.Context, climber shared.ClimberID) (climbing.Thresholds, error) {
	if t, ok := m.thresholds[climber]; ok {
		return t, nil
	}
	return climbing.Thresholds{}, nil
}

func (m *memStore) ListClimbers(context.Context) ([]shared.ClimberID, error) {
	seen := make(map[shared.ClimberID]struct{})
	var out []shared.ClimberID
	for _, s := range m.sessions {
		if _, ok := seen[s.ClimberID]; !ok {
			seen[s.ClimberID] = struct{}{}
			out = append(out, s.ClimberID)
		}
	}
	return out, nil
}

func (m *memStore) FindGym(_ context.Context, abv string) (*climbing.Gym, error) {
	for _, g := range m.gyms {
		if g.Abv == abv {
			return g, nil
		}
	}
	return nil, shared.ErrGymNotFound
}

func (m *memStore) ListGyms(context.Context) ([]*climbing.Gym, error) {
	return m.gyms, nil
}

// memCache is an in-memory Cache.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	failGet bool
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	v, ok := c.entries[namespace+":"+key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, namespace, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[namespace+":"+key] = value
	return nil
}

// recordingMetrics counts calls.
type recordingMetrics struct {
	searches     int
	diagnostics  int
	aggregations map[string]int
	hits, misses int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{aggregations: make(map[string]int)}
}

func (r *recordingMetrics) ObserveSearch(_ time.Duration, diagnostics []string) {
	r.searches++
	r.diagnostics += len(diagnostics)
}

func (r *recordingMetrics) ObserveAggregation(operation string, _ time.Duration) {
	r.aggregations[operation]++
}

func (r *recordingMetrics) CacheResult(_ string, hit bool) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Fixture builders
// ─────────────────────────────────────────────────────────────────────────────

var (
	gymCD1 = climbing.Gym{ID: "g-cd1", Abv: "cd1", Brand: "Climbing District", Name: "Climbing District 1"}
	gymBO  = climbing.Gym{ID: "g-bo", Abv: "bo1", Brand: "Block'Out", Name: "Block'Out 1"}
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func hh(names ...string) []climbing.Attribute {
	out := make([]climbing.Attribute, 0, len(names))
	for _, n := range names {
		out = append(out, climbing.Attribute{Category: climbing.CategoryHandHold, Name: n})
	}
	return out
}

func wall(name string) climbing.Attribute {
	return climbing.Attribute{Category: climbing.CategoryWallType, Name: name}
}

func newProblem(id, grade string, gym climbing.Gym, added time.Time, attrs ...climbing.Attribute) *climbing.Problem {
	return &climbing.Problem{ID: shared.ProblemID(id), Grade: grade, Gym: gym, Attributes: attrs, AddedOn: added}
}

func newSession(id string, climber shared.ClimberID, gym climbing.Gym, date time.Time, hours float64, recs ...climbing.Attempt) *climbing.Session {
	s := &climbing.Session{ID: shared.SessionID(id), ClimberID: climber, Gym: gym, Date: date, Duration: hours}
	for _, r := range recs {
		if err := s.Add(r); err != nil {
			panic(err)
		}
	}
	return s
}

func top(problem string, attempts int) climbing.Attempt {
	return climbing.Attempt{ProblemID: shared.ProblemID(problem), Kind: climbing.AttemptTop, Attempts: attempts}
}

func zone(problem string, attempts int) climbing.Attempt {
	return climbing.Attempt{ProblemID: shared.ProblemID(problem), Kind: climbing.AttemptZone, Attempts: attempts}
}

func fail(problem string, attempts int) climbing.Attempt {
	return climbing.Attempt{ProblemID: shared.ProblemID(problem), Kind: climbing.AttemptFail, Attempts: attempts}
}

func ids(problems []*climbing.Problem) []string {
	out := make([]string, 0, len(problems))
	for _, p := range problems {
		out = append(out, p.ID.String())
	}
	return out
}
