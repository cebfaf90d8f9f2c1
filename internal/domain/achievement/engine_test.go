package achievement

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

type priorKey struct {
	problem shared.ProblemID
	kind    climbing.AttemptKind
}

type fakePrior struct {
	counts map[priorKey]int
	err    error
	calls  int
}

func (f *fakePrior) CountAttempts(_ context.Context, _ shared.ClimberID, problem shared.ProblemID, kind climbing.AttemptKind, _ time.Time) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[priorKey{problem, kind}], nil
}

var (
	day0 = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	gym  = climbing.Gym{ID: "g1", Abv: "cd1", Brand: "Climbing District"}
)

func pb(id, grade string) *climbing.Problem {
	return &climbing.Problem{ID: shared.ProblemID(id), Grade: grade, Gym: gym}
}

func session(id string, date time.Time, recs ...climbing.Attempt) *climbing.Session {
	s := &climbing.Session{ID: shared.SessionID(id), ClimberID: "c1", Gym: gym, Date: date}
	for _, r := range recs {
		if err := s.Add(r); err != nil {
			panic(err)
		}
	}
	return s
}

func rec(problem string, kind climbing.AttemptKind, attempts int) climbing.Attempt {
	return climbing.Attempt{ProblemID: shared.ProblemID(problem), Kind: kind, Attempts: attempts}
}

func newEngine(prior PriorLookup) *Engine {
	return NewEngine(climbing.NewClassifier(grade.NewDefaultRegistry(), true), prior)
}

func TestBuild_FailZoneTopInOneSession(t *testing.T) {
	s := session("s1", day0,
		rec("p1", climbing.AttemptTop, 1),
		rec("p1", climbing.AttemptZone, 1),
		rec("p1", climbing.AttemptFail, 2),
	)

	table, err := newEngine(nil).Build(context.Background(), BuildInput{
		Sessions: []*climbing.Session{s},
		Problems: []*climbing.Problem{pb("p1", "blue")},
	})
	require.NoError(t, err)

	sum, ok := table.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 4, sum.Attempts)
	assert.Equal(t, 3, sum.ZoneMarker)
	assert.Equal(t, 4, sum.TopMarker)
	assert.False(t, sum.IsFlash())
	assert.Equal(t, AchievementTop, sum.Achievement())
}

func TestBuild_SingleTopIsFlashAndNewTop(t *testing.T) {
	prior := &fakePrior{counts: map[priorKey]int{}}
	table, err := newEngine(prior).Build(context.Background(), BuildInput{
		Sessions:      []*climbing.Session{session("s1", day0, rec("p1", climbing.AttemptTop, 1))},
		Problems:      []*climbing.Problem{pb("p1", "blue")},
		ClimberID:     "c1",
		ReferenceDate: day0,
		WithPrior:     true,
	})
	require.NoError(t, err)

	sum, _ := table.Get("p1")
	assert.Equal(t, climbing.LevelNone, sum.Prior)
	assert.True(t, sum.PriorKnown)
	assert.True(t, sum.IsFlash())
	assert.True(t, sum.IsNewTop())
	assert.Equal(t, AchievementFlash, sum.Achievement())
}

func TestBuild_SessionsProcessedByDate(t *testing.T) {
	later := session("s2", day0.AddDate(0, 0, 7), rec("p1", climbing.AttemptTop, 1))
	earlier := session("s1", day0, rec("p1", climbing.AttemptFail, 3))

	table, err := newEngine(nil).Build(context.Background(), BuildInput{
		Sessions: []*climbing.Session{later, earlier},
		Problems: []*climbing.Problem{pb("p1", "blue")},
	})
	require.NoError(t, err)

	sum, _ := table.Get("p1")
	assert.Equal(t, 4, sum.Attempts)
	assert.Equal(t, 4, sum.ZoneMarker)
	assert.Equal(t, 4, sum.TopMarker)
}

func TestBuild_MarkersFrozen(t *testing.T) {
	s1 := session("s1", day0, rec("p1", climbing.AttemptZone, 2))
	s2 := session("s2", day0.AddDate(0, 0, 1), rec("p1", climbing.AttemptTop, 1), rec("p1", climbing.AttemptZone, 1))
	s3 := session("s3", day0.AddDate(0, 0, 2), rec("p1", climbing.AttemptTop, 1), rec("p1", climbing.AttemptFail, 5))

	table, err := newEngine(nil).Build(context.Background(), BuildInput{
		Sessions: []*climbing.Session{s1, s2, s3},
		Problems: []*climbing.Problem{pb("p1", "blue")},
	})
	require.NoError(t, err)

	sum, _ := table.Get("p1")
	assert.Equal(t, 10, sum.Attempts)
	assert.Equal(t, 2, sum.ZoneMarker)
	assert.Equal(t, 4, sum.TopMarker)
}

func TestBuild_RankAndUnknownGrade(t *testing.T) {
	band, _ := climbing.NewThresholdBand(3, 4)
	table, err := newEngine(nil).Build(context.Background(), BuildInput{
		Sessions: []*climbing.Session{session("s1", day0,
			rec("easy", climbing.AttemptTop, 1),
			rec("odd", climbing.AttemptFail, 1),
		)},
		Problems:   []*climbing.Problem{pb("easy", "yellow"), pb("odd", "chartreuse")},
		Thresholds: climbing.Thresholds{"g1": band},
	})
	require.NoError(t, err)

	easy, _ := table.Get("easy")
	odd, _ := table.Get("odd")
	assert.Equal(t, climbing.RankLower, easy.Rank)
	assert.Equal(t, climbing.RankUnknown, odd.Rank)
	assert.Equal(t, 2, table.Len())
}

func TestBuild_UnknownProblemIsIntegrityError(t *testing.T) {
	_, err := newEngine(nil).Build(context.Background(), BuildInput{
		Sessions: []*climbing.Session{session("s1", day0, rec("ghost", climbing.AttemptTop, 1))},
		Problems: []*climbing.Problem{pb("p1", "blue")},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrUnknownProblem)
	assert.True(t, shared.IsIntegrity(err))
}

func TestBuild_PriorLevels(t *testing.T) {
	prior := &fakePrior{counts: map[priorKey]int{
		{"topped", climbing.AttemptTop}:   1,
		{"topped", climbing.AttemptFail}:  3,
		{"zoned", climbing.AttemptZone}:   2,
		{"failed", climbing.AttemptFail}:  1,
	}}
	s := session("s1", day0,
		rec("topped", climbing.AttemptFail, 1),
		rec("zoned", climbing.AttemptFail, 1),
		rec("failed", climbing.AttemptFail, 1),
		rec("fresh", climbing.AttemptFail, 1),
	)

	table, err := newEngine(prior).Build(context.Background(), BuildInput{
		Sessions:      []*climbing.Session{s},
		Problems:      []*climbing.Problem{pb("topped", "red"), pb("zoned", "red"), pb("failed", "red"), pb("fresh", "red")},
		ClimberID:     "c1",
		ReferenceDate: day0,
		WithPrior:     true,
	})
	require.NoError(t, err)

	want := map[shared.ProblemID]climbing.Level{
		"topped": climbing.LevelTopped,
		"zoned":  climbing.LevelZoned,
		"failed": climbing.LevelFailed,
		"fresh":  climbing.LevelNone,
	}
	for id, level := range want {
		sum, _ := table.Get(id)
		assert.Equal(t, level, sum.Prior, string(id))
	}
	fresh, _ := table.Get("fresh")
	assert.True(t, fresh.IsNewFail())
}

func TestBuild_PriorErrors(t *testing.T) {
	input := BuildInput{
		Sessions:  []*climbing.Session{session("s1", day0, rec("p1", climbing.AttemptTop, 1))},
		Problems:  []*climbing.Problem{pb("p1", "blue")},
		WithPrior: true,
	}

	_, err := newEngine(nil).Build(context.Background(), input)
	assert.True(t, shared.IsValidation(err))

	boom := errors.New("connection reset")
	_, err = newEngine(&fakePrior{err: boom}).Build(context.Background(), input)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prior := &fakePrior{}
	_, err = newEngine(prior).Build(ctx, input)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, prior.calls)
}

func TestBuild_WithoutPriorSkipsLookup(t *testing.T) {
	prior := &fakePrior{}
	table, err := newEngine(prior).Build(context.Background(), BuildInput{
		Sessions: []*climbing.Session{session("s1", day0, rec("p1", climbing.AttemptTop, 1))},
		Problems: []*climbing.Problem{pb("p1", "blue")},
	})
	require.NoError(t, err)
	assert.Zero(t, prior.calls)

	sum, _ := table.Get("p1")
	assert.False(t, sum.PriorKnown)
	assert.True(t, sum.IsFlash(), "unset prior counts as never tried")
	assert.False(t, sum.IsNewTop())
}

func TestBuild_AggregationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	kinds := []climbing.AttemptKind{climbing.AttemptFail, climbing.AttemptZone, climbing.AttemptTop}
	problems := []*climbing.Problem{pb("a", "blue"), pb("b", "red"), pb("c", "pink"), pb("d", "black")}

	for round := 0; round < 200; round++ {
		var sessions []*climbing.Session
		for i := 0; i < 1+rng.Intn(5); i++ {
			s := session("s", day0.AddDate(0, 0, rng.Intn(30)))
			for j := 0; j < rng.Intn(6); j++ {
				p := problems[rng.Intn(len(problems))]
				require.NoError(t, s.Add(rec(string(p.ID), kinds[rng.Intn(3)], 1+rng.Intn(4))))
			}
			sessions = append(sessions, s)
		}

		table, err := newEngine(nil).Build(context.Background(), BuildInput{Sessions: sessions, Problems: problems})
		require.NoError(t, err)

		for _, s := range table.Summaries() {
			assert.GreaterOrEqual(t, s.Attempts, max(s.ZoneMarker, s.TopMarker, 0))
			if s.TopMarker != -1 {
				assert.NotEqual(t, -1, s.ZoneMarker)
				assert.LessOrEqual(t, s.ZoneMarker, s.TopMarker)
			}
		}
	}
}
