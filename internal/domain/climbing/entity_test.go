package climbing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

func problem(id, grade string, removed bool, attrs ...Attribute) *Problem {
	return &Problem{ID: shared.ProblemID(id), Grade: grade, Gym: cdGym(), Removed: removed, Attributes: attrs}
}

func TestSession_RecordsOrder(t *testing.T) {
	s := &Session{ID: "s1"}
	require.NoError(t, s.Add(Attempt{ProblemID: "a", Kind: AttemptTop, Attempts: 1}))
	require.NoError(t, s.Add(Attempt{ProblemID: "a", Kind: AttemptZone, Attempts: 1}))
	require.NoError(t, s.Add(Attempt{ProblemID: "a", Kind: AttemptFail, Attempts: 2}))

	recs := s.Records()
	require.Len(t, recs, 3)
	assert.Equal(t, AttemptFail, recs[0].Kind)
	assert.Equal(t, AttemptZone, recs[1].Kind)
	assert.Equal(t, AttemptTop, recs[2].Kind)
	assert.Equal(t, shared.SessionID("s1"), recs[0].SessionID)
	assert.Len(t, s.ProblemIDs(), 1)
}

func TestAttempt_Validate(t *testing.T) {
	assert.NoError(t, Attempt{Kind: AttemptZone, Attempts: 1}.Validate())
	assert.ErrorIs(t, Attempt{Kind: AttemptZone, Attempts: 0}.Validate(), shared.ErrInvalidAttempts)
	assert.True(t, shared.IsValidation(Attempt{Kind: "boulder", Attempts: 1}.Validate()))
}

func TestSortSessions_Stable(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	sessions := []*Session{
		{ID: "late", Date: day.AddDate(0, 0, 2)},
		{ID: "first", Date: day},
		{ID: "second", Date: day},
	}
	SortSessions(sessions)
	assert.Equal(t, shared.SessionID("first"), sessions[0].ID)
	assert.Equal(t, shared.SessionID("second"), sessions[1].ID)
	assert.Equal(t, shared.SessionID("late"), sessions[2].ID)
}

func TestProblem_Tags(t *testing.T) {
	p := problem("p", "Blue", false,
		Attribute{Category: CategoryHandHold, Name: "Jugs"},
		Attribute{Category: CategoryHandHold, Name: "crimps"},
		Attribute{Category: CategoryWallType, Name: "Overhang"},
	)
	assert.Equal(t, []string{"crimps", "jugs"}, p.Tags(CategoryHandHold))
	assert.Equal(t, "overhang", p.WallType())
	assert.True(t, p.HasAnyTag(CategoryHandHold, []string{"slopers", "JUGS"}))
	assert.False(t, p.HasAnyTag(CategoryFootwork, []string{"jugs"}))
	assert.Equal(t, "hh", CategoryHandHold.Facet())
	assert.Equal(t, "me", CategoryMove.Facet())
}

func TestProblemPredicate_Match(t *testing.T) {
	crimpy := problem("1", "blue", false, Attribute{Category: CategoryHandHold, Name: "crimps"}, Attribute{Category: CategoryWallType, Name: "slab"})
	juggy := problem("2", "red", false, Attribute{Category: CategoryHandHold, Name: "jugs"})
	gone := problem("3", "blue", true, Attribute{Category: CategoryHandHold, Name: "crimps"})
	all := []*Problem{crimpy, juggy, gone}

	var open ProblemPredicate
	assert.Len(t, open.Filter(all), 3)

	assert.Equal(t, []*Problem{crimpy, gone}, ProblemPredicate{}.WithAnyOf(FieldGrade, "Blue").Filter(all))
	assert.Equal(t, []*Problem{crimpy}, ProblemPredicate{}.WithAnyOf(FieldGrade, "blue").WithRemoved(false).Filter(all))
	assert.Equal(t, []*Problem{crimpy, juggy}, ProblemPredicate{}.WithTags(CategoryHandHold, "crimps", "jugs").WithRemoved(false).Filter(all))
	assert.Equal(t, []*Problem{crimpy}, ProblemPredicate{}.WithAnyOf(FieldType, "slab").Filter(all))
	assert.Len(t, ProblemPredicate{}.WithAnyOf(FieldGym, "CD1").Filter(all), 3)
	assert.Empty(t, ProblemPredicate{}.WithAnyOf(FieldGrade).Filter(all), "empty value list matches nothing")
	assert.Equal(t, []*Problem{juggy}, ProblemPredicate{}.WithIDs("2").Filter(all))
	assert.False(t, ProblemPredicate{}.Match(nil))
}

func TestBrandKey(t *testing.T) {
	assert.Equal(t, "cd", BrandKey("CD1"))
	assert.Equal(t, "bs", BrandKey("bsm"))
	assert.Equal(t, "va", BrandKey("va"))
}
