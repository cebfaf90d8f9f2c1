package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/domain/climbing"
	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

func TestSessionReport(t *testing.T) {
	store := catalog()
	s1 := store.sessions[0]

	report, err := NewSessionReport(s1, store.problems, grade.NewDefaultRegistry())
	require.NoError(t, err)

	require.NotNil(t, report.Successes)
	assert.Equal(t, 33, *report.Successes)
	assert.Equal(t, map[string]TopSplit{"slab": {1, 0}}, report.Types)
	assert.Equal(t, map[string]TopSplit{
		"crimps":  {1, 0},
		"jugs":    {0, 1},
		"slopers": {0, 1},
	}, report.Holds)
	assert.Equal(t, []GradeSplit{
		{Label: "Green", Split: TopSplit{0, 1}},
		{Label: "Blue", Split: TopSplit{1, 0}},
		{Label: "Pink", Split: TopSplit{0, 1}},
	}, report.Grades)
	assert.Equal(t, "cd1", report.Gym)
}

func TestSessionReport_UnknownGradesLast(t *testing.T) {
	problems := []*climbing.Problem{
		newProblem("a", "zz", gymCD1, day(1)),
		newProblem("b", "purple", gymCD1, day(1)),
		newProblem("c", "aa", gymCD1, day(1)),
	}
	s := newSession("s", climber, gymCD1, day(2), 1, top("a", 1), top("b", 1), fail("c", 1))

	report, err := NewSessionReport(s, problems, grade.NewDefaultRegistry())
	require.NoError(t, err)

	labels := make([]string, 0, len(report.Grades))
	for _, g := range report.Grades {
		labels = append(labels, g.Label)
	}
	assert.Equal(t, []string{"Purple", "Aa", "Zz"}, labels)
	assert.Equal(t, 66, *report.Successes)
}

func TestSessionReport_EmptyAndUnknownProblem(t *testing.T) {
	empty := newSession("s", climber, gymCD1, day(2), 1)
	report, err := NewSessionReport(empty, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, report.Successes)
	assert.Empty(t, report.Grades)

	s := newSession("s", climber, gymCD1, day(2), 1, top("ghost", 1))
	_, err = NewSessionReport(s, nil, nil)
	assert.True(t, shared.IsIntegrity(err))
}

func TestSessionReportsHandler(t *testing.T) {
	h := NewSessionReportsHandler(catalog(), grade.NewDefaultRegistry(), nil)

	reports, err := h.Handle(context.Background(), SessionReportsQuery{ClimberID: climber})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, day(2), reports[0].Date)
	assert.Equal(t, shared.SessionID("s1"), reports[0].SessionID)
	assert.Equal(t, 50, *reports[1].Successes)

	reports, err = h.Handle(context.Background(), SessionReportsQuery{ClimberID: climber, From: day(3)})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, shared.SessionID("s2"), reports[0].SessionID)

	_, err = h.Handle(context.Background(), SessionReportsQuery{})
	assert.True(t, shared.IsValidation(err))
}
