package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

var cdLabels = []string{"Yellow", "Orange", "Green", "Blue", "Pink", "Red", "Black", "Purple"}

func gymCatalog() *memStore {
	store := catalog()
	store.problems = append(store.problems,
		newProblem("p8", "rainbow", gymCD1, day(1)),
		newProblem("p9", "Mauve", gymCD1, day(1)),
	)
	store.sessions = append(store.sessions,
		newSession("s3", "c2", gymCD1, day(3), 1, top("p6", 1)),
	)
	return store
}

func TestGymProgress_KeepUnknownGrades(t *testing.T) {
	h := NewGymProgressHandler(gymCatalog(), grade.NewDefaultRegistry(), nil, nil)

	res, err := h.Handle(context.Background(), GymProgressQuery{ClimberID: climber, GymAbv: "cd1"})
	require.NoError(t, err)

	assert.Equal(t, append(append([]string{}, cdLabels...), "Rainbow", "Mauve"), res.Labels)
	assert.Equal(t, []int{0, 0, 0, 1, 0, 0, 0, 0, 0, 0}, res.Counts["flash"])
	assert.Equal(t, []int{0, 0, 0, 0, 0, 1, 0, 0, 0, 0}, res.Counts["top"])
	assert.Equal(t, []int{0, 0, 0, 0, 1, 0, 0, 0, 0, 0}, res.Counts["zone"])
	assert.Equal(t, []int{0, 0, 1, 0, 0, 0, 0, 0, 0, 0}, res.Counts["fail"])
	// p5 is removed; p6 was only topped by another climber.
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 0, 1, 1, 1}, res.Counts["not tried"])
	assert.Equal(t, 2, res.Sessions)
	assert.Equal(t, day(1), res.Since)
}

func TestGymProgress_GroupUnknownGrades(t *testing.T) {
	h := NewGymProgressHandler(gymCatalog(), grade.NewDefaultRegistry(), nil, nil)

	res, err := h.Handle(context.Background(), GymProgressQuery{ClimberID: climber, GymAbv: "cd1", Unknown: UnknownGroup})
	require.NoError(t, err)

	assert.Equal(t, append(append([]string{}, cdLabels...), UnknownLabel), res.Labels)
	assert.Equal(t, 2, res.Counts["not tried"][8])
	for _, counts := range res.Counts {
		assert.Len(t, counts, len(res.Labels))
	}
}

func TestGymProgress_DropUnknownGrades(t *testing.T) {
	h := NewGymProgressHandler(gymCatalog(), grade.NewDefaultRegistry(), nil, nil)

	res, err := h.Handle(context.Background(), GymProgressQuery{ClimberID: climber, GymAbv: "cd1", Unknown: UnknownDrop})
	require.NoError(t, err)

	assert.Equal(t, cdLabels, res.Labels)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 0, 1}, res.Counts["not tried"])
}

func TestGymProgress_Errors(t *testing.T) {
	h := NewGymProgressHandler(gymCatalog(), grade.NewDefaultRegistry(), nil, nil)

	_, err := h.Handle(context.Background(), GymProgressQuery{ClimberID: climber, GymAbv: "xx9"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(context.Background(), GymProgressQuery{ClimberID: climber, GymAbv: "cd1", Unknown: "ignore"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), GymProgressQuery{GymAbv: "cd1"})
	assert.True(t, shared.IsValidation(err))
}

func TestGymProgress_EmptyGym(t *testing.T) {
	store := catalog()
	store.problems = nil
	h := NewGymProgressHandler(store, grade.NewDefaultRegistry(), nil, nil)

	res, err := h.Handle(context.Background(), GymProgressQuery{ClimberID: climber, GymAbv: "bo1"})
	require.NoError(t, err)
	assert.Len(t, res.Labels, 14)
	assert.Equal(t, make([]int, 14), res.Counts["not tried"])
	assert.Zero(t, res.Sessions)
}
