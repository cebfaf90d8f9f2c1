package climbing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymstats/gymstats-hub/internal/domain/grade"
	"github.com/gymstats/gymstats-hub/internal/domain/shared"
)

func cdGym() Gym {
	return Gym{ID: "g-cd1", Abv: "cd1", Brand: "Climbing District"}
}

func TestNewThresholdBand(t *testing.T) {
	b, err := NewThresholdBand(5, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Lower())
	assert.Equal(t, 5, b.Upper())
	assert.Equal(t, []int{2, 3, 5}, b.Positions())

	_, err = NewThresholdBand()
	assert.ErrorIs(t, err, shared.ErrInvalidThresholdBand)

	_, err = NewThresholdBand(-1, 2)
	assert.True(t, shared.IsValidation(err))
}

func TestClassifier_Rank(t *testing.T) {
	c := NewClassifier(grade.NewDefaultRegistry(), true)
	band, _ := NewThresholdBand(3, 4) // blue, pink on the cd scale
	th := Thresholds{"g-cd1": band}

	tests := []struct {
		grade string
		want  Rank
	}{
		{"yellow", RankLower},
		{"green", RankLower},
		{"Blue", RankExpected},
		{"pink", RankExpected},
		{"red", RankHigher},
		{"purple", RankHigher},
		{"white", RankUnknown}, // not on the cd scale
	}

	for _, tt := range tests {
		t.Run(tt.grade, func(t *testing.T) {
			p := &Problem{ID: "p", Grade: tt.grade, Gym: cdGym()}
			assert.Equal(t, tt.want, c.Rank(p, th))
		})
	}
}

func TestClassifier_DegradesToUnknown(t *testing.T) {
	band, _ := NewThresholdBand(1)
	p := &Problem{ID: "p", Grade: "blue", Gym: cdGym()}

	c := NewClassifier(grade.NewDefaultRegistry(), false)
	assert.Equal(t, RankUnknown, c.Rank(p, nil), "no thresholds")
	assert.Equal(t, RankUnknown, c.Rank(p, Thresholds{"other": band}), "no band for gym")

	noScale := &Problem{ID: "p", Grade: "blue", Gym: Gym{ID: "x", Abv: "zz", Brand: "Nowhere"}}
	assert.Equal(t, RankUnknown, c.Rank(noScale, Thresholds{"x": band}), "no scale without fallback")

	withFallback := NewClassifier(grade.NewDefaultRegistry(), true)
	assert.Equal(t, RankHigher, withFallback.Rank(noScale, Thresholds{"x": band}))

	var nilClassifier *Classifier
	assert.Equal(t, RankUnknown, nilClassifier.Rank(p, Thresholds{"g-cd1": band}))
}

func TestRank_Monotonic(t *testing.T) {
	for lower := 0; lower < 6; lower++ {
		for upper := lower; upper < 6; upper++ {
			band, err := NewThresholdBand(lower, upper)
			require.NoError(t, err)

			prev := RankLower
			for pos := 0; pos < 10; pos++ {
				r := RankFor(pos, band)
				assert.GreaterOrEqual(t, int(r), int(prev), "band [%d,%d] pos %d", lower, upper, pos)
				assert.NotEqual(t, RankUnknown, r)
				prev = r
			}
		}
	}
}

func TestRank_String(t *testing.T) {
	assert.Equal(t, "unk", RankUnknown.String())
	assert.Equal(t, "lower", RankLower.String())
	assert.Equal(t, "expect", RankExpected.String())
	assert.Equal(t, "higher", RankHigher.String())
	assert.Equal(t, RankExpected, ParseRank("expect"))
	assert.Equal(t, RankUnknown, ParseRank("???"))
	assert.True(t, RankHigher.IsHard())
	assert.False(t, RankLower.IsHard())
}
