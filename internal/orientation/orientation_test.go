package orientation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("flat face up", func(t *testing.T) {
		est, err := Normalize(0, 0, 9.81)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, est.Gravity[2], 1e-9)
		assert.Equal(t, 0.0, est.Inclination)
	})

	t.Run("flat face down", func(t *testing.T) {
		est, err := Normalize(0, 0, -3)
		require.NoError(t, err)
		assert.Equal(t, 180.0, est.Inclination)
	})

	t.Run("upright", func(t *testing.T) {
		est, err := Normalize(0, -9.81, 0)
		require.NoError(t, err)
		assert.InDelta(t, -1.0, est.Gravity[1], 1e-9)
		assert.Equal(t, 90.0, est.Inclination)
	})

	t.Run("unit length and rounded angle", func(t *testing.T) {
		est, err := Normalize(1.2, -7.8, 2.0)
		require.NoError(t, err)
		g := est.Gravity
		assert.InDelta(t, 1.0, math.Sqrt(g[0]*g[0]+g[1]*g[1]+g[2]*g[2]), 1e-9)
		assert.Equal(t, math.Round(est.Inclination), est.Inclination)
		assert.GreaterOrEqual(t, est.Inclination, 0.0)
		assert.LessOrEqual(t, est.Inclination, 180.0)
	})

	t.Run("pocket pose", func(t *testing.T) {
		est, err := Normalize(0, -0.8, 0.2)
		require.NoError(t, err)
		assert.Less(t, est.Gravity[1], -0.6)
		assert.Equal(t, 76.0, est.Inclination)
	})

	t.Run("zero vector", func(t *testing.T) {
		_, err := Normalize(0, 0, 0)
		assert.ErrorIs(t, err, ErrDegenerateInput)
	})

	t.Run("non-finite component", func(t *testing.T) {
		_, err := Normalize(math.NaN(), 1, 1)
		assert.ErrorIs(t, err, ErrDegenerateInput)
		_, err = Normalize(math.Inf(1), 1, 1)
		assert.ErrorIs(t, err, ErrDegenerateInput)
	})
}

func TestTrackerKeepsPreviousOnDegenerate(t *testing.T) {
	var tr Tracker

	none, err := tr.Update(0, 0, 0)
	require.ErrorIs(t, err, ErrDegenerateInput)
	assert.Equal(t, Estimate{}, none, "nothing to keep yet")

	first, err := tr.Update(0, -9.81, 0)
	require.NoError(t, err)

	got, err := tr.Update(0, 0, 0)
	require.ErrorIs(t, err, ErrDegenerateInput)
	assert.Equal(t, first, got)
	assert.False(t, math.IsNaN(got.Inclination))

	got, err = tr.Update(math.NaN(), 1, 1)
	require.ErrorIs(t, err, ErrDegenerateInput)
	assert.Equal(t, first, got)
}
