package stats

import (
	"errors"
	"math"
	"testing"

	"errtable/domain/core"
	"errtable/domain/ranking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ranking.TwoSampleTester = (*MannWhitney)(nil)

func TestMannWhitney_ExactSeparatedSamples(t *testing.T) {
	mw := NewMannWhitney()

	res, err := mw.Test([]float64{1, 2, 3}, []float64{4, 5, 6})
	require.NoError(t, err)
	assert.True(t, res.Exact)
	assert.Equal(t, 0.0, res.U)
	assert.InDelta(t, 0.1, res.PValue, 1e-12) // 2 / C(6,3)
	assert.Equal(t, 0.0, res.A12)

	res, err = mw.Test([]float64{5, 6, 7, 8}, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 2.0/70.0, res.PValue, 1e-12)
	assert.Equal(t, 1.0, res.A12)
}

func TestMannWhitney_IsSymmetric(t *testing.T) {
	mw := NewMannWhitney()
	a := []float64{3.1, 4.7, 2.2, 9.0, 5.5}
	b := []float64{6.0, 7.3, 8.8, 1.4}

	pab, err := mw.PValue(a, b)
	require.NoError(t, err)
	pba, err := mw.PValue(b, a)
	require.NoError(t, err)
	assert.InDelta(t, pab, pba, 1e-12)
}

func TestMannWhitney_TiesUseNormalApproximation(t *testing.T) {
	res, err := NewMannWhitney().Test([]float64{1, 1, 2, 2}, []float64{2, 3, 3, 4})
	require.NoError(t, err)
	assert.False(t, res.Exact)
	assert.Greater(t, res.PValue, 0.0)
	assert.LessOrEqual(t, res.PValue, 1.0)
}

func TestMannWhitney_AllEqualIsNotSignificant(t *testing.T) {
	p, err := NewMannWhitney().PValue([]float64{10, 10, 10}, []float64{10, 10, 10})
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)
}

func TestMannWhitney_LargeShiftIsSignificant(t *testing.T) {
	a := make([]float64, 20)
	b := make([]float64, 20)
	for i := range a {
		a[i] = float64(i)
		b[i] = float64(i) + 30
	}
	res, err := NewMannWhitney().Test(a, b)
	require.NoError(t, err)
	assert.False(t, res.Exact)
	assert.Less(t, res.PValue, 0.001)
}

func TestMannWhitney_EmptySample(t *testing.T) {
	p, err := NewMannWhitney().PValue(nil, []float64{1})
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
	assert.True(t, math.IsNaN(p))

	_, err = NewMannWhitney().PValue([]float64{math.NaN()}, []float64{1})
	assert.Error(t, err)
}

func TestMidranks(t *testing.T) {
	ranks, tie := midranks([]float64{3, 1, 3, 2})
	assert.Equal(t, []float64{3.5, 1, 3.5, 2}, ranks)
	assert.Equal(t, 6.0, tie)
}

func TestUCounts_SumToBinomial(t *testing.T) {
	counts := uCounts(4, 3)
	require.Len(t, counts, 13)
	total := 0.0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 35.0, total) // C(7,3)
	assert.Equal(t, counts[0], counts[12])
}
