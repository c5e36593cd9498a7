package baseline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/internal/dataset"
)

func TestComputeStats(t *testing.T) {
	d := dataset.New()
	d.Columns["order_amount"] = []float64{100, 200, 300, 400, 500}
	d.Columns["is_cod"] = []float64{1, 1, 0, 1, 1}

	set := Compute(d, []string{"order_amount", "is_cod", "not_present"})

	require.Contains(t, set, "order_amount")
	require.Contains(t, set, "is_cod")
	assert.NotContains(t, set, "not_present")

	oa := set["order_amount"]
	assert.Equal(t, 300.0, oa.Mean)
	assert.Equal(t, 100.0, oa.Min)
	assert.Equal(t, 500.0, oa.Max)
	assert.Equal(t, 300.0, oa.P50)
	assert.Equal(t, 5, oa.N)
	assert.InDelta(t, 158.113883, oa.Std, 1e-6)
}

func TestComputeSkipsNaNs(t *testing.T) {
	d := dataset.New()
	d.Columns["order_amount"] = []float64{100, math.NaN(), 300}

	set := Compute(d, []string{"order_amount"})
	assert.Equal(t, 200.0, set["order_amount"].Mean)
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	set := Set{
		"order_amount": {Mean: 1500, Std: 400, Min: 50, Max: 9000, P50: 1400, N: 1000},
	}
	require.NoError(t, store.Save("v20260810_080000", set))

	got, err := store.Load("v20260810_080000")
	require.NoError(t, err)
	assert.Equal(t, set, got)
}

func TestStoreLoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Load("v19990101_000000")
	require.Error(t, err)
	assert.True(t, cerr.IsNotFound(err))
}

func TestRankImportances(t *testing.T) {
	ranked := RankImportances(
		[]string{"a", "b", "c"},
		[]float64{0.1, 0.7, 0.2},
	)

	require.Len(t, ranked, 3)
	assert.Equal(t, "b", ranked[0].Feature)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, "c", ranked[1].Feature)
	assert.Equal(t, "a", ranked[2].Feature)
	assert.Equal(t, 3, ranked[2].Rank)
}

func TestRankImportancesLengthMismatch(t *testing.T) {
	ranked := RankImportances([]string{"a", "b", "c"}, []float64{0.5})
	assert.Len(t, ranked, 1)
}

func TestCorrelatedPairs(t *testing.T) {
	d := dataset.New()
	x := []float64{1, 2, 3, 4, 5, 6}
	inverse := []float64{6, 5, 4, 3, 2, 1}
	noise := []float64{3, 1, 4, 1, 5, 9}
	d.Columns["a"] = x
	d.Columns["b"] = inverse
	d.Columns["c"] = noise

	pairs := CorrelatedPairs(d, []string{"a", "b", "c"}, 0.95)
	require.Len(t, pairs, 1)
	assert.Equal(t, "a", pairs[0].FeatureA)
	assert.Equal(t, "b", pairs[0].FeatureB)
	assert.InDelta(t, 1.0, pairs[0].Correlation, 1e-12)
}

func TestCorrelatedPairsConstantColumn(t *testing.T) {
	d := dataset.New()
	d.Columns["a"] = []float64{1, 2, 3}
	d.Columns["flat"] = []float64{5, 5, 5}

	pairs := CorrelatedPairs(d, []string{"a", "flat"}, 0.5)
	assert.Empty(t, pairs)
}
