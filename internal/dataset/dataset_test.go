package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRow(t *testing.T) {
	d := New()
	d.AppendRow("o-1", map[string]float64{"a": 1, "b": 2})
	d.AppendRow("o-2", map[string]float64{"a": 3, "c": 4})

	assert.Equal(t, 2, d.Len())
	assert.Equal(t, []string{"o-1", "o-2"}, d.IDs)

	a, _ := d.Column("a")
	assert.Equal(t, []float64{1, 3}, a)

	// b missing in the second row, c missing in the first.
	b, _ := d.Column("b")
	assert.Equal(t, 2.0, b[0])
	assert.True(t, math.IsNaN(b[1]))
	c, _ := d.Column("c")
	assert.True(t, math.IsNaN(c[0]))
	assert.Equal(t, 4.0, c[1])
}

func TestSetColumnLengthCheck(t *testing.T) {
	d := New()
	require.NoError(t, d.SetColumn("a", []float64{1, 2, 3}))
	require.Error(t, d.SetColumn("b", []float64{1}))
}

func TestMatrixColumnOrderAndMissing(t *testing.T) {
	d := New()
	d.Columns["x"] = []float64{1, 2}
	d.Columns["y"] = []float64{10, 20}

	m := d.Matrix([]string{"y", "absent", "x"})
	require.Len(t, m, 2)
	assert.Equal(t, []float64{10, 0, 1}, m[0])
	assert.Equal(t, []float64{20, 0, 2}, m[1])
}

func TestLabels(t *testing.T) {
	d := New()
	d.Columns[LabelColumn] = []float64{0, 1, 0.7, 0.2}

	labels, err := d.Labels()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1, 0}, labels)

	d2 := New()
	_, err = d2.Labels()
	require.Error(t, err)
}

func TestSelectAndCopyIndependence(t *testing.T) {
	d := New()
	d.IDs = []string{"a", "b", "c"}
	d.Columns["x"] = []float64{1, 2, 3}

	sub := d.Select([]int{2, 0})
	assert.Equal(t, []string{"c", "a"}, sub.IDs)
	x, _ := sub.Column("x")
	assert.Equal(t, []float64{3, 1}, x)

	cp := d.Copy()
	cp.Columns["x"][0] = 99
	assert.Equal(t, 1.0, d.Columns["x"][0])
}

func TestStats(t *testing.T) {
	col := []float64{4, math.NaN(), 2, 8, 6}

	assert.Equal(t, 5.0, Mean(col))
	assert.Equal(t, 2.0, Min(col))
	assert.Equal(t, 8.0, Max(col))
	assert.InDelta(t, 2.581988897, Std(col), 1e-6)
}

func TestStatsEmpty(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, Std([]float64{5}))
	assert.Equal(t, 0.0, Min(nil))
	assert.Equal(t, 0.0, Quantile(nil, 0.5))
}

func TestQuantileInterpolation(t *testing.T) {
	col := []float64{10, 20, 30, 40}

	assert.Equal(t, 10.0, Quantile(col, 0))
	assert.Equal(t, 40.0, Quantile(col, 1))
	assert.Equal(t, 25.0, Quantile(col, 0.5))
	assert.InDelta(t, 17.5, Quantile(col, 0.25), 1e-12)
}
