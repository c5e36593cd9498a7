// Package dataset provides the column-oriented tabular representation
// used for training data, drift samples and baseline computation.
package dataset

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	cerr "github.com/codguard/codguard/common/errors"
)

// LabelColumn is the target column name for the RTO label.
const LabelColumn = "is_rto"

// Dataset is a column-oriented table of float64 values with an optional
// row-identifier column. All columns have equal length.
type Dataset struct {
	IDs     []string
	Columns map[string][]float64
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{Columns: make(map[string][]float64)}
}

// AppendRow adds one row given as a feature map. Features unseen so far
// become new columns backfilled with NaN; known columns absent from the
// map are padded with NaN.
func (d *Dataset) AppendRow(id string, features map[string]float64) {
	n := d.Len()
	d.IDs = append(d.IDs, id)
	for name, v := range features {
		col, ok := d.Columns[name]
		if !ok {
			col = make([]float64, n)
			for i := range col {
				col[i] = math.NaN()
			}
		}
		d.Columns[name] = append(col, v)
	}
	for name, col := range d.Columns {
		if len(col) == n {
			d.Columns[name] = append(col, math.NaN())
		}
	}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if len(d.IDs) > 0 {
		return len(d.IDs)
	}
	for _, col := range d.Columns {
		return len(col)
	}
	return 0
}

// Column returns the named column, or false when absent.
func (d *Dataset) Column(name string) ([]float64, bool) {
	col, ok := d.Columns[name]
	return col, ok
}

// SetColumn replaces or adds a column. The column must match the row
// count of a non-empty dataset.
func (d *Dataset) SetColumn(name string, values []float64) error {
	if n := d.Len(); n > 0 && len(values) != n {
		return cerr.Ef(cerr.KindInvalidInput,
			"column %s has %d values, dataset has %d rows", name, len(values), n)
	}
	d.Columns[name] = values
	return nil
}

// ColumnNames returns all column names sorted alphabetically.
func (d *Dataset) ColumnNames() []string {
	names := make([]string, 0, len(d.Columns))
	for name := range d.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Matrix extracts rows as feature vectors in the given column order.
// Columns absent from the dataset read as zeros.
func (d *Dataset) Matrix(features []string) [][]float64 {
	n := d.Len()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, len(features))
	}
	for j, feat := range features {
		col, ok := d.Columns[feat]
		if !ok {
			continue
		}
		for i := 0; i < n; i++ {
			rows[i][j] = col[i]
		}
	}
	return rows
}

// Labels returns the label column as ints (values >= 0.5 read as 1).
func (d *Dataset) Labels() ([]int, error) {
	col, ok := d.Columns[LabelColumn]
	if !ok {
		return nil, cerr.Ef(cerr.KindInvalidInput, "label column %q missing", LabelColumn)
	}
	labels := make([]int, len(col))
	for i, v := range col {
		if v >= 0.5 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// Copy returns a deep copy.
func (d *Dataset) Copy() *Dataset {
	out := &Dataset{Columns: make(map[string][]float64, len(d.Columns))}
	if d.IDs != nil {
		out.IDs = append([]string{}, d.IDs...)
	}
	for name, col := range d.Columns {
		out.Columns[name] = append([]float64{}, col...)
	}
	return out
}

// Select returns a row subset in the given index order.
func (d *Dataset) Select(idx []int) *Dataset {
	out := &Dataset{Columns: make(map[string][]float64, len(d.Columns))}
	if d.IDs != nil {
		out.IDs = make([]string, len(idx))
		for i, j := range idx {
			out.IDs[i] = d.IDs[j]
		}
	}
	for name, col := range d.Columns {
		sel := make([]float64, len(idx))
		for i, j := range idx {
			sel[i] = col[j]
		}
		out.Columns[name] = sel
	}
	return out
}

// dropNaN returns the finite values of a column.
func dropNaN(col []float64) []float64 {
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Mean of the non-NaN values; 0 when empty.
func Mean(col []float64) float64 {
	vals := dropNaN(col)
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}

// Std is the sample standard deviation (n-1) of the non-NaN values.
func Std(col []float64) float64 {
	vals := dropNaN(col)
	if len(vals) < 2 {
		return 0
	}
	return stat.StdDev(vals, nil)
}

// Min of the non-NaN values; 0 when empty.
func Min(col []float64) float64 {
	vals := dropNaN(col)
	if len(vals) == 0 {
		return 0
	}
	return floats.Min(vals)
}

// Max of the non-NaN values; 0 when empty.
func Max(col []float64) float64 {
	vals := dropNaN(col)
	if len(vals) == 0 {
		return 0
	}
	return floats.Max(vals)
}

// Quantile computes the q-th quantile (0..1) over the non-NaN values,
// linearly interpolating between the two nearest order statistics. All
// stored baselines use this interpolation convention.
func Quantile(col []float64, q float64) float64 {
	vals := dropNaN(col)
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64{}, vals...)
	sort.Float64s(sorted)
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
