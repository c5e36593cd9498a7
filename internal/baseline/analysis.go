package baseline

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/codguard/codguard/internal/dataset"
)

// RankedFeature is one entry of an importance ranking.
type RankedFeature struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
	Rank       int     `json:"rank"`
}

// RankImportances pairs feature names with importances and ranks them
// descending. Shorter of the two slices bounds the result.
func RankImportances(names []string, importances []float64) []RankedFeature {
	n := len(names)
	if len(importances) < n {
		n = len(importances)
	}
	ranked := make([]RankedFeature, n)
	for i := 0; i < n; i++ {
		ranked[i] = RankedFeature{Feature: names[i], Importance: importances[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Importance > ranked[j].Importance
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// CorrelatedPair is a pair of features whose absolute Pearson
// correlation meets the redundancy threshold.
type CorrelatedPair struct {
	FeatureA    string  `json:"feature_a"`
	FeatureB    string  `json:"feature_b"`
	Correlation float64 `json:"correlation"`
}

// CorrelatedPairs finds feature pairs with |corr| >= threshold; used to
// flag redundant inputs before training.
func CorrelatedPairs(d *dataset.Dataset, features []string, threshold float64) []CorrelatedPair {
	var present []string
	for _, f := range features {
		if _, ok := d.Column(f); ok {
			present = append(present, f)
		}
	}

	var pairs []CorrelatedPair
	for i := 0; i < len(present); i++ {
		for j := i + 1; j < len(present); j++ {
			a, _ := d.Column(present[i])
			b, _ := d.Column(present[j])
			c := math.Abs(pearson(a, b))
			if c >= threshold {
				pairs = append(pairs, CorrelatedPair{
					FeatureA:    present[i],
					FeatureB:    present[j],
					Correlation: c,
				})
			}
		}
	}
	return pairs
}

// pearson wraps stat.Correlation, truncating to the shorter input and
// mapping the degenerate constant-column result to 0.
func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	c := stat.Correlation(a[:n], b[:n], nil)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return c
}
