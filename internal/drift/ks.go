package drift

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// ksTwoSample computes the two-sample Kolmogorov–Smirnov statistic D
// and its asymptotic p-value. Inputs need not be sorted.
func ksTwoSample(a, b []float64) (stat, pValue float64) {
	n1, n2 := len(a), len(b)
	if n1 == 0 || n2 == 0 {
		return 0, 1
	}

	x := append([]float64{}, a...)
	y := append([]float64{}, b...)
	sort.Float64s(x)
	sort.Float64s(y)

	var i, j int
	var d float64
	for i < n1 && j < n2 {
		v1, v2 := x[i], y[j]
		if v1 <= v2 {
			i++
		}
		if v2 <= v1 {
			j++
		}
		diff := math.Abs(float64(i)/float64(n1) - float64(j)/float64(n2))
		if diff > d {
			d = diff
		}
	}

	en := math.Sqrt(float64(n1) * float64(n2) / float64(n1+n2))
	lambda := (en + 0.12 + 0.11/en) * d
	return d, ksProbability(lambda)
}

// ksProbability is the Kolmogorov distribution tail Q(lambda) =
// 2 * sum_{k>=1} (-1)^(k-1) exp(-2 k^2 lambda^2).
func ksProbability(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}
	const (
		maxTerms = 100
		eps      = 1e-8
	)
	sum := 0.0
	sign := 1.0
	for k := 1; k <= maxTerms; k++ {
		term := sign * math.Exp(-2*float64(k)*float64(k)*lambda*lambda)
		sum += term
		if math.Abs(term) < eps {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// normalSample produces n values from N(mean, std) at evenly spaced
// quantiles. Deterministic sampling keeps drift verdicts reproducible
// run to run where RNG draws would not be.
func normalSample(mean, std float64, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		q := (float64(i) + 0.5) / float64(n)
		out[i] = mean + std*normalQuantile(q)
	}
	return out
}

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// normalQuantile is the inverse standard normal CDF.
func normalQuantile(p float64) float64 {
	return stdNormal.Quantile(p)
}
