package schema

import "sort"

// reportLimit caps how many feature names an Alignment carries per list;
// the full counts stay available via MissingCount/IgnoredCount.
const reportLimit = 10

// Alignment is the result of ordering a raw feature map against an
// expected feature-name list. Values is always exactly as long as the
// expected list, in the expected order.
type Alignment struct {
	Values       []float64
	Missing      []string // first reportLimit missing names, expected order
	MissingCount int
	Ignored      []string // first reportLimit ignored names, sorted
	IgnoredCount int
}

// Align orders raw feature values to match expectedNames exactly.
// Missing features default to 0.0 and are recorded; keys not in
// expectedNames are recorded as ignored. Alignment never fails: partial
// production inputs are allowed, and the caller decides whether the
// required minimum was resolvable.
func Align(expectedNames []string, raw map[string]float64) Alignment {
	a := Alignment{Values: make([]float64, 0, len(expectedNames))}

	expected := make(map[string]struct{}, len(expectedNames))
	for _, name := range expectedNames {
		expected[name] = struct{}{}
		if v, ok := raw[name]; ok {
			a.Values = append(a.Values, v)
			continue
		}
		a.Values = append(a.Values, 0.0)
		a.MissingCount++
		if len(a.Missing) < reportLimit {
			a.Missing = append(a.Missing, name)
		}
	}

	var ignored []string
	for key := range raw {
		if _, ok := expected[key]; !ok {
			ignored = append(ignored, key)
		}
	}
	sort.Strings(ignored)
	a.IgnoredCount = len(ignored)
	if len(ignored) > reportLimit {
		ignored = ignored[:reportLimit]
	}
	a.Ignored = ignored

	return a
}

// MapProducerFeatures converts a producer-side feature map to canonical
// names, then fills any canonical feature the producer could not supply
// from the per-feature default table (0.0 when no default is listed).
func MapProducerFeatures(raw map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(Names))

	for name, value := range raw {
		if canonical, ok := producerToCanonical[name]; ok {
			out[canonical] = value
		} else {
			out[name] = value
		}
	}

	for _, feat := range Names {
		if _, ok := out[feat]; !ok {
			out[feat] = Defaults[feat]
		}
	}

	return out
}

// MissingRequired returns the required features absent from raw, in
// canonical order. An empty result means inference may proceed.
func MissingRequired(raw map[string]float64) []string {
	var missing []string
	for _, name := range Required {
		if _, ok := raw[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
