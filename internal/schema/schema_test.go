package schema

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureNames_SortedAndVersioned(t *testing.T) {
	v1 := FeatureNames(V1)
	v2 := FeatureNames(V2)
	v3 := FeatureNames(V3)

	assert.Len(t, v1, 35)
	assert.Len(t, v2, 42)
	assert.Len(t, v3, 48)

	for _, set := range [][]string{v1, v2, v3} {
		assert.True(t, sort.StringsAreSorted(set))
	}

	// Returned slices are copies; mutating one must not corrupt the schema.
	v3[0] = "mutated"
	assert.NotEqual(t, "mutated", FeatureNames(V3)[0])

	// Unknown versions resolve to the current set.
	assert.Equal(t, FeatureNames(V3), FeatureNames(Version("v99")))
}

func TestAlign_OrderAndLength(t *testing.T) {
	expected := []string{"a", "b", "c", "d"}
	raw := map[string]float64{"d": 4, "b": 2, "a": 1, "z": 99}

	a := Align(expected, raw)

	require.Len(t, a.Values, len(expected))
	assert.Equal(t, []float64{1, 2, 0, 4}, a.Values)
	assert.Equal(t, []string{"c"}, a.Missing)
	assert.Equal(t, 1, a.MissingCount)
	assert.Equal(t, []string{"z"}, a.Ignored)
	assert.Equal(t, 1, a.IgnoredCount)
}

func TestAlign_EmptyRaw(t *testing.T) {
	a := Align(Names, map[string]float64{})

	require.Len(t, a.Values, len(Names))
	for _, v := range a.Values {
		assert.Zero(t, v)
	}
	assert.Equal(t, len(Names), a.MissingCount)
	// Reported list is truncated but the count is complete.
	assert.Len(t, a.Missing, 10)
}

func TestAlign_TruncatesIgnoredButKeepsCount(t *testing.T) {
	raw := make(map[string]float64)
	for _, name := range []string{"x01", "x02", "x03", "x04", "x05", "x06",
		"x07", "x08", "x09", "x10", "x11", "x12"} {
		raw[name] = 1
	}

	a := Align([]string{"a"}, raw)

	assert.Len(t, a.Ignored, 10)
	assert.Equal(t, 12, a.IgnoredCount)
	// Ignored names are reported deterministically regardless of map order.
	assert.True(t, sort.StringsAreSorted(a.Ignored))
}

func TestMapProducerFeatures_RenamesAndDefaults(t *testing.T) {
	raw := map[string]float64{
		"order_amount":      4500,
		"is_cod":            1,
		"order_hour":        14,
		"phone_valid":       1,   // renamed to phone_verified
		"phone_rto_rate":    0.4, // renamed to customer_rto_rate
		"items_count":       3,   // renamed to order_item_count
	}

	mapped := MapProducerFeatures(raw)

	assert.Equal(t, 1.0, mapped["phone_verified"])
	assert.Equal(t, 0.4, mapped["customer_rto_rate"])
	assert.Equal(t, 3.0, mapped["order_item_count"])

	// Domain defaults, not blanket zeros.
	assert.Equal(t, 0.28, mapped["city_rto_rate"])
	assert.Equal(t, 999.0, mapped["avg_days_between_orders"])
	assert.Equal(t, 1.0, mapped["amount_vs_customer_avg"])

	// Every canonical feature is present after mapping.
	for _, name := range Names {
		_, ok := mapped[name]
		assert.True(t, ok, "feature %s missing after mapping", name)
	}
}

func TestMissingRequired(t *testing.T) {
	assert.Empty(t, MissingRequired(map[string]float64{
		"order_amount": 100, "is_cod": 1, "order_hour": 9,
	}))

	missing := MissingRequired(map[string]float64{"order_amount": 100})
	assert.Equal(t, []string{"is_cod", "order_hour"}, missing)
}

func TestGroups_CoverAllFeatures(t *testing.T) {
	seen := make(map[string]bool)
	for _, features := range Groups {
		for _, f := range features {
			assert.False(t, seen[f], "feature %s in more than one group", f)
			seen[f] = true
		}
	}
	for _, name := range Names {
		assert.True(t, seen[name], "feature %s not in any group", name)
	}
}
