// Package schema is the single source of truth for the feature names
// exchanged between order producers and the risk model.
//
// Feature architecture (v3, 48 features):
//
//	Group A - static order features     (always available from the order payload)
//	Group B - behavioral/velocity       (from customer history)
//	Group C - contextual/seasonal       (computed from date, city, product)
//	Group D - derived interaction       (computed from A+B+C)
//
// Required features are the bare minimum; inference is refused without
// them. Every optional feature has a domain-informed default so that
// real-world orders with partial data still score meaningfully.
package schema

import "sort"

// Version identifies a canonical feature-name set. An artifact declares
// which version its feature names match; alignment always uses the
// artifact's own names, never another version's.
type Version string

const (
	// V1 is the original 35-feature set.
	V1 Version = "v1"
	// V2 adds 7 velocity and account-age signals.
	V2 Version = "v2"
	// V3 adds 6 seasonal and behavioral-pattern signals.
	V3 Version = "v3"
)

var v1Features = []string{
	"order_amount",
	"order_item_count",
	"is_cod",
	"is_prepaid",
	"order_hour",
	"is_weekend",
	"is_night_order",
	"customer_order_count",
	"customer_rto_rate",
	"customer_cancel_rate",
	"customer_avg_order_value",
	"customer_account_age_days",
	"customer_distinct_cities",
	"customer_distinct_phones",
	"customer_address_changes",
	"city_rto_rate",
	"city_order_volume",
	"city_avg_delivery_days",
	"product_rto_rate",
	"product_category_rto_rate",
	"product_price_vs_avg",
	"is_high_value_order",
	"amount_zscore",
	"phone_verified",
	"email_verified",
	"address_quality_score",
	"shipping_distance_km",
	"same_city_shipping",
	"discount_percentage",
	"is_first_order",
	"is_repeat_customer",
	"days_since_last_order",
	// interaction features
	"cod_first_order",
	"high_value_cod_first",
	"phone_risk_score",
}

// v2: velocity + value anomaly + account-age signals
var v2Additions = []string{
	"orders_last_24h",
	"orders_last_7d",
	"customer_lifetime_value",
	"amount_vs_customer_avg",
	"is_new_account",
	"new_account_high_value",
	"new_account_cod",
}

// v3: seasonal intelligence + behavioral patterns + discount abuse
var v3Additions = []string{
	"orders_last_1h",
	"is_eid_period",
	"is_ramadan",
	"is_sale_period",
	"is_high_discount",
	"avg_days_between_orders",
}

var versionSets = map[Version][]string{
	V1: sortedCopy(v1Features),
	V2: sortedCopy(append(append([]string{}, v1Features...), v2Additions...)),
	V3: sortedCopy(append(append(append([]string{}, v1Features...), v2Additions...), v3Additions...)),
}

// FeatureNames returns the canonical, alphabetically sorted feature
// names for a schema version. The returned slice is a copy. Unknown
// versions resolve to the current set.
func FeatureNames(v Version) []string {
	set, ok := versionSets[v]
	if !ok {
		set = versionSets[V3]
	}
	out := make([]string, len(set))
	copy(out, set)
	return out
}

// Names is the current canonical feature-name set (v3).
var Names = FeatureNames(V3)

// Required features: the absolute minimum for a meaningful prediction.
// Inference is refused if these cannot be resolved at all.
var Required = []string{
	"order_amount", // can't score an order without its value
	"is_cod",       // single strongest risk signal
	"order_hour",   // time context
}

// Groups categorizes features for reporting.
var Groups = map[string][]string{
	"A_static_order": {
		"order_amount", "order_item_count", "is_cod", "is_prepaid",
		"order_hour", "is_weekend", "is_night_order", "is_high_value_order",
		"discount_percentage", "is_high_discount", "amount_zscore",
	},
	"B_behavioral_velocity": {
		"customer_order_count", "customer_rto_rate", "customer_cancel_rate",
		"customer_avg_order_value", "customer_lifetime_value",
		"customer_account_age_days", "customer_distinct_cities",
		"customer_distinct_phones", "customer_address_changes",
		"days_since_last_order", "orders_last_1h", "orders_last_24h",
		"orders_last_7d", "avg_days_between_orders", "is_first_order",
		"is_repeat_customer", "is_new_account", "new_account_cod",
		"new_account_high_value", "phone_verified", "email_verified",
		"address_quality_score",
	},
	"C_contextual_seasonal": {
		"city_rto_rate", "city_order_volume", "city_avg_delivery_days",
		"product_rto_rate", "product_category_rto_rate", "product_price_vs_avg",
		"shipping_distance_km", "same_city_shipping", "is_eid_period",
		"is_ramadan", "is_sale_period",
	},
	"D_derived_interaction": {
		"cod_first_order", "high_value_cod_first", "phone_risk_score",
		"amount_vs_customer_avg",
	},
}

// producerToCanonical renames producer-side field names to the
// canonical names. Features not in this map are computed producer-side
// or already share the canonical name.
var producerToCanonical = map[string]string{
	"phone_valid":            "phone_verified",
	"phone_order_count":      "customer_order_count",
	"phone_rto_rate":         "customer_rto_rate",
	"phone_age_days":         "customer_account_age_days",
	"phone_unique_addresses": "customer_distinct_cities",
	"items_count":            "order_item_count",
	"is_high_value":          "is_high_value_order",
	"previous_order_count":   "customer_order_count",
	"address_order_count":    "city_order_volume",
}

// Defaults for features the producer cannot provide. City and product
// defaults are Pakistan national averages so unknown contexts still
// score meaningfully instead of reading as risk-free.
var Defaults = map[string]float64{
	"customer_cancel_rate":      0.0,
	"customer_avg_order_value":  0.0,
	"customer_distinct_phones":  1.0,
	"customer_address_changes":  0.0,
	"city_rto_rate":             0.28,
	"city_order_volume":         400.0,
	"city_avg_delivery_days":    3.5,
	"product_rto_rate":          0.25,
	"product_category_rto_rate": 0.25,
	"product_price_vs_avg":      1.0,
	"amount_zscore":             0.0,
	"email_verified":            0.0,
	"address_quality_score":     0.5,
	"shipping_distance_km":      200.0,
	"same_city_shipping":        0.0,
	"discount_percentage":       0.0,
	"is_prepaid":                0.0,
	"orders_last_24h":           0.0,
	"orders_last_7d":            0.0,
	"customer_lifetime_value":   0.0,
	"amount_vs_customer_avg":    1.0,
	"is_new_account":            0.0,
	"new_account_high_value":    0.0,
	"new_account_cod":           0.0,
	"orders_last_1h":            0.0,
	"is_eid_period":             0.0,
	"is_ramadan":                0.0,
	"is_sale_period":            0.0,
	"is_high_discount":          0.0,
	"avg_days_between_orders":   999.0, // unknown history = treat as first order
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
