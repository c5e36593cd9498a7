package dataset

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/codguard/codguard/internal/schema"
)

// ValidationReport summarizes the cleaning applied to a training set.
type ValidationReport struct {
	OriginalRows         int            `json:"original_rows"`
	FinalRows            int            `json:"final_rows"`
	DuplicatesRemoved    int            `json:"duplicates_removed"`
	MissingFilled        map[string]int `json:"missing_filled"`
	OutliersClipped      map[string]int `json:"outliers_clipped"`
	RangeViolationsFixed map[string]int `json:"range_violations_fixed"`
	RTORate              float64        `json:"rto_rate"`
	ClassBalanceOK       bool           `json:"class_balance_ok"`
	Warnings             []string       `json:"warnings"`
}

type imputation struct {
	strategy string // "constant" or "median"
	value    float64
}

// Column-specific imputation strategies.
var imputationStrategies = map[string]imputation{
	"order_amount":              {"median", 0},
	"order_item_count":          {"constant", 1},
	"is_cod":                    {"constant", 1}, // Pakistan = mostly COD
	"is_prepaid":                {"constant", 0},
	"order_hour":                {"median", 0},
	"is_weekend":                {"constant", 0},
	"is_night_order":            {"constant", 0},
	"customer_order_count":      {"constant", 0},
	"customer_rto_rate":         {"constant", 0},
	"customer_cancel_rate":      {"constant", 0},
	"customer_avg_order_value":  {"median", 0},
	"customer_account_age_days": {"constant", 0},
	"customer_distinct_cities":  {"constant", 1},
	"customer_distinct_phones":  {"constant", 1},
	"customer_address_changes":  {"constant", 0},
	"city_rto_rate":             {"median", 0},
	"city_order_volume":         {"median", 0},
	"city_avg_delivery_days":    {"constant", 3},
	"product_rto_rate":          {"median", 0},
	"product_category_rto_rate": {"median", 0},
	"product_price_vs_avg":      {"constant", 1},
	"is_high_value_order":       {"constant", 0},
	"amount_zscore":             {"constant", 0},
	"phone_verified":            {"constant", 0},
	"email_verified":            {"constant", 0},
	"address_quality_score":     {"constant", 0.5},
	"shipping_distance_km":      {"median", 0},
	"same_city_shipping":        {"constant", 0},
	"discount_percentage":       {"constant", 0},
	"is_first_order":            {"constant", 1},
	"is_repeat_customer":        {"constant", 0},
	"days_since_last_order":     {"constant", 999},
	"cod_first_order":           {"constant", 0},
	"high_value_cod_first":      {"constant", 0},
	"phone_risk_score":          {"constant", 0},
}

type bounds struct{ lo, hi float64 }

// Outlier clipping bounds.
var outlierBounds = map[string]bounds{
	"order_amount":              {0, 500_000},
	"order_item_count":          {1, 50},
	"customer_order_count":      {0, 500},
	"customer_avg_order_value":  {0, 500_000},
	"customer_account_age_days": {0, 3650},
	"customer_distinct_cities":  {1, 50},
	"customer_distinct_phones":  {1, 20},
	"customer_address_changes":  {0, 50},
	"city_order_volume":         {0, 100_000},
	"city_avg_delivery_days":    {0, 30},
	"shipping_distance_km":      {0, 5000},
	"discount_percentage":       {0, 100},
	"days_since_last_order":     {0, 999},
	"amount_zscore":             {-5, 5},
}

// Rate features that must stay in [0, 1].
var rateFeatures = []string{
	"customer_rto_rate",
	"customer_cancel_rate",
	"city_rto_rate",
	"product_rto_rate",
	"product_category_rto_rate",
	"address_quality_score",
	"phone_risk_score",
}

// Validator validates and cleans training data before model training.
type Validator struct {
	MinClassRatio float64
	MaxClassRatio float64
	log           *zap.SugaredLogger
}

// NewValidator returns a validator with default class-balance bounds.
func NewValidator(log *zap.SugaredLogger) *Validator {
	return &Validator{
		MinClassRatio: 0.05,
		MaxClassRatio: 0.95,
		log:           log,
	}
}

// ValidateAndClean runs all cleaning steps on a copy of the dataset and
// returns the cleaned data together with a report. It never fails: data
// problems are repaired or surfaced as warnings.
func (v *Validator) ValidateAndClean(d *Dataset) (*Dataset, *ValidationReport) {
	report := &ValidationReport{
		OriginalRows:         d.Len(),
		MissingFilled:        map[string]int{},
		OutliersClipped:      map[string]int{},
		RangeViolationsFixed: map[string]int{},
		ClassBalanceOK:       true,
	}
	d = d.Copy()

	d, report.DuplicatesRemoved = removeDuplicates(d)
	fillMissing(d, report.MissingFilled)
	clipOutliers(d, report.OutliersClipped)
	clampRates(d, report.RangeViolationsFixed)

	if labels, ok := d.Columns[LabelColumn]; ok {
		rate := Mean(labels)
		report.RTORate = rate
		if rate < v.MinClassRatio {
			report.ClassBalanceOK = false
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"Very low RTO rate (%.1f%%). Model may not learn return patterns.", rate*100))
		} else if rate > v.MaxClassRatio {
			report.ClassBalanceOK = false
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"Very high RTO rate (%.1f%%). Data may be biased.", rate*100))
		}
	}

	// Schema stability: every canonical feature must exist as a column.
	for _, feat := range schema.Names {
		if _, ok := d.Columns[feat]; !ok {
			zeros := make([]float64, d.Len())
			d.Columns[feat] = zeros
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("Feature %q was missing, filled with 0.0", feat))
		}
	}

	report.FinalRows = d.Len()

	if v.log != nil {
		v.log.Infow("validation complete",
			"original_rows", report.OriginalRows,
			"final_rows", report.FinalRows,
			"duplicates_removed", report.DuplicatesRemoved,
			"rto_rate", report.RTORate,
		)
	}

	return d, report
}

// removeDuplicates drops rows sharing an order ID, keeping the last.
func removeDuplicates(d *Dataset) (*Dataset, int) {
	if len(d.IDs) == 0 {
		return d, 0
	}
	lastIdx := make(map[string]int, len(d.IDs))
	for i, id := range d.IDs {
		lastIdx[id] = i
	}
	if len(lastIdx) == len(d.IDs) {
		return d, 0
	}
	keep := make([]int, 0, len(lastIdx))
	for i, id := range d.IDs {
		if lastIdx[id] == i {
			keep = append(keep, i)
		}
	}
	removed := len(d.IDs) - len(keep)
	return d.Select(keep), removed
}

func fillMissing(d *Dataset, counts map[string]int) {
	for col, imp := range imputationStrategies {
		values, ok := d.Columns[col]
		if !ok {
			continue
		}
		nMissing := 0
		for _, v := range values {
			if math.IsNaN(v) {
				nMissing++
			}
		}
		if nMissing == 0 {
			continue
		}
		fill := imp.value
		if imp.strategy == "median" {
			fill = Quantile(values, 0.5)
		}
		for i, v := range values {
			if math.IsNaN(v) {
				values[i] = fill
			}
		}
		counts[col] = nMissing
	}
}

func clipOutliers(d *Dataset, counts map[string]int) {
	for col, b := range outlierBounds {
		values, ok := d.Columns[col]
		if !ok {
			continue
		}
		n := 0
		for i, v := range values {
			if v < b.lo {
				values[i] = b.lo
				n++
			} else if v > b.hi {
				values[i] = b.hi
				n++
			}
		}
		if n > 0 {
			counts[col] = n
		}
	}
}

func clampRates(d *Dataset, counts map[string]int) {
	for _, col := range rateFeatures {
		values, ok := d.Columns[col]
		if !ok {
			continue
		}
		n := 0
		for i, v := range values {
			if v < 0 {
				values[i] = 0
				n++
			} else if v > 1 {
				values[i] = 1
				n++
			}
		}
		if n > 0 {
			counts[col] = n
		}
	}
}
