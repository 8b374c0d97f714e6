package domain

import "math"

// ComparisonRow is one metric's delta between the two periods. Missing
// sides are NaN; PctChange is NaN whenever the n-1 average is zero or NaN.
type ComparisonRow struct {
	MetricName string
	AvgNMinus1 float64
	AvgN       float64
	Diff       float64
	PctChange  float64
}

// HasBothSides reports whether the metric contributed data in both periods.
func (r ComparisonRow) HasBothSides() bool {
	return !math.IsNaN(r.AvgNMinus1) && !math.IsNaN(r.AvgN)
}
