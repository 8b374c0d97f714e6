// Package compare joins two periods' metric averages into delta rows.
package compare

import (
	"math"
	"sort"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
)

// Periods outer-joins the two name→value mappings and computes the
// per-metric difference and percentage change. A metric present in only
// one period still produces a row with NaN on the missing side. Rows
// come back sorted by metric name so repeated runs are stable.
func Periods(nMinus1, n map[string]float64) []domain.ComparisonRow {
	names := make([]string, 0, len(nMinus1)+len(n))
	seen := make(map[string]struct{}, len(nMinus1)+len(n))
	for name := range nMinus1 {
		seen[name] = struct{}{}
		names = append(names, name)
	}
	for name := range n {
		if _, ok := seen[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	rows := make([]domain.ComparisonRow, 0, len(names))
	for _, name := range names {
		prev := valueOrNaN(nMinus1, name)
		curr := valueOrNaN(n, name)
		rows = append(rows, buildRow(name, prev, curr))
	}
	return rows
}

func valueOrNaN(m map[string]float64, name string) float64 {
	if v, ok := m[name]; ok {
		return v
	}
	return math.NaN()
}

func buildRow(name string, prev, curr float64) domain.ComparisonRow {
	diff := curr - prev
	pct := math.NaN()
	// pct_change is undefined when the baseline is zero or missing.
	if !math.IsNaN(diff) && !math.IsNaN(prev) && prev != 0 {
		pct = diff / prev * 100
	}
	return domain.ComparisonRow{
		MetricName: name,
		AvgNMinus1: prev,
		AvgN:       curr,
		Diff:       diff,
		PctChange:  pct,
	}
}
