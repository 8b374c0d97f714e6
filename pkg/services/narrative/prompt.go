package narrative

import (
	"fmt"
	"math"
	"strings"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
)

const answerShape = `Answer strictly with a single JSON object of this shape and nothing else:
{
  "overall_summary": "<two or three sentences>",
  "key_findings": ["<finding>", ...],
  "recommended_actions": ["<action>", ...],
  "cells_with_significant_change": {"<cell or target>": "<what changed>", ...}%s
}`

// renderTable lays the comparison rows out as a fixed-width text table
// the model can read unambiguously.
func renderTable(rows []domain.ComparisonRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-40s %15s %15s %12s %12s\n", "metric", "avg_n_minus_1", "avg_n", "diff", "pct_change")
	for _, row := range rows {
		fmt.Fprintf(&b, "%-40s %15s %15s %12s %12s\n",
			row.MetricName,
			formatCell(row.AvgNMinus1),
			formatCell(row.AvgN),
			formatCell(row.Diff),
			formatCell(row.PctChange))
	}
	return b.String()
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}

// overallPrompt asks for the full-table analysis.
func overallPrompt(req domain.AnalysisRequest, rows []domain.ComparisonRow) string {
	var b strings.Builder
	b.WriteString("You are a radio-network performance analyst. Compare the two periods below.\n\n")
	fmt.Fprintf(&b, "Period n-1: %s\nPeriod n:   %s\n", req.PeriodNMinus1, req.PeriodN)
	if !req.Scope.IsEmpty() {
		fmt.Fprintf(&b, "Target scope: ne=%v cell=%v host=%v\n",
			req.Scope.NEFilters, req.Scope.CellFilters, req.Scope.HostFilters)
	}
	b.WriteString("\nPer-metric averages and deltas:\n\n")
	b.WriteString(renderTable(rows))
	b.WriteString("\nSummarize the overall movement, name the metrics that degraded or improved most, and suggest follow-up actions.\n\n")
	fmt.Fprintf(&b, answerShape, "")
	return b.String()
}

// specificPrompt asks for a focused analysis of the selected subset.
func specificPrompt(req domain.AnalysisRequest, rows []domain.ComparisonRow) string {
	var b strings.Builder
	b.WriteString("You are a radio-network performance analyst. Focus only on the selected metrics below.\n\n")
	fmt.Fprintf(&b, "Period n-1: %s\nPeriod n:   %s\n", req.PeriodNMinus1, req.PeriodN)
	if len(req.SelectedMetrics) > 0 {
		fmt.Fprintf(&b, "Selected metrics: %s\n", strings.Join(req.SelectedMetrics, ", "))
	} else if len(req.Preference) > 0 {
		fmt.Fprintf(&b, "Metric name patterns: %s\n", strings.Join(req.Preference, ", "))
	}
	b.WriteString("\nPer-metric averages and deltas:\n\n")
	b.WriteString(renderTable(rows))
	b.WriteString("\nExplain what the selected metrics' movement means operationally.\n\n")
	fmt.Fprintf(&b, answerShape, ",\n  \"specific_metric_analysis\": \"<analysis of the selected metrics>\"")
	return b.String()
}

// FilterRows restricts the table to the request's metric selection.
// An exact allow-list wins over substring patterns; with neither, the
// full table comes back unchanged.
func FilterRows(req domain.AnalysisRequest, rows []domain.ComparisonRow) []domain.ComparisonRow {
	if len(req.SelectedMetrics) > 0 {
		allow := make(map[string]struct{}, len(req.SelectedMetrics))
		for _, name := range req.SelectedMetrics {
			allow[name] = struct{}{}
		}
		out := make([]domain.ComparisonRow, 0, len(rows))
		for _, row := range rows {
			if _, ok := allow[row.MetricName]; ok {
				out = append(out, row)
			}
		}
		return out
	}
	if len(req.Preference) > 0 {
		out := make([]domain.ComparisonRow, 0, len(rows))
		for _, row := range rows {
			for _, pattern := range req.Preference {
				if pattern != "" && strings.Contains(strings.ToLower(row.MetricName), strings.ToLower(pattern)) {
					out = append(out, row)
					break
				}
			}
		}
		return out
	}
	return rows
}
