package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"sort"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
)

// maxChartBars keeps the bar chart readable when the table is wide.
const maxChartBars = 20

// renderChartPNG draws the percentage change per metric as a bar chart
// and returns it as a base64 data URI ready for an <img> tag. Metrics
// without a defined pct_change are left out; with nothing left to draw
// it returns ok=false and the report falls back to a placeholder.
func renderChartPNG(rows []domain.ComparisonRow) (string, bool, error) {
	type bar struct {
		name  string
		value float64
	}
	bars := make([]bar, 0, len(rows))
	for _, row := range rows {
		if math.IsNaN(row.PctChange) || math.IsInf(row.PctChange, 0) {
			continue
		}
		bars = append(bars, bar{name: row.MetricName, value: row.PctChange})
	}
	if len(bars) == 0 {
		return "", false, nil
	}

	// Keep the largest movers when the table does not fit.
	sort.Slice(bars, func(i, j int) bool {
		return math.Abs(bars[i].value) > math.Abs(bars[j].value)
	})
	if len(bars) > maxChartBars {
		bars = bars[:maxChartBars]
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].name < bars[j].name })

	values := make([]chart.Value, 0, len(bars))
	minV, maxV := 0.0, 0.0
	for _, b := range bars {
		values = append(values, chart.Value{Label: b.name, Value: b.value})
		minV = math.Min(minV, b.value)
		maxV = math.Max(maxV, b.value)
	}
	if minV == maxV {
		maxV = minV + 1
	}

	graph := chart.BarChart{
		Title:    "Percentage change per metric (period n vs n-1)",
		Height:   480,
		BarWidth: 40,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: minV * 1.15, Max: maxV * 1.15},
		},
		Bars: values,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return "", false, fmt.Errorf("failed to render comparison chart: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), true, nil
}
