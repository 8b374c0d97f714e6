package report

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
)

func testInput(dir string) Input {
	return Input{
		RunID: "run-1234abcd",
		Request: domain.AnalysisRequest{
			PeriodNMinus1: domain.Period{
				Start: time.Date(2025, 8, 12, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2025, 8, 12, 23, 59, 59, 0, time.UTC),
			},
			PeriodN: domain.Period{
				Start: time.Date(2025, 8, 13, 0, 0, 0, 0, time.UTC),
				End:   time.Date(2025, 8, 13, 23, 59, 59, 0, time.UTC),
			},
			OutputDir: dir,
		},
		Rows: []domain.ComparisonRow{
			{MetricName: "rach_success", AvgNMinus1: 97.8, AvgN: 98.5, Diff: 0.7, PctChange: 0.7157},
			{MetricName: "new_metric", AvgNMinus1: math.NaN(), AvgN: 5, Diff: math.NaN(), PctChange: math.NaN()},
		},
		Overall: &domain.Narrative{
			OverallSummary:     "RACH improved.",
			KeyFindings:        []string{"rach_success up"},
			RecommendedActions: []string{"monitor"},
		},
		GeneratedAt: time.Date(2025, 8, 14, 10, 15, 0, 0, time.UTC),
	}
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	return NewRenderer(t.TempDir(), zerolog.New(zerolog.NewTestWriter(t)))
}

func TestRenderer_WritesSections(t *testing.T) {
	dir := t.TempDir()
	r := newTestRenderer(t)

	path, err := r.Render(testInput(dir))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(content)

	assert.Contains(t, html, `id="summary"`)
	assert.Contains(t, html, `id="chart"`)
	assert.Contains(t, html, `id="table"`)
	assert.NotContains(t, html, `id="targets"`, "unscoped run has no target section")
	assert.Contains(t, html, "RACH improved.")
	assert.Contains(t, html, "data:image/png;base64,")
	assert.Contains(t, html, "n/a", "NaN cells render as n/a")
	assert.Contains(t, html, "rach_success,97.8,98.5,0.7,0.7157")
}

func TestRenderer_TargetSectionWhenScoped(t *testing.T) {
	dir := t.TempDir()
	in := testInput(dir)
	in.Request.Scope = domain.TargetScope{NEFilters: []string{"BSC01"}}
	in.Specific = &domain.Narrative{SpecificMetricAnalysis: "rach_success recovered"}

	r := newTestRenderer(t)
	path, err := r.Render(in)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `id="targets"`)
	assert.Contains(t, string(content), "BSC01")
	assert.Contains(t, string(content), `id="selected"`)
	assert.Contains(t, string(content), "rach_success recovered")
}

func TestRenderer_MissingNarrativeDegrades(t *testing.T) {
	dir := t.TempDir()
	in := testInput(dir)
	in.Overall = nil

	r := newTestRenderer(t)
	path, err := r.Render(in)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Narrative unavailable")
}

func TestRenderer_NoChartableDataDegrades(t *testing.T) {
	dir := t.TempDir()
	in := testInput(dir)
	in.Rows = []domain.ComparisonRow{
		{MetricName: "m", AvgNMinus1: math.NaN(), AvgN: math.NaN(), Diff: math.NaN(), PctChange: math.NaN()},
	}

	r := newTestRenderer(t)
	path, err := r.Render(in)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "No chartable data")
}

func TestRenderer_WritesCSVSibling(t *testing.T) {
	dir := t.TempDir()
	r := newTestRenderer(t)

	path, err := r.Render(testInput(dir))
	require.NoError(t, err)

	csvPath := strings.TrimSuffix(path, ".html") + ".csv"
	content, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "metric_name,avg_n_minus_1,avg_n,diff,pct_change")
	assert.Contains(t, string(content), "new_metric,NaN,5,NaN,NaN")
}

func TestRenderer_DistinctRunsDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	r := newTestRenderer(t)

	first := testInput(dir)
	second := testInput(dir)
	second.RunID = "run-5678efgh"

	p1, err := r.Render(first)
	require.NoError(t, err)
	p2, err := r.Render(second)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestRenderer_UnwritableDir(t *testing.T) {
	in := testInput(filepath.Join(string(os.PathSeparator), "proc", "no-such-place", "reports"))

	r := newTestRenderer(t)
	_, err := r.Render(in)
	require.Error(t, err)

	var rErr *ReportRenderError
	assert.ErrorAs(t, err, &rErr)
}
