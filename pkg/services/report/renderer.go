// Package report assembles the multi-section HTML artifact of one
// analysis run.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
)

// ReportRenderError means the report could not be written to the
// requested output location. Missing narrative or chart data never
// causes it; those degrade to placeholders.
type ReportRenderError struct {
	Path string
	Err  error
}

func (e *ReportRenderError) Error() string {
	return fmt.Sprintf("failed to write report to %s: %v", e.Path, e.Err)
}

func (e *ReportRenderError) Unwrap() error { return e.Err }

// Input carries everything one report needs. GeneratedAt is the only
// wall-clock-dependent content; the rest renders deterministically.
type Input struct {
	RunID       string
	Request     domain.AnalysisRequest
	Rows        []domain.ComparisonRow
	Overall     *domain.Narrative
	Specific    *domain.Narrative
	Validation  domain.ValidationReport
	GeneratedAt time.Time
}

type Renderer struct {
	defaultDir string
	logger     zerolog.Logger
}

func NewRenderer(defaultDir string, logger zerolog.Logger) *Renderer {
	return &Renderer{defaultDir: defaultDir, logger: logger}
}

// Render writes the HTML report (and a CSV sibling) and returns the
// report path. The filename encodes the generation timestamp plus a
// short run id, so reports from different runs never overwrite each
// other.
func (r *Renderer) Render(in Input) (string, error) {
	dir := in.Request.OutputDir
	if dir == "" {
		dir = r.defaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &ReportRenderError{Path: dir, Err: err}
	}

	shortID := in.RunID
	if shortID == "" {
		shortID = uuid.NewString()
	}
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	base := fmt.Sprintf("kpi_report_%s_%s", in.GeneratedAt.Format("20060102_150405"), shortID)
	path := filepath.Join(dir, base+".html")

	html, csvText, err := r.build(in)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", &ReportRenderError{Path: path, Err: err}
	}

	// The CSV sibling is a convenience export; losing it is not fatal.
	csvPath := filepath.Join(dir, base+".csv")
	if err := os.WriteFile(csvPath, []byte(csvText), 0o644); err != nil {
		r.logger.Warn().Err(err).Str("path", csvPath).Msg("failed to write CSV export")
	}

	return path, nil
}

type sectionData struct {
	RunID       string
	GeneratedAt string
	PeriodPrev  string
	PeriodCurr  string
	Scoped      bool
	Scope       domain.TargetScope
	Validation  domain.ValidationReport
	Overall     *domain.Narrative
	Specific    *domain.Narrative
	Rows        []domain.ComparisonRow
	ChartURI    template.URL
	HasChart    bool
	CSV         string
}

func (r *Renderer) build(in Input) ([]byte, string, error) {
	csvText := buildCSV(in.Rows)

	chartURI, hasChart, err := renderChartPNG(in.Rows)
	if err != nil {
		r.logger.Warn().Err(err).Msg("chart rendering failed, report will carry a placeholder")
		hasChart = false
	}

	data := sectionData{
		RunID:       in.RunID,
		GeneratedAt: in.GeneratedAt.Format(time.RFC3339),
		PeriodPrev:  in.Request.PeriodNMinus1.String(),
		PeriodCurr:  in.Request.PeriodN.String(),
		Scoped:      !in.Request.Scope.IsEmpty(),
		Scope:       in.Request.Scope,
		Validation:  in.Validation,
		Overall:     in.Overall,
		Specific:    in.Specific,
		Rows:        in.Rows,
		ChartURI:    template.URL(chartURI),
		HasChart:    hasChart,
		CSV:         csvText,
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, "", fmt.Errorf("failed to execute report template: %w", err)
	}
	return buf.Bytes(), csvText, nil
}

func buildCSV(rows []domain.ComparisonRow) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"metric_name", "avg_n_minus_1", "avg_n", "diff", "pct_change"})
	for _, row := range rows {
		_ = w.Write([]string{
			row.MetricName,
			csvCell(row.AvgNMinus1),
			csvCell(row.AvgN),
			csvCell(row.Diff),
			csvCell(row.PctChange),
		})
	}
	w.Flush()
	return buf.String()
}

func csvCell(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"cell": func(v float64) string {
		if math.IsNaN(v) {
			return "n/a"
		}
		return strconv.FormatFloat(v, 'f', 4, 64)
	},
	"joinList": func(values []string) string {
		return strings.Join(values, ", ")
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>KPI period comparison {{.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; }
th, td { border: 1px solid #bbb; padding: 4px 10px; text-align: right; }
th:first-child, td:first-child { text-align: left; }
nav a { margin-right: 1.2em; }
section { margin-top: 2.5em; }
.placeholder { color: #777; font-style: italic; }
.warn { color: #a66a00; }
</style>
</head>
<body>
<h1>KPI period comparison</h1>
<p>Run {{.RunID}} &mdash; generated at {{.GeneratedAt}}</p>
<p>Period n-1: {{.PeriodPrev}}<br>Period n: {{.PeriodCurr}}</p>
<nav>
<a href="#summary">Summary</a>
{{if .Scoped}}<a href="#targets">Targets</a>{{end}}
{{if .Specific}}<a href="#selected">Selected metrics</a>{{end}}
<a href="#chart">Chart</a>
<a href="#table">Raw table</a>
</nav>

<section id="summary">
<h2>Overall summary</h2>
{{if .Overall}}
  {{if .Overall.Unstructured}}
  <pre>{{.Overall.RawText}}</pre>
  {{else}}
  <p>{{.Overall.OverallSummary}}</p>
  {{if .Overall.KeyFindings}}
  <h3>Key findings</h3>
  <ul>{{range .Overall.KeyFindings}}<li>{{.}}</li>{{end}}</ul>
  {{end}}
  {{if .Overall.RecommendedActions}}
  <h3>Recommended actions</h3>
  <ul>{{range .Overall.RecommendedActions}}<li>{{.}}</li>{{end}}</ul>
  {{end}}
  {{end}}
{{else}}
<p class="placeholder">Narrative unavailable for this run.</p>
{{end}}
{{range .Validation.Warnings}}<p class="warn">Warning: {{.}}</p>{{end}}
</section>

{{if .Scoped}}
<section id="targets">
<h2>Target detail</h2>
<p>Network elements: {{if .Scope.NEFilters}}{{joinList .Scope.NEFilters}}{{else}}all{{end}}<br>
Cells: {{if .Scope.CellFilters}}{{joinList .Scope.CellFilters}}{{else}}all{{end}}<br>
Hosts: {{if .Scope.HostFilters}}{{joinList .Scope.HostFilters}}{{else}}all{{end}}</p>
{{if .Overall}}{{if .Overall.SignificantCells}}
<h3>Targets with significant change</h3>
<ul>{{range $cell, $change := .Overall.SignificantCells}}<li><b>{{$cell}}</b>: {{$change}}</li>{{end}}</ul>
{{end}}{{end}}
</section>
{{end}}

{{if .Specific}}
<section id="selected">
<h2>Selected-metric analysis</h2>
{{if .Specific.Unstructured}}<pre>{{.Specific.RawText}}</pre>{{else}}<p>{{.Specific.SpecificMetricAnalysis}}</p>{{end}}
</section>
{{end}}

<section id="chart">
<h2>Comparison chart</h2>
{{if .HasChart}}
<img src="{{.ChartURI}}" alt="percentage change per metric">
{{else}}
<p class="placeholder">No chartable data for this run.</p>
{{end}}
</section>

<section id="table">
<h2>Raw table</h2>
<table>
<tr><th>metric</th><th>avg n-1</th><th>avg n</th><th>diff</th><th>pct change</th></tr>
{{range .Rows}}
<tr><td>{{.MetricName}}</td><td>{{cell .AvgNMinus1}}</td><td>{{cell .AvgN}}</td><td>{{cell .Diff}}</td><td>{{cell .PctChange}}</td></tr>
{{end}}
</table>
<h3>Delimited export</h3>
<pre>{{.CSV}}</pre>
</section>
</body>
</html>
`))
