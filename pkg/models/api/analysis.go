package api

import (
	"encoding/json"
	"fmt"
	"math"
)

// StringList accepts either a single JSON string or an array of strings,
// so callers can pass `"ne": "BSC01"` and `"ne": ["BSC01", "BSC02"]`
// interchangeably.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or array of strings: %w", err)
	}
	*s = many
	return nil
}

// NullFloat marshals NaN as JSON null. JSON has no NaN literal and
// encoding/json rejects it outright.
type NullFloat float64

func (f NullFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = NullFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = NullFloat(v)
	return nil
}

// ColumnMapping maps logical column roles to physical column names.
type ColumnMapping struct {
	Time       string `json:"time" validate:"required"`
	MetricName string `json:"metric_name" validate:"required"`
	Value      string `json:"value" validate:"required"`
	NE         string `json:"ne"`
	CellID     string `json:"cellid"`
	Host       string `json:"host"`
}

// AnalyzeRequest is the inbound wire shape of one comparison run.
type AnalyzeRequest struct {
	PeriodNMinus1 string        `json:"n_minus_1" validate:"required"`
	PeriodN       string        `json:"n" validate:"required"`
	Table         string        `json:"table" validate:"required"`
	Columns       ColumnMapping `json:"columns" validate:"required"`

	NE     StringList `json:"ne,omitempty"`
	CellID StringList `json:"cellid,omitempty"`
	Host   StringList `json:"host,omitempty"`

	SelectedMetrics   []string          `json:"selected_metrics,omitempty"`
	Preference        []string          `json:"preference,omitempty"`
	MetricDefinitions map[string]string `json:"metric_definitions,omitempty"`

	OutputDir  string `json:"output_dir,omitempty"`
	BackendURL string `json:"backend_url,omitempty" validate:"omitempty,url"`

	// Strict switches target-filter validation from warn-and-continue
	// to reject-on-unknown-values.
	Strict bool `json:"strict,omitempty"`
}

// StatRow is one comparison-table row on the wire.
type StatRow struct {
	MetricName string    `json:"metric_name"`
	AvgNMinus1 NullFloat `json:"avg_n_minus_1"`
	AvgN       NullFloat `json:"avg_n"`
	Diff       NullFloat `json:"diff"`
	PctChange  NullFloat `json:"pct_change"`
}

// Analysis is the narrative portion of the response.
type Analysis struct {
	OverallSummary         string            `json:"overall_summary"`
	KeyFindings            []string          `json:"key_findings"`
	RecommendedActions     []string          `json:"recommended_actions"`
	SignificantCells       map[string]string `json:"cells_with_significant_change"`
	SpecificMetricAnalysis string            `json:"specific_metric_analysis,omitempty"`
}

// AnalyzeResponse is the outbound wire shape.
type AnalyzeResponse struct {
	Status          string          `json:"status"`
	Message         string          `json:"message"`
	ReportPath      string          `json:"report_path,omitempty"`
	BackendResponse json.RawMessage `json:"backend_response"`
	Analysis        *Analysis       `json:"analysis,omitempty"`
	Stats           []StatRow       `json:"stats"`
}
