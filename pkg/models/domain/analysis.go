package domain

// AnalysisRequest carries everything one comparison run needs. It is
// built from the inbound call, consumed synchronously and discarded.
type AnalysisRequest struct {
	PeriodNMinus1 Period
	PeriodN       Period
	Table         string
	Columns       ColumnMapping
	Scope         TargetScope
	Definitions   []MetricDefinition

	// SelectedMetrics is an exact allow-list; Preference is a list of
	// substring patterns. At most one of the two is set.
	SelectedMetrics []string
	Preference      []string

	OutputDir    string
	CollectorURL string
}

// Selection reports whether the request restricts the narrative to a
// subset of metrics.
func (r AnalysisRequest) Selection() bool {
	return len(r.SelectedMetrics) > 0 || len(r.Preference) > 0
}

// Narrative is the structured analysis produced by the language model.
// When the model's reply could not be parsed as JSON, Unstructured is
// true and RawText holds the reply verbatim.
type Narrative struct {
	OverallSummary         string
	KeyFindings            []string
	RecommendedActions     []string
	SignificantCells       map[string]string
	SpecificMetricAnalysis string
	Unstructured           bool
	RawText                string
	Endpoint               string
}

// PublishOutcome records the best-effort delivery to the collector.
type PublishOutcome struct {
	Attempted bool
	Delivered bool
	Response  string
	Error     string
}

// AnalysisResult is the terminal artifact of one run.
type AnalysisResult struct {
	RunID      string
	Narrative  *Narrative
	Specific   *Narrative
	Rows       []ComparisonRow
	Validation ValidationReport
	ReportPath string
	Publish    PublishOutcome
}
