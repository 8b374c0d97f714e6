package domain

// MetricAverage is the mean of one named metric within a period and target scope.
// Value is nil when the group produced no usable rows.
type MetricAverage struct {
	Name  string
	Value *float64
}

// MetricDefinition names a derived metric computed from other metrics
// via an arithmetic expression over their averages.
type MetricDefinition struct {
	Name       string
	Expression string
}

// ColumnMapping maps the engine's logical column roles onto the physical
// columns of the caller's metrics table.
type ColumnMapping struct {
	Time       string
	MetricName string
	Value      string
	NE         string
	CellID     string
	Host       string
}

// TargetScope restricts which rows contribute to aggregation. An empty
// slice means no restriction on that dimension.
type TargetScope struct {
	NEFilters   []string
	CellFilters []string
	HostFilters []string
}

func (s TargetScope) IsEmpty() bool {
	return len(s.NEFilters) == 0 && len(s.CellFilters) == 0 && len(s.HostFilters) == 0
}

// ValidationReport records the outcome of target-filter validation.
// Warnings never abort a run; Errors only do in strict mode.
type ValidationReport struct {
	Validated bool
	Warnings  []string
	Errors    []string
}
