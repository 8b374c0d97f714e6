package target

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
	"github.com/de-tools/kpi-delta/pkg/store/metrics"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) PeriodAverages(ctx context.Context, q metrics.AggregateQuery) ([]domain.MetricAverage, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]domain.MetricAverage), args.Error(1)
}

func (m *mockStore) DistinctValues(ctx context.Context, table, column string) ([]string, error) {
	args := m.Called(ctx, table, column)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) CoOccurs(ctx context.Context, table, column, value, peerColumn string, peers []string) (bool, error) {
	args := m.Called(ctx, table, column, value, peerColumn, peers)
	return args.Bool(0), args.Error(1)
}

var testColumns = domain.ColumnMapping{
	Time:       "sample_time",
	MetricName: "kpi_name",
	Value:      "kpi_value",
	NE:         "ne_name",
	CellID:     "cell_id",
	Host:       "host_name",
}

func TestValidator_EmptyFiltersMeanNoRestriction(t *testing.T) {
	store := new(mockStore)
	v := NewValidator(store, nil)

	scope, report, err := v.Validate(context.Background(), "kpi_samples", testColumns, Filters{}, false)
	require.NoError(t, err)
	assert.True(t, scope.IsEmpty())
	assert.True(t, report.Validated)
	assert.Empty(t, report.Warnings)
	store.AssertNotCalled(t, "DistinctValues", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidator_NormalizesValues(t *testing.T) {
	store := new(mockStore)
	store.On("DistinctValues", mock.Anything, "kpi_samples", "ne_name").
		Return([]string{"BSC01"}, nil)

	v := NewValidator(store, nil)
	scope, _, err := v.Validate(context.Background(), "kpi_samples", testColumns,
		Filters{NE: []string{" BSC01 ", "BSC01", ""}}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"BSC01"}, scope.NEFilters)
}

func TestValidator_LenientPassesUnknownThrough(t *testing.T) {
	store := new(mockStore)
	store.On("DistinctValues", mock.Anything, "kpi_samples", "ne_name").
		Return([]string{"BSC01"}, nil)

	v := NewValidator(store, nil)
	scope, report, err := v.Validate(context.Background(), "kpi_samples", testColumns,
		Filters{NE: []string{"BSC99"}}, false)

	require.NoError(t, err)
	assert.Equal(t, []string{"BSC99"}, scope.NEFilters)
	assert.True(t, report.Validated)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "BSC99")
}

func TestValidator_StrictRejectsUnknown(t *testing.T) {
	store := new(mockStore)
	store.On("DistinctValues", mock.Anything, "kpi_samples", "ne_name").
		Return([]string{"BSC01"}, nil)

	v := NewValidator(store, nil)
	_, report, err := v.Validate(context.Background(), "kpi_samples", testColumns,
		Filters{NE: []string{"BSC99"}}, true)

	require.Error(t, err)
	var vErr *TargetValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, []string{"BSC99"}, vErr.Values)
	assert.False(t, report.Validated)
}

func TestValidator_UnmappedColumnRejected(t *testing.T) {
	store := new(mockStore)
	cols := testColumns
	cols.Host = ""

	v := NewValidator(store, nil)
	_, _, err := v.Validate(context.Background(), "kpi_samples", cols,
		Filters{Host: []string{"host-1"}}, false)

	require.Error(t, err)
	var vErr *TargetValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestValidator_LookupFailureOnlyWarns(t *testing.T) {
	store := new(mockStore)
	store.On("DistinctValues", mock.Anything, "kpi_samples", "ne_name").
		Return(nil, assert.AnError)

	v := NewValidator(store, nil)
	scope, report, err := v.Validate(context.Background(), "kpi_samples", testColumns,
		Filters{NE: []string{"BSC01"}}, false)

	require.NoError(t, err)
	assert.Equal(t, []string{"BSC01"}, scope.NEFilters)
	require.Len(t, report.Warnings, 1)
}

func TestValidator_StrictRelationshipCheck(t *testing.T) {
	store := new(mockStore)
	store.On("DistinctValues", mock.Anything, "kpi_samples", "ne_name").
		Return([]string{"BSC01"}, nil)
	store.On("DistinctValues", mock.Anything, "kpi_samples", "cell_id").
		Return([]string{"C-100"}, nil)
	store.On("CoOccurs", mock.Anything, "kpi_samples", "cell_id", "C-100", "ne_name", []string{"BSC01"}).
		Return(false, nil)

	v := NewValidator(store, nil)
	_, report, err := v.Validate(context.Background(), "kpi_samples", testColumns,
		Filters{NE: []string{"BSC01"}, Cell: []string{"C-100"}}, true)

	require.Error(t, err)
	var vErr *TargetValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "relationship", vErr.Dimension)
	assert.False(t, report.Validated)
}

func TestCellNEChecker_SkipsPartialScopes(t *testing.T) {
	store := new(mockStore)
	checker := &CellNEChecker{Store: store}

	violations, err := checker.Check(context.Background(), "kpi_samples", testColumns,
		domain.TargetScope{CellFilters: []string{"C-100"}})
	require.NoError(t, err)
	assert.Empty(t, violations)
	store.AssertNotCalled(t, "CoOccurs", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
