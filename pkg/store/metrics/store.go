package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
	"github.com/rs/zerolog"
)

// DataSourceError wraps a connection or query failure against the
// metrics store. The wrapped error never carries credentials.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("metrics store: %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// AggregateQuery describes one period-scoped average query.
type AggregateQuery struct {
	Table   string
	Columns domain.ColumnMapping
	Period  domain.Period
	Scope   domain.TargetScope
}

// Store issues read-only aggregate queries against the metrics table.
type Store interface {
	// PeriodAverages returns the per-metric mean of the value column
	// within [Period.Start, Period.End), filtered by the target scope.
	// An empty result is not an error.
	PeriodAverages(ctx context.Context, q AggregateQuery) ([]domain.MetricAverage, error)

	// DistinctValues lists the distinct values of one column, for
	// target-filter validation.
	DistinctValues(ctx context.Context, table, column string) ([]string, error)

	// CoOccurs reports whether any row matches value in column paired
	// with one of peers in peerColumn.
	CoOccurs(ctx context.Context, table, column, value, peerColumn string, peers []string) (bool, error)
}

type sqlStore struct {
	db *sql.DB
	ph placeholderStyle
}

// NewStore wraps an open database handle. The driver name picks the
// placeholder dialect ($n for postgres, ? for the warehouse drivers).
func NewStore(db *sql.DB, driver string) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	ph, err := placeholders(driver)
	if err != nil {
		return nil, err
	}
	return &sqlStore{db: db, ph: ph}, nil
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)*$`)

// checkIdentifier guards the identifiers interpolated into query text.
// Values always go through placeholders; identifiers cannot.
func checkIdentifier(name, role string) error {
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("invalid %s identifier: %q", role, name)
	}
	return nil
}

func (s *sqlStore) PeriodAverages(ctx context.Context, q AggregateQuery) ([]domain.MetricAverage, error) {
	logger := zerolog.Ctx(ctx)

	for _, id := range []struct{ name, role string }{
		{q.Table, "table"},
		{q.Columns.Time, "time column"},
		{q.Columns.MetricName, "metric-name column"},
		{q.Columns.Value, "value column"},
	} {
		if err := checkIdentifier(id.name, id.role); err != nil {
			return nil, &DataSourceError{Op: "build query", Err: err}
		}
	}

	args := []any{q.Period.Start, q.Period.End}
	var filters strings.Builder
	appendDim := func(column string, values []string) error {
		if len(values) == 0 {
			return nil
		}
		if err := checkIdentifier(column, "filter column"); err != nil {
			return err
		}
		marks := make([]string, 0, len(values))
		for _, v := range values {
			args = append(args, v)
			marks = append(marks, s.ph(len(args)))
		}
		fmt.Fprintf(&filters, " AND %s IN (%s)", column, strings.Join(marks, ", "))
		return nil
	}

	for _, dim := range []struct {
		column string
		values []string
	}{
		{q.Columns.NE, q.Scope.NEFilters},
		{q.Columns.CellID, q.Scope.CellFilters},
		{q.Columns.Host, q.Scope.HostFilters},
	} {
		if err := appendDim(dim.column, dim.values); err != nil {
			return nil, &DataSourceError{Op: "build query", Err: err}
		}
	}

	query := fmt.Sprintf(`
		SELECT %[1]s, AVG(%[2]s) AS avg_value
		FROM %[3]s
		WHERE %[4]s >= %[5]s AND %[4]s < %[6]s%[7]s
		GROUP BY %[1]s
		ORDER BY %[1]s`,
		q.Columns.MetricName, q.Columns.Value, q.Table, q.Columns.Time,
		s.ph(1), s.ph(2), filters.String())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &DataSourceError{Op: "period averages query", Err: err}
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close period averages rows")
		}
	}()

	averages := make([]domain.MetricAverage, 0)
	for rows.Next() {
		var (
			name string
			avg  sql.NullFloat64
		)
		if err := rows.Scan(&name, &avg); err != nil {
			return nil, &DataSourceError{Op: "scan period averages", Err: err}
		}
		m := domain.MetricAverage{Name: name}
		if avg.Valid {
			v := avg.Float64
			m.Value = &v
		}
		averages = append(averages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &DataSourceError{Op: "iterate period averages", Err: err}
	}
	return averages, nil
}

func (s *sqlStore) DistinctValues(ctx context.Context, table, column string) ([]string, error) {
	if err := checkIdentifier(table, "table"); err != nil {
		return nil, &DataSourceError{Op: "build query", Err: err}
	}
	if err := checkIdentifier(column, "column"); err != nil {
		return nil, &DataSourceError{Op: "build query", Err: err}
	}

	query := fmt.Sprintf("SELECT DISTINCT %[1]s FROM %[2]s WHERE %[1]s IS NOT NULL", column, table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &DataSourceError{Op: "distinct values query", Err: err}
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &DataSourceError{Op: "scan distinct values", Err: err}
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &DataSourceError{Op: "iterate distinct values", Err: err}
	}
	return values, nil
}

func (s *sqlStore) CoOccurs(ctx context.Context, table, column, value, peerColumn string, peers []string) (bool, error) {
	for _, id := range []struct{ name, role string }{
		{table, "table"}, {column, "column"}, {peerColumn, "peer column"},
	} {
		if err := checkIdentifier(id.name, id.role); err != nil {
			return false, &DataSourceError{Op: "build query", Err: err}
		}
	}
	if len(peers) == 0 {
		return true, nil
	}

	args := []any{value}
	marks := make([]string, 0, len(peers))
	for _, p := range peers {
		args = append(args, p)
		marks = append(marks, s.ph(len(args)))
	}
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE %s = %s AND %s IN (%s)",
		table, column, s.ph(1), peerColumn, strings.Join(marks, ", "))

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, &DataSourceError{Op: "co-occurrence query", Err: err}
	}
	return count > 0, nil
}
