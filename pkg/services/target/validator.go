// Package target resolves and validates the entity filters that scope
// an analysis run before they reach the aggregator.
package target

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
	"github.com/de-tools/kpi-delta/pkg/store/metrics"
)

// TargetValidationError carries the filter values rejected in strict mode.
type TargetValidationError struct {
	Dimension string
	Values    []string
}

func (e *TargetValidationError) Error() string {
	return fmt.Sprintf("invalid %s filter values: %s", e.Dimension, strings.Join(e.Values, ", "))
}

// Filters are the raw, request-supplied filter values per dimension.
type Filters struct {
	NE   []string
	Cell []string
	Host []string
}

// RelationshipChecker verifies cross-dimension consistency of a scope
// (e.g. a cell belongs to one of the given network elements). It
// returns one message per violation. Only strict mode consults it.
type RelationshipChecker interface {
	Check(ctx context.Context, table string, columns domain.ColumnMapping, scope domain.TargetScope) ([]string, error)
}

// Validator normalizes filters into a TargetScope and checks them
// against the metrics store.
type Validator struct {
	store   metrics.Store
	checker RelationshipChecker
}

func NewValidator(store metrics.Store, checker RelationshipChecker) *Validator {
	if checker == nil {
		checker = &CellNEChecker{Store: store}
	}
	return &Validator{store: store, checker: checker}
}

// Validate builds the scope and its validation report. Lenient mode
// lets unknown values pass through as filters (the query will simply
// match nothing) and only warns; strict mode fails with the offending
// values. A filter on an unmapped column is rejected in either mode
// since no query can honor it.
func (v *Validator) Validate(
	ctx context.Context,
	table string,
	columns domain.ColumnMapping,
	filters Filters,
	strict bool,
) (domain.TargetScope, domain.ValidationReport, error) {
	logger := zerolog.Ctx(ctx)

	scope := domain.TargetScope{
		NEFilters:   normalize(filters.NE),
		CellFilters: normalize(filters.Cell),
		HostFilters: normalize(filters.Host),
	}
	report := domain.ValidationReport{Validated: true}

	dims := []struct {
		name   string
		column string
		values []string
	}{
		{"ne", columns.NE, scope.NEFilters},
		{"cellid", columns.CellID, scope.CellFilters},
		{"host", columns.Host, scope.HostFilters},
	}

	for _, dim := range dims {
		if len(dim.values) == 0 {
			continue
		}
		if dim.column == "" {
			report.Validated = false
			report.Errors = append(report.Errors,
				fmt.Sprintf("%s filter supplied but no %s column is mapped", dim.name, dim.name))
			return scope, report, &TargetValidationError{Dimension: dim.name, Values: dim.values}
		}

		known, err := v.store.DistinctValues(ctx, table, dim.column)
		if err != nil {
			// The lookup is an optimization; the aggregation query will
			// still apply the filter. Warn and move on.
			logger.Warn().Err(err).Str("dimension", dim.name).Msg("filter existence lookup failed")
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("could not verify %s filter values", dim.name))
			continue
		}

		unknown := missingFrom(dim.values, known)
		if len(unknown) == 0 {
			continue
		}
		if strict {
			report.Validated = false
			report.Errors = append(report.Errors,
				fmt.Sprintf("unknown %s values: %s", dim.name, strings.Join(unknown, ", ")))
			return scope, report, &TargetValidationError{Dimension: dim.name, Values: unknown}
		}
		logger.Warn().Strs("values", unknown).Str("dimension", dim.name).Msg("unknown filter values, passing through")
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("unknown %s values: %s", dim.name, strings.Join(unknown, ", ")))
	}

	if strict && !scope.IsEmpty() {
		violations, err := v.checker.Check(ctx, table, columns, scope)
		if err != nil {
			report.Warnings = append(report.Warnings, "relationship check failed: "+err.Error())
		} else if len(violations) > 0 {
			report.Validated = false
			report.Errors = append(report.Errors, violations...)
			return scope, report, &TargetValidationError{Dimension: "relationship", Values: violations}
		}
	}

	return scope, report, nil
}

func normalize(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func missingFrom(values, known []string) []string {
	index := make(map[string]struct{}, len(known))
	for _, k := range known {
		index[k] = struct{}{}
	}
	var unknown []string
	for _, v := range values {
		if _, ok := index[v]; !ok {
			unknown = append(unknown, v)
		}
	}
	return unknown
}

// CellNEChecker is the default relationship strategy: when both cell
// and NE filters are present, each cell must co-occur with at least one
// of the given network elements in the store.
type CellNEChecker struct {
	Store metrics.Store
}

func (c *CellNEChecker) Check(
	ctx context.Context,
	table string,
	columns domain.ColumnMapping,
	scope domain.TargetScope,
) ([]string, error) {
	if len(scope.CellFilters) == 0 || len(scope.NEFilters) == 0 {
		return nil, nil
	}
	if columns.CellID == "" || columns.NE == "" {
		return nil, nil
	}

	var violations []string
	for _, cell := range scope.CellFilters {
		ok, err := c.Store.CoOccurs(ctx, table, columns.CellID, cell, columns.NE, scope.NEFilters)
		if err != nil {
			return nil, err
		}
		if !ok {
			violations = append(violations,
				fmt.Sprintf("cell %q does not belong to any of the given network elements", cell))
		}
	}
	return violations, nil
}
