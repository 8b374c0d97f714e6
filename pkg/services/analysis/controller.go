// Package analysis wires the comparison pipeline: target validation,
// concurrent period aggregation, derived-metric evaluation, delta
// computation, narrative generation, report rendering and the
// best-effort publish.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/de-tools/kpi-delta/pkg/config"
	"github.com/de-tools/kpi-delta/pkg/models/api"
	"github.com/de-tools/kpi-delta/pkg/models/domain"
	"github.com/de-tools/kpi-delta/pkg/services/compare"
	"github.com/de-tools/kpi-delta/pkg/services/formula"
	"github.com/de-tools/kpi-delta/pkg/services/narrative"
	"github.com/de-tools/kpi-delta/pkg/services/publisher"
	"github.com/de-tools/kpi-delta/pkg/services/report"
	"github.com/de-tools/kpi-delta/pkg/services/target"
	"github.com/de-tools/kpi-delta/pkg/services/timerange"
	"github.com/de-tools/kpi-delta/pkg/store/metrics"
)

// Resolver turns a period descriptor into a period.
type Resolver interface {
	Resolve(input string) (domain.Period, error)
}

// Validator normalizes and checks the target filters.
type Validator interface {
	Validate(ctx context.Context, table string, columns domain.ColumnMapping, filters target.Filters, strict bool) (domain.TargetScope, domain.ValidationReport, error)
}

// Generator produces the model-written narratives.
type Generator interface {
	Overall(ctx context.Context, req domain.AnalysisRequest, rows []domain.ComparisonRow) (*domain.Narrative, error)
	Specific(ctx context.Context, req domain.AnalysisRequest, rows []domain.ComparisonRow) (*domain.Narrative, error)
}

// Renderer writes the report artifact and returns its path.
type Renderer interface {
	Render(in report.Input) (string, error)
}

// Publisher forwards the finished document to the collector.
type Publisher interface {
	Publish(ctx context.Context, url string, document any) domain.PublishOutcome
}

// Controller runs one analysis request to completion. It holds only
// read-only collaborators and is safe for concurrent runs.
type Controller struct {
	resolver  Resolver
	store     metrics.Store
	validator Validator
	generator Generator
	renderer  Renderer
	publisher Publisher
}

func NewController(
	resolver Resolver,
	store metrics.Store,
	validator Validator,
	generator Generator,
	renderer Renderer,
	publisher Publisher,
) *Controller {
	return &Controller{
		resolver:  resolver,
		store:     store,
		validator: validator,
		generator: generator,
		renderer:  renderer,
		publisher: publisher,
	}
}

// NewFromConfig assembles the standard pipeline around an open store.
func NewFromConfig(cfg *config.Config, store metrics.Store, logger zerolog.Logger) *Controller {
	return NewController(
		timerange.NewResolver(cfg.TimezoneOffset, logger),
		store,
		target.NewValidator(store, nil),
		narrative.NewGenerator(cfg.Narrative.Endpoints),
		report.NewRenderer(cfg.ReportDir, logger),
		publisher.NewPublisher(cfg.CollectorTimeout),
	)
}

// Run executes the full pipeline. Failures come back as a
// status:"error" response, never as a fault; the publish outcome never
// changes the status.
func (c *Controller) Run(ctx context.Context, in api.AnalyzeRequest) api.AnalyzeResponse {
	runID := uuid.NewString()
	logger := zerolog.Ctx(ctx).With().Str("run_id", runID[:8]).Logger()
	ctx = logger.WithContext(ctx)

	req, errResp := c.buildRequest(in)
	if errResp != nil {
		return *errResp
	}

	scope, validation, err := c.validator.Validate(ctx, req.Table, req.Columns,
		target.Filters{NE: in.NE, Cell: in.CellID, Host: in.Host}, in.Strict)
	if err != nil {
		return errorResponse(fmt.Sprintf("target validation failed: %v", err))
	}
	req.Scope = scope

	prevValues, currValues, err := c.aggregate(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("period aggregation failed")
		return errorResponse(fmt.Sprintf("data source error: %v", err))
	}

	prevAll, err := c.withDerived(prevValues, req.Definitions)
	if err != nil {
		return errorResponse(fmt.Sprintf("derived metric evaluation failed for period n-1: %v", err))
	}
	currAll, err := c.withDerived(currValues, req.Definitions)
	if err != nil {
		return errorResponse(fmt.Sprintf("derived metric evaluation failed for period n: %v", err))
	}

	rows := compare.Periods(prevAll, currAll)
	if len(rows) == 0 {
		// Distinct from malformed input: the queries ran and matched nothing.
		return successResponse("no data found in either period for the given scope", rows, nil, "")
	}

	overall, specific, narrativeErr := c.narratives(ctx, req, rows)

	reportPath, renderErr := c.renderer.Render(report.Input{
		RunID:       runID,
		Request:     req,
		Rows:        rows,
		Overall:     overall,
		Specific:    specific,
		Validation:  validation,
		GeneratedAt: nowUTC(),
	})
	if renderErr != nil {
		logger.Error().Err(renderErr).Msg("report rendering failed")
		return errorResponse(fmt.Sprintf("report rendering failed: %v", renderErr))
	}
	logger.Info().Str("report", reportPath).Int("metrics", len(rows)).Msg("analysis complete")

	var resp api.AnalyzeResponse
	if narrativeErr != nil {
		resp = errorResponse(fmt.Sprintf("narrative generation failed: %v", narrativeErr))
		resp.Stats = statRows(rows)
		resp.ReportPath = reportPath
	} else {
		resp = successResponse("analysis completed", rows, mergeNarratives(overall, specific), reportPath)
	}

	outcome := c.publisher.Publish(ctx, req.CollectorURL, resp)
	if outcome.Attempted {
		if outcome.Delivered {
			resp.BackendResponse = backendReply(outcome.Response)
		} else {
			logger.Warn().Str("error", outcome.Error).Msg("result publish failed")
			resp.Message = resp.Message + "; publish failed: " + outcome.Error
		}
	}
	return resp
}

// buildRequest resolves and checks everything that needs no I/O, so
// shape errors surface before the store or any endpoint is touched.
func (c *Controller) buildRequest(in api.AnalyzeRequest) (domain.AnalysisRequest, *api.AnalyzeResponse) {
	prev, err := c.resolver.Resolve(in.PeriodNMinus1)
	if err != nil {
		resp := errorResponse(fmt.Sprintf("period n-1: %v", err))
		return domain.AnalysisRequest{}, &resp
	}
	curr, err := c.resolver.Resolve(in.PeriodN)
	if err != nil {
		resp := errorResponse(fmt.Sprintf("period n: %v", err))
		return domain.AnalysisRequest{}, &resp
	}

	defs := definitionList(in.MetricDefinitions)
	if err := formula.Check(defs); err != nil {
		resp := errorResponse(fmt.Sprintf("invalid metric definition: %v", err))
		return domain.AnalysisRequest{}, &resp
	}

	return domain.AnalysisRequest{
		PeriodNMinus1: prev,
		PeriodN:       curr,
		Table:         in.Table,
		Columns: domain.ColumnMapping{
			Time:       in.Columns.Time,
			MetricName: in.Columns.MetricName,
			Value:      in.Columns.Value,
			NE:         in.Columns.NE,
			CellID:     in.Columns.CellID,
			Host:       in.Columns.Host,
		},
		Definitions:     defs,
		SelectedMetrics: in.SelectedMetrics,
		Preference:      in.Preference,
		OutputDir:       in.OutputDir,
		CollectorURL:    in.BackendURL,
	}, nil
}

// aggregate issues the two period queries concurrently. They share no
// state; the join point is the comparison that needs both.
func (c *Controller) aggregate(ctx context.Context, req domain.AnalysisRequest) (map[string]float64, map[string]float64, error) {
	var prev, curr []domain.MetricAverage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		prev, err = c.store.PeriodAverages(gctx, metrics.AggregateQuery{
			Table: req.Table, Columns: req.Columns, Period: req.PeriodNMinus1, Scope: req.Scope,
		})
		return err
	})
	g.Go(func() error {
		var err error
		curr, err = c.store.PeriodAverages(gctx, metrics.AggregateQuery{
			Table: req.Table, Columns: req.Columns, Period: req.PeriodN, Scope: req.Scope,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return averagesToMap(prev), averagesToMap(curr), nil
}

func (c *Controller) withDerived(raw map[string]float64, defs []domain.MetricDefinition) (map[string]float64, error) {
	derived, err := formula.Evaluate(raw, defs)
	if err != nil {
		return nil, err
	}
	all := make(map[string]float64, len(raw)+len(derived))
	for k, v := range raw {
		all[k] = v
	}
	for k, v := range derived {
		all[k] = v
	}
	return all, nil
}

func (c *Controller) narratives(ctx context.Context, req domain.AnalysisRequest, rows []domain.ComparisonRow) (*domain.Narrative, *domain.Narrative, error) {
	overall, err := c.generator.Overall(ctx, req, rows)
	if err != nil {
		return nil, nil, err
	}

	if !req.Selection() {
		return overall, nil, nil
	}
	subset := narrative.FilterRows(req, rows)
	if len(subset) == 0 {
		zerolog.Ctx(ctx).Warn().Msg("metric selection matched no rows, skipping specific narrative")
		return overall, nil, nil
	}
	specific, err := c.generator.Specific(ctx, req, subset)
	if err != nil {
		// The overall narrative already succeeded; losing the specific
		// one degrades rather than failing the run.
		zerolog.Ctx(ctx).Warn().Err(err).Msg("specific narrative failed")
		return overall, nil, nil
	}
	return overall, specific, nil
}

// nowUTC is swapped out in tests for deterministic report names.
var nowUTC = func() time.Time { return time.Now().UTC() }

// backendReply keeps a JSON collector reply verbatim and wraps anything
// else, plain text or an empty body included, as a JSON string so the
// response always stays marshalable.
func backendReply(reply string) json.RawMessage {
	if json.Valid([]byte(reply)) {
		return json.RawMessage(reply)
	}
	quoted, _ := json.Marshal(reply)
	return quoted
}

func averagesToMap(averages []domain.MetricAverage) map[string]float64 {
	out := make(map[string]float64, len(averages))
	for _, avg := range averages {
		if avg.Value == nil {
			out[avg.Name] = math.NaN()
			continue
		}
		out[avg.Name] = *avg.Value
	}
	return out
}

// definitionList orders the definitions by name. JSON objects carry no
// order, so name order is the stable one; evaluation order does not
// affect results because references resolve lazily.
func definitionList(defs map[string]string) []domain.MetricDefinition {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.MetricDefinition, 0, len(defs))
	for _, name := range names {
		out = append(out, domain.MetricDefinition{Name: name, Expression: defs[name]})
	}
	return out
}

func statRows(rows []domain.ComparisonRow) []api.StatRow {
	stats := make([]api.StatRow, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, api.StatRow{
			MetricName: row.MetricName,
			AvgNMinus1: api.NullFloat(row.AvgNMinus1),
			AvgN:       api.NullFloat(row.AvgN),
			Diff:       api.NullFloat(row.Diff),
			PctChange:  api.NullFloat(row.PctChange),
		})
	}
	return stats
}

func mergeNarratives(overall, specific *domain.Narrative) *api.Analysis {
	if overall == nil {
		return nil
	}
	out := &api.Analysis{
		OverallSummary:     overall.OverallSummary,
		KeyFindings:        overall.KeyFindings,
		RecommendedActions: overall.RecommendedActions,
		SignificantCells:   overall.SignificantCells,
	}
	if overall.Unstructured {
		out.OverallSummary = overall.RawText
	}
	if specific != nil {
		if specific.Unstructured {
			out.SpecificMetricAnalysis = specific.RawText
		} else {
			out.SpecificMetricAnalysis = specific.SpecificMetricAnalysis
		}
	}
	return out
}

func errorResponse(message string) api.AnalyzeResponse {
	return api.AnalyzeResponse{
		Status:  "error",
		Message: message,
		Stats:   []api.StatRow{},
	}
}

func successResponse(message string, rows []domain.ComparisonRow, analysis *api.Analysis, reportPath string) api.AnalyzeResponse {
	return api.AnalyzeResponse{
		Status:     "success",
		Message:    message,
		ReportPath: reportPath,
		Analysis:   analysis,
		Stats:      statRows(rows),
	}
}
