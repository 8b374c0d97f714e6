// Package narrative turns a comparison table into a structured,
// model-written analysis, failing over across a fixed list of
// OpenAI-compatible endpoints.
package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/de-tools/kpi-delta/pkg/config"
	"github.com/de-tools/kpi-delta/pkg/models/domain"
)

// NarrativeUnavailableError means every configured endpoint was tried
// and none produced a usable response.
type NarrativeUnavailableError struct {
	Attempts []string
}

func (e *NarrativeUnavailableError) Error() string {
	return fmt.Sprintf("narrative unavailable, all endpoints exhausted: %s", strings.Join(e.Attempts, "; "))
}

// payload is the JSON shape the prompts instruct the model to answer in.
type payload struct {
	OverallSummary         string            `json:"overall_summary"`
	KeyFindings            []string          `json:"key_findings"`
	RecommendedActions     []string          `json:"recommended_actions"`
	SignificantCells       map[string]string `json:"cells_with_significant_change"`
	SpecificMetricAnalysis string            `json:"specific_metric_analysis"`
}

type endpointClient struct {
	cfg    config.Endpoint
	client *openai.Client
}

// Generator holds one client per configured endpoint. It is immutable
// after construction and safe for concurrent runs.
type Generator struct {
	endpoints []endpointClient
}

func NewGenerator(endpoints []config.Endpoint) *Generator {
	clients := make([]endpointClient, 0, len(endpoints))
	for _, ep := range endpoints {
		cc := openai.DefaultConfig(ep.APIKey)
		cc.BaseURL = ep.BaseURL
		clients = append(clients, endpointClient{cfg: ep, client: openai.NewClientWithConfig(cc)})
	}
	return &Generator{endpoints: clients}
}

// Overall produces the full-table narrative.
func (g *Generator) Overall(ctx context.Context, req domain.AnalysisRequest, rows []domain.ComparisonRow) (*domain.Narrative, error) {
	return g.generate(ctx, overallPrompt(req, rows))
}

// Specific produces the narrative for the request's metric selection.
func (g *Generator) Specific(ctx context.Context, req domain.AnalysisRequest, rows []domain.ComparisonRow) (*domain.Narrative, error) {
	return g.generate(ctx, specificPrompt(req, rows))
}

// generate is one pass over the ordered endpoint list: any transport
// failure, non-2xx status or empty reply advances to the next entry.
// There is no retry beyond the list itself.
func (g *Generator) generate(ctx context.Context, prompt string) (*domain.Narrative, error) {
	logger := zerolog.Ctx(ctx)

	var attempts []string
	for _, ep := range g.endpoints {
		text, err := g.complete(ctx, ep, prompt)
		if err != nil {
			logger.Warn().Str("endpoint", ep.cfg.Name).Err(err).Msg("narrative endpoint failed, trying next")
			attempts = append(attempts, fmt.Sprintf("%s: %v", ep.cfg.Name, err))
			continue
		}
		return parseNarrative(text, ep.cfg.Name, logger), nil
	}
	return nil, &NarrativeUnavailableError{Attempts: attempts}
}

func (g *Generator) complete(ctx context.Context, ep endpointClient, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, ep.cfg.Timeout)
	defer cancel()

	resp, err := ep.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: ep.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

// parseNarrative extracts the first balanced JSON object from the reply.
// A reply that carries no parseable object still comes back as an
// unstructured narrative rather than being discarded.
func parseNarrative(text, endpoint string, logger *zerolog.Logger) *domain.Narrative {
	region, found := firstJSONObject(text)
	if found {
		var p payload
		if err := json.Unmarshal([]byte(region), &p); err == nil {
			return &domain.Narrative{
				OverallSummary:         p.OverallSummary,
				KeyFindings:            p.KeyFindings,
				RecommendedActions:     p.RecommendedActions,
				SignificantCells:       p.SignificantCells,
				SpecificMetricAnalysis: p.SpecificMetricAnalysis,
				Endpoint:               endpoint,
			}
		}
	}
	logger.Warn().Str("endpoint", endpoint).Msg("model reply had no parseable JSON object, keeping raw text")
	return &domain.Narrative{
		Unstructured: true,
		RawText:      text,
		Endpoint:     endpoint,
	}
}
