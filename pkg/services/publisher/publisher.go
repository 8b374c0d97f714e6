// Package publisher forwards the finished analysis document to an
// external collector, best-effort.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/kpi-delta/pkg/models/domain"
)

// maxResponseBytes caps how much of the collector's reply we keep.
const maxResponseBytes = 64 << 10

// Publisher issues a single POST per run. It never retries; a failed
// publish is recorded on the result and nothing else.
type Publisher struct {
	client *http.Client
}

func NewPublisher(timeout time.Duration) *Publisher {
	return &Publisher{client: &http.Client{Timeout: timeout}}
}

// Publish serializes document to JSON and posts it to url. The outcome
// is always returned, never an error: delivery failure must not
// invalidate an otherwise-successful analysis.
func (p *Publisher) Publish(ctx context.Context, url string, document any) domain.PublishOutcome {
	logger := zerolog.Ctx(ctx)

	if url == "" {
		return domain.PublishOutcome{}
	}

	outcome := domain.PublishOutcome{Attempted: true}

	body, err := json.Marshal(document)
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to serialize result: %v", err)
		return outcome
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		outcome.Error = fmt.Sprintf("failed to build request: %v", err)
		return outcome
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("collector publish failed")
		outcome.Error = err.Error()
		return outcome
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	outcome.Response = string(reply)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn().Int("status", resp.StatusCode).Msg("collector rejected the result")
		outcome.Error = fmt.Sprintf("collector returned status %d", resp.StatusCode)
		return outcome
	}

	outcome.Delivered = true
	return outcome
}
