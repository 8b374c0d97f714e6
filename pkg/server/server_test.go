package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/kpi-delta/pkg/models/api"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, req api.AnalyzeRequest) api.AnalyzeResponse {
	args := m.Called(ctx, req)
	return args.Get(0).(api.AnalyzeResponse)
}

func TestWebAPI_Endpoints(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(api.AnalyzeResponse{Status: "success", Message: "analysis completed", Stats: []api.StatRow{}})

	router := ConfigureRouter(logger, Config{
		Addr:            ":8080",
		ShutdownTimeout: 10 * time.Second,
		Dependencies: Dependencies{
			Runner:        runner,
			EndpointNames: []string{"primary", "fallback"},
		},
	})
	testServer := httptest.NewServer(router)
	defer testServer.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(testServer.URL + "/api/v1/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("config endpoints lists names only", func(t *testing.T) {
		resp, err := http.Get(testServer.URL + "/api/v1/config/endpoints")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body map[string][]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, []string{"primary", "fallback"}, body["endpoints"])
	})

	t.Run("analyze", func(t *testing.T) {
		payload := `{
			"n_minus_1": "2025-08-12",
			"n": "2025-08-13",
			"table": "kpi_samples",
			"columns": {"time": "t", "metric_name": "m", "value": "v"}
		}`
		resp, err := http.Post(testServer.URL+"/api/v1/analyze", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body api.AnalyzeResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "success", body.Status)
	})

	runner.AssertExpectations(t)
}
