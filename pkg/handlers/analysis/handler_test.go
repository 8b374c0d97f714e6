package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

func validBody() string {
	return `{
		"n_minus_1": "2025-08-12",
		"n": "2025-08-13",
		"table": "kpi_samples",
		"columns": {"time": "sample_time", "metric_name": "kpi_name", "value": "kpi_value"},
		"ne": "BSC01"
	}`
}

func TestHandler_Analyze_Success(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.MatchedBy(func(req api.AnalyzeRequest) bool {
		return req.Table == "kpi_samples" && len(req.NE) == 1 && req.NE[0] == "BSC01"
	})).Return(api.AnalyzeResponse{Status: "success", Message: "analysis completed", Stats: []api.StatRow{}})

	h := NewHandler(runner)
	rec := httptest.NewRecorder()
	h.Analyze(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(validBody())))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp api.AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	runner.AssertExpectations(t)
}

func TestHandler_Analyze_MalformedBody(t *testing.T) {
	runner := new(mockRunner)
	h := NewHandler(runner)

	rec := httptest.NewRecorder()
	h.Analyze(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader("{not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestHandler_Analyze_MissingRequiredFields(t *testing.T) {
	runner := new(mockRunner)
	h := NewHandler(runner)

	rec := httptest.NewRecorder()
	h.Analyze(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(`{"n": "2025-08-13"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp api.AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestHandler_Analyze_UnencodableResponseIs500NotEmpty200(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(api.AnalyzeResponse{
			Status:          "success",
			Message:         "analysis completed",
			BackendResponse: json.RawMessage("OK"),
			Stats:           []api.StatRow{},
		})

	h := NewHandler(runner)
	rec := httptest.NewRecorder()
	h.Analyze(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(validBody())))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp api.AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
}

func TestHandler_Analyze_PipelineErrorStaysHTTP200(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", mock.Anything, mock.Anything).
		Return(api.AnalyzeResponse{Status: "error", Message: "data source error", Stats: []api.StatRow{}})

	h := NewHandler(runner)
	rec := httptest.NewRecorder()
	h.Analyze(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(validBody())))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp api.AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
}
