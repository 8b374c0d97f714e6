package analysis

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/de-tools/kpi-delta/pkg/models/api"
)

// Runner executes one analysis request to completion.
type Runner interface {
	Run(ctx context.Context, req api.AnalyzeRequest) api.AnalyzeResponse
}

type Handler struct {
	runner   Runner
	validate *validator.Validate
}

func NewHandler(runner Runner) *Handler {
	return &Handler{
		runner:   runner,
		validate: validator.New(),
	}
}

// Analyze runs the comparison pipeline synchronously. Pipeline
// failures come back inside the body with status "error"; only a body
// that cannot be decoded or fails shape validation gets a 400.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	var req api.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.AnalyzeResponse{
			Status:  "error",
			Message: "malformed request body: " + err.Error(),
			Stats:   []api.StatRow{},
		})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, api.AnalyzeResponse{
			Status:  "error",
			Message: "invalid request: " + err.Error(),
			Stats:   []api.StatRow{},
		})
		return
	}

	resp := h.runner.Run(ctx, req)
	if resp.Status != "success" {
		logger.Warn().Str("message", resp.Message).Msg("analysis run failed")
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	payload, err := json.Marshal(body)
	if err != nil {
		// Marshal before writing the status so an unencodable body
		// becomes a 500 instead of an empty 200.
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"failed to encode response"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
