package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/serisow/claimdesk/pipeline_type"
)

type Runner interface {
	Run(ctx context.Context, req pipeline_type.RunRequest) (*pipeline_type.RunResult, error)
}

// RunResponse holds one reply per question, in question order.
type RunResponse struct {
	Answers []string               `json:"answers"`
	RunID   string                 `json:"run_id"`
	Details []pipeline_type.Answer `json:"details,omitempty"`
}

// RunHandler answers a batch of questions about one document.
type RunHandler struct {
	runner  Runner
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunHandler bounds each run by timeout; zero leaves it to the client.
func NewRunHandler(runner Runner, timeout time.Duration, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		runner:  runner,
		timeout: timeout,
		logger:  logger,
	}
}

// ServeHTTP handles POST {documents, questions, mode}. Adding ?details=1
// includes parsed facts, decisions and passages next to the replies.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req pipeline_type.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request body",
			slog.String("error", err.Error()))
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.runner.Run(ctx, req)
	if err != nil {
		status := statusFor(err)
		h.logger.Error("Run request failed",
			slog.String("document", req.Document),
			slog.Int("status", status),
			slog.String("error", err.Error()))
		writeJSONError(w, err.Error(), status)
		return
	}

	response := RunResponse{
		Answers: result.Replies(),
		RunID:   result.RunID,
	}
	if r.URL.Query().Get("details") == "1" {
		response.Details = result.Answers
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode response",
			slog.String("error", err.Error()))
	}
}
