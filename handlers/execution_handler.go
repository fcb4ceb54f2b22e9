package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/serisow/claimdesk/pipeline"
)

type ExecutionLookup interface {
	Get(runID string) (pipeline.Execution, bool)
}

type ExecutionHandler struct {
	store  ExecutionLookup
	logger *slog.Logger
}

func NewExecutionHandler(store ExecutionLookup, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		store:  store,
		logger: logger,
	}
}

// GetExecution returns the audit record of a recent run.
func (h *ExecutionHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	runID := vars["id"]

	exec, ok := h.store.Get(runID)
	if !ok {
		writeJSONError(w, "Run not found", http.StatusNotFound)
		return
	}

	if err := writeJSON(w, http.StatusOK, exec); err != nil {
		h.logger.Error("Failed to encode execution",
			slog.String("run_id", runID),
			slog.String("error", err.Error()))
	}
}

// Health reports that the service is up.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
