package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/serisow/claimdesk/pipeline"
	"github.com/serisow/claimdesk/pipeline_type"
)

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(statusCode)
    json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) error {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(statusCode)
    return json.NewEncoder(w).Encode(body)
}

// statusFor maps a run or ingestion error to the HTTP status returned to the caller.
func statusFor(err error) int {
    var fetchErr *pipeline_type.FetchError
    switch {
    case errors.Is(err, pipeline.ErrNoQuestions), errors.Is(err, pipeline.ErrUnknownMode):
        return http.StatusBadRequest
    case errors.As(err, &fetchErr):
        return http.StatusUnprocessableEntity
    case pipeline_type.IsBackendError(err):
        return http.StatusBadGateway
    case errors.Is(err, context.DeadlineExceeded):
        return http.StatusGatewayTimeout
    case errors.Is(err, context.Canceled):
        // nginx convention for a client that went away
        return 499
    }
    return http.StatusInternalServerError
}
