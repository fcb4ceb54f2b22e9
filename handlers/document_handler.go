package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/serisow/claimdesk/pipeline_type"
	"github.com/serisow/claimdesk/services/rag_service"
)

const (
	defaultSearchResults = 5
	maxSearchResults     = 50
)

type Ingestor interface {
	EnsureIndexed(ctx context.Context, source string) (*pipeline_type.IngestResponse, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, namespace, query string, k int) ([]pipeline_type.Passage, error)
}

type IngestRequest struct {
	Document string `json:"document"`
}

// IngestHandler indexes a document ahead of any question about it.
type IngestHandler struct {
	ingestor Ingestor
	logger   *slog.Logger
}

func NewIngestHandler(ingestor Ingestor, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{
		ingestor: ingestor,
		logger:   logger,
	}
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Document) == "" {
		writeJSONError(w, "document cannot be empty", http.StatusBadRequest)
		return
	}

	resp, err := h.ingestor.EnsureIndexed(r.Context(), req.Document)
	if err != nil {
		status := statusFor(err)
		h.logger.Error("Document ingestion failed",
			slog.String("document", req.Document),
			slog.Int("status", status),
			slog.String("error", err.Error()))
		writeJSON(w, status, pipeline_type.IngestResponse{
			Message:  "Failed to index document",
			Document: req.Document,
			Error:    err.Error(),
			Status:   "error",
		})
		return
	}

	status := http.StatusCreated
	if resp.Cached {
		status = http.StatusOK
	}
	if err := writeJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode response",
			slog.String("error", err.Error()))
	}
}

// SearchRequest asks for the passages of an indexed document closest to query.
type SearchRequest struct {
	Document string `json:"document"`
	Query    string `json:"query"`
	K        int    `json:"k"`
}

type SearchResponse struct {
	Passages []pipeline_type.Passage `json:"passages"`
	Count    int                     `json:"count"`
}

// DocumentSearchHandler exposes raw retrieval for inspecting what a question
// would be decided on. It never indexes the document.
type DocumentSearchHandler struct {
	retriever Retriever
	logger    *slog.Logger
}

func NewDocumentSearchHandler(retriever Retriever, logger *slog.Logger) *DocumentSearchHandler {
	return &DocumentSearchHandler{
		retriever: retriever,
		logger:    logger,
	}
}

func (h *DocumentSearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request body",
			slog.String("error", err.Error()))
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validateRequest(&req); err != nil {
		h.logger.Error("Invalid request parameters",
			slog.String("error", err.Error()))
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	passages, err := h.retriever.Retrieve(r.Context(), rag_service.Namespace(req.Document), req.Query, req.K)
	if err != nil {
		status := statusFor(err)
		h.logger.Error("Document search failed",
			slog.String("document", req.Document),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to process search query", status)
		return
	}

	h.logger.Debug("Document search results", slog.String("passages", spew.Sdump(passages)))

	response := SearchResponse{
		Passages: passages,
		Count:    len(passages),
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode response",
			slog.String("error", err.Error()))
	}
}

func (h *DocumentSearchHandler) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Document) == "" {
		return fmt.Errorf("document cannot be empty")
	}
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("search query cannot be empty")
	}
	if req.K == 0 {
		req.K = defaultSearchResults
	}
	if req.K < 1 || req.K > maxSearchResults {
		return fmt.Errorf("k must be between 1 and %d", maxSearchResults)
	}
	return nil
}
