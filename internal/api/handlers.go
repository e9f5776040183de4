// Package api is Intake's HTTP surface: it creates requests, kicks off the
// pipeline, and serves every read-only projection over the Ledger (spec
// §4.3, §6).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"research-pipeline/internal/ledger"
	"research-pipeline/internal/models"
	"research-pipeline/internal/queue"
)

// ---------------------------------------------------------------------------
// Dependency interfaces — each captures exactly the methods this package
// needs, so tests can inject fakes without a real Postgres/Redis/ES/bus.
// ---------------------------------------------------------------------------

// RequestStore is the Ledger contract this package needs.
type RequestStore interface {
	CreateRequest(ctx context.Context, topic string) (string, error)
	TransitionStatus(ctx context.Context, requestID string, status models.Status) error
	GetRequest(ctx context.Context, requestID string) (*models.Request, error)
	ListRequests(ctx context.Context, status models.Status, limit, offset int) ([]models.Request, error)
	GetSearchResults(ctx context.Context, requestID string) ([]models.SearchResult, error)
	CountSearchResults(ctx context.Context, requestID string) (int, error)
	GetAnalysisResult(ctx context.Context, requestID string) (*models.AnalysisResult, error)
	GetMetrics(ctx context.Context) (*ledger.Metrics, error)
}

// RequestCache is the status read cache contract.
type RequestCache interface {
	SetRequest(ctx context.Context, req *models.Request) error
	GetRequest(ctx context.Context, id string) (*models.Request, error)
	Invalidate(ctx context.Context, id string) error
}

// RequestQueue is the publish contract for the search queue.
type RequestQueue interface {
	Publish(ctx context.Context, topic string, task queue.Task) error
}

// RequestSearch is the full-text search contract over completed requests.
type RequestSearch interface {
	Search(ctx context.Context, term string) (json.RawMessage, error)
}

// Handler holds every dependency the HTTP layer needs. Store, Cache, Queue
// and Search are interfaces — real implementations are injected by main,
// fakes in tests; the remaining fields are plain settings.
type Handler struct {
	Store           RequestStore
	Cache           RequestCache
	Queue           RequestQueue
	Search          RequestSearch // optional, may be nil
	SearchTopic     string
	DefaultPageSize int
	MaxPageSize     int
}

type analyzeRequest struct {
	Topic string `json:"topic"`
}

type analyzeResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// Analyze — POST /analyze
//
// Intake's write path (spec §4.3): insert the request as pending, publish
// the search task, then transition to searching. No retry loop here — a
// publish failure surfaces as a 500 and the caller is free to retry the
// whole request.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Topic) == "" {
		http.Error(w, "invalid request: topic is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	requestID, err := h.Store.CreateRequest(ctx, req.Topic)
	if err != nil {
		slog.Error("create request failed", "component", "api", "error", err)
		http.Error(w, "failed to create request", http.StatusInternalServerError)
		return
	}

	if err := h.Queue.Publish(ctx, h.SearchTopic, queue.Task{RequestID: requestID, Topic: req.Topic}); err != nil {
		slog.Error("publish to search queue failed", "component", "api", "request_id", requestID, "error", err)
		http.Error(w, "failed to enqueue request", http.StatusInternalServerError)
		return
	}

	if err := h.Store.TransitionStatus(ctx, requestID, models.StatusSearching); err != nil {
		slog.Error("transition to searching failed", "component", "api", "request_id", requestID, "error", err)
		http.Error(w, "failed to start request", http.StatusInternalServerError)
		return
	}

	slog.Info("request accepted", "component", "api", "request_id", requestID, "topic", req.Topic)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(analyzeResponse{
		RequestID: requestID,
		Status:    string(models.StatusSearching),
		Message:   "Analysis started for " + req.Topic,
	})
}

type statusResponse struct {
	RequestID          string  `json:"request_id"`
	Topic              string  `json:"topic"`
	Status             string  `json:"status"`
	CreatedAt          string  `json:"created_at"`
	UpdatedAt          string  `json:"updated_at"`
	CompletedAt        *string `json:"completed_at,omitempty"`
	Error              *string `json:"error,omitempty"`
	SearchResultsCount int     `json:"search_results_count"`
	Summary            *string `json:"summary,omitempty"`
	InferenceTimeMs    *int64  `json:"inference_time_ms,omitempty"`
}

// Status — GET /status/{request_id}
//
// Read path: Redis is checked first. A cached entry is only trusted when
// its status is terminal — non-terminal cache hits are dropped (the row
// has since moved on) and treated as a miss. On a miss, the Ledger is the
// source of truth and the cache is back-filled for subsequent reads.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")
	if requestID == "" {
		http.Error(w, "missing request_id", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	req, err := h.cachedOrStoredRequest(ctx, requestID)
	if errors.Is(err, ledger.ErrNotFound) {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get request failed", "component", "api", "request_id", requestID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	count, err := h.Store.CountSearchResults(ctx, requestID)
	if err != nil {
		slog.Error("count search results failed", "component", "api", "request_id", requestID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		RequestID:          req.ID,
		Topic:              req.Topic,
		Status:             string(req.Status),
		CreatedAt:          req.CreatedAt.Format(rfc3339),
		UpdatedAt:          req.UpdatedAt.Format(rfc3339),
		SearchResultsCount: count,
		Error:              req.ErrorMessage,
	}
	if req.CompletedAt != nil {
		s := req.CompletedAt.Format(rfc3339)
		resp.CompletedAt = &s
	}

	if req.Status == models.StatusCompleted {
		if analysis, err := h.Store.GetAnalysisResult(ctx, requestID); err == nil && analysis != nil {
			resp.Summary = &analysis.Summary
			resp.InferenceTimeMs = &analysis.InferenceTimeMs
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

const rfc3339 = "2006-01-02T15:04:05.999999Z07:00"

// cachedOrStoredRequest implements Status's read-through path: a cache hit
// is trusted only when terminal, since that is the only state Redis can
// never report stale. A non-terminal hit is evicted first; a miss or an
// evicted hit then falls back to the Ledger, and the row read there is
// written back to the cache whatever its status.
func (h *Handler) cachedOrStoredRequest(ctx context.Context, requestID string) (*models.Request, error) {
	if cached, err := h.Cache.GetRequest(ctx, requestID); err == nil {
		if cached.Status.Terminal() {
			return cached, nil
		}
		if err := h.Cache.Invalidate(ctx, requestID); err != nil {
			slog.Warn("cache invalidate failed", "component", "api", "request_id", requestID, "error", err)
		}
	}

	req, err := h.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if err := h.Cache.SetRequest(ctx, req); err != nil {
		slog.Warn("cache write failed", "component", "api", "request_id", requestID, "error", err)
	}
	return req, nil
}

// ListRequests — GET /api/requests?status=&limit=&offset=
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status models.Status
	if s := q.Get("status"); s != "" && s != "all" {
		status = models.Status(s)
	}

	limit := h.DefaultPageSize
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > h.MaxPageSize {
		limit = h.MaxPageSize
	}

	offset := 0
	if o, err := strconv.Atoi(q.Get("offset")); err == nil && o >= 0 {
		offset = o
	}

	reqs, err := h.Store.ListRequests(r.Context(), status, limit, offset)
	if err != nil {
		slog.Error("list requests failed", "component", "api", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reqs)
}

type requestDetail struct {
	models.Request
	SearchResults  []models.SearchResult  `json:"search_results"`
	AnalysisResult *models.AnalysisResult `json:"analysis_result,omitempty"`
}

// GetRequest — GET /api/requests/{request_id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")
	ctx := r.Context()

	req, err := h.Store.GetRequest(ctx, requestID)
	if errors.Is(err, ledger.ErrNotFound) {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("get request failed", "component", "api", "request_id", requestID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	results, err := h.Store.GetSearchResults(ctx, requestID)
	if err != nil {
		slog.Error("get search results failed", "component", "api", "request_id", requestID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	analysis, err := h.Store.GetAnalysisResult(ctx, requestID)
	if err != nil {
		slog.Error("get analysis result failed", "component", "api", "request_id", requestID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requestDetail{
		Request:        *req,
		SearchResults:  results,
		AnalysisResult: analysis,
	})
}

// Metrics — GET /api/metrics
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.GetMetrics(r.Context())
	if err != nil {
		slog.Error("get metrics failed", "component", "api", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}

// SearchRequests — GET /api/requests/search?q=
func (h *Handler) SearchRequests(w http.ResponseWriter, r *http.Request) {
	if h.Search == nil {
		http.Error(w, "search index not configured", http.StatusServiceUnavailable)
		return
	}

	term := r.URL.Query().Get("q")
	if term == "" {
		http.Error(w, "missing required query parameter: q", http.StatusBadRequest)
		return
	}

	result, err := h.Search.Search(r.Context(), term)
	if err != nil {
		slog.Error("search index query failed", "component", "api", "term", term, "error", err)
		http.Error(w, "search engine error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(result)
}
