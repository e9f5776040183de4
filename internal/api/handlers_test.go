package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"research-pipeline/internal/ledger"
	"research-pipeline/internal/models"
	"research-pipeline/internal/queue"
)

// fakeStore is an in-memory RequestStore for handler tests.
type fakeStore struct {
	requests     map[string]*models.Request
	searchCounts map[string]int
	analysis     map[string]*models.AnalysisResult
	nextID       int
	createErr    error
	transErr     error
	getCalls     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests:     map[string]*models.Request{},
		searchCounts: map[string]int{},
		analysis:     map[string]*models.AnalysisResult{},
	}
}

func (f *fakeStore) CreateRequest(ctx context.Context, topic string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := "req-" + time.Now().Format("150405") + "-" + string(rune('a'+f.nextID))
	f.requests[id] = &models.Request{
		ID:        id,
		Topic:     topic,
		Status:    models.StatusPending,
		CreatedAt: time.Unix(0, 0).UTC(),
		UpdatedAt: time.Unix(0, 0).UTC(),
	}
	return id, nil
}

func (f *fakeStore) TransitionStatus(ctx context.Context, requestID string, status models.Status) error {
	if f.transErr != nil {
		return f.transErr
	}
	req, ok := f.requests[requestID]
	if !ok {
		return ledger.ErrNotFound
	}
	req.Status = status
	return nil
}

func (f *fakeStore) GetRequest(ctx context.Context, requestID string) (*models.Request, error) {
	f.getCalls++
	req, ok := f.requests[requestID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return req, nil
}

func (f *fakeStore) ListRequests(ctx context.Context, status models.Status, limit, offset int) ([]models.Request, error) {
	var out []models.Request
	for _, r := range f.requests {
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) GetSearchResults(ctx context.Context, requestID string) ([]models.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) CountSearchResults(ctx context.Context, requestID string) (int, error) {
	return f.searchCounts[requestID], nil
}

func (f *fakeStore) GetAnalysisResult(ctx context.Context, requestID string) (*models.AnalysisResult, error) {
	return f.analysis[requestID], nil
}

func (f *fakeStore) GetMetrics(ctx context.Context) (*ledger.Metrics, error) {
	return &ledger.Metrics{RequestsByStatus: map[string]int64{}}, nil
}

// fakeCache is an in-memory RequestCache recording reads/writes/evictions.
type fakeCache struct {
	stored      map[string]*models.Request
	getCalls    int
	invalidated []string
}

func (f *fakeCache) SetRequest(ctx context.Context, req *models.Request) error {
	if f.stored == nil {
		f.stored = map[string]*models.Request{}
	}
	f.stored[req.ID] = req
	return nil
}

func (f *fakeCache) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	f.getCalls++
	req, ok := f.stored[id]
	if !ok {
		return nil, errNotCached
	}
	return req, nil
}

func (f *fakeCache) Invalidate(ctx context.Context, id string) error {
	f.invalidated = append(f.invalidated, id)
	delete(f.stored, id)
	return nil
}

var errNotCached = &cacheMiss{}

type cacheMiss struct{}

func (*cacheMiss) Error() string { return "not cached" }

// fakeQueue records every published task.
type fakeQueue struct {
	published []queue.Task
	publishErr error
}

func (f *fakeQueue) Publish(ctx context.Context, topic string, task queue.Task) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, task)
	return nil
}

// fakeSearch is a RequestSearch stub.
type fakeSearch struct {
	result json.RawMessage
	err    error
}

func (f *fakeSearch) Search(ctx context.Context, term string) (json.RawMessage, error) {
	return f.result, f.err
}

func newTestHandler() (*Handler, *fakeStore, *fakeQueue) {
	store := newFakeStore()
	q := &fakeQueue{}
	h := &Handler{
		Store:           store,
		Cache:           &fakeCache{},
		Queue:           q,
		SearchTopic:     "search-queue",
		DefaultPageSize: 20,
		MaxPageSize:     100,
	}
	return h, store, q
}

func TestAnalyze_OrderingAndResponse(t *testing.T) {
	h, store, q := newTestHandler()

	body, _ := json.Marshal(analyzeRequest{Topic: "rust vs go"})
	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Analyze(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp analyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(models.StatusSearching) {
		t.Errorf("expected status %q, got %q", models.StatusSearching, resp.Status)
	}

	if len(q.published) != 1 {
		t.Fatalf("expected exactly one published task, got %d", len(q.published))
	}
	if q.published[0].RequestID != resp.RequestID {
		t.Errorf("published task request_id mismatch: %q vs %q", q.published[0].RequestID, resp.RequestID)
	}

	stored := store.requests[resp.RequestID]
	if stored.Status != models.StatusSearching {
		t.Errorf("expected stored status searching, got %q", stored.Status)
	}
}

func TestAnalyze_MissingTopicRejected(t *testing.T) {
	h, _, _ := newTestHandler()

	body, _ := json.Marshal(analyzeRequest{Topic: "   "})
	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Analyze(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAnalyze_QueuePublishFailureDoesNotTransition(t *testing.T) {
	h, store, q := newTestHandler()
	q.publishErr = context.DeadlineExceeded

	body, _ := json.Marshal(analyzeRequest{Topic: "topic"})
	req := httptest.NewRequest(http.MethodPost, "/analyze", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Analyze(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	for _, r := range store.requests {
		if r.Status != models.StatusPending {
			t.Errorf("expected request to remain pending after publish failure, got %q", r.Status)
		}
	}
}

func TestStatus_NotFound(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/status/does-not-exist", nil)
	req.SetPathValue("request_id", "does-not-exist")
	rec := httptest.NewRecorder()

	h.Status(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStatus_CompletedIncludesSummary(t *testing.T) {
	h, store, _ := newTestHandler()
	store.requests["r1"] = &models.Request{ID: "r1", Topic: "t", Status: models.StatusCompleted}
	store.analysis["r1"] = &models.AnalysisResult{RequestID: "r1", Summary: "the answer", InferenceTimeMs: 42}

	req := httptest.NewRequest(http.MethodGet, "/status/r1", nil)
	req.SetPathValue("request_id", "r1")
	rec := httptest.NewRecorder()

	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Summary == nil || *resp.Summary != "the answer" {
		t.Errorf("expected summary to be populated, got %v", resp.Summary)
	}
	if resp.InferenceTimeMs == nil || *resp.InferenceTimeMs != 42 {
		t.Errorf("expected inference_time_ms 42, got %v", resp.InferenceTimeMs)
	}
}

func TestStatus_PendingOmitsSummary(t *testing.T) {
	h, store, _ := newTestHandler()
	store.requests["r2"] = &models.Request{ID: "r2", Topic: "t", Status: models.StatusPending}

	req := httptest.NewRequest(http.MethodGet, "/status/r2", nil)
	req.SetPathValue("request_id", "r2")
	rec := httptest.NewRecorder()

	h.Status(rec, req)

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Summary != nil {
		t.Errorf("expected no summary for non-completed request, got %v", *resp.Summary)
	}
}

func TestStatus_TerminalCacheHitSkipsStore(t *testing.T) {
	h, store, _ := newTestHandler()
	store.requests["r3"] = &models.Request{ID: "r3", Topic: "t", Status: models.StatusCompleted}

	req := httptest.NewRequest(http.MethodGet, "/status/r3", nil)
	req.SetPathValue("request_id", "r3")
	h.Status(httptest.NewRecorder(), req)

	if store.getCalls != 1 {
		t.Fatalf("expected exactly one store read to prime the cache, got %d", store.getCalls)
	}

	// Second read should be served entirely from the cache: the completed
	// row can never change again, so the store must not be consulted.
	req2 := httptest.NewRequest(http.MethodGet, "/status/r3", nil)
	req2.SetPathValue("request_id", "r3")
	rec2 := httptest.NewRecorder()
	h.Status(rec2, req2)

	if store.getCalls != 1 {
		t.Errorf("expected terminal cache hit to skip the store, but store was read %d times", store.getCalls)
	}
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec2.Code)
	}
}

func TestStatus_NonTerminalCacheHitIsInvalidatedAndRefetched(t *testing.T) {
	h, store, _ := newTestHandler()
	store.requests["r4"] = &models.Request{ID: "r4", Topic: "t", Status: models.StatusAnalyzing}

	cache := h.Cache.(*fakeCache)
	// Prime the cache with a stale non-terminal snapshot, as if it was
	// written before the row advanced further.
	cache.stored = map[string]*models.Request{
		"r4": {ID: "r4", Topic: "t", Status: models.StatusSearching},
	}

	req := httptest.NewRequest(http.MethodGet, "/status/r4", nil)
	req.SetPathValue("request_id", "r4")
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.getCalls != 1 {
		t.Errorf("expected non-terminal cache hit to fall through to the store, got %d store reads", store.getCalls)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "r4" {
		t.Errorf("expected the stale cache entry to be invalidated, got %v", cache.invalidated)
	}

	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != string(models.StatusAnalyzing) {
		t.Errorf("expected the fresh store status to be served, got %q", resp.Status)
	}
}

func TestListRequests_LimitClamping(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/requests?limit=9999", nil)
	rec := httptest.NewRecorder()

	h.ListRequests(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	// The handler doesn't echo the resolved limit back, but it must not
	// panic or reject an oversized value — it silently clamps to MaxPageSize.
}

func TestSearchRequests_NotConfigured(t *testing.T) {
	h, _, _ := newTestHandler()
	h.Search = nil

	req := httptest.NewRequest(http.MethodGet, "/api/requests/search?q=golang", nil)
	rec := httptest.NewRecorder()

	h.SearchRequests(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSearchRequests_MissingQuery(t *testing.T) {
	h, _, _ := newTestHandler()
	h.Search = &fakeSearch{result: json.RawMessage(`{}`)}

	req := httptest.NewRequest(http.MethodGet, "/api/requests/search", nil)
	rec := httptest.NewRecorder()

	h.SearchRequests(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSearchRequests_OK(t *testing.T) {
	h, _, _ := newTestHandler()
	h.Search = &fakeSearch{result: json.RawMessage(`{"hits":[]}`)}

	req := httptest.NewRequest(http.MethodGet, "/api/requests/search?q=golang", nil)
	rec := httptest.NewRecorder()

	h.SearchRequests(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"hits":[]}` {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestGetRequest_NotFound(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/requests/missing", nil)
	req.SetPathValue("request_id", "missing")
	rec := httptest.NewRecorder()

	h.GetRequest(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
