package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	bm "github.com/dannycabezas/semantic-firewall/internal/domain/benchmark"
	"github.com/dannycabezas/semantic-firewall/internal/domain/policy"
)

func noopDecision() policy.Decision { return policy.Decision{} }

// fakeBenchmarkStore is an in-memory bm.Store sufficient to exercise the
// benchmark/dataset handler routes without any real persistence.
type fakeBenchmarkStore struct {
	runs     map[string]*bm.Run
	results  map[string][]bm.Result
	metrics  map[string]*bm.Metrics
	datasets map[string]*bm.DatasetMetadata
}

func newFakeBenchmarkStore() *fakeBenchmarkStore {
	return &fakeBenchmarkStore{
		runs:     make(map[string]*bm.Run),
		results:  make(map[string][]bm.Result),
		metrics:  make(map[string]*bm.Metrics),
		datasets: make(map[string]*bm.DatasetMetadata),
	}
}

func (s *fakeBenchmarkStore) CreateRun(run *bm.Run) error { s.runs[run.ID] = run; return nil }
func (s *fakeBenchmarkStore) UpdateRun(run *bm.Run) error { s.runs[run.ID] = run; return nil }
func (s *fakeBenchmarkStore) GetRun(runID string) (*bm.Run, error) {
	r, ok := s.runs[runID]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}
func (s *fakeBenchmarkStore) ListRuns() ([]*bm.Run, error) {
	out := make([]*bm.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out, nil
}
func (s *fakeBenchmarkStore) SaveResultsBatch(results []bm.Result) error {
	for _, r := range results {
		s.results[r.RunID] = append(s.results[r.RunID], r)
	}
	return nil
}
func (s *fakeBenchmarkStore) GetResults(runID string, resultType bm.ResultType, limit, offset int) ([]bm.Result, error) {
	return s.results[runID], nil
}
func (s *fakeBenchmarkStore) GetResultsBySampleIndex(runID string) (map[int]bm.Result, error) {
	out := make(map[int]bm.Result)
	for _, r := range s.results[runID] {
		out[r.SampleIndex] = r
	}
	return out, nil
}
func (s *fakeBenchmarkStore) GetErrors(runID string) ([]bm.Result, error) {
	var out []bm.Result
	for _, r := range s.results[runID] {
		if r.ResultType == bm.ResultError {
			out = append(out, r)
		}
	}
	return out, nil
}
func (s *fakeBenchmarkStore) SaveMetrics(m *bm.Metrics) error { s.metrics[m.RunID] = m; return nil }
func (s *fakeBenchmarkStore) GetMetrics(runID string) (*bm.Metrics, error) {
	m, ok := s.metrics[runID]
	if !ok {
		return nil, errors.New("not found")
	}
	return m, nil
}
func (s *fakeBenchmarkStore) SaveDataset(meta *bm.DatasetMetadata) error {
	s.datasets[meta.ID] = meta
	return nil
}
func (s *fakeBenchmarkStore) GetDataset(id string) (*bm.DatasetMetadata, error) {
	d, ok := s.datasets[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}
func (s *fakeBenchmarkStore) ListDatasets() ([]*bm.DatasetMetadata, error) {
	out := make([]*bm.DatasetMetadata, 0, len(s.datasets))
	for _, d := range s.datasets {
		out = append(out, d)
	}
	return out, nil
}
func (s *fakeBenchmarkStore) DeleteDataset(id string) error {
	delete(s.datasets, id)
	return nil
}

func TestHandleBenchmarkStart_UnavailableWithoutEngine(t *testing.T) {
	h := newTestHandler(t, noopDecision(), fakeBackend{})
	req := httptest.NewRequest(http.MethodPost, "/api/benchmarks/start", bytes.NewReader([]byte(`{"dataset":"jailbreak-bench"}`)))
	w := httptest.NewRecorder()

	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a configured benchmark engine, got %d", w.Code)
	}
}

func TestHandleBenchmarkStatus_StoreBacked(t *testing.T) {
	store := newFakeBenchmarkStore()
	store.runs["run-1"] = &bm.Run{ID: "run-1", Status: bm.StatusRunning}

	h := newTestHandler(t, noopDecision(), fakeBackend{})
	h.benchmarkStore = store

	req := httptest.NewRequest(http.MethodGet, "/api/benchmarks/status/run-1", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var run bm.Run
	if err := json.NewDecoder(w.Body).Decode(&run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID != "run-1" {
		t.Errorf("expected run-1, got %s", run.ID)
	}
}

func TestHandleBenchmarkStatus_NotFound(t *testing.T) {
	h := newTestHandler(t, noopDecision(), fakeBackend{})
	h.benchmarkStore = newFakeBenchmarkStore()

	req := httptest.NewRequest(http.MethodGet, "/api/benchmarks/status/missing", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown run id, got %d", w.Code)
	}
}

func TestHandleBenchmarkRuns(t *testing.T) {
	store := newFakeBenchmarkStore()
	store.runs["run-1"] = &bm.Run{ID: "run-1"}
	store.runs["run-2"] = &bm.Run{ID: "run-2"}

	h := newTestHandler(t, noopDecision(), fakeBackend{})
	h.benchmarkStore = store

	req := httptest.NewRequest(http.MethodGet, "/api/benchmarks/runs", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	var runs []*bm.Run
	if err := json.NewDecoder(w.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestHandleBenchmarkCompare_MissingParams(t *testing.T) {
	h := newTestHandler(t, noopDecision(), fakeBackend{})
	h.benchmarkStore = newFakeBenchmarkStore()

	req := httptest.NewRequest(http.MethodGet, "/api/benchmarks/compare", nil)
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	// No benchmark engine configured: the handler checks for an engine
	// before it validates query params, so this is 503 rather than 400.
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a configured engine, got %d", w.Code)
	}
}

func TestHandleDatasetUpload_AndList(t *testing.T) {
	store := newFakeBenchmarkStore()
	h := newTestHandler(t, noopDecision(), fakeBackend{})
	h.benchmarkStore = store
	h.datasetDir = t.TempDir()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("name", "my-dataset")
	part, err := mw.CreateFormFile("file", "samples.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte("text,label\nhello,benign\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/benchmarks/datasets/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var meta bm.DatasetMetadata
	if err := json.NewDecoder(w.Body).Decode(&meta); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if meta.Name != "my-dataset" {
		t.Errorf("expected name=my-dataset, got %q", meta.Name)
	}
	if meta.TotalSamples != 1 {
		t.Errorf("expected 1 sample counted, got %d", meta.TotalSamples)
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/benchmarks/datasets", nil)
	listW := httptest.NewRecorder()
	h.Routes().ServeHTTP(listW, listReq)

	var datasets []*bm.DatasetMetadata
	if err := json.NewDecoder(listW.Body).Decode(&datasets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(datasets) != 1 {
		t.Fatalf("expected 1 dataset listed, got %d", len(datasets))
	}
}

func TestHandleDatasetUpload_MissingName(t *testing.T) {
	h := newTestHandler(t, noopDecision(), fakeBackend{})
	h.benchmarkStore = newFakeBenchmarkStore()
	h.datasetDir = t.TempDir()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "samples.csv")
	part.Write([]byte("text,label\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/benchmarks/datasets/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing name field, got %d", w.Code)
	}
}
