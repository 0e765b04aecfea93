package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dannycabezas/semantic-firewall/internal/adapter/outbound/dataset"
	bm "github.com/dannycabezas/semantic-firewall/internal/domain/benchmark"
	"github.com/dannycabezas/semantic-firewall/internal/service/gateway"
)

// startBenchmarkRequest is the body of POST /api/benchmarks/start.
type startBenchmarkRequest struct {
	Dataset         string                  `json:"dataset"`
	Split           string                  `json:"split"`
	MaxSamples      int                     `json:"max_samples"`
	TenantID        string                  `json:"tenant_id"`
	DetectorConfig  *gateway.DetectorConfig `json:"detector_config,omitempty"`
	CustomDatasetID string                  `json:"custom_dataset_id,omitempty"`
}

// handleBenchmarkStart serves POST /api/benchmarks/start.
func (h *Handler) handleBenchmarkStart(w http.ResponseWriter, r *http.Request) {
	if h.benchmarkEngine == nil {
		h.respondErr(w, h.benchmarkUnavailable())
		return
	}

	var req startBenchmarkRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if req.Dataset == "" && req.CustomDatasetID == "" {
		h.respondError(w, http.StatusBadRequest, "dataset or custom_dataset_id is required")
		return
	}
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = h.tenantID
	}

	analyzer := h.gateway.DefaultAnalyzer()
	if req.DetectorConfig != nil {
		analyzer = h.gateway.AnalyzerFor(*req.DetectorConfig)
	}

	runID, err := h.benchmarkEngine.StartBenchmarkWithAnalyzer(r.Context(), analyzer, req.Dataset, req.Split, req.MaxSamples, tenantID, req.CustomDatasetID)
	if err != nil {
		h.respondErr(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"run_id": runID})
}

// handleBenchmarkStatus serves GET /api/benchmarks/status/{id}.
func (h *Handler) handleBenchmarkStatus(w http.ResponseWriter, r *http.Request) {
	if h.benchmarkStore == nil {
		h.respondErr(w, h.benchmarkUnavailable())
		return
	}
	runID := h.pathParam(r, "id")
	run, err := h.benchmarkStore.GetRun(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", runID))
		return
	}
	h.respondJSON(w, http.StatusOK, run)
}

// handleBenchmarkCancel serves POST /api/benchmarks/cancel/{id}.
func (h *Handler) handleBenchmarkCancel(w http.ResponseWriter, r *http.Request) {
	if h.benchmarkEngine == nil {
		h.respondErr(w, h.benchmarkUnavailable())
		return
	}
	runID := h.pathParam(r, "id")
	cancelled := h.benchmarkEngine.CancelBenchmark(runID)
	h.respondJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

// handleBenchmarkRuns serves GET /api/benchmarks/runs.
func (h *Handler) handleBenchmarkRuns(w http.ResponseWriter, r *http.Request) {
	if h.benchmarkStore == nil {
		h.respondErr(w, h.benchmarkUnavailable())
		return
	}
	runs, err := h.benchmarkStore.ListRuns()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, runs)
}

// handleBenchmarkResults serves GET /api/benchmarks/results/{id}?result_type&limit&offset.
func (h *Handler) handleBenchmarkResults(w http.ResponseWriter, r *http.Request) {
	if h.benchmarkStore == nil {
		h.respondErr(w, h.benchmarkUnavailable())
		return
	}
	runID := h.pathParam(r, "id")
	resultType := bm.ResultType(r.URL.Query().Get("result_type"))
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	results, err := h.benchmarkStore.GetResults(runID, resultType, limit, offset)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, results)
}

// handleBenchmarkMetrics serves GET /api/benchmarks/metrics/{id}.
func (h *Handler) handleBenchmarkMetrics(w http.ResponseWriter, r *http.Request) {
	if h.benchmarkStore == nil {
		h.respondErr(w, h.benchmarkUnavailable())
		return
	}
	runID := h.pathParam(r, "id")
	m, err := h.benchmarkStore.GetMetrics(runID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, fmt.Sprintf("no metrics for run %s", runID))
		return
	}
	h.respondJSON(w, http.StatusOK, m)
}

// handleBenchmarkErrors serves GET /api/benchmarks/errors/{id}.
func (h *Handler) handleBenchmarkErrors(w http.ResponseWriter, r *http.Request) {
	if h.benchmarkStore == nil {
		h.respondErr(w, h.benchmarkUnavailable())
		return
	}
	runID := h.pathParam(r, "id")
	errs, err := h.benchmarkStore.GetErrors(runID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, errs)
}

// handleBenchmarkCompare serves GET /api/benchmarks/compare?baseline_run_id&candidate_run_ids=csv.
func (h *Handler) handleBenchmarkCompare(w http.ResponseWriter, r *http.Request) {
	if h.benchmarkEngine == nil {
		h.respondErr(w, h.benchmarkUnavailable())
		return
	}
	baseline := r.URL.Query().Get("baseline_run_id")
	if baseline == "" {
		h.respondError(w, http.StatusBadRequest, "baseline_run_id is required")
		return
	}
	candidatesRaw := r.URL.Query().Get("candidate_run_ids")
	if candidatesRaw == "" {
		h.respondError(w, http.StatusBadRequest, "candidate_run_ids is required")
		return
	}
	candidates := strings.Split(candidatesRaw, ",")

	report, err := h.benchmarkEngine.CompareBenchmarks(baseline, candidates)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}

// handleDatasetUpload serves POST /api/benchmarks/datasets/upload
// (multipart: name, description?, file).
func (h *Handler) handleDatasetUpload(w http.ResponseWriter, r *http.Request) {
	if h.benchmarkStore == nil {
		h.respondErr(w, h.benchmarkUnavailable())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		h.respondError(w, http.StatusBadRequest, "request too large or not multipart")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		h.respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	description := r.FormValue("description")

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "missing 'file' field")
		return
	}
	defer file.Close()

	fileType := bm.FileTypeCSV
	ext := ".csv"
	if strings.EqualFold(filepath.Ext(header.Filename), ".json") {
		fileType = bm.FileTypeJSON
		ext = ".json"
	}

	if err := os.MkdirAll(h.datasetDir, 0o755); err != nil {
		h.respondError(w, http.StatusInternalServerError, "server error")
		return
	}

	id := uuid.NewString()
	diskName := id + ext
	destPath := filepath.Join(h.datasetDir, diskName)
	dest, err := os.Create(destPath)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "server error")
		return
	}
	defer dest.Close()

	if _, err := io.Copy(dest, file); err != nil {
		h.respondError(w, http.StatusInternalServerError, "server error")
		return
	}

	countFile, err := os.Open(destPath)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "server error")
		return
	}
	total, err := dataset.CountSamples(countFile, fileType)
	countFile.Close()
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "could not parse uploaded dataset: "+err.Error())
		return
	}

	meta := &bm.DatasetMetadata{
		ID:           id,
		Name:         name,
		Description:  description,
		FileKey:      "datasets/" + diskName,
		FileType:     fileType,
		TotalSamples: total,
	}
	if err := h.benchmarkStore.SaveDataset(meta); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.respondJSON(w, http.StatusOK, meta)
}

// handleDatasetList serves GET /api/benchmarks/datasets.
func (h *Handler) handleDatasetList(w http.ResponseWriter, r *http.Request) {
	if h.benchmarkStore == nil {
		h.respondErr(w, h.benchmarkUnavailable())
		return
	}
	datasets, err := h.benchmarkStore.ListDatasets()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, datasets)
}

// handleDatasetDelete serves DELETE /api/benchmarks/datasets/{id}.
func (h *Handler) handleDatasetDelete(w http.ResponseWriter, r *http.Request) {
	if h.benchmarkStore == nil {
		h.respondErr(w, h.benchmarkUnavailable())
		return
	}
	id := h.pathParam(r, "id")
	meta, err := h.benchmarkStore.GetDataset(id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, fmt.Sprintf("dataset %s not found", id))
		return
	}
	if err := h.benchmarkStore.DeleteDataset(id); err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = os.Remove(filepath.Join(h.datasetDir, filepath.Base(meta.FileKey)))
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
