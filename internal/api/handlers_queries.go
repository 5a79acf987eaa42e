package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/JeremyIV/summary-pyramid/internal/document"
	"github.com/JeremyIV/summary-pyramid/internal/pipeline"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleSubmitQuery(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	query := strings.TrimSpace(r.FormValue("query"))
	if query == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}

	strategy, err := pipeline.ParseStrategy(r.FormValue("strategy"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !document.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	// Read file data.
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	// Optional chunk budget override.
	tokensPerChunk := 0
	if v := r.FormValue("tokens_per_chunk"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			jsonError(w, "tokens_per_chunk must be a positive integer", http.StatusBadRequest)
			return
		}
		tokensPerChunk = n
	}

	now := time.Now()
	job := &pipeline.Job{
		ID:             pipeline.NewJobID(),
		Status:         pipeline.StatusQueued,
		Phase:          "queued",
		Filename:       filename,
		Query:          query,
		Strategy:       strategy,
		TokensPerChunk: tokensPerChunk,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	job.SetFileData(data)

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"status":   job.Status,
		"strategy": job.Strategy,
		"poll_url": fmt.Sprintf("/api/queries/%s/status", job.ID),
	})
}

func (s *Server) handleQueryStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   snap.ID,
		"status":   snap.Status,
		"phase":    snap.Phase,
		"strategy": snap.Strategy,
		"filename": snap.Filename,
		"progress": snap.Progress,
	})
}

func (s *Server) handleQueryAnswer(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}

	snap := job.Snapshot()
	if snap.Status != pipeline.StatusCompleted {
		jsonError(w, fmt.Sprintf("job is %s, not completed", snap.Status), http.StatusConflict)
		return
	}
	res := job.Result()
	if res == nil {
		jsonError(w, "result unavailable", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"job_id":       snap.ID,
		"query":        snap.Query,
		"strategy":     snap.Strategy,
		"total_chunks": snap.Progress.TotalChunks,
		"answer":       res.Answer,
	}
	switch {
	case res.Pyramid != nil:
		resp["levels"] = len(res.Pyramid.Levels)
		resp["final_summary"] = res.Pyramid.Top().Text
	case res.Rollup != nil:
		resp["stages"] = len(res.Rollup.History)
		resp["final_summary"] = res.Rollup.Final()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// summaryJSON renders one pyramid summary with 1-based chunk positions.
type summaryJSON struct {
	ChunkStart int    `json:"chunk_start"`
	ChunkEnd   int    `json:"chunk_end"`
	Text       string `json:"text"`
}

func (s *Server) handleQueryPyramid(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}

	snap := job.Snapshot()
	if snap.Strategy != pipeline.StrategyPyramid {
		jsonError(w, fmt.Sprintf("job used strategy %s, no pyramid was built", snap.Strategy), http.StatusConflict)
		return
	}
	if snap.Status != pipeline.StatusCompleted {
		jsonError(w, fmt.Sprintf("job is %s, not completed", snap.Status), http.StatusConflict)
		return
	}
	res := job.Result()
	if res == nil || res.Pyramid == nil {
		jsonError(w, "result unavailable", http.StatusInternalServerError)
		return
	}

	levels := make([][]summaryJSON, len(res.Pyramid.Levels))
	for i, level := range res.Pyramid.Levels {
		levels[i] = make([]summaryJSON, len(level))
		for j, sum := range level {
			levels[i][j] = summaryJSON{
				ChunkStart: sum.RangeStart + 1,
				ChunkEnd:   sum.RangeEnd + 1,
				Text:       sum.Text,
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":       snap.ID,
		"total_chunks": res.Pyramid.TotalChunks,
		"levels":       levels,
	})
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
