package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vendaflow/crmimport/internal/importer"
	"github.com/vendaflow/crmimport/internal/web/middleware"
)

// handleFields returns the canonical field table for the mapping UI.
func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, importer.Fields())
}

// handleAnalyze parses an uploaded file and returns headers, the auto-mapped
// columns and whether the import can start. Nothing is persisted.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	fileName, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	analysis, err := importer.Analyze(fileName, data)
	if err != nil {
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, analysis)
}

// handleStart validates file and mapping, then kicks off an import run.
// Returns 422 for blocking conditions; row-level problems surface later in
// the run's outcome, never here.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	tenant, ok := middleware.TenantID(r.Context())
	if !ok {
		s.respondError(w, r, fmt.Errorf("missing tenant"), http.StatusBadRequest)
		return
	}

	fileName, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	var mapping importer.ColumnMapping
	if raw := r.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			s.respondError(w, r, fmt.Errorf("invalid mapping format: %w", err), http.StatusBadRequest)
			return
		}
	}

	hasHeader := true
	if raw := r.FormValue("has_header"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			s.respondError(w, r, fmt.Errorf("invalid has_header value: %w", err), http.StatusBadRequest)
			return
		}
		hasHeader = v
	}

	runID, err := s.service.Start(tenant, fileName, data, mapping, hasHeader)
	if err != nil {
		s.respondError(w, r, err, http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, map[string]string{"run_id": runID})
}

// handleProgress streams run progress via Server-Sent Events until the run
// completes.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	ch, err := s.service.SubscribeProgress(runID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming unsupported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "retry: %d\n\n", sseRetry.Milliseconds())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case p, open := <-ch:
			if !open {
				fmt.Fprint(w, "event: done\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			payload, err := json.Marshal(struct {
				importer.Progress
				Percent int `json:"percent"`
			}{p, p.Percent()})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// handleResult blocks until the run completes, then returns its outcome.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	result, err := s.service.Result(runID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, result)
}

// handleFailedCSV exports a run's failed rows as BOM-prefixed CSV so the user
// can fix and re-import just the failures.
func (s *Server) handleFailedCSV(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	result, err := s.service.Result(runID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	rows := make([][]string, 0, len(result.FailedRows)+1)
	rows = append(rows, []string{"row", "error", "data"})
	for _, fr := range result.FailedRows {
		cells := []string{strconv.Itoa(fr.Index), fr.Message}
		cells = append(cells, fr.Data...)
		rows = append(rows, cells)
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="failed_rows.csv"`)
	_, _ = w.Write(importer.MarshalRows(rows))
}

// readUpload extracts the multipart file, enforcing the size limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		s.respondError(w, r, fmt.Errorf("file too large or invalid form: %w", err), http.StatusBadRequest)
		return "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, fmt.Errorf("no file provided: %w", err), http.StatusBadRequest)
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusInternalServerError)
		return "", nil, false
	}

	return header.Filename, data, true
}
