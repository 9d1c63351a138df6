package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/exportappend/internal/importer"
)

// maxRequestBody caps the JSON body of POST /api/imports.
const maxRequestBody = 64 << 10

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListTables returns the staging tables an import may target.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.service.ListTables(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, r, http.StatusOK, map[string][]string{"tables": tables})
}

// handleStartImport launches an import and returns its ID.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	var req importer.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.respondError(w, r, &importer.Error{Kind: importer.ErrInvalidRequest, Field: "body", Err: err})
		return
	}

	id, err := s.service.Start(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/imports/"+id+"/result")
	writeJSON(w, r, http.StatusAccepted, map[string]string{"import_id": id})
}

// handleImportProgress streams import progress via Server-Sent Events.
// Supports resumption via the Last-Event-ID header or lastEventId query
// parameter; event IDs are the 1-based sequence of the event.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("lastEventId")
	}
	after, _ := strconv.Atoi(lastEventID)

	progressCh, err := s.service.Subscribe(r.Context(), importID, after)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	flush := func() bool {
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return false
		}
		return true
	}

	for progress := range progressCh {
		data, err := json.Marshal(progress)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Seq, data)
		if !flush() {
			return
		}
	}

	// The channel also closes when the client goes away.
	if r.Context().Err() != nil {
		return
	}
	fmt.Fprint(w, "event: complete\ndata: {}\n\n")
	flush()
}

// handleImportResult blocks until the import finishes and returns its outcome.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	outcome, err := s.service.Result(r.Context(), importID)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, outcome)
}

// handleImportStatus reports import slot usage.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.LimiterStatus())
}
