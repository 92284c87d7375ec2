package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// DownloadAllRequest chooses the directory download-all writes to.
type DownloadAllRequest struct {
	Directory string `json:"directory,omitempty"`
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	g := s.service.Gallery()
	entries := g.List()

	resp := GalleryResponse{
		Recordings: make([]RecordingResponse, 0, len(entries)),
		TotalCount: len(entries),
		Capacity:   g.Capacity(),
	}
	// Newest first for the UI.
	for i := len(entries) - 1; i >= 0; i-- {
		resp.Recordings = append(resp.Recordings, entryResponse(entries[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDownload streams one recording as an attachment
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := s.service.Gallery().Get(id)
	if err != nil {
		s.sendErrorResponse(w, errorStatus(err), err.Error(), "id", id)
		return
	}

	w.Header().Set("Content-Type", e.Artifact.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", e.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(e.Artifact.Size()))
	if _, err := w.Write(e.Artifact.Data); err != nil {
		s.logger.Error("Error serving recording download", "id", id, "error", err)
	}
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.Gallery().Remove(id); err != nil {
		s.sendErrorResponse(w, errorStatus(err), err.Error(), "id", id)
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Recording removed"})
}

func (s *Server) handleRemoveAll(w http.ResponseWriter, r *http.Request) {
	n := s.service.Gallery().RemoveAll()
	writeJSON(w, http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("%d recordings removed", n),
	})
}

// handleDownloadAll writes every recording to disk, one after another.
func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	var req DownloadAllRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Invalid request body", "operation", "download_all")
			return
		}
	}
	dir := req.Directory
	if dir == "" {
		dir = s.cfg.OutputDirectory
	}
	if dir == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "No output directory configured", "operation", "download_all")
		return
	}

	paths, err := s.service.Gallery().DownloadAll(r.Context(), dir)
	if err != nil {
		s.sendErrorResponse(w, errorStatus(err), fmt.Sprintf("Download failed: %v", err),
			"directory", dir, "written", len(paths))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"files":   paths,
	})
}
