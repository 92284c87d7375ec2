package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxUploadSize bounds uploaded music tracks.
const maxUploadSize = 64 << 20

var defaultTrackExtensions = []string{"mp3", "flac", "wav", "ogg", "m4a", "opus"}

func (s *Server) trackExtensions() []string {
	if len(s.cfg.TrackExtensions) > 0 {
		return s.cfg.TrackExtensions
	}
	return defaultTrackExtensions
}

func (s *Server) supportedTrack(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, e := range s.trackExtensions() {
		if strings.EqualFold(strings.TrimPrefix(e, "."), ext) {
			return true
		}
	}
	return false
}

// handleTracks lists the music tracks, the selected one first
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.service.ListTracks()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list tracks: %v", err),
			"operation", "list_tracks")
		return
	}

	writeJSON(w, http.StatusOK, TracksResponse{
		Tracks:              tracks,
		TotalCount:          len(tracks),
		TracksDirectory:     s.cfg.TracksDirectory,
		SupportedExtensions: s.trackExtensions(),
	})
}

func (s *Server) handleSelectTrack(w http.ResponseWriter, r *http.Request) {
	var req TrackSelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid request body", "operation", "select_track")
		return
	}
	if req.Name == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Track name is required", "operation", "select_track")
		return
	}
	if strings.Contains(req.Name, "..") || strings.ContainsAny(req.Name, `/\`) {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid track name", "name", req.Name)
		return
	}

	info, err := s.service.SelectTrack(r.Context(), req.Name)
	if err != nil {
		s.sendErrorResponse(w, selectStatus(err), fmt.Sprintf("Failed to select track: %v", err),
			"name", req.Name, "operation", "select_track")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleUploadTrack stores an uploaded music file in the tracks directory
// and selects it.
func (s *Server) handleUploadTrack(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TracksDirectory == "" {
		s.sendErrorResponse(w, http.StatusServiceUnavailable, "No tracks directory configured", "operation", "upload_track")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse multipart form", "error", err)
		return
	}

	file, handler, err := r.FormFile("track")
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "No music file provided", "operation", "upload_track")
		return
	}
	defer file.Close()

	safeFilename := filepath.Base(handler.Filename)
	if !s.supportedTrack(safeFilename) {
		s.sendErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid music file format. Supported: %s", strings.Join(s.trackExtensions(), ", ")),
			"filename", safeFilename)
		return
	}

	if err := os.MkdirAll(s.cfg.TracksDirectory, 0755); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Failed to create tracks directory", "error", err)
		return
	}

	// If file already exists, add timestamp to make it unique
	destPath := filepath.Join(s.cfg.TracksDirectory, safeFilename)
	if _, err := os.Stat(destPath); err == nil {
		ext := filepath.Ext(safeFilename)
		name := strings.TrimSuffix(safeFilename, ext)
		safeFilename = fmt.Sprintf("%s_%s%s", name, time.Now().Format("20060102_150405"), ext)
		destPath = filepath.Join(s.cfg.TracksDirectory, safeFilename)
	}

	destFile, err := os.Create(destPath)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, "Failed to create destination file", "error", err)
		return
	}
	size, err := io.Copy(destFile, file)
	closeErr := destFile.Close()
	if err != nil || closeErr != nil {
		os.Remove(destPath)
		s.sendErrorResponse(w, http.StatusInternalServerError, "Failed to save file", "error", err, "close_error", closeErr)
		return
	}
	s.logger.Info("Music track uploaded", "filename", safeFilename, "size", size)

	info, err := s.service.SelectTrack(r.Context(), safeFilename)
	if err != nil {
		s.sendErrorResponse(w, selectStatus(err), fmt.Sprintf("Uploaded but failed to select: %v", err),
			"filename", safeFilename)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// selectStatus maps selection failures; an unreadable file is the client's
// problem unless the controller reports otherwise.
func selectStatus(err error) int {
	if code := errorStatus(err); code != http.StatusInternalServerError {
		return code
	}
	return http.StatusUnprocessableEntity
}
