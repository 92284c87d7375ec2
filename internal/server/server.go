package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/audiolibrelab/clipcapture/internal/capture"
	"github.com/audiolibrelab/clipcapture/internal/device"
	"github.com/audiolibrelab/clipcapture/internal/gallery"
	"github.com/audiolibrelab/clipcapture/internal/monitor"
	"github.com/audiolibrelab/clipcapture/internal/protocol"
	"github.com/audiolibrelab/clipcapture/internal/service"
)

// Config holds HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: all interfaces).
	Host string
	// Port is the port to listen on.
	Port int
	// Version tags the static page; browsers revalidate it with If-None-Match.
	Version string
	// TracksDirectory receives uploaded music tracks.
	TracksDirectory string
	// TrackExtensions lists the accepted upload extensions.
	TrackExtensions []string
	// OutputDirectory receives recordings saved with download-all.
	OutputDirectory string
	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration
}

// Server represents the web server for controlling ClipCapture
type Server struct {
	service    service.Service
	cfg        Config
	router     *chi.Mux
	monitor    *monitor.WebRTCHandler
	httpServer *http.Server
	logger     *slog.Logger
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	service.Status
	Message string `json:"message,omitempty"`
}

// RecordingResponse describes a finished recording.
type RecordingResponse struct {
	ID          string        `json:"id"`
	Filename    string        `json:"filename"`
	MimeType    string        `json:"mime_type"`
	Duration    time.Duration `json:"duration"`
	Size        int           `json:"size"`
	SizeHuman   string        `json:"size_human"`
	AddedAt     time.Time     `json:"added_at,omitempty"`
	DownloadURL string        `json:"download_url"`
}

// GalleryResponse represents the JSON response for the gallery endpoint
type GalleryResponse struct {
	Recordings []RecordingResponse `json:"recordings"`
	TotalCount int                 `json:"total_count"`
	Capacity   int                 `json:"capacity"`
}

// TracksResponse represents the JSON response for the tracks endpoint
type TracksResponse struct {
	Tracks              []service.TrackInfo `json:"tracks"`
	TotalCount          int                 `json:"total_count"`
	TracksDirectory     string              `json:"tracks_directory"`
	SupportedExtensions []string            `json:"supported_extensions"`
}

// TrackSelectRequest represents a request to select a music track
type TrackSelectRequest struct {
	Name string `json:"name"`
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// New creates a new web server instance
func New(svc service.Service, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		service: svc,
		cfg:     cfg,
		router:  chi.NewRouter(),
		monitor: monitor.NewWebRTCHandler(svc.Monitor()),
		logger:  logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/preview.mjpg", s.handlePreview)
	r.Post("/monitor", s.monitor.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Post("/record/start", s.handleStart)
		r.Post("/record/stop", s.handleStop)
		r.Post("/record/toggle", s.handleToggle)
		r.Post("/camera/switch", s.handleSwitchCamera)

		r.Get("/tracks", s.handleTracks)
		r.Post("/tracks/select", s.handleSelectTrack)
		r.Post("/tracks/upload", s.handleUploadTrack)

		r.Get("/gallery", s.handleGallery)
		r.Delete("/gallery", s.handleRemoveAll)
		r.Post("/gallery/download-all", s.handleDownloadAll)
		r.Get("/gallery/{id}", s.handleDownload)
		r.Delete("/gallery/{id}", s.handleRemove)
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting ClipCapture Web Server",
		"address", addr,
		"local_url", fmt.Sprintf("http://%s:%d", getLocalIP(), s.cfg.Port),
		"version", s.cfg.Version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("starting server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})
	return g.Wait()
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down web server", "timeout", s.cfg.ShutdownTimeout)
	s.monitor.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// handleStatus returns the current controller status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.service.Status()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  st,
		Message: statusMessage(st),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Start(r.Context()); err != nil {
		s.sendErrorResponse(w, errorStatus(err), fmt.Sprintf("Failed to start recording: %v", err),
			"operation", "start")
		return
	}
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Recording started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	a, err := s.service.Stop(r.Context())
	if err != nil {
		s.sendErrorResponse(w, errorStatus(err), fmt.Sprintf("Failed to stop recording: %v", err),
			"operation", "stop")
		return
	}
	if a == nil {
		writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Countdown cancelled"})
		return
	}

	resp := recordingResponse(a, "", time.Time{})
	if e, err := s.service.Gallery().Get(a.ID); err == nil {
		resp = entryResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	state, err := s.service.ToggleSource()
	if err != nil {
		s.sendErrorResponse(w, errorStatus(err), fmt.Sprintf("Failed to toggle source: %v", err),
			"operation", "toggle", "state", state)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"state":   state,
		"source":  state.Source(),
	})
}

func (s *Server) handleSwitchCamera(w http.ResponseWriter, r *http.Request) {
	facing, err := s.service.SwitchFacing(r.Context())
	if err != nil {
		s.sendErrorResponse(w, errorStatus(err), fmt.Sprintf("Failed to switch camera: %v", err),
			"operation", "switch_camera")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"facing":  facing,
	})
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	logFields = append(logFields, logContext...)
	if statusCode >= http.StatusInternalServerError {
		s.logger.Error("Sending error response to client", logFields...)
	} else {
		s.logger.Warn("Sending error response to client", logFields...)
	}

	writeJSON(w, statusCode, GenericResponse{Success: false, Error: errorMsg})
}

// errorStatus maps controller errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrAlreadyRecording),
		errors.Is(err, service.ErrNotRecording),
		errors.Is(err, service.ErrSwitchingCamera),
		errors.Is(err, protocol.ErrSwitchPending),
		errors.Is(err, protocol.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoTrackSelected):
		return http.StatusPreconditionFailed
	case errors.Is(err, device.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNoDevice),
		errors.Is(err, device.ErrDeviceUnavailable),
		errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, gallery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func statusMessage(st service.Status) string {
	switch st.State {
	case service.StatusCountdown:
		return fmt.Sprintf("Recording starts in %d s", int((st.CountdownRemaining+time.Second-1)/time.Second))
	case service.StatusRecording:
		if st.Protocol == protocol.StatePreRoll {
			return "Recording microphone pre-roll"
		}
		return fmt.Sprintf("Recording %s - %s", st.Source, st.RecordedHuman)
	case service.StatusFinalizing:
		return "Finalizing recording"
	default:
		return st.LastError
	}
}

func recordingResponse(a *capture.Artifact, filename string, added time.Time) RecordingResponse {
	return RecordingResponse{
		ID:          a.ID,
		Filename:    filename,
		MimeType:    a.MimeType,
		Duration:    a.Duration,
		Size:        a.Size(),
		SizeHuman:   a.HumanSize(),
		AddedAt:     added,
		DownloadURL: "/api/gallery/" + a.ID,
	}
}

func entryResponse(e *gallery.Entry) RecordingResponse {
	return recordingResponse(e.Artifact, e.Filename, e.AddedAt)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// requestLogger logs each request with its status and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			level := slog.LevelDebug
			if ww.Status() >= 500 {
				level = slog.LevelError
			} else if ww.Status() >= 400 {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"size", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()))
		})
	}
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
