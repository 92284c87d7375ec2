package server

import (
	"fmt"
	"net/http"
)

const mjpegBoundary = "clipcaptureframe"

// handlePreview streams the live camera as multipart MJPEG. It only reads
// the device stream; the stream keeps running when the client goes away.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	frames, cancel, err := s.service.Preview(r.Context())
	if err != nil {
		s.sendErrorResponse(w, errorStatus(err), fmt.Sprintf("Camera unavailable: %v", err),
			"operation", "preview")
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				fmt.Fprintf(w, "--%s--\r\n", mjpegBoundary)
				return
			}
			if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n",
				mjpegBoundary, len(frame)); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := w.Write([]byte("\r\n")); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				s.logger.Debug("Preview stream cannot flush", "error", err)
				return
			}
		}
	}
}
