// Package api exposes the node's local HTTP interface: status, recent
// motion events, manual capture, and upload control.
package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaia-earth/fieldcam/internal/camera"
	"github.com/spaia-earth/fieldcam/internal/climate"
	"github.com/spaia-earth/fieldcam/internal/fsutil"
	"github.com/spaia-earth/fieldcam/internal/httputil"
	"github.com/spaia-earth/fieldcam/internal/security"
	"github.com/spaia-earth/fieldcam/internal/storage"
	"github.com/spaia-earth/fieldcam/internal/upload"
	"github.com/spaia-earth/fieldcam/internal/version"
)

// UploadController is the upload manager surface the API needs.
type UploadController interface {
	UploadNow() error
	SetInterval(seconds int) error
	State() (upload.Snapshot, error)
}

// CameraController is the capture controller surface the API needs.
type CameraController interface {
	State() camera.State
	Stats() camera.Stats
	CaptureNow() (string, error)
}

// EventSource lists recent motion events.
type EventSource interface {
	RecentMotionEvents(limit int) ([]storage.MotionEventRecord, error)
}

// ClimateSource supplies the latest environmental reading.
type ClimateSource interface {
	Latest() (climate.Reading, bool)
}

// Server serves the node API. Any collaborator may be nil; the matching
// endpoints then report service unavailable.
type Server struct {
	uploads UploadController
	cam     CameraController
	events  EventSource
	climate ClimateSource

	fs       fsutil.FileSystem
	imageDir string
}

// NewServer wires a Server.
func NewServer(uploads UploadController, cam CameraController, events EventSource, climateSrc ClimateSource) *Server {
	return &Server{
		uploads: uploads,
		cam:     cam,
		events:  events,
		climate: climateSrc,
	}
}

// ServeImages enables GET /api/images/<name>, serving captured stills from
// dir.
func (s *Server) ServeImages(fs fsutil.FileSystem, dir string) {
	s.fs = fs
	s.imageDir = dir
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.statusHandler)
	mux.HandleFunc("/api/events", s.listEventsHandler)
	mux.HandleFunc("/api/capture", s.captureHandler)
	mux.HandleFunc("/api/upload/now", s.uploadNowHandler)
	mux.HandleFunc("/api/upload/interval", s.uploadIntervalHandler)
	if s.imageDir != "" {
		mux.HandleFunc("/api/images/", s.imageHandler)
	}
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) imageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/images/")
	if name == "" {
		httputil.BadRequest(w, "image name required")
		return
	}
	path := filepath.Join(s.imageDir, name)
	if err := security.ValidatePathWithinDirectory(path, s.imageDir); err != nil {
		httputil.NotFound(w, "no such image")
		return
	}

	data, err := s.fs.ReadFile(path)
	if err != nil {
		httputil.NotFound(w, "no such image")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	w.Write([]byte("SPAIA field camera node\n"))
}

type statusResponse struct {
	Version     string           `json:"version"`
	CameraState string           `json:"camera_state,omitempty"`
	Detections  *camera.Stats    `json:"detections,omitempty"`
	Upload      *upload.Snapshot `json:"upload,omitempty"`
	Climate     *climate.Reading `json:"climate,omitempty"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := statusResponse{Version: version.Version}
	if s.cam != nil {
		resp.CameraState = s.cam.State().String()
		stats := s.cam.Stats()
		resp.Detections = &stats
	}
	if s.uploads != nil {
		if snap, err := s.uploads.State(); err == nil {
			resp.Upload = &snap
		}
	}
	if s.climate != nil {
		if reading, ok := s.climate.Latest(); ok {
			resp.Climate = &reading
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.events == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "event store not available")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.events.RecentMotionEvents(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to retrieve events")
		return
	}
	if events == nil {
		events = []storage.MotionEventRecord{}
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) captureHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cam == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "camera not available")
		return
	}

	path, err := s.cam.CaptureNow()
	if err != nil {
		httputil.InternalServerError(w, "capture failed: "+err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"path": path})
}

func (s *Server) uploadNowHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.uploads == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "uploads not available")
		return
	}

	if err := s.uploads.UploadNow(); err != nil {
		httputil.InternalServerError(w, "failed to trigger upload")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "upload triggered"})
}

func (s *Server) uploadIntervalHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.uploads == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "uploads not available")
		return
	}

	seconds, err := strconv.Atoi(r.FormValue("seconds"))
	if err != nil || seconds < 0 {
		httputil.BadRequest(w, "seconds must be a non-negative integer")
		return
	}

	if err := s.uploads.SetInterval(seconds); err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, "scheduler busy, try again")
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"interval_seconds": seconds})
}
