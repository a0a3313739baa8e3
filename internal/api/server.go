package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/services"
	"dubber/internal/storage"
	"dubber/internal/store"
	"dubber/internal/workflow"
)

// Server is the daemon's HTTP API.
type Server struct {
	bind    string
	store   *store.Store
	manager *workflow.Manager
	paths   storage.Paths
	mode    store.Mode
	logger  *slog.Logger

	mux      *http.ServeMux
	listener net.Listener
	server   *http.Server
}

// NewServer constructs the API server. It returns nil when no bind address
// is configured.
func NewServer(cfg *config.Config, st *store.Store, manager *workflow.Manager, logger *slog.Logger) *Server {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	mode, ok := store.ParseMode(cfg.Pipeline.Mode)
	if !ok {
		mode = store.ModeChunked
	}

	s := &Server{
		bind:    bind,
		store:   st,
		manager: manager,
		paths:   storage.NewPaths(cfg.Paths.StorageDir),
		mode:    mode,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/videos", s.handleList)
	s.mux.HandleFunc("POST /api/videos", s.handleSubmit)
	s.mux.HandleFunc("GET /api/videos/{id}", s.handleGet)
	s.mux.HandleFunc("DELETE /api/videos/{id}", s.handleDelete)
	s.mux.HandleFunc("POST /api/videos/{id}/retry", s.handleRetry)
	s.mux.HandleFunc("POST /api/videos/retry-all", s.handleRetryAll)
	s.mux.HandleFunc("GET /api/videos/{id}/playlist", s.handlePlaylist)
	s.mux.HandleFunc("GET /api/videos/{id}/files/", s.handleFiles)

	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the routing table for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving and shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp StatusResponse
	if s.manager != nil {
		resp = FromStatusSummary(s.manager.Status(r.Context()))
	} else if health, err := s.store.Health(r.Context()); err == nil {
		resp.Queue = QueueCounts{
			Total:      health.Total,
			Pending:    health.Pending,
			Processing: health.Processing,
			Failed:     health.Failed,
			Completed:  health.Completed,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []store.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := store.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	videos, err := s.store.ListVideos(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := VideoListResponse{Videos: make([]Video, 0, len(videos))}
	for _, video := range videos {
		resp.Videos = append(resp.Videos, FromVideo(video))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode := s.mode
	if trimmed := strings.TrimSpace(req.Mode); trimmed != "" {
		parsed, ok := store.ParseMode(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", req.Mode))
			return
		}
		mode = parsed
	}

	video, err := s.store.NewVideo(r.Context(), req.SourceURL, req.SourcePath, req.TargetLanguage, mode)
	if err != nil {
		if services.IsFatalInput(err) {
			s.writeError(w, http.StatusBadRequest, err.Error())
		} else {
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if trimmed := strings.TrimSpace(req.SourceLanguage); trimmed != "" {
		video.SourceLanguage = trimmed
		if err := s.store.UpdateVideo(r.Context(), video); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	s.writeJSON(w, http.StatusCreated, FromVideo(video))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	video, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, FromVideo(video))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	video, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteVideo(r.Context(), video.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	video, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	retried, err := s.store.RetryFailed(r.Context(), video.ID)
	if err != nil {
		if services.IsFatalInput(err) {
			s.writeError(w, http.StatusConflict, err.Error())
		} else {
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusOK, FromVideo(retried))
}

func (s *Server) handleRetryAll(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.RetryAllFailed(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, RetryAllResponse{VideoIDs: ids})
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	video, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	http.ServeFile(w, r, s.paths.Playlist(video.ID))
}

// handleFiles serves a video's on-disk artifacts (chunk files, the final
// dubbed video) so the playlist's relative entries resolve over HTTP.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	video, ok := s.videoFromPath(w, r)
	if !ok {
		return
	}
	prefix := fmt.Sprintf("/api/videos/%d/files/", video.ID)
	http.StripPrefix(prefix, http.FileServer(http.Dir(s.paths.VideoDir(video.ID)))).ServeHTTP(w, r)
}

func (s *Server) videoFromPath(w http.ResponseWriter, r *http.Request) (*store.Video, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid video id")
		return nil, false
	}
	video, err := s.store.GetVideo(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("video %d not found", id))
		} else {
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return video, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode api response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
