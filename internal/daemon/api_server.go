package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stillcast/internal/config"
	"stillcast/internal/logging"
	"stillcast/internal/supervisor"
	"stillcast/internal/tasks"
)

type apiServer struct {
	bind      string
	logger    *slog.Logger
	sup       *supervisor.Supervisor
	maxUpload int64

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, sup *supervisor.Supervisor, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.Paths.APIBind),
		logger:    logging.NewComponentLogger(logger, "api-server"),
		sup:       sup,
		maxUpload: cfg.MaxUploadBytes(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/tasks", srv.handleTasks)
	mux.HandleFunc("/api/tasks/", srv.handleTask)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
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

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// Addr returns the bound listen address, empty before start.
func (s *apiServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

type daemonStatusResponse struct {
	Running   bool   `json:"running"`
	PID       int    `json:"pid"`
	TaskCount int    `json:"task_count"`
	Version   string `json:"version"`
}

type createTaskRequest struct {
	Name      string `json:"name"`
	StreamURL string `json:"stream_url"`
}

type taskListResponse struct {
	Tasks []tasks.Status `json:"tasks"`
}

type imageListResponse struct {
	Images []string `json:"images"`
	Cursor int      `json:"cursor"`
}

type cursorResponse struct {
	Cursor int    `json:"cursor"`
	Image  string `json:"image,omitempty"`
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, daemonStatusResponse{
		Running:   true,
		PID:       os.Getpid(),
		TaskCount: len(s.sup.List()),
		Version:   Version,
	})
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, taskListResponse{Tasks: s.sup.List()})
	case http.MethodPost:
		var req createTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		task, err := s.sup.Create(r.Context(), req.Name, req.StreamURL)
		if err != nil {
			s.writeTaskError(w, err)
			return
		}
		status, err := s.sup.Status(task.ID)
		if err != nil {
			s.writeTaskError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, status)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTask routes /api/tasks/{ref}[/{action}[/{arg}]]. The ref may be a
// task id or a task name.
func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	parts := strings.SplitN(rest, "/", 3)
	ref := parts[0]
	if ref == "" {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			status, err := s.sup.Status(ref)
			if err != nil {
				s.writeTaskError(w, err)
				return
			}
			s.writeJSON(w, http.StatusOK, status)
		case http.MethodDelete:
			if err := s.sup.Delete(r.Context(), ref); err != nil {
				s.writeTaskError(w, err)
				return
			}
			s.writeJSON(w, http.StatusOK, map[string]string{"deleted": ref})
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	action := parts[1]
	switch action {
	case "start", "stop", "restart", "next", "prev":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleLifecycle(w, r, ref, action)
	case "goto":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleGoto(w, r, ref)
	case "images":
		s.handleImages(w, r, ref, parts[2:])
	default:
		s.writeError(w, http.StatusNotFound, "unknown action")
	}
}

func (s *apiServer) handleLifecycle(w http.ResponseWriter, r *http.Request, ref, action string) {
	ctx := r.Context()
	var err error
	switch action {
	case "start":
		err = s.sup.Start(ctx, ref)
	case "stop":
		err = s.sup.Stop(ctx, ref)
	case "restart":
		err = s.sup.Restart(ctx, ref)
	case "next":
		var idx int
		if idx, err = s.sup.Next(ctx, ref); err == nil {
			s.writeJSON(w, http.StatusOK, cursorResponse{Cursor: idx})
			return
		}
	case "prev":
		var idx int
		if idx, err = s.sup.Prev(ctx, ref); err == nil {
			s.writeJSON(w, http.StatusOK, cursorResponse{Cursor: idx})
			return
		}
	}
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	status, err := s.sup.Status(ref)
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

type gotoRequest struct {
	Index *int   `json:"index,omitempty"`
	Image string `json:"image,omitempty"`
}

// handleGoto jumps the cursor to an explicit index or a named image.
func (s *apiServer) handleGoto(w http.ResponseWriter, r *http.Request, ref string) {
	var req gotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case req.Index != nil:
		name, err := s.sup.Goto(r.Context(), ref, *req.Index)
		if err != nil {
			s.writeTaskError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, cursorResponse{Cursor: *req.Index, Image: name})
	case req.Image != "":
		idx, err := s.sup.GotoName(r.Context(), ref, req.Image)
		if err != nil {
			s.writeTaskError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, cursorResponse{Cursor: idx, Image: req.Image})
	default:
		s.writeError(w, http.StatusBadRequest, "index or image required")
	}
}

func (s *apiServer) handleImages(w http.ResponseWriter, r *http.Request, ref string, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		images, cursor, err := s.sup.Images(ref)
		if err != nil {
			s.writeTaskError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, imageListResponse{Images: images, Cursor: cursor})
	case len(rest) == 0 && r.Method == http.MethodPost:
		s.handleUpload(w, r, ref)
	case len(rest) == 1 && r.Method == http.MethodGet:
		path, err := s.sup.ImagePath(ref, filepath.Base(rest[0]))
		if err != nil {
			s.writeTaskError(w, err)
			return
		}
		http.ServeFile(w, r, path)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		filename := rest[0]
		if err := s.sup.RemoveImage(r.Context(), ref, filename); err != nil {
			s.writeTaskError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"removed": filename})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleUpload accepts a multipart form with a single "file" part and adds
// it to the task's sequence. Uploads are capped at the configured size.
func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request, ref string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field \"file\" required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	filename := filepath.Base(header.Filename)
	if err := s.sup.AddImage(r.Context(), ref, data, filename); err != nil {
		s.writeTaskError(w, err)
		return
	}
	images, cursor, err := s.sup.Images(ref)
	if err != nil {
		s.writeTaskError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, imageListResponse{Images: images, Cursor: cursor})
}

// writeTaskError maps the supervisor's error taxonomy onto HTTP statuses.
func (s *apiServer) writeTaskError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, tasks.ErrNotFound), errors.Is(err, tasks.ErrImageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tasks.ErrDuplicateName), errors.Is(err, tasks.ErrAlreadyRunning), errors.Is(err, tasks.ErrLastImage):
		status = http.StatusConflict
	case tasks.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, tasks.ErrSpawn):
		status = http.StatusBadGateway
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
