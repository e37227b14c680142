package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/auth"
	"github.com/hyperjump/snapfind/internal/config"
	"github.com/hyperjump/snapfind/internal/embedding"
	"github.com/hyperjump/snapfind/internal/ingest"
	"github.com/hyperjump/snapfind/internal/models"
	"github.com/hyperjump/snapfind/internal/search"
	"github.com/hyperjump/snapfind/internal/storage"
)

const healthMessage = "Backend Working from Server..!!"

const internalErrorMessage = "internal server error"

// legacySearchThreshold is the fixed threshold of the URL-only search route.
const legacySearchThreshold = 0.26

// multipartMemory is how much of an upload is buffered in memory before spilling to disk.
const multipartMemory = 32 << 20

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("event", req.EventName),
		zap.String("query", req.QueryText),
		zap.Int("limit", req.Limit))
	response, err := s.engine.Search(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// handleSearchLegacy serves the URL-only search route kept for older clients.
// The threshold is fixed and any threshold in the request is ignored.
func (s *Server) handleSearchLegacy(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	threshold := legacySearchThreshold
	req.Threshold = &threshold
	response, err := s.engine.Search(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, "legacy search failed", err)
		return
	}
	images := make([]string, 0, len(response.Results))
	for _, hit := range response.Results {
		images = append(images, hit.ImageURL)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"reply": "Results", "images": images})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if limit := s.config.Server.MaxUploadMB; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(limit)<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := ingest.UploadRequest{
		EventName:  r.FormValue("event_name"),
		EventDate:  r.FormValue("event_date"),
		FolderName: r.FormValue("folderName"),
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["files[]"]
	}
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "failed to read "+fh.Filename)
			return
		}
		req.Files = append(req.Files, ingest.File{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	if p, ok := auth.FromContext(r.Context()); ok {
		s.logger.Debug("upload request", zap.String("event", req.EventName), zap.Int("files", len(req.Files)), zap.String("ref_no", p.RefNo))
	} else {
		s.logger.Debug("upload request", zap.String("event", req.EventName), zap.Int("files", len(req.Files)))
	}
	result, err := s.ingester.Ingest(r.Context(), req)
	if err != nil {
		if errors.Is(err, ingest.ErrNothingIngested) && result != nil {
			s.respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "No images received or processed!",
				"failed": result.Failed,
			})
			return
		}
		s.respondFailure(w, "upload failed", err)
		return
	}
	result.Photos = nil
	s.respondJSON(w, http.StatusOK, result)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	photo, err := s.store.GetPhoto(r.Context(), id)
	if err != nil {
		s.respondFailure(w, "get photo failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, photo)
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete photo request", zap.String("id", id))
	if err := s.store.DeletePhoto(r.Context(), id); err != nil {
		s.respondFailure(w, "delete photo failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEvents(r.Context(), s.config.College)
	if err != nil {
		s.respondFailure(w, "list events failed", err)
		return
	}
	if events == nil {
		events = []*models.EventSummary{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"college": s.config.College, "events": events})
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")
	s.logger.Debug("delete event request", zap.String("event", event))
	n, err := s.store.DeleteEvent(r.Context(), s.config.College, event)
	if err != nil {
		s.respondFailure(w, "delete event failed", err)
		return
	}
	if n == 0 {
		s.respondError(w, http.StatusNotFound, "No images found for this event")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"event_name": event, "deleted": n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": healthMessage})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	photoCount, err := s.store.CountPhotos(ctx)
	if err != nil {
		s.respondFailure(w, "status: count photos failed", err)
		return
	}
	events, err := s.store.ListEvents(ctx, s.config.College)
	if err != nil {
		s.respondFailure(w, "status: list events failed", err)
		return
	}
	resp := map[string]any{
		"college":        s.config.College,
		"photos":         photoCount,
		"events":         len(events),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}

	configInfo := map[string]any{
		"storage_driver":       s.config.Storage.Driver,
		"table":                s.config.Storage.Table,
		"object_store":         s.config.ObjectStore.Type,
		"similarity_threshold": s.config.Search.ThresholdOrDefault(),
	}
	if s.embedder != nil {
		configInfo["embedding_model"] = s.embedder.ModelID()
		configInfo["embedding_dimensions"] = s.embedder.Dimensions()
	}
	if s.config.Storage.Driver == config.DriverSQLite {
		configInfo["database_path"] = s.config.Storage.DatabasePath
		if diskBytes, err := storage.DiskUsageBytes(storage.SQLiteFiles(s.config.Storage.DatabasePath)...); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	if s.watch != nil {
		configInfo["watch_directories"] = s.watch.Directories()
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondFailure(w, "watch directory stat failed", err)
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.respondFailure(w, "watch add directory failed", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.respondFailure(w, "watch remove directory failed", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// persistWatchDirectories writes the current import roots back to the config file.
func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var providerErr *embedding.ProviderError
	switch {
	case errors.Is(err, search.ErrInvalidRequest), errors.Is(err, ingest.ErrInvalidUpload):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, search.ErrEventNotFound), errors.Is(err, search.ErrNoEmbeddings), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &providerErr), errors.Is(err, embedding.ErrProviderFailure):
		return http.StatusBadGateway
	case errors.Is(err, ingest.ErrNothingIngested):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the client-facing message for err. Server-side failures
// get a fixed message; their detail is only logged.
func messageFor(err error, status int) string {
	switch {
	case errors.Is(err, search.ErrEventNotFound):
		return "No images found for this event"
	case errors.Is(err, search.ErrNoEmbeddings):
		return "No embeddings found for event images"
	case status == http.StatusBadGateway:
		return "embedding provider failed"
	case status >= http.StatusInternalServerError:
		return internalErrorMessage
	}
	return err.Error()
}

func (s *Server) respondFailure(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, messageFor(err, status))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
