package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/snapfind/internal/auth"
	"github.com/hyperjump/snapfind/internal/config"
	"github.com/hyperjump/snapfind/internal/embedding"
	"github.com/hyperjump/snapfind/internal/ingest"
	"github.com/hyperjump/snapfind/internal/models"
	"github.com/hyperjump/snapfind/internal/ranking"
	"github.com/hyperjump/snapfind/internal/search"
	"github.com/hyperjump/snapfind/internal/storage"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type testEnv struct {
	srv   *Server
	store storage.PhotoStore
	cfg   *config.Config
}

func newTestServer(t *testing.T, authCfg config.AuthConfig, watch WatchService) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(dir, "photos.db")
	cfg.Auth = authCfg
	config.ApplyDefaults(cfg)

	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath, cfg.Storage.Table)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	embedder := embedding.NewMockEmbedder(512)

	engine := search.NewEngine(store, embedder, cfg.College, &cfg.Search)
	ingester := ingest.New(store, embedder, cfg.College)
	authn, err := auth.New(cfg.Auth, nil)
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(engine, ingester, store, embedder, authn, cfg, zap.NewNop(), watch, "")
	return &testEnv{srv: srv, store: store, cfg: cfg}
}

func (e *testEnv) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(w, r)
	return w
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, path string, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, data := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, path, &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func searchRequest(path, event, query string) *http.Request {
	body, _ := json.Marshal(map[string]string{"event_name": event, "query_text": query})
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return out.Error
}

func TestHandleHealth(t *testing.T) {
	env := newTestServer(t, config.AuthConfig{}, nil)
	for _, path := range []string{"/health", "/api/health"} {
		w := env.do(httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), healthMessage) {
			t.Errorf("%s: body %s", path, w.Body.String())
		}
	}
}

func TestUploadThenSearch(t *testing.T) {
	env := newTestServer(t, config.AuthConfig{}, nil)
	img := pngBytes(t)

	w := env.do(uploadRequest(t, "/upload-image",
		map[string]string{"event_name": "Annual Day", "event_date": "2024-03-01", "folderName": "stage"},
		map[string][]byte{"beach sunset.png": img, "mountain snow.png": img}))
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}
	var up models.UploadResult
	if err := json.NewDecoder(w.Body).Decode(&up); err != nil {
		t.Fatal(err)
	}
	if up.Message != "2 images uploaded successfully!" || up.FolderName != "Annual Day/stage" {
		t.Errorf("upload result = %+v", up)
	}

	w = env.do(searchRequest("/search-images", "Annual Day", "beach sunset"))
	if w.Code != http.StatusOK {
		t.Fatalf("search status %d: %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %+v", resp.Results)
	}
	if resp.Results[0].Filename != "TestImages/beach sunset.png" {
		t.Errorf("filename = %q", resp.Results[0].Filename)
	}
	if resp.Results[0].ImageURL != "local://TestImages/beach sunset.png" {
		t.Errorf("image_url = %q", resp.Results[0].ImageURL)
	}
	if resp.Message != "1 images matched" {
		t.Errorf("message = %q", resp.Message)
	}

	w = env.do(searchRequest("/api/v1/search", "Annual Day", "zebra"))
	if w.Code != http.StatusOK {
		t.Fatalf("search status %d", w.Code)
	}
	resp = models.SearchResponse{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("expected empty results list, got %v", resp.Results)
	}
	if !strings.Contains(resp.Message, "0.20") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestSearchErrors(t *testing.T) {
	env := newTestServer(t, config.AuthConfig{}, nil)
	tests := []struct {
		name   string
		req    *http.Request
		status int
		msg    string
	}{
		{"bad json", httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader("{")), http.StatusBadRequest, "invalid request body"},
		{"blank query", searchRequest("/api/v1/search", "Fest", "  "), http.StatusBadRequest, ""},
		{"unknown event", searchRequest("/api/v1/search", "Nope", "cake"), http.StatusNotFound, "No images found for this event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(tt.req)
			if w.Code != tt.status {
				t.Fatalf("status: got %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if msg := decodeError(t, w); tt.msg != "" && msg != tt.msg {
				t.Errorf("error = %q, want %q", msg, tt.msg)
			}
		})
	}
}

func TestUpload_NothingIngested(t *testing.T) {
	env := newTestServer(t, config.AuthConfig{}, nil)
	w := env.do(uploadRequest(t, "/api/v1/photos",
		map[string]string{"event_name": "Fest", "event_date": "2024-01-01"},
		map[string][]byte{"notes.txt": []byte("plain text")}))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d (%s)", w.Code, w.Body.String())
	}
}

func TestUpload_MissingEvent(t *testing.T) {
	env := newTestServer(t, config.AuthConfig{}, nil)
	w := env.do(uploadRequest(t, "/api/v1/photos",
		map[string]string{"event_date": "2024-01-01"},
		map[string][]byte{"a.png": pngBytes(t)}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d (%s)", w.Code, w.Body.String())
	}
}

func TestEventsAndPhotos(t *testing.T) {
	env := newTestServer(t, config.AuthConfig{}, nil)
	w := env.do(uploadRequest(t, "/api/v1/photos",
		map[string]string{"event_name": "Fest", "event_date": "2024-01-01"},
		map[string][]byte{"a.png": pngBytes(t)}))
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d", w.Code)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	var events struct {
		Events []*models.EventSummary `json:"events"`
	}
	if err := json.NewDecoder(w.Body).Decode(&events); err != nil {
		t.Fatal(err)
	}
	if len(events.Events) != 1 || events.Events[0].EventName != "Fest" || events.Events[0].PhotoCount != 1 {
		t.Fatalf("events = %+v", events.Events)
	}

	photos, err := env.store.FindByEvent(testContext(t), env.cfg.College, "Fest")
	if err != nil || len(photos) != 1 {
		t.Fatalf("FindByEvent: %v, %d", err, len(photos))
	}
	id := photos[0].ID

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/photos/"+id, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get photo status %d", w.Code)
	}
	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/photos/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing photo status %d", w.Code)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"photos":1`) {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}

	w = env.do(httptest.NewRequest(http.MethodDelete, "/api/v1/events/Fest", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("delete event status %d", w.Code)
	}
	w = env.do(httptest.NewRequest(http.MethodDelete, "/api/v1/events/Fest", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete status %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestServer(t, config.AuthConfig{StaticToken: "tok", StaticRefNo: "REF"}, nil)

	w := env.do(searchRequest("/search-images", "Fest", "cake"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d", w.Code)
	}
	if w.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("WWW-Authenticate = %q", w.Header().Get("WWW-Authenticate"))
	}

	r := searchRequest("/search-images", "Fest", "cake")
	r.Header.Set("Authorization", "Bearer tok")
	w = env.do(r)
	if w.Code != http.StatusNotFound {
		t.Fatalf("authorized status: got %d", w.Code)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health should stay public, got %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestServer(t, config.AuthConfig{}, nil)
	env.cfg.Server.RateLimit = 1
	env.cfg.Server.RateBurst = 2
	handler := env.srv.Router()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", search.ErrInvalidRequest), http.StatusBadRequest},
		{ingest.ErrInvalidUpload, http.StatusBadRequest},
		{search.ErrEventNotFound, http.StatusNotFound},
		{search.ErrNoEmbeddings, http.StatusNotFound},
		{fmt.Errorf("get: %w", storage.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("embed: %w", &embedding.ProviderError{Op: "text", Err: errors.New("boom")}), http.StatusBadGateway},
		{ingest.ErrNothingIngested, http.StatusUnprocessableEntity},
		{auth.ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestMessageFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   string
	}{
		{"event not found", fmt.Errorf("search: %w", search.ErrEventNotFound), http.StatusNotFound, "No images found for this event"},
		{"bad request keeps detail", fmt.Errorf("%w: query_text is required", search.ErrInvalidRequest), http.StatusBadRequest, "invalid search request: query_text is required"},
		{"provider failure", &embedding.ProviderError{Op: "text", Err: errors.New("onnx exploded")}, http.StatusBadGateway, "embedding provider failed"},
		{"dimension mismatch hidden", fmt.Errorf("rank: %w (0 of 3 candidates have 512 dimensions)", ranking.ErrDimensionMismatch), http.StatusInternalServerError, internalErrorMessage},
		{"sql error hidden", errors.New(`no such table: "photos"`), http.StatusInternalServerError, internalErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messageFor(tt.err, tt.status); got != tt.want {
				t.Errorf("messageFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearch_InternalErrorHidesDetail(t *testing.T) {
	env := newTestServer(t, config.AuthConfig{}, nil)
	legacy := &models.Photo{
		College:    env.cfg.College,
		Filename:   env.cfg.College + "/old.jpg",
		FolderName: "Reunion",
		ImageURL:   "local://old.jpg",
		EventName:  "Reunion",
		EventDate:  "2019-05-01",
		Embedding:  []float32{1, 0, 0, 0},
	}
	if err := env.store.InsertPhotos(context.Background(), []*models.Photo{legacy}); err != nil {
		t.Fatal(err)
	}

	w := env.do(searchRequest("/api/v1/search", "Reunion", "old friends"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if msg := decodeError(t, w); msg != internalErrorMessage {
		t.Errorf("error = %q, want %q", msg, internalErrorMessage)
	}
}

func TestSearchLegacy(t *testing.T) {
	env := newTestServer(t, config.AuthConfig{}, nil)
	img := pngBytes(t)
	w := env.do(uploadRequest(t, "/upload-image",
		map[string]string{"event_name": "Annual Day", "event_date": "2024-03-01"},
		map[string][]byte{"beach sunset.png": img, "mountain snow.png": img}))
	if w.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", w.Code, w.Body.String())
	}

	w = env.do(searchRequest("/search-images-old", "Annual Day", "beach sunset"))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		Reply  string   `json:"reply"`
		Images []string `json:"images"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Reply != "Results" {
		t.Errorf("reply = %q", out.Reply)
	}
	if len(out.Images) != 1 || out.Images[0] != "local://TestImages/beach sunset.png" {
		t.Errorf("images = %v", out.Images)
	}

	w = env.do(searchRequest("/search-images-old", "Nope", "cake"))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown event status %d", w.Code)
	}
}

func TestHandleWatchDirectories(t *testing.T) {
	dir := t.TempDir()
	mock := &mockWatchService{}
	env := newTestServer(t, config.AuthConfig{}, mock)

	body, _ := json.Marshal(map[string]string{"path": dir})
	w := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/watch/directories", bytes.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("add status: got %d, body: %s", w.Code, w.Body.String())
	}
	if len(mock.Directories()) != 1 {
		t.Errorf("expected 1 directory, got %v", mock.Directories())
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/watch/directories", nil))
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Directories) != 1 || out.Directories[0] != dir {
		t.Errorf("directories: got %v", out.Directories)
	}

	body, _ = json.Marshal(map[string]string{"path": filepath.Join(dir, "nonexistent")})
	w = env.do(httptest.NewRequest(http.MethodPost, "/api/v1/watch/directories", bytes.NewReader(body)))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing dir status: got %d", w.Code)
	}

	w = env.do(httptest.NewRequest(http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil))
	if w.Code != http.StatusOK {
		t.Errorf("remove status: got %d", w.Code)
	}
	if len(mock.Directories()) != 0 {
		t.Errorf("expected 0 directories, got %v", mock.Directories())
	}
}

func TestHandleWatchDirectories_NotEnabled(t *testing.T) {
	env := newTestServer(t, config.AuthConfig{}, nil)
	w := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/watch/directories", nil))
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

// testContext returns a context canceled when the test finishes
// (equivalent of testing.T.Context, Go 1.24+).
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
