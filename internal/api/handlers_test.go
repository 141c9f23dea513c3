package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"dydownloader/internal/client"
	"dydownloader/internal/config"
	"dydownloader/internal/history"
	"dydownloader/internal/manager"
	"dydownloader/internal/testutils"
	"dydownloader/internal/tracker"
)

func newTestRouter(t *testing.T) (http.Handler, *manager.Session, *testutils.Backend) {
	t.Helper()

	backend := testutils.NewBackend(t)
	c, err := client.New(backend.URL(), client.Options{RetryBackoff: time.Millisecond})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	store := history.NewStore(history.NewFileStorage(filepath.Join(t.TempDir(), "history.json")))
	session := manager.NewSession(c, store, tracker.Options{
		FastInterval:  time.Millisecond,
		SlowInterval:  time.Millisecond,
		FastTicks:     2,
		NavigateDelay: time.Millisecond,
	})
	t.Cleanup(session.Shutdown)

	cfg := config.DefaultConfig()
	return SetupRoutes(NewHandler(cfg, session)), session, backend
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	handler := NewHandler(cfg, nil)

	req := httptest.NewRequest("GET", "/api/config", nil)
	w := httptest.NewRecorder()

	handler.GetConfig(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response config.Config
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Port != cfg.Port {
		t.Errorf("Expected port %d, got %d", cfg.Port, response.Port)
	}
}

func TestGetConfigHidesRedisPassword(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.History.Backend = config.HistoryBackendRedis
	cfg.History.RedisAddr = "localhost:6379"
	cfg.History.RedisPassword = "s3cret-pass"
	router := SetupRoutes(NewHandler(cfg, nil))

	req := httptest.NewRequest("GET", "/api/config", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("s3cret-pass")) {
		t.Errorf("Password leaked in response: %s", w.Body.String())
	}
	if bytes.Contains(w.Body.Bytes(), []byte("redis_password")) {
		t.Errorf("Expected redis_password to be omitted, got %s", w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("localhost:6379")) {
		t.Errorf("Expected the rest of the history config, got %s", w.Body.String())
	}
	if cfg.History.RedisPassword != "s3cret-pass" {
		t.Error("Handler must not modify the live config")
	}
}

func TestHandlersWithoutSession(t *testing.T) {
	handler := NewHandler(config.DefaultConfig(), nil)

	tests := []struct {
		name string
		fn   http.HandlerFunc
	}{
		{"GetInfo", handler.GetInfo},
		{"StartDownload", handler.StartDownload},
		{"GetCurrent", handler.GetCurrent},
		{"CancelCurrent", handler.CancelCurrent},
		{"GetHistory", handler.GetHistory},
		{"ClearHistory", handler.ClearHistory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.fn(w, httptest.NewRequest("GET", "/", nil))
			if w.Code != http.StatusInternalServerError {
				t.Errorf("Expected status 500, got %d", w.Code)
			}
		})
	}
}

func TestGetInfo(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/info", map[string]string{"url": "https://youtube.com/watch?v=abc"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response struct {
		Title   string         `json:"title"`
		Options []FormatOption `json:"options"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Title != "Test Video" {
		t.Errorf("Expected title 'Test Video', got '%s'", response.Title)
	}
	if len(response.Options) != 3 || response.Options[0].Label != "1080p (mp4) - Best Quality" {
		t.Errorf("Unexpected options %+v", response.Options)
	}
}

func TestGetInfoBackendError(t *testing.T) {
	router, _, backend := newTestRouter(t)
	backend.SetInfoError("Video unavailable")

	w := doJSON(t, router, "POST", "/api/info", map[string]string{"url": "https://youtube.com/watch?v=abc"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("Video unavailable")) {
		t.Errorf("Expected backend message, got %q", w.Body.String())
	}
}

func TestStartDownloadInvalidJSON(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/downloads", bytes.NewBuffer([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestStartDownloadMissingURL(t *testing.T) {
	router, _, backend := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/downloads", map[string]string{"format_id": "22"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	if len(backend.RequestIDs()) != 0 {
		t.Error("Expected no backend request")
	}
}

func TestStartDownloadAndTrack(t *testing.T) {
	router, session, backend := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/downloads", map[string]string{
		"url":       "https://youtube.com/watch?v=abc",
		"format_id": "22",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var job tracker.Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode job: %v", err)
	}
	if jobs := backend.Jobs(); len(jobs) != 1 || jobs[0].ID != job.ID || jobs[0].SaveLocation != "default" {
		t.Fatalf("Unexpected backend jobs %+v", jobs)
	}

	// The job keeps running after the request that started it returned.
	deadline := time.Now().Add(2 * time.Second)
	for session.State().Phase != tracker.PhaseCompleted {
		if time.Now().After(deadline) {
			t.Fatalf("Job did not complete, state %+v", session.State())
		}
		time.Sleep(time.Millisecond)
	}

	w = doJSON(t, router, "GET", "/api/downloads/current", nil)
	var state struct {
		Phase   string `json:"phase"`
		Percent int    `json:"percent"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(w.Body).Decode(&state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if state.Phase != "completed" || state.Percent != 100 || state.Message != "Download completed!" {
		t.Errorf("Unexpected state %+v", state)
	}

	w = doJSON(t, router, "GET", "/api/history", nil)
	var entries []history.Entry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(entries))
	}

	w = doJSON(t, router, "DELETE", "/api/history", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if n := len(session.History(context.Background())); n != 0 {
		t.Errorf("Expected empty history, got %d", n)
	}
}

func TestCancelCurrent(t *testing.T) {
	router, session, backend := newTestRouter(t)
	backend.SetSteps(testutils.Step{Progress: 30, Status: "downloading"})

	doJSON(t, router, "POST", "/api/downloads", map[string]string{
		"url":       "https://youtube.com/watch?v=abc",
		"format_id": "22",
	})

	w := doJSON(t, router, "POST", "/api/downloads/current/cancel", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if session.State().Phase != tracker.PhaseIdle {
		t.Errorf("Expected idle, got %s", session.State().Phase)
	}
}

func TestCORSPreflight(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest("OPTIONS", "/api/downloads", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
