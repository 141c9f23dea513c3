package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dydownloader/internal/client"
	"dydownloader/internal/core"
	"dydownloader/internal/history"
	"dydownloader/internal/testutils"
	"dydownloader/internal/tracker"
)

type saved struct {
	mu    sync.Mutex
	paths []string
	errs  []error
}

func (s *saved) done(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
	s.errs = append(s.errs, err)
}

func (s *saved) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paths)
}

func newTestSession(t *testing.T, backend *testutils.Backend, out *saved) (*Session, string) {
	t.Helper()

	c, err := client.New(backend.URL(), client.Options{
		Timeout:         5 * time.Second,
		RetryBackoff:    time.Millisecond,
		RetryMaxBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	tempDir := t.TempDir()
	store := history.NewStore(history.NewFileStorage(filepath.Join(tempDir, "history.json")))
	downloadDir := filepath.Join(tempDir, "downloads")

	opts := tracker.Options{
		FastInterval:  time.Millisecond,
		SlowInterval:  2 * time.Millisecond,
		FastTicks:     3,
		NavigateDelay: time.Millisecond,
		Navigator:     SaveTo(c, downloadDir, out.done),
	}

	s := NewSession(c, store, opts)
	t.Cleanup(s.Shutdown)
	return s, downloadDir
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestSessionDownloadFlow(t *testing.T) {
	backend := testutils.NewBackend(t)
	out := &saved{}
	s, downloadDir := newTestSession(t, backend, out)
	ctx := context.Background()

	info, err := s.FetchInfo(ctx, "  https://youtube.com/watch?v=abc123 ")
	if err != nil {
		t.Fatalf("Failed to fetch info: %v", err)
	}
	if info.Title != "Test Video" {
		t.Errorf("Expected title 'Test Video', got '%s'", info.Title)
	}

	job, err := s.StartDownload(ctx, core.DownloadRequest{
		URL:      "https://youtube.com/watch?v=abc123",
		FormatID: "22",
	})
	if err != nil {
		t.Fatalf("Failed to start download: %v", err)
	}

	if job.Title != "Test Video" {
		t.Errorf("Expected job title 'Test Video', got '%s'", job.Title)
	}
	if job.FormatLabel != "720p (mp4) - 12.50 MB" {
		t.Errorf("Expected format label '720p (mp4) - 12.50 MB', got '%s'", job.FormatLabel)
	}

	waitFor(t, "completion", func() bool { return s.State().Phase == tracker.PhaseCompleted })
	waitFor(t, "file retrieval", func() bool { return out.count() == 1 })

	if out.errs[0] != nil {
		t.Fatalf("File retrieval failed: %v", out.errs[0])
	}
	if out.paths[0] != filepath.Join(downloadDir, "Test Video.mp4") {
		t.Errorf("Unexpected saved path %s", out.paths[0])
	}
	if _, err := os.Stat(out.paths[0]); err != nil {
		t.Errorf("Expected saved file: %v", err)
	}

	entries := s.History(ctx)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(entries))
	}
	if entries[0].Title != "Test Video" || entries[0].Format != "720p (mp4) - 12.50 MB" {
		t.Errorf("Unexpected history entry %+v", entries[0])
	}
	if entries[0].Thumbnail != "https://img.example.com/test.jpg" {
		t.Errorf("Unexpected thumbnail %s", entries[0].Thumbnail)
	}

	jobs := backend.Jobs()
	if len(jobs) != 1 || jobs[0].SaveLocation != core.SaveLocationDefault {
		t.Errorf("Unexpected backend jobs %+v", jobs)
	}
}

func TestSessionSetupErrorsSkipNetwork(t *testing.T) {
	backend := testutils.NewBackend(t)
	s, _ := newTestSession(t, backend, &saved{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  core.DownloadRequest
		want error
	}{
		{"missing url", core.DownloadRequest{FormatID: "22"}, core.ErrMissingURL},
		{"missing format", core.DownloadRequest{URL: "https://youtube.com/watch?v=abc"}, core.ErrMissingFormat},
		{"missing custom location", core.DownloadRequest{
			URL:          "https://youtube.com/watch?v=abc",
			FormatID:     "22",
			SaveLocation: core.SaveLocationCustom,
		}, core.ErrMissingCustomLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.StartDownload(ctx, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, err := s.FetchInfo(ctx, "   "); !errors.Is(err, core.ErrMissingURL) {
		t.Errorf("Expected ErrMissingURL, got %v", err)
	}

	if n := len(backend.RequestIDs()); n != 0 {
		t.Errorf("Expected no backend requests, got %d", n)
	}
	if s.State().Phase != tracker.PhaseIdle {
		t.Errorf("Expected idle tracker, got %s", s.State().Phase)
	}
}

func TestSessionBackendErrorIsRetryable(t *testing.T) {
	backend := testutils.NewBackend(t)
	backend.SetDownloadError("Error creating temporary directory")
	s, _ := newTestSession(t, backend, &saved{})
	ctx := context.Background()

	req := core.DownloadRequest{URL: "https://youtube.com/watch?v=abc", FormatID: "22"}
	_, err := s.StartDownload(ctx, req)

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if !s.State().Ready {
		t.Error("Expected session to accept a new download")
	}

	backend.SetDownloadError("")
	if _, err := s.StartDownload(ctx, req); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
}

func TestSessionJobFailure(t *testing.T) {
	backend := testutils.NewBackend(t)
	backend.SetSteps(
		testutils.Step{Progress: 5, Status: "downloading"},
		testutils.Step{Progress: 0, Status: "error:File not found"},
	)
	out := &saved{}
	s, _ := newTestSession(t, backend, out)
	ctx := context.Background()

	if _, err := s.StartDownload(ctx, core.DownloadRequest{URL: "https://youtube.com/watch?v=abc", FormatID: "22"}); err != nil {
		t.Fatalf("Failed to start download: %v", err)
	}

	waitFor(t, "error", func() bool { return s.State().Phase == tracker.PhaseError })

	if s.State().Error != "File not found" {
		t.Errorf("Expected 'File not found', got '%s'", s.State().Error)
	}
	if n := len(s.History(ctx)); n != 0 {
		t.Errorf("Expected empty history, got %d entries", n)
	}
	if out.count() != 0 {
		t.Error("Expected no file retrieval")
	}
}

func TestSessionJobWithoutInfoUsesURL(t *testing.T) {
	backend := testutils.NewBackend(t)
	s, _ := newTestSession(t, backend, &saved{})

	job, err := s.StartDownload(context.Background(), core.DownloadRequest{
		URL:      "https://youtube.com/watch?v=other",
		FormatID: "best",
	})
	if err != nil {
		t.Fatalf("Failed to start download: %v", err)
	}
	if job.Title != "https://youtube.com/watch?v=other" || job.FormatLabel != "best" {
		t.Errorf("Unexpected job metadata %+v", job)
	}
}

func TestSessionStartReplacesJob(t *testing.T) {
	backend := testutils.NewBackend(t)
	backend.SetSteps(testutils.Step{Progress: 20, Status: "downloading"})
	s, _ := newTestSession(t, backend, &saved{})
	ctx := context.Background()

	req := core.DownloadRequest{URL: "https://youtube.com/watch?v=abc", FormatID: "22"}
	first, err := s.StartDownload(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.StartDownload(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, "second job progress", func() bool {
		st := s.State()
		return st.JobID == second.ID && st.Percent == 20
	})

	var firstPolls int
	for _, j := range backend.Jobs() {
		if j.ID == first.ID {
			firstPolls = j.Polls
		}
	}
	time.Sleep(20 * time.Millisecond)
	for _, j := range backend.Jobs() {
		if j.ID == first.ID && j.Polls != firstPolls {
			t.Errorf("First job still polled: %d -> %d", firstPolls, j.Polls)
		}
	}
}

func TestSessionCancelAndClearHistory(t *testing.T) {
	backend := testutils.NewBackend(t)
	backend.SetSteps(testutils.Step{Progress: 20, Status: "downloading"})
	s, _ := newTestSession(t, backend, &saved{})
	ctx := context.Background()

	if _, err := s.StartDownload(ctx, core.DownloadRequest{URL: "https://youtube.com/watch?v=abc", FormatID: "22"}); err != nil {
		t.Fatal(err)
	}
	s.Cancel()

	if s.State().Phase != tracker.PhaseIdle {
		t.Errorf("Expected idle after cancel, got %s", s.State().Phase)
	}

	s.ClearHistory(ctx)
	if n := len(s.History(ctx)); n != 0 {
		t.Errorf("Expected empty history, got %d", n)
	}
}
