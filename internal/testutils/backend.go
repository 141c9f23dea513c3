// Package testutils provides a scripted stand-in for the download backend.
package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"dydownloader/internal/core"
)

// Step is one scripted reply of the progress endpoint.
type Step struct {
	Progress float64
	Status   string
}

// Job is a download accepted by the fake backend.
type Job struct {
	ID             string
	URL            string
	FormatID       string
	SaveLocation   string
	CustomLocation string
	Polls          int
}

// Backend serves the four backend endpoints from scripted data.
type Backend struct {
	Server *httptest.Server

	mu          sync.Mutex
	info        core.VideoInfo
	infoErr     string
	downloadErr string
	steps       []Step
	fileName    string
	fileBody    []byte
	failures    map[string]int
	jobs        map[string]*Job
	order       []string
	requestIDs  []string
}

// NewBackend starts a fake backend that is closed when the test ends. By
// default every job completes on its third poll.
func NewBackend(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		info: core.VideoInfo{
			Title:        "Test Video",
			Author:       "Test Channel",
			ThumbnailURL: "https://img.example.com/test.jpg",
			Streams: []core.Stream{
				{FormatID: "bestvideo+bestaudio", Resolution: "1080p", Ext: "mp4", Type: "video", IsHighest: true},
				{FormatID: "22", Resolution: "720p", Ext: "mp4", Filesize: 13107200, Type: "video"},
				{FormatID: "bestaudio", Resolution: "Audio Only", Ext: "mp3", Type: "audio", IsBestAudio: true},
			},
		},
		steps: []Step{
			{Progress: 10, Status: "in_progress"},
			{Progress: 45, Status: "downloading"},
			{Progress: 100, Status: "completed"},
		},
		fileName: "Test Video.mp4",
		fileBody: []byte("fake video bytes"),
		failures: make(map[string]int),
		jobs:     make(map[string]*Job),
	}

	r := mux.NewRouter()
	r.Use(b.recordRequestID)
	r.HandleFunc("/get_video_info", b.handleInfo).Methods("POST").Name("info")
	r.HandleFunc("/download", b.handleDownload).Methods("POST").Name("download")
	r.HandleFunc("/download_progress/{id}", b.handleProgress).Methods("GET").Name("progress")
	r.HandleFunc("/get_file/{id}", b.handleFile).Methods("GET").Name("file")

	b.Server = httptest.NewServer(r)
	t.Cleanup(b.Server.Close)
	return b
}

// URL returns the base URL of the backend.
func (b *Backend) URL() string {
	return b.Server.URL
}

// SetSteps replaces the progress script. The last step repeats.
func (b *Backend) SetSteps(steps ...Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = steps
}

// SetInfo replaces the video info returned for every URL.
func (b *Backend) SetInfo(info core.VideoInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.info = info
}

// Info returns a copy of the video info the backend serves.
func (b *Backend) Info() core.VideoInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	info := b.info
	info.Streams = append([]core.Stream(nil), b.info.Streams...)
	return info
}

// SetInfoError makes the info endpoint fail with msg.
func (b *Backend) SetInfoError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.infoErr = msg
}

// SetDownloadError makes the download endpoint fail with msg.
func (b *Backend) SetDownloadError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloadErr = msg
}

// SetFile sets the name and content served by the file endpoint.
func (b *Backend) SetFile(name string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fileName = name
	b.fileBody = body
}

// FailNext answers the next n requests to the named route ("info",
// "download", "progress" or "file") with 503.
func (b *Backend) FailNext(route string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = n
}

// Jobs returns the accepted jobs in submission order.
func (b *Backend) Jobs() []Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	jobs := make([]Job, 0, len(b.order))
	for _, id := range b.order {
		jobs = append(jobs, *b.jobs[id])
	}
	return jobs
}

// RequestIDs returns the X-Request-ID of every request received.
func (b *Backend) RequestIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requestIDs...)
}

func (b *Backend) recordRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requestIDs = append(b.requestIDs, r.Header.Get("X-Request-ID"))
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// injectFailure reports whether the request was answered with a 503.
func (b *Backend) injectFailure(w http.ResponseWriter, r *http.Request) bool {
	route := mux.CurrentRoute(r)
	if route == nil {
		return false
	}

	b.mu.Lock()
	n := b.failures[route.GetName()]
	if n > 0 {
		b.failures[route.GetName()] = n - 1
	}
	b.mu.Unlock()

	if n > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backend busy"})
		return true
	}
	return false
}

func (b *Backend) handleInfo(w http.ResponseWriter, r *http.Request) {
	if b.injectFailure(w, r) {
		return
	}

	videoURL := r.FormValue("url")
	if videoURL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No URL provided"})
		return
	}

	b.mu.Lock()
	info, infoErr := b.info, b.infoErr
	b.mu.Unlock()

	if infoErr != "" {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": infoErr})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"title":         info.Title,
		"author":        info.Author,
		"thumbnail_url": info.ThumbnailURL,
		"streams":       info.Streams,
		"id":            "abc123",
	})
}

func (b *Backend) handleDownload(w http.ResponseWriter, r *http.Request) {
	if b.injectFailure(w, r) {
		return
	}

	videoURL := r.FormValue("url")
	formatID := r.FormValue("format_id")
	if videoURL == "" || formatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing parameters"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.downloadErr != "" {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": b.downloadErr})
		return
	}

	job := &Job{
		ID:             uuid.NewString(),
		URL:            videoURL,
		FormatID:       formatID,
		SaveLocation:   r.FormValue("save_location"),
		CustomLocation: r.FormValue("custom_location"),
	}
	b.jobs[job.ID] = job
	b.order = append(b.order, job.ID)

	writeJSON(w, http.StatusOK, map[string]string{"download_id": job.ID})
}

func (b *Backend) handleProgress(w http.ResponseWriter, r *http.Request) {
	if b.injectFailure(w, r) {
		return
	}

	id := mux.Vars(r)["id"]

	b.mu.Lock()
	job, ok := b.jobs[id]
	var step Step
	if ok && len(b.steps) > 0 {
		i := job.Polls
		if i >= len(b.steps) {
			i = len(b.steps) - 1
		}
		step = b.steps[i]
		job.Polls++
	}
	b.mu.Unlock()

	// Unknown ids read as pending, the way the real backend answers.
	if !ok || step.Status == "" {
		step = Step{Progress: 0, Status: "pending"}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"progress": step.Progress,
		"status":   step.Status,
	})
}

func (b *Backend) handleFile(w http.ResponseWriter, r *http.Request) {
	if b.injectFailure(w, r) {
		return
	}

	b.mu.Lock()
	name, body := b.fileName, b.fileBody
	b.mu.Unlock()

	if name != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
