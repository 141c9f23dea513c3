// Package manager drives one download session: looking up a video, starting
// a job, tracking it and recording the result.
package manager

import (
	"context"
	"strings"
	"sync"

	"dydownloader/internal/core"
	"dydownloader/internal/history"
	"dydownloader/internal/tracker"
	"dydownloader/internal/ui"
	"dydownloader/internal/utils"
)

var log = utils.Component("MANAGER")

// Backend is the part of the download backend a session needs.
type Backend interface {
	tracker.Source
	GetVideoInfo(ctx context.Context, videoURL string) (*core.VideoInfo, error)
	StartDownload(ctx context.Context, req core.DownloadRequest) (string, error)
}

// FileFetcher retrieves a finished file into a directory.
type FileFetcher interface {
	FetchFile(ctx context.Context, fileURL, dir string) (string, error)
}

// SaveTo returns a navigator that stores retrieved files in dir. done, when
// set, is called with the saved path or the retrieval error.
func SaveTo(f FileFetcher, dir string, done func(path string, err error)) tracker.Navigator {
	return tracker.NavigatorFunc(func(ctx context.Context, fileURL string) error {
		path, err := f.FetchFile(ctx, fileURL, dir)
		if done != nil {
			done(path, err)
		}
		return err
	})
}

type Session struct {
	backend Backend
	tracker *tracker.Tracker
	history *history.Store

	mutex sync.RWMutex
	info  *core.VideoInfo

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates a session. opts.History is replaced by store; the
// navigator and update callback in opts are used as given.
func NewSession(backend Backend, store *history.Store, opts tracker.Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	if store != nil {
		opts.History = store
	}

	return &Session{
		backend: backend,
		tracker: tracker.New(backend, opts),
		history: store,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// FetchInfo looks up videoURL and remembers the result for the next download.
func (s *Session) FetchInfo(ctx context.Context, videoURL string) (*core.VideoInfo, error) {
	videoURL = strings.TrimSpace(videoURL)
	if videoURL == "" {
		return nil, core.ErrMissingURL
	}

	info, err := s.backend.GetVideoInfo(ctx, videoURL)
	if err != nil {
		log.Error("Failed to fetch video info for %s: %v", videoURL, err)
		return nil, err
	}

	s.mutex.Lock()
	s.info = info
	s.mutex.Unlock()

	log.Info("Fetched info for %q (%d formats)", info.Title, len(info.Streams))
	return info, nil
}

// Info returns the last fetched video info, or nil.
func (s *Session) Info() *core.VideoInfo {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.info
}

// StartDownload validates req, submits it and starts tracking the new job.
// Setup errors are returned before anything is sent. A job already being
// tracked is replaced.
func (s *Session) StartDownload(ctx context.Context, req core.DownloadRequest) (tracker.Job, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return tracker.Job{}, err
	}

	id, err := s.backend.StartDownload(ctx, req)
	if err != nil {
		log.Error("Failed to start download for %s: %v", req.URL, err)
		return tracker.Job{}, err
	}

	job := s.jobFor(id, req)
	log.Info("Starting download %s: URL=%s, format=%s", id, req.URL, req.FormatID)

	// The job outlives the request that started it.
	s.tracker.Start(s.ctx, job)
	return job, nil
}

// jobFor fills the display metadata from the last fetched info when it
// belongs to the same URL.
func (s *Session) jobFor(id string, req core.DownloadRequest) tracker.Job {
	job := tracker.Job{
		ID:          id,
		SourceURL:   req.URL,
		FormatID:    req.FormatID,
		Title:       req.URL,
		FormatLabel: req.FormatID,
	}

	s.mutex.RLock()
	info := s.info
	s.mutex.RUnlock()

	if info == nil || info.URL != req.URL {
		return job
	}

	job.Title = info.Title
	job.ThumbnailURL = info.ThumbnailURL
	if stream, ok := info.FindStream(req.FormatID); ok {
		job.FormatLabel = ui.OptionLabel(stream)
	}
	return job
}

// Cancel stops tracking the current job.
func (s *Session) Cancel() {
	s.tracker.Cancel()
}

// State returns the tracker state.
func (s *Session) State() tracker.State {
	return s.tracker.State()
}

// History returns past downloads, newest first.
func (s *Session) History(ctx context.Context) []history.Entry {
	if s.history == nil {
		return []history.Entry{}
	}
	return s.history.List(ctx)
}

// ClearHistory removes all past downloads.
func (s *Session) ClearHistory(ctx context.Context) {
	if s.history == nil {
		return
	}
	s.history.Clear(ctx)
	log.Info("History cleared")
}

// Shutdown stops tracking and releases the session.
func (s *Session) Shutdown() {
	log.Info("Shutting down session...")
	s.tracker.Cancel()
	s.cancel()
}
