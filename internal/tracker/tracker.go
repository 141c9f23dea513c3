// Package tracker follows one download job from acceptance to a terminal
// state by polling the backend's progress endpoint.
//
// Polling starts fast (every 250ms) and, after a fixed number of ticks,
// switches to a slower ticker (every second). The displayed percent only ever
// grows for a given job. Only one poll loop runs at a time: Start replaces the
// current loop and Cancel stops it.
package tracker

import (
	"context"
	"sync"
	"time"

	"dydownloader/internal/core"
	"dydownloader/internal/history"
	"dydownloader/internal/utils"
)

var log = utils.Component("TRACKER")

// Source is the backend the tracker polls.
type Source interface {
	Progress(ctx context.Context, jobID string) (core.Snapshot, error)
	FileURL(jobID, sourceURL, formatID string) string
}

// Recorder receives one history entry per completed job.
type Recorder interface {
	Append(ctx context.Context, entry history.Entry)
}

// Navigator delivers the produced file once a job completes.
type Navigator interface {
	Navigate(ctx context.Context, fileURL string) error
}

// NavigatorFunc adapts a function to the Navigator interface
type NavigatorFunc func(ctx context.Context, fileURL string) error

func (f NavigatorFunc) Navigate(ctx context.Context, fileURL string) error {
	return f(ctx, fileURL)
}

// Options configures the tracker.
type Options struct {
	// FastInterval is the poll period of the fast phase.
	// Default: 250ms
	FastInterval time.Duration

	// SlowInterval is the poll period after the fast phase.
	// Default: 1s
	SlowInterval time.Duration

	// FastTicks is the number of fast-phase ticks before switching.
	// Default: 20
	FastTicks int

	// NavigateDelay is the grace period between completion and navigation.
	// Default: 500ms
	NavigateDelay time.Duration

	// OnUpdate is called after every visible state change. It runs on the
	// poll goroutine and must not call Start or Cancel synchronously.
	OnUpdate func(State)

	History   Recorder
	Navigator Navigator

	// Now stamps history entries. Default: time.Now
	Now func() time.Time
}

// DefaultOptions returns the standard polling cadence.
func DefaultOptions() Options {
	return Options{
		FastInterval:  250 * time.Millisecond,
		SlowInterval:  time.Second,
		FastTicks:     20,
		NavigateDelay: 500 * time.Millisecond,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.FastInterval <= 0 {
		o.FastInterval = def.FastInterval
	}
	if o.SlowInterval <= 0 {
		o.SlowInterval = def.SlowInterval
	}
	if o.FastTicks <= 0 {
		o.FastTicks = def.FastTicks
	}
	if o.NavigateDelay <= 0 {
		o.NavigateDelay = def.NavigateDelay
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Tracker is the download progress tracker. Create one per session.
type Tracker struct {
	source Source
	opts   Options

	// ctlMu serializes Start and Cancel so that replacing a loop is atomic.
	ctlMu sync.Mutex

	mu     sync.Mutex
	m      machine
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle tracker.
func New(source Source, opts Options) *Tracker {
	opts.applyDefaults()
	return &Tracker{
		source: source,
		opts:   opts,
		m:      newMachine(opts.FastTicks, source.FileURL),
	}
}

// Start begins tracking job, replacing any job currently being polled. The
// first poll is issued right away rather than on the first tick.
func (t *Tracker) Start(ctx context.Context, job Job) {
	t.ctlMu.Lock()
	defer t.ctlMu.Unlock()

	t.stopLoop()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.gen++
	gen := t.gen
	t.m.reset(job)
	st := t.m.state
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	log.Info("Tracking job %s (format %s)", job.ID, job.FormatID)
	t.notify(st)

	go t.run(loopCtx, gen, job, done)
}

// Cancel stops polling. It is safe to call at any time, any number of times.
func (t *Tracker) Cancel() {
	t.ctlMu.Lock()
	defer t.ctlMu.Unlock()

	t.stopLoop()

	t.mu.Lock()
	t.gen++
	changed := t.m.stop()
	st := t.m.state
	t.mu.Unlock()

	if changed {
		log.Info("Tracking of job %s cancelled", st.JobID)
		t.notify(st)
	}
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m.state
}

// stopLoop cancels the running loop and waits for it to exit. Caller holds ctlMu.
// The generation moves on first so the exiting loop leaves the state alone.
func (t *Tracker) stopLoop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.gen++
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (t *Tracker) run(ctx context.Context, gen uint64, job Job, done chan struct{}) {
	defer close(done)
	defer func() {
		if ctx.Err() != nil {
			t.abandon(gen, job)
		}
	}()

	if t.poll(ctx, gen, job) {
		return
	}

	ticker := time.NewTicker(t.opts.FastInterval)
	defer func() { ticker.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.poll(ctx, gen, job) {
				return
			}
			if t.advance(gen) {
				// Cancel and reschedule rather than Reset, so the slow
				// cadence starts from this tick.
				ticker.Stop()
				ticker = time.NewTicker(t.opts.SlowInterval)
				log.Info("Job %s switched to slow polling", job.ID)
			}
		}
	}
}

// abandon returns the tracker to idle when the loop's parent context ended
// without a Cancel or Start taking over.
func (t *Tracker) abandon(gen uint64, job Job) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.gen++
	changed := t.m.stop()
	st := t.m.state
	t.mu.Unlock()

	if changed {
		log.Warning("Tracking of job %s stopped: context done", job.ID)
		t.notify(st)
	}
}

// advance counts a tick and reports a switch to the slow phase.
func (t *Tracker) advance(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return false
	}
	return t.m.tick()
}

// poll performs one progress request and reports whether the loop should exit.
func (t *Tracker) poll(ctx context.Context, gen uint64, job Job) bool {
	snap, err := t.source.Progress(ctx, job.ID)
	if ctx.Err() != nil {
		if err == nil {
			log.Info("Dropping progress response for cancelled job %s", job.ID)
		}
		return true
	}
	if err != nil {
		// A single failed tick must not abort an otherwise healthy job.
		log.Warning("Progress check for job %s failed: %v", job.ID, err)
		return false
	}

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		log.Info("Dropping stale progress response for job %s", job.ID)
		return true
	}
	changed := t.m.apply(snap)
	st := t.m.state
	t.mu.Unlock()

	if changed {
		t.notify(st)
	}

	if !st.Phase.IsTerminal() {
		return false
	}

	switch st.Phase {
	case PhaseCompleted, PhaseCompletedFallback:
		t.complete(ctx, job, st)
	case PhaseError:
		log.Error("Job %s failed: %s", job.ID, st.Error)
	}
	return true
}

func (t *Tracker) complete(ctx context.Context, job Job, st State) {
	log.Success("Job %s completed (%s)", job.ID, st.Phase)

	// Navigation and history outlive a later Cancel or Start.
	ctx = context.WithoutCancel(ctx)

	if t.opts.History != nil {
		t.opts.History.Append(ctx, history.Entry{
			URL:       job.SourceURL,
			Title:     job.Title,
			Thumbnail: job.ThumbnailURL,
			Format:    job.FormatLabel,
			Date:      t.opts.Now(),
		})
	}

	if t.opts.Navigator == nil || st.FileURL == "" {
		return
	}
	nav := t.opts.Navigator
	time.AfterFunc(t.opts.NavigateDelay, func() {
		if err := nav.Navigate(ctx, st.FileURL); err != nil {
			log.Error("Failed to retrieve file for job %s: %v", job.ID, err)
		}
	})
}

func (t *Tracker) notify(st State) {
	if t.opts.OnUpdate != nil {
		t.opts.OnUpdate(st)
	}
}
