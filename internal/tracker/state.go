package tracker

import (
	"dydownloader/internal/core"
)

// Phase is a state of the progress tracker.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFastPoll
	PhaseSlowPoll
	PhaseCompleted
	PhaseCompletedFallback
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFastPoll:
		return "fast_poll"
	case PhaseSlowPoll:
		return "slow_poll"
	case PhaseCompleted:
		return "completed"
	case PhaseCompletedFallback:
		return "completed_fallback"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText lets phases appear by name in JSON
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// IsPolling returns true while a poll loop is running
func (p Phase) IsPolling() bool {
	return p == PhaseFastPoll || p == PhaseSlowPoll
}

// IsTerminal returns true once the job has finished one way or another
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseCompletedFallback || p == PhaseError
}

// Job is one accepted download being tracked to completion.
type Job struct {
	ID        string `json:"id"`
	SourceURL string `json:"source_url"`
	FormatID  string `json:"format_id"`

	// Display metadata carried into the history entry.
	Title        string `json:"title,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	FormatLabel  string `json:"format_label,omitempty"`
}

// State is what the UI renders. Percent is the displayed percent, which
// never decreases while the same job is tracked.
type State struct {
	JobID   string              `json:"job_id,omitempty"`
	Phase   Phase               `json:"phase"`
	Percent int                 `json:"percent"`
	Status  core.ProgressStatus `json:"status,omitempty"`
	Error   string              `json:"error,omitempty"`
	FileURL string              `json:"file_url,omitempty"`
	Ticks   int                 `json:"ticks"`
	// Ready is true when a new download may be submitted.
	Ready bool `json:"ready"`
}

// machine holds the pure state transitions; it knows nothing about timers.
type machine struct {
	state     State
	fastTicks int
	fileURL   func(jobID, sourceURL, formatID string) string
	job       Job
}

func newMachine(fastTicks int, fileURL func(jobID, sourceURL, formatID string) string) machine {
	return machine{
		state:     State{Phase: PhaseIdle, Ready: true},
		fastTicks: fastTicks,
		fileURL:   fileURL,
	}
}

func (m *machine) reset(job Job) {
	m.job = job
	m.state = State{
		JobID:  job.ID,
		Phase:  PhaseFastPoll,
		Status: core.StatusPending,
	}
}

// tick counts one fast-phase timer tick and reports whether the machine has
// just moved into the slow phase.
func (m *machine) tick() bool {
	if m.state.Phase != PhaseFastPoll {
		return false
	}
	m.state.Ticks++
	if m.state.Ticks >= m.fastTicks {
		m.state.Phase = PhaseSlowPoll
		return true
	}
	return false
}

// apply folds a snapshot into the state and reports whether anything visible
// changed.
func (m *machine) apply(snap core.Snapshot) bool {
	if !m.state.Phase.IsPolling() {
		return false
	}
	before := m.state

	if snap.Percent > m.state.Percent || snap.Status == core.StatusCompleted {
		m.state.Percent = snap.Percent
	}
	m.state.Status = snap.Status

	switch snap.Status {
	case core.StatusCompleted, core.StatusCompletedFallback:
		m.state.Phase = PhaseCompleted
		if snap.Status == core.StatusCompletedFallback {
			m.state.Phase = PhaseCompletedFallback
		}
		m.state.Percent = 100
		m.state.Ready = true
		if m.fileURL != nil {
			m.state.FileURL = m.fileURL(m.job.ID, m.job.SourceURL, m.job.FormatID)
		}
	case core.StatusError:
		m.state.Phase = PhaseError
		m.state.Error = snap.Message
		m.state.Ready = true
	}

	return m.state != before
}

// stop moves a polling machine back to idle.
func (m *machine) stop() bool {
	if !m.state.Phase.IsPolling() {
		return false
	}
	m.state.Phase = PhaseIdle
	m.state.Ready = true
	return true
}
