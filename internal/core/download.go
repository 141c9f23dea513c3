package core

import (
	"errors"
	"math"
	"strings"
)

// ProgressStatus is the job status reported by the progress endpoint.
type ProgressStatus string

const (
	StatusPending           ProgressStatus = "pending"
	StatusInProgress        ProgressStatus = "in_progress"
	StatusCompleted         ProgressStatus = "completed"
	StatusCompletedFallback ProgressStatus = "completed_fallback"
	StatusError             ProgressStatus = "error"
)

// IsCompleted returns true for both completed variants
func (s ProgressStatus) IsCompleted() bool {
	return s == StatusCompleted || s == StatusCompletedFallback
}

// IsTerminal returns true if no further polling should happen
func (s ProgressStatus) IsTerminal() bool {
	return s.IsCompleted() || s == StatusError
}

// ParseStatus maps a raw backend status onto a ProgressStatus. Error statuses
// look like "error:<message>" or "error: <message>"; the message is returned
// with the separator stripped. Unrecognised statuses (the backend also sends
// "downloading") count as in progress.
func ParseStatus(raw string) (ProgressStatus, string) {
	raw = strings.TrimSpace(raw)
	switch ProgressStatus(raw) {
	case StatusPending, "":
		return StatusPending, ""
	case StatusCompleted:
		return StatusCompleted, ""
	case StatusCompletedFallback:
		return StatusCompletedFallback, ""
	case StatusInProgress:
		return StatusInProgress, ""
	}

	if strings.HasPrefix(raw, string(StatusError)) {
		msg := strings.TrimPrefix(raw, string(StatusError))
		msg = strings.TrimSpace(strings.TrimPrefix(msg, ":"))
		return StatusError, msg
	}

	return StatusInProgress, ""
}

// Snapshot is a single progress reading for a job.
type Snapshot struct {
	Percent int            `json:"percent"`
	Status  ProgressStatus `json:"status"`
	Message string         `json:"message,omitempty"`
}

// NewSnapshot builds a Snapshot from the raw progress endpoint fields.
func NewSnapshot(progress float64, rawStatus string) Snapshot {
	status, msg := ParseStatus(rawStatus)
	return Snapshot{
		Percent: ClampPercent(progress),
		Status:  status,
		Message: msg,
	}
}

// ClampPercent rounds to the nearest integer and clamps to 0..100
func ClampPercent(p float64) int {
	if math.IsNaN(p) {
		return 0
	}
	r := int(math.Round(p))
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}

// Stream is one selectable format returned by the info endpoint.
type Stream struct {
	FormatID       string `json:"format_id"`
	Resolution     string `json:"resolution"`
	Ext            string `json:"ext,omitempty"`
	Filesize       int64  `json:"filesize,omitempty"`
	FilesizeApprox int64  `json:"filesize_approx,omitempty"`
	Type           string `json:"type,omitempty"`
	IsHighest      bool   `json:"is_highest,omitempty"`
	IsBestAudio    bool   `json:"is_best_audio,omitempty"`
}

// IsAudio returns true for audio-only streams
func (s Stream) IsAudio() bool {
	return s.Type == "audio" || s.IsBestAudio
}

// VideoInfo is the metadata returned for a submitted URL.
type VideoInfo struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	Author       string   `json:"author"`
	ThumbnailURL string   `json:"thumbnail_url"`
	Streams      []Stream `json:"streams"`
}

// FindStream returns the stream with the given format id
func (v *VideoInfo) FindStream(formatID string) (Stream, bool) {
	for _, s := range v.Streams {
		if s.FormatID == formatID {
			return s, true
		}
	}
	return Stream{}, false
}

const (
	SaveLocationDefault = "default"
	SaveLocationCustom  = "custom"
)

// Request-setup errors. These are reported before any network call.
var (
	ErrMissingURL            = errors.New("please enter a video URL")
	ErrMissingFormat         = errors.New("please select a format")
	ErrMissingCustomLocation = errors.New("please enter a custom save location")
)

// DownloadRequest is the form submitted to start a download job.
type DownloadRequest struct {
	URL            string `json:"url"`
	FormatID       string `json:"format_id"`
	SaveLocation   string `json:"save_location"`
	CustomLocation string `json:"custom_location,omitempty"`
}

// Normalize trims input fields and fills in the default save location
func (r *DownloadRequest) Normalize() {
	r.URL = strings.TrimSpace(r.URL)
	r.FormatID = strings.TrimSpace(r.FormatID)
	r.SaveLocation = strings.TrimSpace(r.SaveLocation)
	r.CustomLocation = strings.TrimSpace(r.CustomLocation)
	if r.SaveLocation == "" {
		r.SaveLocation = SaveLocationDefault
	}
}

// Validate checks the request-setup rules
func (r DownloadRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return ErrMissingURL
	}
	if strings.TrimSpace(r.FormatID) == "" {
		return ErrMissingFormat
	}
	if r.SaveLocation == SaveLocationCustom && strings.TrimSpace(r.CustomLocation) == "" {
		return ErrMissingCustomLocation
	}
	return nil
}
