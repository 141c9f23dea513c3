// Package ui turns tracker and backend data into text for people.
package ui

import (
	"fmt"

	"dydownloader/internal/core"
	"dydownloader/internal/tracker"
)

// defaultStreamSize is assumed when the backend reports no size at all.
const defaultStreamSize = 10 * 1024 * 1024

// OptionLabel is the text shown for a selectable format.
func OptionLabel(s core.Stream) string {
	ext := s.Ext
	if ext == "" {
		ext = "mp4"
	}

	switch {
	case s.IsHighest:
		return fmt.Sprintf("%s (%s) - Best Quality", s.Resolution, ext)
	case s.IsBestAudio:
		return fmt.Sprintf("%s (%s) - Highest Bitrate", s.Resolution, ext)
	default:
		return fmt.Sprintf("%s (%s) - %s MB", s.Resolution, ext, SizeMB(streamSize(s)))
	}
}

func streamSize(s core.Stream) int64 {
	if s.Filesize > 0 {
		return s.Filesize
	}
	if s.FilesizeApprox > 0 {
		return s.FilesizeApprox
	}
	return defaultStreamSize
}

// SizeMB formats a byte count as megabytes with two decimals.
func SizeMB(bytes int64) string {
	return fmt.Sprintf("%.2f", float64(bytes)/(1024*1024))
}

// StatusMessage describes the tracker state in a short sentence.
func StatusMessage(st tracker.State) string {
	switch st.Phase {
	case tracker.PhaseIdle:
		if st.JobID != "" {
			return "Download cancelled."
		}
		return "Ready."
	case tracker.PhaseCompleted:
		return "Download completed!"
	case tracker.PhaseCompletedFallback:
		return "Download completed with fallback!"
	case tracker.PhaseError:
		return "Error: " + st.Error
	}

	switch {
	case st.Percent < 10:
		return "Starting download..."
	case st.Percent < 50:
		return "Downloading..."
	case st.Percent < 90:
		return "Almost there..."
	default:
		return "Finalizing download..."
	}
}
