package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"dydownloader/internal/core"
	"dydownloader/internal/history"
	"dydownloader/internal/tracker"
)

func TestOptionLabel(t *testing.T) {
	tests := []struct {
		name   string
		stream core.Stream
		want   string
	}{
		{
			name:   "highest quality",
			stream: core.Stream{Resolution: "1080p", Ext: "webm", Filesize: 1, IsHighest: true},
			want:   "1080p (webm) - Best Quality",
		},
		{
			name:   "best audio",
			stream: core.Stream{Resolution: "Audio Only", Ext: "mp3", IsBestAudio: true},
			want:   "Audio Only (mp3) - Highest Bitrate",
		},
		{
			name:   "exact size",
			stream: core.Stream{Resolution: "720p", Ext: "mp4", Filesize: 13107200},
			want:   "720p (mp4) - 12.50 MB",
		},
		{
			name:   "approximate size",
			stream: core.Stream{Resolution: "480p", Ext: "mp4", FilesizeApprox: 50 * 1024 * 1024},
			want:   "480p (mp4) - 50.00 MB",
		},
		{
			name:   "no size and no ext",
			stream: core.Stream{Resolution: "360p"},
			want:   "360p (mp4) - 10.00 MB",
		},
		{
			name:   "audio with size",
			stream: core.Stream{Resolution: "Audio", Ext: "m4a", Type: "audio", Filesize: 3 * 1024 * 1024},
			want:   "Audio (m4a) - 3.00 MB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OptionLabel(tt.stream); got != tt.want {
				t.Errorf("OptionLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusMessage(t *testing.T) {
	tests := []struct {
		state tracker.State
		want  string
	}{
		{tracker.State{Phase: tracker.PhaseIdle}, "Ready."},
		{tracker.State{Phase: tracker.PhaseIdle, JobID: "x"}, "Download cancelled."},
		{tracker.State{Phase: tracker.PhaseFastPoll, Percent: 0}, "Starting download..."},
		{tracker.State{Phase: tracker.PhaseFastPoll, Percent: 9}, "Starting download..."},
		{tracker.State{Phase: tracker.PhaseFastPoll, Percent: 10}, "Downloading..."},
		{tracker.State{Phase: tracker.PhaseSlowPoll, Percent: 49}, "Downloading..."},
		{tracker.State{Phase: tracker.PhaseSlowPoll, Percent: 50}, "Almost there..."},
		{tracker.State{Phase: tracker.PhaseSlowPoll, Percent: 90}, "Finalizing download..."},
		{tracker.State{Phase: tracker.PhaseSlowPoll, Percent: 99}, "Finalizing download..."},
		{tracker.State{Phase: tracker.PhaseCompleted, Percent: 100}, "Download completed!"},
		{tracker.State{Phase: tracker.PhaseCompletedFallback, Percent: 100}, "Download completed with fallback!"},
		{tracker.State{Phase: tracker.PhaseError, Error: "File not found"}, "Error: File not found"},
	}

	for _, tt := range tests {
		if got := StatusMessage(tt.state); got != tt.want {
			t.Errorf("StatusMessage(%v %d) = %q, want %q", tt.state.Phase, tt.state.Percent, got, tt.want)
		}
	}
}

func TestRendererProgress(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{})

	line := r.Progress(tracker.State{Phase: tracker.PhaseSlowPoll, Percent: 50})
	if !strings.Contains(line, " 50% Almost there...") {
		t.Errorf("unexpected progress line %q", line)
	}
	if got := strings.Count(line, "█"); got != barWidth/2 {
		t.Errorf("expected %d filled cells, got %d", barWidth/2, got)
	}

	line = r.Progress(tracker.State{Phase: tracker.PhaseCompleted, Percent: 100})
	if strings.Contains(line, "░") {
		t.Errorf("completed bar should be full: %q", line)
	}
}

func TestRendererPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	r.PrintProgress(tracker.State{Phase: tracker.PhaseFastPoll, Percent: 20})
	if strings.HasSuffix(buf.String(), "\n") {
		t.Error("in-flight progress should not end the line")
	}

	r.PrintProgress(tracker.State{Phase: tracker.PhaseError, Error: "boom"})
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("terminal progress should end the line")
	}
}

func TestRendererInfo(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{})
	out := r.Info(&core.VideoInfo{
		Title:  "Clip",
		Author: "Channel",
		Streams: []core.Stream{
			{FormatID: "22", Resolution: "720p", Ext: "mp4", Filesize: 13107200},
		},
	})

	for _, want := range []string{"Clip", "by Channel", "1. 720p (mp4) - 12.50 MB", "[22]"} {
		if !strings.Contains(out, want) {
			t.Errorf("info card missing %q:\n%s", want, out)
		}
	}
}

func TestRendererHistory(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{})

	if out := r.History(nil); !strings.Contains(out, "No download history yet.") {
		t.Errorf("unexpected empty history output %q", out)
	}

	out := r.History([]history.Entry{
		{URL: "https://example.com/2", Title: "Second", Format: "1080p (mp4) - Best Quality", Date: time.Now()},
		{URL: "https://example.com/1", Title: "First", Format: "720p (mp4) - 12.50 MB", Date: time.Now().Add(-time.Hour)},
	})
	if strings.Index(out, "Second") > strings.Index(out, "First") {
		t.Errorf("entries out of order:\n%s", out)
	}
	if !strings.Contains(out, "https://example.com/1") {
		t.Errorf("history missing url:\n%s", out)
	}
}
