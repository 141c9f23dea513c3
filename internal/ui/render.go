package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"dydownloader/internal/core"
	"dydownloader/internal/history"
	"dydownloader/internal/tracker"
)

const barWidth = 30

// Theme holds the styles used by the renderer.
type Theme struct {
	border  lipgloss.Style
	title   lipgloss.Style
	label   lipgloss.Style
	bar     lipgloss.Style
	barRest lipgloss.Style
	ok      lipgloss.Style
	err     lipgloss.Style
	faint   lipgloss.Style
}

func defaultTheme(r *lipgloss.Renderer) Theme {
	b := r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	return Theme{
		border:  b.BorderForeground(lipgloss.Color("63")),
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		label:   r.NewStyle().Faint(true),
		bar:     r.NewStyle().Foreground(lipgloss.Color("63")),
		barRest: r.NewStyle().Foreground(lipgloss.Color("240")),
		ok:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		err:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		faint:   r.NewStyle().Faint(true),
	}
}

// Renderer writes styled output to a terminal. Colors are dropped when the
// writer is not a terminal. Writes are serialized, so tracker callbacks may
// print while the caller does.
type Renderer struct {
	mu sync.Mutex
	w  io.Writer
	th Theme
}

// NewRenderer creates a renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w, th: defaultTheme(lipgloss.NewRenderer(w))}
}

// Progress renders one progress line: bar, percent and status message.
func (r *Renderer) Progress(st tracker.State) string {
	filled := st.Percent * barWidth / 100
	bar := r.th.bar.Render(strings.Repeat("█", filled)) +
		r.th.barRest.Render(strings.Repeat("░", barWidth-filled))

	msg := StatusMessage(st)
	switch st.Phase {
	case tracker.PhaseCompleted, tracker.PhaseCompletedFallback:
		msg = r.th.ok.Render(msg)
	case tracker.PhaseError:
		msg = r.th.err.Render(msg)
	}

	return fmt.Sprintf("%s %3d%% %s", bar, st.Percent, msg)
}

// Info renders the video card with the numbered format list.
func (r *Renderer) Info(info *core.VideoInfo) string {
	var b strings.Builder
	b.WriteString(r.th.title.Render(info.Title))
	b.WriteString("\n")
	b.WriteString(r.th.label.Render("by " + info.Author))
	if len(info.Streams) > 0 {
		b.WriteString("\n\n")
	}
	for i, s := range info.Streams {
		fmt.Fprintf(&b, "%2d. %s %s", i+1, OptionLabel(s), r.th.faint.Render("["+s.FormatID+"]"))
		if i < len(info.Streams)-1 {
			b.WriteString("\n")
		}
	}
	return r.th.border.Render(b.String())
}

// History renders history entries, newest first.
func (r *Renderer) History(entries []history.Entry) string {
	if len(entries) == 0 {
		return r.th.faint.Render("No download history yet.")
	}

	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%s\n  %s\n  %s",
			r.th.title.Render(e.Title),
			e.Format,
			r.th.label.Render(e.Date.Local().Format(time.DateTime)+"  "+e.URL),
		)
		if i < len(entries)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// PrintProgress rewrites the current terminal line with the progress line.
func (r *Renderer) PrintProgress(st tracker.State) {
	line := r.Progress(st)

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "\r%s\033[K", line)
	if st.Phase.IsTerminal() || st.Phase == tracker.PhaseIdle {
		fmt.Fprintln(r.w)
	}
}

// Println writes s followed by a newline.
func (r *Renderer) Println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, s)
}
