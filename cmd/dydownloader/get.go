package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"dydownloader/internal/core"
	"dydownloader/internal/manager"
	"dydownloader/internal/tracker"
	"dydownloader/internal/ui"
)

func runGet(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	common := addCommonFlags(fs)

	format := fs.String("format", "", "Format id to download (default: best quality)")
	saveLocation := fs.String("save-location", "", "Backend save location: default or custom")
	customLocation := fs.String("custom-location", "", "Backend save path when -save-location=custom")
	output := fs.String("output", "", "Directory for the retrieved file (default: download_path)")
	list := fs.Bool("list", false, "Only show video info and formats")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: dydownloader get [options] <url>

Look up a video, start a download job on the backend, follow its progress
and save the finished file locally. The download is recorded in history.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one video URL is required")
		fs.Usage()
		return ExitInvalidArgs
	}
	videoURL := fs.Arg(0)

	cfg, err := common.loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	if *output == "" {
		*output = cfg.DownloadPath
	}
	if *saveLocation == "" {
		*saveLocation = cfg.DefaultSaveLocation
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	c, err := newClient(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}

	store, closeStore, err := openHistory(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitConfigError
	}
	defer closeStore()

	renderer := ui.NewRenderer(stdout)

	type fetched struct {
		path string
		err  error
	}
	saved := make(chan fetched, 1)
	failed := make(chan string, 1)

	opts := trackerOptions(cfg)
	opts.OnUpdate = func(st tracker.State) {
		renderer.PrintProgress(st)
		if st.Phase == tracker.PhaseError {
			select {
			case failed <- st.Error:
			default:
			}
		}
	}
	opts.Navigator = manager.SaveTo(c, *output, func(path string, err error) {
		saved <- fetched{path: path, err: err}
	})

	session := manager.NewSession(c, store, opts)
	defer session.Shutdown()

	info, err := session.FetchInfo(ctx, videoURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching video info: %v\n", err)
		return ExitBackendError
	}
	renderer.Println(renderer.Info(info))

	if *list {
		return ExitSuccess
	}

	formatID := *format
	if formatID == "" {
		formatID = defaultFormat(info)
	}

	job, err := session.StartDownload(ctx, core.DownloadRequest{
		URL:            videoURL,
		FormatID:       formatID,
		SaveLocation:   *saveLocation,
		CustomLocation: *customLocation,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if isSetupError(err) {
			return ExitInvalidArgs
		}
		return ExitBackendError
	}
	renderer.Println(fmt.Sprintf("Downloading %s as %s", job.Title, job.FormatLabel))

	select {
	case res := <-saved:
		if res.err != nil {
			fmt.Fprintf(os.Stderr, "Error saving file: %v\n", res.err)
			return ExitDownloadError
		}
		renderer.Println("Saved to " + res.path)
		return ExitSuccess
	case msg := <-failed:
		fmt.Fprintf(os.Stderr, "Download failed: %s\n", msg)
		return ExitDownloadError
	case <-ctx.Done():
		session.Cancel()
		return ExitGeneralError
	}
}

// defaultFormat prefers the stream marked highest quality, then the first
// video stream, then whatever comes first.
func defaultFormat(info *core.VideoInfo) string {
	for _, s := range info.Streams {
		if s.IsHighest {
			return s.FormatID
		}
	}
	for _, s := range info.Streams {
		if !s.IsAudio() {
			return s.FormatID
		}
	}
	if len(info.Streams) > 0 {
		return info.Streams[0].FormatID
	}
	return ""
}

func isSetupError(err error) bool {
	return errors.Is(err, core.ErrMissingURL) ||
		errors.Is(err, core.ErrMissingFormat) ||
		errors.Is(err, core.ErrMissingCustomLocation)
}
