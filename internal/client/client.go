// Package client talks to the download backend: video info lookup, job
// submission, progress polling and file retrieval.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dydownloader/internal/core"
	"dydownloader/internal/utils"
)

var log = utils.Component("CLIENT")

// ErrServerError wraps 5xx responses that carried no error message.
var ErrServerError = errors.New("client: server error")

// ErrResponseTooLarge is returned when a JSON response exceeds maxJSONBody.
var ErrResponseTooLarge = errors.New("client: response too large")

const (
	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 1 << 20
	// maxJSONBody caps a successful JSON response.
	maxJSONBody = 32 << 20
)

// APIError is an error reported by the backend in a JSON "error" field.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Options configures the client.
type Options struct {
	// Timeout for JSON requests. File retrieval is bounded by the context only.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the number of retries for idempotent requests.
	// Default: 3
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 500ms
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 5s
	RetryMaxBackoff time.Duration
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:         30 * time.Second,
		RetryAttempts:   3,
		RetryBackoff:    500 * time.Millisecond,
		RetryMaxBackoff: 5 * time.Second,
	}
}

// Client is a backend API client.
type Client struct {
	baseURL string
	client  *http.Client
	files   *http.Client
	opts    Options
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https: %s", baseURL)
	}

	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.RetryMaxBackoff <= 0 {
		opts.RetryMaxBackoff = def.RetryMaxBackoff
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		client:  &http.Client{Timeout: opts.Timeout},
		files:   &http.Client{},
		opts:    opts,
	}, nil
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type infoResponse struct {
	Title        string        `json:"title"`
	Author       string        `json:"author"`
	ThumbnailURL string        `json:"thumbnail_url"`
	Streams      []core.Stream `json:"streams"`
}

// GetVideoInfo fetches metadata and the selectable formats for videoURL.
func (c *Client) GetVideoInfo(ctx context.Context, videoURL string) (*core.VideoInfo, error) {
	form := url.Values{"url": {videoURL}}

	var resp infoResponse
	if err := c.postForm(ctx, "/get_video_info", form, true, &resp); err != nil {
		return nil, err
	}

	return &core.VideoInfo{
		URL:          videoURL,
		Title:        resp.Title,
		Author:       resp.Author,
		ThumbnailURL: resp.ThumbnailURL,
		Streams:      resp.Streams,
	}, nil
}

// StartDownload submits a download job and returns its id. It is never
// retried since a repeat would start a second job.
func (c *Client) StartDownload(ctx context.Context, req core.DownloadRequest) (string, error) {
	form := url.Values{
		"url":           {req.URL},
		"format_id":     {req.FormatID},
		"save_location": {req.SaveLocation},
	}
	if req.SaveLocation == core.SaveLocationCustom {
		form.Set("custom_location", req.CustomLocation)
	}

	var resp struct {
		DownloadID string `json:"download_id"`
	}
	if err := c.postForm(ctx, "/download", form, false, &resp); err != nil {
		return "", err
	}
	if resp.DownloadID == "" {
		return "", fmt.Errorf("backend returned no download id")
	}

	log.Info("Backend accepted download %s for %s", resp.DownloadID, req.URL)
	return resp.DownloadID, nil
}

// Progress returns one progress reading for a job. The tracker does its own
// polling, so this is a single attempt.
func (c *Client) Progress(ctx context.Context, jobID string) (core.Snapshot, error) {
	var resp struct {
		Progress float64 `json:"progress"`
		Status   string  `json:"status"`
	}

	endpoint := c.baseURL + "/download_progress/" + url.PathEscape(jobID)
	err := c.doJSON(ctx, false, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, &resp)
	if err != nil {
		return core.Snapshot{}, err
	}

	return core.NewSnapshot(resp.Progress, resp.Status), nil
}

// FileURL builds the retrieval URL for a finished job.
func (c *Client) FileURL(jobID, sourceURL, formatID string) string {
	return fmt.Sprintf("%s/get_file/%s?url=%s&format_id=%s",
		c.baseURL,
		url.PathEscape(jobID),
		url.QueryEscape(sourceURL),
		url.QueryEscape(formatID),
	)
}

// FetchFile downloads fileURL into dir and returns the written path. The
// name comes from the Content-Disposition header.
func (c *Client) FetchFile(ctx context.Context, fileURL, dir string) (string, error) {
	resp, err := c.do(ctx, c.files, true, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", readAPIError(resp)
	}

	filename := core.FilenameFromDisposition(resp.Header.Get("Content-Disposition"))

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	path := filepath.Join(dir, filename)
	tempPath := path + ".part"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("write file: %w", err)
	}

	if unique := core.UniquePath(path); unique != path {
		log.Warning("%s already exists, saving as %s", path, filepath.Base(unique))
		path = unique
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename file: %w", err)
	}

	log.Success("Saved %s (%d bytes)", path, n)
	return path, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, retry bool, out any) error {
	endpoint := c.baseURL + path
	body := form.Encode()
	return c.doJSON(ctx, retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, out)
}

// doJSON performs a request and decodes a JSON body into out. A non-empty
// "error" field fails the call even on a 2xx response.
func (c *Client) doJSON(ctx context.Context, retry bool, newReq func() (*http.Request, error), out any) error {
	resp, err := c.do(ctx, c.client, retry, newReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody+1))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(data) > maxJSONBody {
		return fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, maxJSONBody)
	}

	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if probe.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: probe.Error}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// do sends a request, retrying transport errors and 5xx responses when
// retry is set. All attempts share one X-Request-ID. The final 5xx response
// is returned to the caller unread.
func (c *Client) do(ctx context.Context, hc *http.Client, retry bool, newReq func() (*http.Request, error)) (*http.Response, error) {
	attempts := 0
	if retry {
		attempts = c.opts.RetryAttempts
	}
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("X-Request-ID", requestID)

		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			log.Info("%s %s failed (attempt %d): %v", req.Method, req.URL.Path, attempt+1, err)
			continue
		}

		if resp.StatusCode >= 500 && attempt < attempts {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, resp.Status)
			log.Info("%s %s returned %d (attempt %d)", req.Method, req.URL.Path, resp.StatusCode, attempt+1)
			continue
		}

		return resp, nil
	}

	if attempts == 0 {
		return nil, fmt.Errorf("request failed: %w", lastErr)
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts+1, lastErr)
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// readAPIError turns a failed response into an *APIError, using the JSON
// "error" field when there is one.
func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}

	msg := http.StatusText(resp.StatusCode)
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("%s: %s", ErrServerError, msg)}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
