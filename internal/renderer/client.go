package renderer

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"schematic-service/internal/logger"
)

// ProcessResult is the artifact manifest the renderer reports for one
// completed run. Views are ordered front, side, top.
type ProcessResult struct {
	ProcessID string   `json:"processId"`
	Original  string   `json:"original"`
	Materials string   `json:"materials"`
	Views     []string `json:"views"`
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	ProcessResult
}

// Client talks to the external rendering service that parses a structure
// file and generates the view images and material list.
type Client struct {
	http      *resty.Client
	log       *logger.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a Client for the renderer at baseURL. Every outbound call is
// bounded by the given timeout.
func New(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	httpc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout)
	return &Client{
		http:  httpc,
		log:   log,
		ready: make(chan struct{}),
	}
}

// Process submits the raw structure file under uploadName and returns the run
// manifest. A transport failure, a non-success status, and a success=false
// envelope are all delegation failures.
func (c *Client) Process(ctx context.Context, file io.Reader, uploadName string) (*ProcessResult, error) {
	var body uploadResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", uploadName, file).
		SetResult(&body).
		Post("/api/upload")
	if err != nil {
		return nil, errors.Wrap(err, "renderer unreachable")
	}
	if resp.IsError() {
		return nil, errors.Errorf("renderer rejected upload: %s", resp.Status())
	}
	if !body.Success {
		msg := body.Error
		if msg == "" {
			msg = "unknown renderer error"
		}
		return nil, errors.Errorf("renderer processing failed: %s", msg)
	}
	if body.ProcessID == "" || body.Original == "" || body.Materials == "" || len(body.Views) != 3 {
		return nil, errors.Errorf("renderer returned an incomplete manifest: %+v", body.ProcessResult)
	}
	result := body.ProcessResult
	return &result, nil
}

// Download streams one named artifact of a completed run. The caller owns the
// returned body.
func (c *Client) Download(ctx context.Context, runHandle, remoteName string) (io.ReadCloser, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get("/api/download/" + url.PathEscape(runHandle) + "/" + url.PathEscape(remoteName))
	if err != nil {
		return nil, errors.Wrapf(err, "artifact download failed: %s", remoteName)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		resp.RawBody().Close()
		return nil, errors.Errorf("artifact download failed: %s: %s", remoteName, resp.Status())
	}
	return resp.RawBody(), nil
}

// Ping checks whether the renderer answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.http.R().SetContext(ctx).Get("/")
	return err
}

// Ready is closed once the renderer has answered its first probe. Consumers
// select on it instead of polling a shared flag.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// StartReadinessProbe pings the renderer in the background until it answers,
// then resolves Ready exactly once.
func (c *Client) StartReadinessProbe(interval time.Duration) {
	go func() {
		for {
			if err := c.Ping(context.Background()); err == nil {
				c.readyOnce.Do(func() { close(c.ready) })
				c.log.Info("renderer is reachable")
				return
			}
			c.log.Debug("renderer not reachable yet, retrying", "interval", interval)
			time.Sleep(interval)
		}
	}()
}
