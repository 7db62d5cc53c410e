// Package client provides a REST client for the sitegraft server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avollmer/sitegraft/internal/checkpoint"
	"github.com/avollmer/sitegraft/internal/metrics"
	"github.com/avollmer/sitegraft/internal/pipeline"
	"github.com/avollmer/sitegraft/internal/service"
)

// Client talks to a running sitegraft server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. If endpoint is empty, uses SITEGRAFT_SERVER_URL or
// defaults to localhost:8765. Timeout is configurable via
// SITEGRAFT_CLIENT_TIMEOUT (default 10m, migrations are slow).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("SITEGRAFT_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8765"
	}

	timeout := 10 * time.Minute
	if t := os.Getenv("SITEGRAFT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var errResp errorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server error: %s", errResp.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(raw))
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// Health checks the server and reports the state store backend in use.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartJob launches a migration and returns the accepted job.
func (c *Client) StartJob(ctx context.Context, source, mode string) (*service.Job, error) {
	var job service.Job
	err := c.do(ctx, http.MethodPost, "/jobs", map[string]string{"source": source, "mode": mode}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Resume continues an interrupted migration from its last checkpoint.
func (c *Client) Resume(ctx context.Context, source string) (*service.Job, error) {
	var job service.Job
	err := c.do(ctx, http.MethodPost, "/resume", map[string]string{"source": source}, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns all jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]service.Job, error) {
	var jobs []service.Job
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob fetches one job by ID.
func (c *Client) GetJob(ctx context.Context, id string) (*service.Job, error) {
	var job service.Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetReport fetches the final report of a finished job.
func (c *Client) GetReport(ctx context.Context, id string) (*pipeline.Report, error) {
	var report pipeline.Report
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id)+"/report", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// GetProgress returns checkpoint progress for a source.
func (c *Client) GetProgress(ctx context.Context, source string) (*checkpoint.Progress, error) {
	var progress checkpoint.Progress
	path := "/progress?source=" + url.QueryEscape(source)
	if err := c.do(ctx, http.MethodGet, path, nil, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// GetStats fetches server runtime statistics.
func (c *Client) GetStats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListStateKeys lists state store keys under a prefix.
func (c *Client) ListStateKeys(ctx context.Context, prefix string) ([]string, error) {
	var out struct {
		Keys []string `json:"keys"`
	}
	path := "/state/keys?prefix=" + url.QueryEscape(prefix)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// StreamEvents follows a job's progress events over WebSocket, invoking fn
// for each event. Blocks until the stream closes or ctx is done.
func (c *Client) StreamEvents(ctx context.Context, jobID string, fn func(pipeline.Event)) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/ws/" + url.PathEscape(jobID)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var event pipeline.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		fn(event)
		if event.Type == pipeline.EventComplete || event.Type == pipeline.EventError {
			return nil
		}
	}
}
