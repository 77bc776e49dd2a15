// Package rigctl is the client side of the rig control API.
package rigctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"printrig/services/orchestrator"
)

// Printer is one attached printer as reported by the daemon, with its
// active run when one exists.
type Printer struct {
	orchestrator.Device
	Run *orchestrator.RunSummary `json:"run,omitempty"`
}

// ArchivedRun is one row of persisted run history.
type ArchivedRun struct {
	ID         uuid.UUID  `json:"id"`
	DeviceID   string     `json:"device_id"`
	DeviceName string     `json:"device_name"`
	Model      string     `json:"model"`
	Status     string     `json:"status"`
	Cycles     int        `json:"cycles"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Frame is one message from the event stream.
type Frame struct {
	Type   string               `json:"type"`
	Event  *orchestrator.Event  `json:"event,omitempty"`
	Status *orchestrator.SystemStatus `json:"status,omitempty"`
}

// Client talks to a rigd instance.
type Client struct {
	base string
	http *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Status(ctx context.Context) (orchestrator.SystemStatus, error) {
	var status orchestrator.SystemStatus
	err := c.get(ctx, "/v1/status", &status)
	return status, err
}

func (c *Client) Printers(ctx context.Context) ([]Printer, error) {
	var resp struct {
		Printers []Printer `json:"printers"`
	}
	if err := c.get(ctx, "/v1/printers", &resp); err != nil {
		return nil, err
	}
	return resp.Printers, nil
}

func (c *Client) StartTest(ctx context.Context, deviceID string) (uuid.UUID, error) {
	var resp struct {
		RunID uuid.UUID `json:"run_id"`
	}
	err := c.post(ctx, "/v1/tests/start", map[string]string{"device_id": deviceID}, &resp)
	return resp.RunID, err
}

func (c *Client) StopTest(ctx context.Context, runID uuid.UUID) error {
	return c.post(ctx, "/v1/tests/stop", map[string]string{"run_id": runID.String()}, nil)
}

func (c *Client) Runs(ctx context.Context, deviceID string) ([]ArchivedRun, error) {
	path := "/v1/runs"
	if deviceID != "" {
		path += "?device_id=" + url.QueryEscape(deviceID)
	}
	var resp struct {
		Runs []ArchivedRun `json:"runs"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// Watch streams frames until ctx is done or the connection drops. fn is
// invoked for every frame; a non-nil return ends the watch.
func (c *Client) Watch(ctx context.Context, fn func(Frame) error) error {
	wsURL, err := url.Parse(c.base + "/v1/events/ws")
	if err != nil {
		return err
	}
	switch wsURL.Scheme {
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, dest)
}

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("%s", resp.Status)
	}

	if dest == nil {
		return nil
	}
	return json.Unmarshal(data, dest)
}
