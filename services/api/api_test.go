package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"printrig/services/orchestrator"
)

type fakeImages int

func (n fakeImages) Len() int { return int(n) }
func (n fakeImages) At(i int) orchestrator.Image {
	return orchestrator.Image{
		Path:        fmt.Sprintf("/img/%d.png", i),
		Description: fmt.Sprintf("image %d", i),
	}
}

// slowDispatcher keeps every job in flight until the context expires,
// so runs stay active for the duration of a test.
type slowDispatcher struct{}

func (slowDispatcher) Submit(ctx context.Context, _ string, _ orchestrator.Image) orchestrator.Outcome {
	<-ctx.Done()
	return orchestrator.Outcome{Status: orchestrator.StatusTimedOut}
}

func newTestAPI(t *testing.T) (*API, *orchestrator.Orchestrator, *orchestrator.Hub) {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	hub := orchestrator.NewHub(orchestrator.DefaultHistory, logger)
	registry := orchestrator.NewRegistry()
	require.NoError(t, registry.Attach(orchestrator.Device{
		ID:        "usb:04a9:327b@001/004",
		Name:      "Canon SELPHY CP1300",
		Model:     orchestrator.ModelCanonSelphy,
		QueueName: "rig_canon_selphy_cp1300",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	orch, err := orchestrator.New(ctx, registry, slowDispatcher{}, fakeImages(3), hub, nil, orchestrator.Config{
		Run: orchestrator.RunConfig{PrintTimeout: 50 * time.Millisecond, RetryDelay: time.Hour},
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		_ = orch.StopAll(stopCtx)
	})

	a, err := New(orch, nil, logger)
	require.NoError(t, err)
	return a, orch, hub
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStartAndStopTest(t *testing.T) {
	a, _, _ := newTestAPI(t)
	handler, err := a.Routes()
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/v1/tests/start", map[string]string{
		"device_id": "usb:04a9:327b@001/004",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var started struct {
		Success bool      `json:"success"`
		RunID   uuid.UUID `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.True(t, started.Success)
	require.NotEqual(t, uuid.Nil, started.RunID)

	rec = doJSON(t, handler, http.MethodPost, "/v1/tests/start", map[string]string{
		"device_id": "usb:04a9:327b@001/004",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/v1/tests/stop", map[string]string{
		"run_id": started.RunID.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStartUnknownDevice(t *testing.T) {
	a, _, _ := newTestAPI(t)
	handler, err := a.Routes()
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/v1/tests/start", map[string]string{
		"device_id": "usb:ffff:ffff@001/001",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.NotEmpty(t, resp.Error)
}

func TestStartRejectsUnknownFields(t *testing.T) {
	a, _, _ := newTestAPI(t)
	handler, err := a.Routes()
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/v1/tests/start", map[string]string{
		"device_id": "usb:04a9:327b@001/004",
		"cycles":    "5",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStopUnknownRun(t *testing.T) {
	a, _, _ := newTestAPI(t)
	handler, err := a.Routes()
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/v1/tests/stop", map[string]string{
		"run_id": uuid.NewString(),
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusAndPrinters(t *testing.T) {
	a, _, _ := newTestAPI(t)
	handler, err := a.Routes()
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status orchestrator.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "idle", status.SystemState)
	require.Len(t, status.Printers, 1)

	rec = doJSON(t, handler, http.MethodGet, "/v1/printers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var printers struct {
		Printers []printerView `json:"printers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &printers))
	require.Len(t, printers.Printers, 1)
	require.Nil(t, printers.Printers[0].Run)
}

func TestRunsWithoutArchive(t *testing.T) {
	a, _, _ := newTestAPI(t)
	handler, err := a.Routes()
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodGet, "/v1/runs", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventStreamReplaysAndForwards(t *testing.T) {
	a, _, hub := newTestAPI(t)
	handler, err := a.Routes()
	require.NoError(t, err)

	runID := uuid.New()
	hub.Publish(orchestrator.Event{
		RunID: runID, DeviceID: "usb:04a9:327b@001/004",
		Kind: orchestrator.KindTestStarted, Timestamp: time.Now().UTC(),
	})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var replay streamFrame
	require.NoError(t, conn.ReadJSON(&replay))
	require.Equal(t, "event", replay.Type)
	require.Equal(t, runID, replay.Event.RunID)
	require.Equal(t, orchestrator.KindTestStarted, replay.Event.Kind)

	var status streamFrame
	require.NoError(t, conn.ReadJSON(&status))
	require.Equal(t, "status_update", status.Type)
	require.NotNil(t, status.Status)

	hub.Publish(orchestrator.Event{
		RunID: runID, DeviceID: "usb:04a9:327b@001/004",
		Kind: orchestrator.KindCycleStarted, Cycle: 1, Timestamp: time.Now().UTC(),
	})

	var live streamFrame
	require.NoError(t, conn.ReadJSON(&live))
	require.Equal(t, "event", live.Type)
	require.Equal(t, orchestrator.KindCycleStarted, live.Event.Kind)
	require.Equal(t, 1, live.Event.Cycle)
}
