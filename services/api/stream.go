package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"printrig/services/orchestrator"
)

const (
	streamBuffer       = 256
	statusInterval     = 5 * time.Second
	streamWriteTimeout = 10 * time.Second
)

type streamFrame struct {
	Type   string               `json:"type"`
	Event  *orchestrator.Event  `json:"event,omitempty"`
	Status *orchestrator.SystemStatus `json:"status,omitempty"`
}

// handleEventStream upgrades to a websocket, replays the recent event
// buffer, then forwards live events interleaved with periodic status
// frames. A client that cannot keep up is disconnected.
func (a *API) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Printf("WARN websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	sub := a.orch.Hub().Subscribe(streamBuffer)
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads serve only to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// An event published between this snapshot and the live loop can
	// arrive twice; clients key frames on run and event ordering.
	for _, ev := range a.orch.Hub().History() {
		ev := ev
		if err := a.writeFrame(conn, streamFrame{Type: "event", Event: &ev}); err != nil {
			return
		}
	}

	status := a.orch.Status()
	if err := a.writeFrame(conn, streamFrame{Type: "status_update", Status: &status}); err != nil {
		return
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := a.writeFrame(conn, streamFrame{Type: "event", Event: &ev}); err != nil {
				return
			}
		case <-ticker.C:
			status := a.orch.Status()
			if err := a.writeFrame(conn, streamFrame{Type: "status_update", Status: &status}); err != nil {
				return
			}
		}
	}
}

func (a *API) writeFrame(conn *websocket.Conn, frame streamFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(frame)
}
