package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// Kind enumerates the event types a run can emit.
type Kind string

const (
	KindTestStarted    Kind = "test_started"
	KindCycleStarted   Kind = "cycle_started"
	KindPrintStarted   Kind = "print_started"
	KindPrintCompleted Kind = "print_completed"
	KindCycleCompleted Kind = "cycle_completed"
	KindTestStopped    Kind = "test_stopped"
	KindTestError      Kind = "test_error"
)

// Event is one immutable record of a run transition. Subscribers consume
// events, they never mutate them.
type Event struct {
	RunID      uuid.UUID      `json:"run_id"`
	DeviceID   string         `json:"device_id"`
	Kind       Kind           `json:"kind"`
	Cycle      int            `json:"cycle"`
	ImageIndex int            `json:"image_index"`
	Payload    map[string]any `json:"payload,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
