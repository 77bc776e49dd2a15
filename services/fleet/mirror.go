// Package fleet forwards run events to the message bus so a central QC
// dashboard can watch every rig on the floor.
package fleet

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"printrig/services/orchestrator"
)

// Publisher is the slice of the bus the mirror needs.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

const (
	subjectEventPrefix = "printrig.events."

	SubjectRunStarted = "printrig.runs.started"
	SubjectRunStopped = "printrig.runs.stopped"
	SubjectRunErrored = "printrig.runs.errored"
)

// RunNotice is the compact lifecycle message published on the run subjects.
type RunNotice struct {
	RunID           uuid.UUID `json:"run_id"`
	DeviceID        string    `json:"device_id"`
	CyclesCompleted int       `json:"cycles_completed,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	At              time.Time `json:"at"`
}

// Mirror forwards every hub event onto the bus.
type Mirror struct {
	pub    Publisher
	logger *log.Logger
}

func NewMirror(pub Publisher, logger *log.Logger) *Mirror {
	return &Mirror{pub: pub, logger: logger}
}

// Run consumes the subscription until it closes or ctx is done. Publish
// failures are logged; the rig never blocks on the fleet bus.
func (m *Mirror) Run(ctx context.Context, sub *orchestrator.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			m.forward(ctx, ev)
		}
	}
}

func (m *Mirror) forward(ctx context.Context, ev orchestrator.Event) {
	subj := subjectEventPrefix + string(ev.Kind)
	if err := m.pub.Publish(ctx, subj, ev); err != nil {
		m.logger.Printf("WARN fleet publish %s: %v", subj, err)
	}

	lifecycle := ""
	notice := RunNotice{RunID: ev.RunID, DeviceID: ev.DeviceID, At: ev.Timestamp}
	switch ev.Kind {
	case orchestrator.KindTestStarted:
		lifecycle = SubjectRunStarted
	case orchestrator.KindTestStopped:
		lifecycle = SubjectRunStopped
		notice.CyclesCompleted = cyclesCompleted(ev)
	case orchestrator.KindTestError:
		lifecycle = SubjectRunErrored
		if ev.Payload != nil {
			notice.Reason, _ = ev.Payload["reason"].(string)
		}
	default:
		return
	}

	if err := m.pub.Publish(ctx, lifecycle, notice); err != nil {
		m.logger.Printf("WARN fleet publish %s: %v", lifecycle, err)
	}
}

func cyclesCompleted(ev orchestrator.Event) int {
	if ev.Payload != nil {
		if n, ok := ev.Payload["cycles_completed"].(int); ok {
			return n
		}
	}
	return ev.Cycle
}
