// Package archive persists run history for QC traceability. It is a
// passive event-hub subscriber: the rig works identically with the
// archive disabled, and a database hiccup never reaches a controller.
package archive

import (
	"context"
	"log"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"printrig/services/orchestrator"
)

// Recorder mirrors run events into the database.
type Recorder struct {
	orm    *gorm.DB
	logger *log.Logger
}

// NewRecorder creates a recorder writing through the given GORM session.
func NewRecorder(orm *gorm.DB, logger *log.Logger) *Recorder {
	return &Recorder{orm: orm, logger: logger}
}

// Run consumes the subscription until it closes or ctx is done. Write
// failures are logged and skipped.
func (r *Recorder) Run(ctx context.Context, sub *orchestrator.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			r.record(ctx, ev)
		}
	}
}

func (r *Recorder) record(ctx context.Context, ev orchestrator.Event) {
	orm := r.orm.WithContext(ctx)

	if err := orm.Create(eventRow(ev)).Error; err != nil {
		r.logger.Printf("ERROR archive event %s for run %s: %v", ev.Kind, ev.RunID, err)
	}

	switch ev.Kind {
	case orchestrator.KindTestStarted:
		row := &runRecord{
			ID:         ev.RunID,
			DeviceID:   ev.DeviceID,
			DeviceName: payloadString(ev.Payload, "device_name"),
			Model:      payloadString(ev.Payload, "model"),
			Status:     runStatusRunning,
			StartedAt:  ev.Timestamp,
		}
		if err := orm.Create(row).Error; err != nil {
			r.logger.Printf("ERROR archive run %s: %v", ev.RunID, err)
		}
	case orchestrator.KindTestStopped:
		r.finish(orm, ev, runStatusStopped, "")
	case orchestrator.KindTestError:
		r.finish(orm, ev, runStatusErrored, payloadString(ev.Payload, "reason"))
	}
}

func (r *Recorder) finish(orm *gorm.DB, ev orchestrator.Event, status, reason string) {
	finishedAt := ev.Timestamp
	updates := map[string]any{
		"status":      status,
		"cycles":      cyclesCompleted(ev),
		"finished_at": &finishedAt,
	}
	if reason != "" {
		updates["error"] = reason
	}
	if err := orm.Model(&runRecord{}).Where("id = ?", ev.RunID).Updates(updates).Error; err != nil {
		r.logger.Printf("ERROR archive finish run %s: %v", ev.RunID, err)
	}
}

func eventRow(ev orchestrator.Event) *eventRecord {
	payload := datatypes.JSONMap{}
	for k, v := range ev.Payload {
		payload[k] = v
	}
	return &eventRecord{
		RunID:      ev.RunID,
		DeviceID:   ev.DeviceID,
		Kind:       string(ev.Kind),
		Cycle:      ev.Cycle,
		ImageIndex: ev.ImageIndex,
		Payload:    payload,
		EmittedAt:  ev.Timestamp,
	}
}

// cyclesCompleted prefers the terminal event's payload and falls back to
// the event's own cycle counter.
func cyclesCompleted(ev orchestrator.Event) int {
	if ev.Payload != nil {
		if n, ok := ev.Payload["cycles_completed"].(int); ok {
			return n
		}
		if f, ok := ev.Payload["cycles_completed"].(float64); ok {
			return int(f)
		}
	}
	return ev.Cycle
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}
