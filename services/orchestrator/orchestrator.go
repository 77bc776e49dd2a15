package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxRememberedRuns bounds how many terminated runs are kept so that a
// late stop request for an old run still succeeds idempotently.
const maxRememberedRuns = 128

// QueuePreparer sets up the spooler queue for a device before its first
// job. Optional; a nil preparer skips the step.
type QueuePreparer interface {
	Prepare(ctx context.Context, dev Device) error
}

// Config controls orchestrator policy.
type Config struct {
	// AutoStart starts a run implicitly on every attach notification.
	AutoStart bool
	// Run applies to every controller the orchestrator creates.
	Run RunConfig
}

// SystemStatus is the control-surface snapshot: attached printers plus
// a summary of every remembered run.
type SystemStatus struct {
	Printers    []Device              `json:"printers"`
	Runs        map[string]RunSummary `json:"runs"`
	SystemState string                `json:"system_state"`
	LastUpdated time.Time             `json:"last_updated"`
}

// Orchestrator supervises the population of run controllers: one is
// created on attach or explicit start, torn down on detach or explicit
// stop, with at most one non-terminal run per device identity. The
// check-then-create sits under a single mutex so racing start requests
// and attach notifications cannot double-start a device.
type Orchestrator struct {
	registry   *Registry
	dispatcher Dispatcher
	images     ImageSet
	hub        *Hub
	queues     QueuePreparer
	logger     *log.Logger
	cfg        Config
	baseCtx    context.Context

	mu       sync.Mutex
	active   map[string]*Controller   // device ID -> non-terminal controller
	runs     map[uuid.UUID]*Controller // every remembered run
	runOrder []uuid.UUID
}

// New creates an orchestrator. ctx is the process context; controllers
// derive their per-job deadlines from it so process shutdown, unlike a
// stop request, does abort outstanding work.
func New(ctx context.Context, registry *Registry, dispatcher Dispatcher, images ImageSet, hub *Hub, queues QueuePreparer, cfg Config, logger *log.Logger) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if images == nil || images.Len() == 0 {
		return nil, errors.New("a non-empty image set is required")
	}
	if hub == nil {
		return nil, errors.New("event hub is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	return &Orchestrator{
		registry:   registry,
		dispatcher: dispatcher,
		images:     images,
		hub:        hub,
		queues:     queues,
		logger:     logger,
		cfg:        cfg,
		baseCtx:    ctx,
		active:     make(map[string]*Controller),
		runs:       make(map[uuid.UUID]*Controller),
	}, nil
}

// Registry exposes the attached-device set for status reporting.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Hub exposes the event hub for subscribers.
func (o *Orchestrator) Hub() *Hub { return o.hub }

// Start creates and launches a run for the device. Returns
// ErrUnknownDevice if the identity is not attached and ErrAlreadyRunning
// if a non-terminal run exists for it.
func (o *Orchestrator) Start(deviceID string) (uuid.UUID, error) {
	dev, ok := o.registry.Get(deviceID)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	o.mu.Lock()
	if existing, ok := o.active[deviceID]; ok && !existing.Terminal() {
		o.mu.Unlock()
		return uuid.Nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, deviceID)
	}
	ctrl := newController(o.baseCtx, dev, o.dispatcher, o.images, o.hub, o.cfg.Run, o.logger, o.reap)
	o.active[deviceID] = ctrl
	o.remember(ctrl)
	o.mu.Unlock()

	if o.queues != nil {
		if err := o.queues.Prepare(o.baseCtx, dev); err != nil {
			o.mu.Lock()
			if o.active[deviceID] == ctrl {
				delete(o.active, deviceID)
			}
			delete(o.runs, ctrl.RunID())
			o.mu.Unlock()
			return uuid.Nil, fmt.Errorf("prepare queue %s: %w", dev.QueueName, err)
		}
	}

	metricActiveRuns.Inc()
	o.logger.Printf("INFO starting run %s for %s (%s)", ctrl.RunID(), dev.Name, dev.ID)
	go ctrl.run()
	return ctrl.RunID(), nil
}

// Stop requests a stop of the given run. Stopping an already-terminal
// run is a success no-op; an unknown identifier is ErrUnknownRun.
func (o *Orchestrator) Stop(runID uuid.UUID) error {
	o.mu.Lock()
	ctrl, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	ctrl.Stop()
	return nil
}

// HandleAttach processes a hotplug attach notification: the device is
// registered (duplicates are logged and ignored) and, under the
// auto-start policy, a run is started.
func (o *Orchestrator) HandleAttach(dev Device) {
	if err := o.registry.Attach(dev); err != nil {
		if errors.Is(err, ErrDuplicateDevice) {
			o.logger.Printf("DEBUG duplicate attach for %s ignored", dev.ID)
			return
		}
		o.logger.Printf("ERROR attach %s: %v", dev.ID, err)
		return
	}
	o.logger.Printf("INFO printer attached: %s (%s)", dev.Name, dev.ID)

	if !o.cfg.AutoStart {
		return
	}
	if _, err := o.Start(dev.ID); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		o.logger.Printf("ERROR auto-start %s: %v", dev.ID, err)
	}
}

// HandleDetach processes a hotplug detach notification: the device is
// removed from the registry and any run bound to it is stopped. A fresh
// attach of the same identity later starts a fresh run, never a resumed
// one.
func (o *Orchestrator) HandleDetach(deviceID string) {
	if o.registry.Detach(deviceID) {
		o.logger.Printf("INFO printer detached: %s", deviceID)
	}

	o.mu.Lock()
	ctrl, ok := o.active[deviceID]
	o.mu.Unlock()
	if ok {
		ctrl.Stop()
	}
}

// Status returns the registry snapshot plus run summaries, active runs
// and remembered terminal runs alike.
func (o *Orchestrator) Status() SystemStatus {
	printers := o.registry.List()

	o.mu.Lock()
	runs := make(map[string]RunSummary, len(o.runs))
	activeCount := 0
	for id, ctrl := range o.runs {
		s := ctrl.Summary()
		runs[id.String()] = s
		if !s.State.Terminal() {
			activeCount++
		}
	}
	o.mu.Unlock()

	state := "idle"
	if activeCount > 0 {
		state = "active"
	}
	return SystemStatus{
		Printers:    printers,
		Runs:        runs,
		SystemState: state,
		LastUpdated: time.Now().UTC(),
	}
}

// StopAll requests a stop on every active run and waits, bounded by ctx,
// for the controllers to finish. Best effort: a dispatch still in flight
// when ctx expires is left to its own deadline.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	o.mu.Lock()
	ctrls := make([]*Controller, 0, len(o.active))
	for _, ctrl := range o.active {
		ctrls = append(ctrls, ctrl)
	}
	o.mu.Unlock()

	for _, ctrl := range ctrls {
		ctrl.Stop()
	}
	for _, ctrl := range ctrls {
		select {
		case <-ctrl.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// reap runs on a controller's own goroutine as its final act.
func (o *Orchestrator) reap(ctrl *Controller) {
	metricActiveRuns.Dec()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active[ctrl.Device().ID] == ctrl {
		delete(o.active, ctrl.Device().ID)
	}
}

// remember records a run for later stop-idempotence checks, pruning the
// oldest terminal runs beyond the cap. Callers hold o.mu.
func (o *Orchestrator) remember(ctrl *Controller) {
	o.runs[ctrl.RunID()] = ctrl
	o.runOrder = append(o.runOrder, ctrl.RunID())
	for len(o.runOrder) > maxRememberedRuns {
		oldest := o.runOrder[0]
		if old, ok := o.runs[oldest]; ok && !old.Terminal() {
			break
		}
		delete(o.runs, oldest)
		o.runOrder = o.runOrder[1:]
	}
}
