package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a run's position in its lifecycle. StateStopped and
// StateErrored are terminal.
type State string

const (
	StateStarting      State = "starting"
	StatePrinting      State = "printing"
	StateRetrying      State = "retrying"
	StateCycleComplete State = "cycle_complete"
	StateStopping      State = "stopping"
	StateStopped       State = "stopped"
	StateErrored       State = "errored"
)

// Terminal reports whether no further transitions occur from s.
func (s State) Terminal() bool { return s == StateStopped || s == StateErrored }

// RunConfig bounds the retry policy and per-job deadline of a run.
type RunConfig struct {
	// MaxAttempts is the total number of tries per image, first attempt
	// included.
	MaxAttempts int
	// RetryDelay is the fixed pause before re-dispatching a failed image.
	RetryDelay time.Duration
	// PrintTimeout bounds a single dispatch call.
	PrintTimeout time.Duration
}

func (c RunConfig) withDefaults() RunConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.PrintTimeout <= 0 {
		c.PrintTimeout = 2 * time.Minute
	}
	return c
}

// RunSummary is a point-in-time snapshot of a run for status reporting.
type RunSummary struct {
	RunID       uuid.UUID `json:"run_id"`
	DeviceID    string    `json:"device_id"`
	DeviceName  string    `json:"device_name"`
	State       State     `json:"state"`
	Cycle       int       `json:"cycle"`
	ImageIndex  int       `json:"image_index"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
	LastEventAt time.Time `json:"last_event_at"`
}

// Controller owns exactly one run. Its state is mutated only by its own
// loop goroutine; everything the outside world reads goes through the
// mutex-guarded snapshot.
//
// Stopping is cooperative: no new job is submitted after a stop request,
// but an outstanding dispatch runs to its outcome or deadline first. The
// job context derives from the process context, not the stop signal, so
// a stop never aborts the spooler call.
type Controller struct {
	runID      uuid.UUID
	device     Device
	dispatcher Dispatcher
	images     ImageSet
	hub        *Hub
	logger     *log.Logger
	cfg        RunConfig

	baseCtx    context.Context
	stopOnce   sync.Once
	stopCh     chan struct{}
	done       chan struct{}
	onTerminal func(*Controller)

	mu          sync.Mutex
	state       State
	cycle       int
	imageIndex  int
	attempts    int
	stopPending bool
	createdAt   time.Time
	lastEventAt time.Time
}

func newController(ctx context.Context, dev Device, dispatcher Dispatcher, images ImageSet, hub *Hub, cfg RunConfig, logger *log.Logger, onTerminal func(*Controller)) *Controller {
	now := time.Now().UTC()
	return &Controller{
		runID:      uuid.New(),
		device:     dev,
		dispatcher: dispatcher,
		images:     images,
		hub:        hub,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		baseCtx:    ctx,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		onTerminal: onTerminal,
		state:      StateStarting,
		createdAt:  now,
	}
}

// RunID returns the run's unique identifier.
func (c *Controller) RunID() uuid.UUID { return c.runID }

// Device returns the device the run is bound to.
func (c *Controller) Device() Device { return c.device }

// Done is closed when the run reaches a terminal state.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Terminal reports whether the run has reached Stopped or Errored.
func (c *Controller) Terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Terminal()
}

// Stop requests a cooperative stop. Safe to call any number of times
// from any goroutine; later calls are no-ops.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopPending = true
		if !c.state.Terminal() {
			c.state = StateStopping
		}
		c.mu.Unlock()
		close(c.stopCh)
	})
}

// Summary returns a point-in-time snapshot of the run.
func (c *Controller) Summary() RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return RunSummary{
		RunID:       c.runID,
		DeviceID:    c.device.ID,
		DeviceName:  c.device.Name,
		State:       c.state,
		Cycle:       c.cycle,
		ImageIndex:  c.imageIndex,
		Attempts:    c.attempts,
		CreatedAt:   c.createdAt,
		LastEventAt: c.lastEventAt,
	}
}

func (c *Controller) stopRequested() bool {
	select {
	case <-c.stopCh:
		return true
	case <-c.baseCtx.Done():
		return true
	default:
		return false
	}
}

// setState moves to s unless a stop is pending, which only the terminal
// transitions may override.
func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopPending && !s.Terminal() {
		return
	}
	c.state = s
}

func (c *Controller) emit(kind Kind, payload map[string]any) {
	c.mu.Lock()
	ev := Event{
		RunID:      c.runID,
		DeviceID:   c.device.ID,
		Kind:       kind,
		Cycle:      c.cycle,
		ImageIndex: c.imageIndex,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
	c.lastEventAt = ev.Timestamp
	c.mu.Unlock()

	c.hub.Publish(ev)
}

// run drives the print cycle until a terminal state. It is the only
// goroutine that mutates run state or emits events, which is what keeps
// the per-run event order well defined.
func (c *Controller) run() {
	defer close(c.done)
	defer func() {
		if c.onTerminal != nil {
			c.onTerminal(c)
		}
	}()

	c.emit(KindTestStarted, map[string]any{
		"device_name": c.device.Name,
		"model":       string(c.device.Model),
		"images":      c.images.Len(),
	})
	c.setState(StatePrinting)

	for {
		if c.stopRequested() {
			c.finishStopped()
			return
		}

		img := c.images.At(c.imageIndex)
		c.mu.Lock()
		attempt := c.attempts + 1
		c.mu.Unlock()

		c.emit(KindPrintStarted, map[string]any{
			"description": img.Description,
			"attempt":     attempt,
		})

		jobCtx, cancel := context.WithTimeout(c.baseCtx, c.cfg.PrintTimeout)
		outcome := c.dispatcher.Submit(jobCtx, c.device.QueueName, img)
		cancel()

		metricPrints.WithLabelValues(outcome.Status.String()).Inc()

		if outcome.Status == StatusSuccess {
			c.emit(KindPrintCompleted, map[string]any{
				"description": img.Description,
				"success":     true,
			})
			c.advance()
			continue
		}

		c.emit(KindPrintCompleted, map[string]any{
			"description": img.Description,
			"success":     false,
			"reason":      outcomeReason(outcome),
		})

		if c.stopRequested() {
			c.finishStopped()
			return
		}

		c.mu.Lock()
		c.attempts++
		exhausted := c.attempts >= c.cfg.MaxAttempts
		c.mu.Unlock()

		if exhausted {
			c.finishErrored(outcome, img)
			return
		}

		metricRetries.Inc()
		c.setState(StateRetrying)
		c.logger.Printf("WARN run %s: print %q failed (%s), retrying in %s",
			c.runID, img.Description, outcomeReason(outcome), c.cfg.RetryDelay)

		select {
		case <-c.stopCh:
			c.finishStopped()
			return
		case <-c.baseCtx.Done():
			c.finishStopped()
			return
		case <-time.After(c.cfg.RetryDelay):
		}
		c.setState(StatePrinting)
	}
}

// advance moves to the next image after a success, rolling the cycle
// counter when the set is exhausted.
func (c *Controller) advance() {
	c.mu.Lock()
	c.attempts = 0
	rollover := c.imageIndex+1 >= c.images.Len()
	if !rollover {
		c.imageIndex++
	}
	c.mu.Unlock()

	if !rollover {
		c.setState(StatePrinting)
		return
	}

	// Emitted while the index still names the final image, so observers
	// never see an index past the set.
	c.setState(StateCycleComplete)
	c.emit(KindCycleCompleted, nil)
	metricCycles.Inc()

	c.mu.Lock()
	c.cycle++
	c.imageIndex = 0
	c.mu.Unlock()

	if c.stopRequested() {
		// test_stopped follows from the loop; no cycle_started for a
		// cycle that will never print.
		return
	}
	c.emit(KindCycleStarted, nil)
	c.setState(StatePrinting)
}

func (c *Controller) finishStopped() {
	c.mu.Lock()
	c.stopPending = true
	c.state = StateStopped
	cycles := c.cycle
	c.mu.Unlock()

	c.emit(KindTestStopped, map[string]any{"cycles_completed": cycles})
	metricRuns.WithLabelValues(string(StateStopped)).Inc()
	c.logger.Printf("INFO run %s stopped after %d completed cycles", c.runID, cycles)
}

func (c *Controller) finishErrored(outcome Outcome, img Image) {
	c.setState(StateErrored)
	c.emit(KindTestError, map[string]any{
		"description": img.Description,
		"reason":      outcomeReason(outcome),
		"attempts":    c.cfg.MaxAttempts,
	})
	metricRuns.WithLabelValues(string(StateErrored)).Inc()
	c.logger.Printf("ERROR run %s: retries exhausted on %q (%s)",
		c.runID, img.Description, outcomeReason(outcome))
}

func outcomeReason(o Outcome) string {
	if o.Reason != "" {
		return o.Reason
	}
	return o.Status.String()
}
