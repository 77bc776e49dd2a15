package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeImages int

func (f fakeImages) Len() int { return int(f) }
func (f fakeImages) At(i int) Image {
	return Image{Path: fmt.Sprintf("/tmp/test-%d.png", i), Description: fmt.Sprintf("pattern %d", i)}
}

// stepDispatcher hands each dispatch to the test, which decides the
// outcome. This keeps controller timing fully deterministic.
type stepDispatcher struct {
	requests chan dispatchRequest
}

type dispatchRequest struct {
	queue string
	image Image
	reply chan Outcome
}

func newStepDispatcher() *stepDispatcher {
	return &stepDispatcher{requests: make(chan dispatchRequest)}
}

func (d *stepDispatcher) Submit(ctx context.Context, queue string, image Image) Outcome {
	req := dispatchRequest{queue: queue, image: image, reply: make(chan Outcome)}
	select {
	case d.requests <- req:
	case <-ctx.Done():
		return Outcome{Status: StatusTimedOut}
	}
	select {
	case out := <-req.reply:
		return out
	case <-ctx.Done():
		return Outcome{Status: StatusTimedOut}
	}
}

// next waits for the controller's next dispatch.
func (d *stepDispatcher) next(t *testing.T) dispatchRequest {
	t.Helper()
	select {
	case req := <-d.requests:
		return req
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return dispatchRequest{}
	}
}

// serve answers the next dispatch with the given outcome.
func (d *stepDispatcher) serve(t *testing.T, out Outcome) {
	t.Helper()
	d.next(t).reply <- out
}

func newTestRun(t *testing.T, images int, cfg RunConfig) (*Controller, *stepDispatcher, *Subscription) {
	t.Helper()
	disp := newStepDispatcher()
	hub := NewHub(0, discardLogger())
	t.Cleanup(hub.Close)

	ctrl := newController(context.Background(), testDevice("d1"), disp, fakeImages(images), hub, cfg, discardLogger(), nil)
	sub := hub.Subscribe(128)
	t.Cleanup(sub.Close)
	return ctrl, disp, sub
}

func startTestRun(t *testing.T, images int, cfg RunConfig) (*Controller, *stepDispatcher, *Subscription) {
	t.Helper()
	ctrl, disp, sub := newTestRun(t, images, cfg)
	go ctrl.run()
	return ctrl, disp, sub
}

func waitDone(t *testing.T, ctrl *Controller) {
	t.Helper()
	select {
	case <-ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not terminate")
	}
}

// drainEvents reads from sub until kind is seen, returning everything
// observed up to and including it.
func drainEvents(t *testing.T, sub *Subscription, until Kind) []Event {
	t.Helper()
	var events []Event
	for {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "subscription closed before %s", until)
			events = append(events, ev)
			if ev.Kind == until {
				return events
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s, saw %v", until, kindsOf(events))
		}
	}
}

func kindsOf(events []Event) []Kind {
	kinds := make([]Kind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// Full pass through the documented scenario: a three-image set prints a
// clean first cycle, the first image of the second cycle needs all three
// attempts, and a stop lands while a dispatch is outstanding.
func TestControllerFullScenario(t *testing.T) {
	t.Parallel()
	ctrl, disp, sub := startTestRun(t, 3, RunConfig{
		MaxAttempts:  3,
		RetryDelay:   time.Millisecond,
		PrintTimeout: time.Minute,
	})

	// Cycle 0: three clean prints.
	for i := 0; i < 3; i++ {
		disp.serve(t, Outcome{Status: StatusSuccess})
	}

	// Cycle 1, image 0: two failures, then success on the third attempt.
	disp.serve(t, Outcome{Status: StatusFailure, Reason: "paper jam"})
	disp.serve(t, Outcome{Status: StatusFailure, Reason: "paper jam"})
	disp.serve(t, Outcome{Status: StatusSuccess})

	// Cycle 1, image 1: stop while the dispatch is outstanding, then let
	// it complete.
	req := disp.next(t)
	ctrl.Stop()
	req.reply <- Outcome{Status: StatusSuccess}

	waitDone(t, ctrl)
	events := drainEvents(t, sub, KindTestStopped)

	want := []Kind{
		KindTestStarted,
		KindPrintStarted, KindPrintCompleted,
		KindPrintStarted, KindPrintCompleted,
		KindPrintStarted, KindPrintCompleted,
		KindCycleCompleted, KindCycleStarted,
		KindPrintStarted, KindPrintCompleted, // failure 1
		KindPrintStarted, KindPrintCompleted, // failure 2
		KindPrintStarted, KindPrintCompleted, // success
		KindPrintStarted, KindPrintCompleted, // outstanding when stopped
		KindTestStopped,
	}
	require.Equal(t, want, kindsOf(events))

	// The two failures are reported as such, with no test_error.
	require.Equal(t, false, events[10].Payload["success"])
	require.Equal(t, false, events[12].Payload["success"])
	require.Equal(t, true, events[14].Payload["success"])

	stopped := events[len(events)-1]
	require.Equal(t, 1, stopped.Payload["cycles_completed"])

	// Second-cycle events carry the incremented cycle counter.
	require.Equal(t, 1, events[8].Cycle)
	require.Equal(t, StateStopped, ctrl.Summary().State)
}

func TestControllerRetryExhaustionIsFatal(t *testing.T) {
	t.Parallel()
	ctrl, disp, sub := startTestRun(t, 2, RunConfig{
		MaxAttempts:  3,
		RetryDelay:   time.Millisecond,
		PrintTimeout: time.Minute,
	})

	for i := 0; i < 3; i++ {
		disp.serve(t, Outcome{Status: StatusFailure, Reason: "out of ribbon"})
	}

	waitDone(t, ctrl)
	events := drainEvents(t, sub, KindTestError)

	starts := 0
	for _, ev := range events {
		require.NotEqual(t, KindTestStopped, ev.Kind, "errored run must not also report stopped")
		if ev.Kind == KindPrintStarted {
			starts++
			require.Equal(t, 0, ev.ImageIndex, "retries must target the same image")
		}
	}
	require.Equal(t, 3, starts, "attempts must not exceed the configured maximum")

	last := events[len(events)-1]
	require.Equal(t, "out of ribbon", last.Payload["reason"])
	require.Equal(t, StateErrored, ctrl.Summary().State)
}

func TestControllerTimeoutCountsAsAttempt(t *testing.T) {
	t.Parallel()
	ctrl, disp, sub := startTestRun(t, 1, RunConfig{
		MaxAttempts:  2,
		RetryDelay:   time.Millisecond,
		PrintTimeout: time.Minute,
	})

	disp.serve(t, Outcome{Status: StatusTimedOut})
	disp.serve(t, Outcome{Status: StatusTimedOut})

	waitDone(t, ctrl)
	events := drainEvents(t, sub, KindTestError)
	require.Equal(t, 2, countKind(events, KindPrintStarted))
}

func TestControllerStopBeforeFirstPrint(t *testing.T) {
	t.Parallel()
	ctrl, _, sub := newTestRun(t, 3, RunConfig{
		MaxAttempts:  3,
		RetryDelay:   time.Millisecond,
		PrintTimeout: time.Minute,
	})

	ctrl.Stop()
	go ctrl.run()
	waitDone(t, ctrl)

	events := drainEvents(t, sub, KindTestStopped)
	require.Equal(t, 0, countKind(events, KindPrintStarted))
	require.Equal(t, 0, events[len(events)-1].Payload["cycles_completed"])
}

func TestControllerStopDuringRetryDelay(t *testing.T) {
	t.Parallel()
	ctrl, disp, sub := startTestRun(t, 3, RunConfig{
		MaxAttempts:  3,
		RetryDelay:   time.Hour, // stop must not wait this out
		PrintTimeout: time.Minute,
	})

	disp.serve(t, Outcome{Status: StatusFailure, Reason: "busy"})
	ctrl.Stop()
	waitDone(t, ctrl)

	events := drainEvents(t, sub, KindTestStopped)
	require.Equal(t, 1, countKind(events, KindPrintStarted))
}

func TestControllerStopIsIdempotent(t *testing.T) {
	t.Parallel()
	ctrl, _, sub := newTestRun(t, 3, RunConfig{
		MaxAttempts:  3,
		RetryDelay:   time.Millisecond,
		PrintTimeout: time.Minute,
	})

	ctrl.Stop()
	ctrl.Stop()
	go ctrl.run()
	waitDone(t, ctrl)
	ctrl.Stop()

	events := drainEvents(t, sub, KindTestStopped)
	require.Equal(t, 1, countKind(events, KindTestStopped))

	// Nothing further arrives after the terminal event.
	select {
	case ev, ok := <-sub.Events():
		require.False(t, ok, "unexpected event after terminal state: %v", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestControllerCycleCompletedCarriesFinalImageIndex(t *testing.T) {
	t.Parallel()
	ctrl, disp, sub := startTestRun(t, 2, RunConfig{
		MaxAttempts:  3,
		RetryDelay:   time.Millisecond,
		PrintTimeout: time.Minute,
	})

	disp.serve(t, Outcome{Status: StatusSuccess})
	disp.serve(t, Outcome{Status: StatusSuccess})

	events := drainEvents(t, sub, KindCycleStarted)

	var completed *Event
	for i := range events {
		if events[i].Kind == KindCycleCompleted {
			completed = &events[i]
		}
	}
	require.NotNil(t, completed)
	require.Equal(t, 0, completed.Cycle)
	require.Equal(t, 1, completed.ImageIndex, "cycle_completed must name the final image of the set")

	started := events[len(events)-1]
	require.Equal(t, 1, started.Cycle)
	require.Equal(t, 0, started.ImageIndex)

	ctrl.Stop()
	disp.serve(t, Outcome{Status: StatusSuccess})
	waitDone(t, ctrl)
}

func countKind(events []Event, kind Kind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
