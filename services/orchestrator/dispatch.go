package orchestrator

import "context"

// Image is one artifact in the fixed ordered test set. The orchestrator
// only needs the set's length and index-addressability; generation lives
// elsewhere.
type Image struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// ImageSet is the fixed ordered sequence of test images a run cycles
// through.
type ImageSet interface {
	Len() int
	At(i int) Image
}

// Status classifies the terminal outcome of one dispatched job.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a submitted job. Reason is set for
// failures only.
type Outcome struct {
	Status Status
	Reason string
}

// Dispatcher submits one image job to a device queue and blocks until a
// terminal outcome or the context deadline. The spooler offers no
// cancellation primitive beyond the deadline; callers never submit a
// second job for the same device while one is outstanding.
type Dispatcher interface {
	Submit(ctx context.Context, queueName string, image Image) Outcome
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(ctx context.Context, queueName string, image Image) Outcome

func (f DispatchFunc) Submit(ctx context.Context, queueName string, image Image) Outcome {
	return f(ctx, queueName, image)
}
