// Package cups drives the system print spooler through its command-line
// tools: lpadmin to manage queues, lp to submit jobs, lpstat to await
// their fate.
package cups

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"printrig/services/orchestrator"
)

const defaultPollInterval = 2 * time.Second

// lp prints e.g. "request id is rig_dnp_qw410-17 (1 file(s))".
var jobIDPattern = regexp.MustCompile(`request id is (\S+)`)

// Client submits print jobs and prepares queues. Implements both the
// orchestrator's Dispatcher and QueuePreparer.
type Client struct {
	runner       Runner
	logger       *log.Logger
	pollInterval time.Duration

	mu        sync.Mutex
	queueOpts map[string][]string
}

// NewClient creates a Client backed by the given runner; nil selects
// ExecRunner.
func NewClient(runner Runner, logger *log.Logger) *Client {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Client{
		runner:       runner,
		logger:       logger,
		pollInterval: defaultPollInterval,
		queueOpts:    make(map[string][]string),
	}
}

// Prepare registers the device's queue with the spooler: any stale queue
// of the same name is dropped first, then the queue is created against
// the device URI and set as default. Records the model's print options
// for later submissions.
func (c *Client) Prepare(ctx context.Context, dev orchestrator.Device) error {
	// Stale queues from a previous attach are expected; removal failure
	// is not interesting.
	_, _ = c.runner.Run(ctx, "lpadmin", "-x", dev.QueueName)

	_, err := c.runner.Run(ctx, "lpadmin",
		"-p", dev.QueueName,
		"-E",
		"-v", dev.URI,
		"-m", dev.PPD,
		"-L", fmt.Sprintf("printrig - %s", dev.Name),
		"-D", fmt.Sprintf("QC test queue for %s", dev.Name),
	)
	if err != nil {
		return fmt.Errorf("create queue %s: %w", dev.QueueName, err)
	}

	if _, err := c.runner.Run(ctx, "lpoptions", "-d", dev.QueueName); err != nil {
		c.logger.Printf("WARN could not set %s as default queue: %v", dev.QueueName, err)
	}

	c.mu.Lock()
	c.queueOpts[dev.QueueName] = optionsFor(dev.Model)
	c.mu.Unlock()

	c.logger.Printf("INFO queue %s ready for %s", dev.QueueName, dev.Name)
	return nil
}

// Submit queues one image and blocks until the job completes, fails, or
// ctx expires.
func (c *Client) Submit(ctx context.Context, queueName string, image orchestrator.Image) orchestrator.Outcome {
	args := []string{"-d", queueName, "-o", "fit-to-page"}
	for _, opt := range c.options(queueName) {
		args = append(args, "-o", opt)
	}
	args = append(args, image.Path)

	out, err := c.runner.Run(ctx, "lp", args...)
	if err != nil {
		if ctx.Err() != nil {
			return orchestrator.Outcome{Status: orchestrator.StatusTimedOut}
		}
		return orchestrator.Outcome{Status: orchestrator.StatusFailure, Reason: err.Error()}
	}

	jobID := parseJobID(out)
	if jobID == "" {
		return orchestrator.Outcome{
			Status: orchestrator.StatusFailure,
			Reason: fmt.Sprintf("lp accepted the job but returned no id: %q", strings.TrimSpace(out)),
		}
	}

	c.logger.Printf("INFO job %s queued on %s (%s)", jobID, queueName, image.Description)
	return c.await(ctx, jobID)
}

// await polls lpstat until the job shows up in the completed list, drops
// out of the queue without completing, or ctx expires.
func (c *Client) await(ctx context.Context, jobID string) orchestrator.Outcome {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		completed, err := c.runner.Run(ctx, "lpstat", "-W", "completed", "-o", jobID)
		if err == nil && strings.Contains(completed, jobID) {
			return orchestrator.Outcome{Status: orchestrator.StatusSuccess}
		}

		if _, err := c.runner.Run(ctx, "lpstat", "-o", jobID); err != nil {
			if ctx.Err() != nil {
				return orchestrator.Outcome{Status: orchestrator.StatusTimedOut}
			}
			return orchestrator.Outcome{
				Status: orchestrator.StatusFailure,
				Reason: fmt.Sprintf("job %s left the queue without completing", jobID),
			}
		}

		select {
		case <-ctx.Done():
			return orchestrator.Outcome{Status: orchestrator.StatusTimedOut}
		case <-ticker.C:
		}
	}
}

func (c *Client) options(queueName string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if opts, ok := c.queueOpts[queueName]; ok {
		return opts
	}
	return optionsFor(orchestrator.ModelGenericUSB)
}

func parseJobID(lpOutput string) string {
	m := jobIDPattern.FindStringSubmatch(lpOutput)
	if m == nil {
		return ""
	}
	return m[1]
}
