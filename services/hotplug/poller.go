package hotplug

import (
	"context"
	"log"
	"time"

	"printrig/services/orchestrator"
)

const DefaultPollInterval = 5 * time.Second

// Notifier receives attach/detach notifications. Both calls are
// fire-and-forget and idempotent on the receiving side.
type Notifier interface {
	HandleAttach(dev orchestrator.Device)
	HandleDetach(deviceID string)
}

// Poller diffs successive bus scans and notifies on the difference.
type Poller struct {
	scanner  Scanner
	notifier Notifier
	interval time.Duration
	logger   *log.Logger
}

// NewPoller creates a poller. A non-positive interval selects
// DefaultPollInterval.
func NewPoller(scanner Scanner, notifier Notifier, interval time.Duration, logger *log.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{scanner: scanner, notifier: notifier, interval: interval, logger: logger}
}

// Run scans immediately and then on every tick until ctx is done. Scan
// errors are logged and the previous view is kept; a flaky lsusb must
// not masquerade as a mass detach.
func (p *Poller) Run(ctx context.Context) error {
	known := make(map[string]orchestrator.Device)
	p.sweep(ctx, known)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.sweep(ctx, known)
		}
	}
}

func (p *Poller) sweep(ctx context.Context, known map[string]orchestrator.Device) {
	devices, err := p.scanner.Scan(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Printf("WARN usb scan failed: %v", err)
		}
		return
	}

	current := make(map[string]orchestrator.Device, len(devices))
	for _, dev := range devices {
		current[dev.ID] = dev
		if _, ok := known[dev.ID]; !ok {
			p.notifier.HandleAttach(dev)
		}
	}
	for id := range known {
		if _, ok := current[id]; !ok {
			p.notifier.HandleDetach(id)
		}
	}

	for id := range known {
		delete(known, id)
	}
	for id, dev := range current {
		known[id] = dev
	}
}
