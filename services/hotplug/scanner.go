// Package hotplug turns periodic USB bus scans into attach and detach
// notifications for the orchestrator.
package hotplug

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"regexp"

	"printrig/services/orchestrator"
)

// lsusb lines look like:
//   Bus 001 Device 004: ID 04a9:327b Canon, Inc. SELPHY CP1300
var lsusbLinePattern = regexp.MustCompile(`Bus (\d+) Device (\d+): ID ([0-9a-f]{4}):([0-9a-f]{4})`)

// Scanner reports the supported printers currently on the bus.
type Scanner interface {
	Scan(ctx context.Context) ([]orchestrator.Device, error)
}

// LsusbScanner shells out to lsusb and matches the output against the
// profile table. The bus/device pair is part of the identity: a replug
// re-enumerates the device, which surfaces as detach plus attach.
type LsusbScanner struct {
	profiles ProfileTable
	logger   *log.Logger

	// listUSB is swapped in tests.
	listUSB func(ctx context.Context) (string, error)
}

// NewLsusbScanner creates a scanner over the given profile table.
func NewLsusbScanner(profiles ProfileTable, logger *log.Logger) *LsusbScanner {
	return &LsusbScanner{
		profiles: profiles,
		logger:   logger,
		listUSB: func(ctx context.Context) (string, error) {
			out, err := exec.CommandContext(ctx, "lsusb").Output()
			return string(out), err
		},
	}
}

// Scan lists the bus and returns one Device per supported printer found.
func (s *LsusbScanner) Scan(ctx context.Context) ([]orchestrator.Device, error) {
	out, err := s.listUSB(ctx)
	if err != nil {
		return nil, fmt.Errorf("lsusb: %w", err)
	}
	return s.parse(out), nil
}

func (s *LsusbScanner) parse(out string) []orchestrator.Device {
	var devices []orchestrator.Device
	for _, m := range lsusbLinePattern.FindAllStringSubmatch(out, -1) {
		bus, devNum := m[1], m[2]
		usbID := m[3] + ":" + m[4]

		profile, ok := s.profiles[usbID]
		if !ok {
			continue
		}
		devices = append(devices, orchestrator.Device{
			ID:        fmt.Sprintf("usb:%s@%s/%s", usbID, bus, devNum),
			Name:      profile.Name,
			Model:     profile.Model,
			QueueName: queueNameFor(profile),
			URI:       uriFor(profile),
			PPD:       profile.PPD,
		})
	}
	return devices
}
