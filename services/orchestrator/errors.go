package orchestrator

import "errors"

var (
	// ErrDuplicateDevice is returned by the registry when a device
	// identity is already attached. Hotplug subsystems double-fire, so
	// callers treat it as log-and-ignore.
	ErrDuplicateDevice = errors.New("device already attached")

	// ErrAlreadyRunning is returned by Start when a non-terminal run
	// already exists for the device.
	ErrAlreadyRunning = errors.New("test already running for device")

	// ErrUnknownDevice is returned when a control request references a
	// device identity that is not attached.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrUnknownRun is returned when a control request references a run
	// identifier that was never created.
	ErrUnknownRun = errors.New("unknown run")
)
