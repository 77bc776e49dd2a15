package orchestrator

import "sync"

// Registry is the authoritative set of currently attached printers.
// Attach and detach notifications race with status reads, so every
// operation holds a short lock and returns copies.
type Registry struct {
	mu      sync.Mutex
	devices map[string]Device
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{devices: make(map[string]Device)}
}

// Attach inserts a device. Returns ErrDuplicateDevice if the identity is
// already present; the registry is left unchanged in that case.
func (r *Registry) Attach(dev Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[dev.ID]; ok {
		return ErrDuplicateDevice
	}
	r.devices[dev.ID] = dev
	r.order = append(r.order, dev.ID)
	return nil
}

// Detach removes a device. Removal of an absent identity is a no-op;
// detach notifications routinely race with prior removals.
func (r *Registry) Detach(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[deviceID]; !ok {
		return false
	}
	delete(r.devices, deviceID)
	for i, id := range r.order {
		if id == deviceID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the device for the given identity.
func (r *Registry) Get(deviceID string) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[deviceID]
	return dev, ok
}

// List returns a point-in-time snapshot in insertion order.
func (r *Registry) List() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.devices[id])
	}
	return out
}
