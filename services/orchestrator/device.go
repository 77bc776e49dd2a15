package orchestrator

// ModelClass buckets supported printers into option families understood
// by the print backend.
type ModelClass string

const (
	ModelCanonSelphy ModelClass = "canon_selphy"
	ModelDNPQW410    ModelClass = "dnp_qw410"
	ModelGenericUSB  ModelClass = "generic_usb_printer_class"
)

// Device describes one attached printer. Instances are immutable once
// created; a replugged printer gets a fresh Device with a fresh identity.
type Device struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Model     ModelClass `json:"model"`
	QueueName string     `json:"queue_name"`
	URI       string     `json:"uri"`
	PPD       string     `json:"ppd"`
}
