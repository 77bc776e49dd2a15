package hotplug

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"printrig/services/orchestrator"
)

//go:embed profiles.yaml
var defaultProfilesYAML []byte

// Profile describes one supported printer model, keyed in the table by
// its USB vendor:product pair.
type Profile struct {
	Name  string                  `yaml:"name"`
	Model orchestrator.ModelClass `yaml:"model"`
	PPD   string                  `yaml:"ppd"`
}

// ProfileTable maps "vvvv:pppp" USB ids to printer profiles.
type ProfileTable map[string]Profile

type profileFile struct {
	Printers ProfileTable `yaml:"printers"`
}

// LoadProfiles reads a profile table from path, or the embedded default
// table when path is empty.
func LoadProfiles(path string) (ProfileTable, error) {
	raw := defaultProfilesYAML
	if path != "" {
		var err error
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read printer profiles: %w", err)
		}
	}

	var f profileFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse printer profiles: %w", err)
	}
	if len(f.Printers) == 0 {
		return nil, fmt.Errorf("printer profile table is empty")
	}

	for id, p := range f.Printers {
		if p.Name == "" {
			return nil, fmt.Errorf("printer profile %s: name is required", id)
		}
		switch p.Model {
		case orchestrator.ModelCanonSelphy, orchestrator.ModelDNPQW410, orchestrator.ModelGenericUSB:
		default:
			return nil, fmt.Errorf("printer profile %s: unknown model class %q", id, p.Model)
		}
	}
	return f.Printers, nil
}

// queueNameFor derives the spooler-safe queue name for a profile.
func queueNameFor(p Profile) string {
	return "rig_" + strings.ReplaceAll(strings.ToLower(p.Name), " ", "_")
}

// uriFor derives the usb:// device URI the spooler binds the queue to.
func uriFor(p Profile) string {
	vendor := strings.SplitN(p.Name, " ", 2)[0]
	return fmt.Sprintf("usb://%s/%s", vendor, strings.ReplaceAll(p.Name, " ", "%20"))
}
