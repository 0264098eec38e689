package spec

import "gopkg.in/yaml.v3"

// Topology is the merged view of a composed stack: every service, named
// volume, and network that the orchestration layer needs to bring up.
type Topology struct {
	// Version is the compose schema version declared by the file
	// (e.g. "3.5"). Informational; gantry does not branch on it.
	Version string `yaml:"version,omitempty"`

	// Services maps service names to their definitions.
	Services map[string]Service `yaml:"services"`

	// Volumes declares named volumes referenced by service mounts.
	Volumes map[string]VolumeSpec `yaml:"volumes,omitempty"`

	// Networks declares networks services may attach to.
	Networks map[string]NetworkSpec `yaml:"networks,omitempty"`

	// Extensions holds top-level "x-" keys verbatim. They typically exist
	// only to hold YAML anchors; the YAML layer has already expanded any
	// aliases pointing at them by the time the topology is decoded.
	Extensions map[string]yaml.Node `yaml:"-"`
}

// VolumeSpec declares a named volume.
type VolumeSpec struct {
	Driver   string            `yaml:"driver,omitempty"`
	External bool              `yaml:"external,omitempty"`
	Labels   map[string]string `yaml:"labels,omitempty"`
}

// NetworkSpec declares a network.
type NetworkSpec struct {
	Driver   string `yaml:"driver,omitempty"`
	External bool   `yaml:"external,omitempty"`
}

// ServiceNames returns the service names in sorted order. Most of gantry
// iterates services through this to keep output and errors deterministic.
func (t *Topology) ServiceNames() []string {
	return sortedKeys(t.Services)
}
