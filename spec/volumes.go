package spec

import (
	"fmt"
	"strings"
)

// VolumeMount is a parsed compose volume string.
type VolumeMount struct {
	// Source is a host path (starts with "/", "./" or "../"), a named
	// volume, or "" for an anonymous volume.
	Source string

	// Target is the mount point inside the container.
	Target string

	// ReadOnly marks the mount read-only (":ro" suffix).
	ReadOnly bool
}

// Bind reports whether the mount is a host-path bind mount rather than a
// named or anonymous volume.
func (v VolumeMount) Bind() bool {
	return strings.HasPrefix(v.Source, "/") ||
		strings.HasPrefix(v.Source, "./") ||
		strings.HasPrefix(v.Source, "../")
}

// String renders the mount back in compose syntax.
func (v VolumeMount) String() string {
	s := v.Target
	if v.Source != "" {
		s = v.Source + ":" + v.Target
	}
	if v.ReadOnly {
		s += ":ro"
	}
	return s
}

// ParseVolumeMount parses a compose volume string. Supported forms:
//
//	"/data"                          anonymous volume
//	"chain-config:/config"           named volume
//	"./dashboard/prometheus:/etc/prometheus:ro"  bind mount, read-only
func ParseVolumeMount(s string) (VolumeMount, error) {
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		if !strings.HasPrefix(parts[0], "/") {
			return VolumeMount{}, fmt.Errorf("volume %q: anonymous volume target must be absolute", s)
		}
		return VolumeMount{Target: parts[0]}, nil
	case 2, 3:
		vm := VolumeMount{Source: parts[0], Target: parts[1]}
		if vm.Source == "" || vm.Target == "" {
			return VolumeMount{}, fmt.Errorf("volume %q: empty source or target", s)
		}
		if !strings.HasPrefix(vm.Target, "/") {
			return VolumeMount{}, fmt.Errorf("volume %q: target must be absolute", s)
		}
		if len(parts) == 3 {
			switch parts[2] {
			case "ro":
				vm.ReadOnly = true
			case "rw", "":
			default:
				return VolumeMount{}, fmt.Errorf("volume %q: unknown mode %q", s, parts[2])
			}
		}
		return vm, nil
	default:
		return VolumeMount{}, fmt.Errorf("volume %q: expected [source:]target[:mode]", s)
	}
}
