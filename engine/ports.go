package engine

import (
	"strconv"
	"sync"

	"github.com/matgreaves/gantry/materialize"
	"github.com/matgreaves/gantry/spec"
)

// PortRegistry tracks host ports claimed by running projects within this
// process. It lets a second Up with an overlapping host port fail fast
// with a clear owner instead of a bind error from the daemon halfway
// through bring-up.
type PortRegistry struct {
	mu        sync.Mutex
	claims    map[string][]registryClaim // "proto/port" -> claims
	byProject map[string][]string        // project -> claim keys (reverse index)
}

type registryClaim struct {
	project string
	hostIP  string
}

// NewPortRegistry creates an empty registry.
func NewPortRegistry() *PortRegistry {
	return &PortRegistry{
		claims:    make(map[string][]registryClaim),
		byProject: make(map[string][]string),
	}
}

// Claim reserves the host side of every mapping for the project. Mappings
// with host port 0 are OS-assigned and skipped. Two claims collide when
// they share port and protocol and their host IPs overlap; binding all
// interfaces overlaps with every address. On collision nothing is
// recorded and a PortConflictError names the owning project.
func (r *PortRegistry) Claim(project string, mappings []spec.PortMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check everything before writing anything to avoid partial state.
	for _, pm := range mappings {
		if pm.HostPort == 0 {
			continue
		}
		for _, prev := range r.claims[registryKey(pm)] {
			if prev.project == project {
				continue
			}
			if pm.HostIP == "" || prev.hostIP == "" || pm.HostIP == prev.hostIP {
				return materialize.PortConflictError.New(
					"host port %s already claimed by project %q", pm.String(), prev.project)
			}
		}
	}

	for _, pm := range mappings {
		if pm.HostPort == 0 {
			continue
		}
		key := registryKey(pm)
		r.claims[key] = append(r.claims[key], registryClaim{project: project, hostIP: pm.HostIP})
		r.byProject[project] = append(r.byProject[project], key)
	}
	return nil
}

// Release drops all claims held by the project.
func (r *PortRegistry) Release(project string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.byProject[project] {
		kept := r.claims[key][:0]
		for _, c := range r.claims[key] {
			if c.project != project {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			delete(r.claims, key)
		} else {
			r.claims[key] = kept
		}
	}
	delete(r.byProject, project)
}

// Claimed returns the number of currently tracked host ports.
func (r *PortRegistry) Claimed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, claims := range r.claims {
		n += len(claims)
	}
	return n
}

func registryKey(pm spec.PortMapping) string {
	return pm.Protocol + "/" + strconv.Itoa(pm.HostPort)
}
