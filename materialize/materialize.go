package materialize

import (
	"strconv"

	"github.com/matgreaves/gantry/spec"
)

// Result is a topology ready to run: all variable references resolved and
// all port/volume strings parsed.
type Result struct {
	// Topology is a deep copy of the input with interpolated strings.
	Topology *spec.Topology

	// Ports holds the parsed port mappings per service.
	Ports map[string][]spec.PortMapping

	// Mounts holds the parsed volume mounts per service.
	Mounts map[string][]spec.VolumeMount
}

// Materialize resolves a merged topology against a host environment.
//
// Environment values, build args, labels, image references, commands,
// entrypoints, ports, and volumes are interpolated with ${VAR:-default}
// semantics, then port and volume strings are parsed, and host-port
// uniqueness is enforced across the whole topology: no two services may
// bind the same host port (PortConflictError otherwise). The input
// topology is not modified.
func Materialize(topo *spec.Topology, lookup Lookup) (*Result, error) {
	out := topo.Clone()
	res := &Result{
		Topology: out,
		Ports:    make(map[string][]spec.PortMapping, len(out.Services)),
		Mounts:   make(map[string][]spec.VolumeMount, len(out.Services)),
	}

	for _, name := range out.ServiceNames() {
		svc := out.Services[name]
		if err := interpolateService(name, &svc, lookup); err != nil {
			return nil, err
		}

		ports := make([]spec.PortMapping, 0, len(svc.Ports))
		for _, port := range svc.Ports {
			pm, err := spec.ParsePortMapping(port)
			if err != nil {
				return nil, InterpolateError.New("service %q: %v", name, err)
			}
			ports = append(ports, pm)
		}
		res.Ports[name] = ports

		mounts := make([]spec.VolumeMount, 0, len(svc.Volumes))
		for _, vol := range svc.Volumes {
			vm, err := spec.ParseVolumeMount(vol)
			if err != nil {
				return nil, InterpolateError.New("service %q: %v", name, err)
			}
			mounts = append(mounts, vm)
		}
		res.Mounts[name] = mounts

		out.Services[name] = svc
	}

	if err := checkPortConflicts(res); err != nil {
		return nil, err
	}

	return res, nil
}

func interpolateService(name string, svc *spec.Service, lookup Lookup) error {
	var err error

	interp := func(s string) string {
		if err != nil {
			return s
		}
		var v string
		v, err = Interpolate(s, lookup)
		if err != nil {
			err = InterpolateError.Wrap(err, "service %q", name)
			return s
		}
		return v
	}

	svc.Image = interp(svc.Image)
	for i, v := range svc.Entrypoint {
		svc.Entrypoint[i] = interp(v)
	}
	for i, v := range svc.Command {
		svc.Command[i] = interp(v)
	}
	for k, v := range svc.Environment {
		svc.Environment[k] = interp(v)
	}
	for k, v := range svc.Labels {
		svc.Labels[k] = interp(v)
	}
	if svc.Build != nil {
		for k, v := range svc.Build.Args {
			svc.Build.Args[k] = interp(v)
		}
	}
	for i, v := range svc.Ports {
		svc.Ports[i] = interp(v)
	}
	for i, v := range svc.Volumes {
		svc.Volumes[i] = interp(v)
	}

	return err
}

// portClaim remembers which service claimed a host port.
type portClaim struct {
	service string
	mapping spec.PortMapping
}

// checkPortConflicts enforces host-port uniqueness. Two mappings collide
// when they share port and protocol and their host IPs overlap. Binding
// all interfaces overlaps with every address.
func checkPortConflicts(res *Result) error {
	claims := map[string][]portClaim{}

	for _, name := range res.Topology.ServiceNames() {
		for _, pm := range res.Ports[name] {
			if pm.HostPort == 0 {
				continue // OS-assigned, cannot collide
			}
			key := portKey(pm)
			for _, prev := range claims[key] {
				if pm.HostIP == "" || prev.mapping.HostIP == "" || pm.HostIP == prev.mapping.HostIP {
					return PortConflictError.New(
						"host port %s claimed by both %q and %q",
						pm.String(), prev.service, name)
				}
			}
			claims[key] = append(claims[key], portClaim{service: name, mapping: pm})
		}
	}
	return nil
}

func portKey(pm spec.PortMapping) string {
	return pm.Protocol + "/" + strconv.Itoa(pm.HostPort)
}
