package resolve

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joomcode/errorx"

	"github.com/matgreaves/gantry/spec"
)

// Validate checks a merged topology for structural errors. It returns all
// problems found (not just the first) so the user can fix them in one
// pass. An empty result means the topology is structurally sound; port
// conflicts are checked separately at materialization, once variable
// references have been resolved.
func Validate(topo *spec.Topology) []string {
	var errs []string

	if len(topo.Services) == 0 {
		errs = append(errs, "topology has no services")
	}

	for _, name := range topo.ServiceNames() {
		errs = append(errs, validateService(name, topo.Services[name], topo)...)
	}

	if _, err := StartOrder(topo); err != nil {
		// StartOrder reports dangling depends_on targets too, but those
		// were already collected above with suggestions; only the cycle
		// diagnosis adds information here.
		if errorx.IsOfType(err, CycleError) {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

func validateService(name string, svc spec.Service, topo *spec.Topology) []string {
	var errs []string

	if svc.Image == "" && svc.Build == nil {
		errs = append(errs, fmt.Sprintf("service %q: needs an image or a build", name))
	}
	if svc.Build != nil && svc.Build.Context == "" {
		errs = append(errs, fmt.Sprintf("service %q: build is missing its context", name))
	}

	for _, dep := range svc.DependsOn.Names() {
		if dep == name {
			errs = append(errs, fmt.Sprintf("service %q: depends on itself", name))
			continue
		}
		if _, ok := topo.Services[dep]; !ok {
			msg := fmt.Sprintf("service %q: depends on undefined service %q", name, dep)
			if suggestion := closestMatch(dep, topo.Services); suggestion != "" {
				msg += fmt.Sprintf(" (did you mean %q?)", suggestion)
			}
			errs = append(errs, msg)
			continue
		}
		if cond := svc.DependsOn[dep]; !cond.Valid() {
			errs = append(errs, fmt.Sprintf(
				"service %q: depends_on %q: unsupported condition %q (must be %s or %s)",
				name, dep, cond, spec.ConditionStarted, spec.ConditionHealthy))
		}
	}

	// Port strings must parse even before interpolation, unless they
	// contain a variable reference that materialization resolves first.
	seenContainerPorts := map[string]bool{}
	for _, port := range svc.Ports {
		if strings.ContainsRune(port, '$') {
			continue
		}
		pm, err := spec.ParsePortMapping(port)
		if err != nil {
			errs = append(errs, fmt.Sprintf("service %q: %v", name, err))
			continue
		}
		key := fmt.Sprintf("%d/%s", pm.ContainerPort, pm.Protocol)
		if seenContainerPorts[key] {
			errs = append(errs, fmt.Sprintf("service %q: container port %s mapped twice", name, key))
		}
		seenContainerPorts[key] = true
	}

	for _, vol := range svc.Volumes {
		if strings.ContainsRune(vol, '$') {
			continue
		}
		vm, err := spec.ParseVolumeMount(vol)
		if err != nil {
			errs = append(errs, fmt.Sprintf("service %q: %v", name, err))
			continue
		}
		if !vm.Bind() && vm.Source != "" {
			if _, ok := topo.Volumes[vm.Source]; !ok {
				errs = append(errs, fmt.Sprintf(
					"service %q: mounts undeclared volume %q", name, vm.Source))
			}
		}
	}

	if hc := svc.Healthcheck; hc != nil && !hc.Disable {
		if len(hc.Test) == 0 {
			errs = append(errs, fmt.Sprintf("service %q: healthcheck has no test", name))
		}
		durations := []struct{ field, value string }{
			{"interval", hc.Interval},
			{"timeout", hc.Timeout},
			{"start_period", hc.StartPeriod},
		}
		for _, d := range durations {
			if d.value == "" {
				continue
			}
			if _, err := time.ParseDuration(d.value); err != nil {
				errs = append(errs, fmt.Sprintf(
					"service %q: healthcheck %s %q is not a duration", name, d.field, d.value))
			}
		}
	}

	return errs
}

// closestMatch returns the service name closest to target using simple
// edit distance, or "" if no name is close enough.
func closestMatch(target string, services map[string]spec.Service) string {
	best := ""
	bestDist := len(target)/2 + 1 // threshold: must be within half the length

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d := editDistance(target, name)
		if d < bestDist {
			bestDist = d
			best = name
		}
	}
	return best
}

func editDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, min(prev[j]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
