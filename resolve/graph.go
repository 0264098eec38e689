// Package resolve validates a merged topology and computes the order in
// which its services can start.
package resolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/matgreaves/gantry/spec"
)

// StartOrder computes a start order satisfying every depends_on edge.
//
// The result is a list of waves: all services in a wave have their
// dependencies satisfied by earlier waves and may start concurrently.
// Waves are sorted lexicographically for deterministic output.
//
// Dangling depends_on targets fail with UnknownServiceError; circular
// dependencies fail with CycleError carrying the cycle path.
func StartOrder(topo *spec.Topology) ([][]string, error) {
	services := topo.Services

	// Check edges before sorting so the error names the real problem
	// instead of surfacing as a bogus cycle.
	for _, name := range topo.ServiceNames() {
		for _, dep := range services[name].DependsOn.Names() {
			if _, ok := services[dep]; !ok {
				return nil, UnknownServiceError.New(
					"service %q depends on undefined service %q", name, dep)
			}
		}
	}

	// Kahn's algorithm over the dependency DAG, peeling off one wave of
	// zero-indegree services at a time.
	indegree := make(map[string]int, len(services))
	dependents := make(map[string][]string, len(services))
	for name, svc := range services {
		indegree[name] += 0
		for dep := range svc.DependsOn {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var waves [][]string
	remaining := len(services)

	for remaining > 0 {
		var wave []string
		for name, deg := range indegree {
			if deg == 0 {
				wave = append(wave, name)
			}
		}
		if len(wave) == 0 {
			// Everything left participates in or depends on a cycle.
			return nil, CycleError.New("%s", describeCycle(services, indegree))
		}
		sort.Strings(wave)

		for _, name := range wave {
			delete(indegree, name)
			for _, dependent := range dependents[name] {
				if _, pending := indegree[dependent]; pending {
					indegree[dependent]--
				}
			}
		}

		waves = append(waves, wave)
		remaining -= len(wave)
	}

	return waves, nil
}

// StopOrder is the reverse of StartOrder: dependents stop before the
// services they depend on.
func StopOrder(topo *spec.Topology) ([][]string, error) {
	waves, err := StartOrder(topo)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(waves)-1; i < j; i, j = i+1, j-1 {
		waves[i], waves[j] = waves[j], waves[i]
	}
	return waves, nil
}

// describeCycle walks the depends_on graph with DFS and reconstructs one
// concrete cycle path for the error message. Only called once Kahn's
// algorithm has proven a cycle exists among the remaining services.
func describeCycle(services map[string]spec.Service, remaining map[string]int) string {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)

	state := make(map[string]int, len(remaining))
	parent := make(map[string]string, len(remaining))

	names := make([]string, 0, len(remaining))
	for name := range remaining {
		names = append(names, name)
	}
	sort.Strings(names)

	var dfs func(name string) string
	dfs = func(name string) string {
		state[name] = visiting

		for _, dep := range services[name].DependsOn.Names() {
			if _, ok := remaining[dep]; !ok {
				continue
			}
			switch state[dep] {
			case visiting:
				path := []string{dep, name}
				for cur := name; cur != dep; {
					cur = parent[cur]
					path = append(path, cur)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return fmt.Sprintf("dependency cycle: %s", strings.Join(path, " -> "))
			case unvisited:
				parent[dep] = name
				if msg := dfs(dep); msg != "" {
					return msg
				}
			}
		}

		state[name] = visited
		return ""
	}

	for _, name := range names {
		if state[name] == unvisited {
			if msg := dfs(name); msg != "" {
				return msg
			}
		}
	}
	return "dependency cycle detected"
}
