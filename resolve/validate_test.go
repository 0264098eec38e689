package resolve_test

import (
	"strings"
	"testing"

	"github.com/matgreaves/gantry/loader"
	"github.com/matgreaves/gantry/resolve"
	"github.com/matgreaves/gantry/spec"
)

func TestValidateBridgeTopologyIsClean(t *testing.T) {
	topo, err := loader.Load(
		"../testdata/bridge/docker-compose.yml",
		"../testdata/bridge/docker-compose.bridge.yml",
	)
	if err != nil {
		t.Fatal(err)
	}

	if errs := resolve.Validate(topo); len(errs) != 0 {
		t.Errorf("bridge topology should validate cleanly:\n%s", strings.Join(errs, "\n"))
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	topo := topology(map[string]spec.Service{
		"no-image": {},
		"self":     {Image: "x", DependsOn: deps("self")},
		"dangling": {Image: "x", DependsOn: deps("no-imag")},
		"bad-port": {Image: "x", Ports: []string{"abc:80"}},
	})

	errs := resolve.Validate(topo)

	wants := []string{
		`service "no-image": needs an image or a build`,
		`service "self": depends on itself`,
		`service "dangling": depends on undefined service "no-imag" (did you mean "no-image"?)`,
		`"abc" is not a number`,
	}
	for _, want := range wants {
		if !containsSubstring(errs, want) {
			t.Errorf("missing %q in:\n%s", want, strings.Join(errs, "\n"))
		}
	}
}

func TestValidateConditions(t *testing.T) {
	topo := topology(map[string]spec.Service{
		"a": {Image: "x"},
		"b": {
			Image:     "x",
			DependsOn: spec.DependsOn{"a": "service_completed_successfully"},
		},
	})

	errs := resolve.Validate(topo)
	if !containsSubstring(errs, "unsupported condition") {
		t.Errorf("unsupported condition not reported: %v", errs)
	}
}

func TestValidateVolumesAndHealthchecks(t *testing.T) {
	topo := topology(map[string]spec.Service{
		"vol": {Image: "x", Volumes: []string{"chain-config:/config"}},
		"hc": {Image: "x", Healthcheck: &spec.Healthcheck{
			Test:     spec.StringList{"CMD", "true"},
			Interval: "5 seconds",
		}},
		"hc-empty": {Image: "x", Healthcheck: &spec.Healthcheck{}},
	})

	errs := resolve.Validate(topo)

	wants := []string{
		`mounts undeclared volume "chain-config"`,
		`healthcheck interval "5 seconds" is not a duration`,
		`healthcheck has no test`,
	}
	for _, want := range wants {
		if !containsSubstring(errs, want) {
			t.Errorf("missing %q in:\n%s", want, strings.Join(errs, "\n"))
		}
	}
}

func TestValidateDuplicateContainerPort(t *testing.T) {
	topo := topology(map[string]spec.Service{
		"a": {Image: "x", Ports: []string{"9616:9616", "9716:9616"}},
	})

	errs := resolve.Validate(topo)
	if !containsSubstring(errs, "container port 9616/tcp mapped twice") {
		t.Errorf("duplicate container port not reported: %v", errs)
	}
}

func TestValidateSkipsUninterpolatedStrings(t *testing.T) {
	topo := topology(map[string]spec.Service{
		"a": {Image: "x", Ports: []string{"${METRICS_PORT:-9616}:9616"}},
	})

	if errs := resolve.Validate(topo); len(errs) != 0 {
		t.Errorf("variable port strings are materialization's problem: %v", errs)
	}
}

func containsSubstring(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
