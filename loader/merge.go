package loader

import (
	"gopkg.in/yaml.v3"

	"github.com/matgreaves/gantry/spec"
)

// Merge combines a base topology with an override, override-wins. Neither
// input is mutated. Merging a topology onto itself yields an equal
// topology; overrides are pure struct composition, not accumulation.
func Merge(base, override *spec.Topology) *spec.Topology {
	out := base.Clone()

	if override.Version != "" {
		out.Version = override.Version
	}

	for name, svc := range override.Services {
		if existing, ok := out.Services[name]; ok {
			out.Services[name] = MergeService(existing, svc)
		} else {
			out.Services[name] = svc.Clone()
		}
	}

	for name, vol := range override.Volumes {
		if out.Volumes == nil {
			out.Volumes = map[string]spec.VolumeSpec{}
		}
		out.Volumes[name] = vol
	}
	for name, nw := range override.Networks {
		if out.Networks == nil {
			out.Networks = map[string]spec.NetworkSpec{}
		}
		out.Networks[name] = nw
	}
	for name, ext := range override.Extensions {
		if out.Extensions == nil {
			out.Extensions = map[string]yaml.Node{}
		}
		out.Extensions[name] = ext
	}

	return out
}

// MergeService layers an override service on top of a base definition.
//
// Scalars replace; environment, labels, build args, and depends_on merge
// per key with the override winning; ports union with duplicates removed;
// volumes replace per mount target. The result is independent of both
// inputs.
func MergeService(base, override spec.Service) spec.Service {
	out := base.Clone()

	if override.Image != "" {
		out.Image = override.Image
	}
	if override.Build != nil {
		out.Build = mergeBuild(out.Build, override.Build)
	}
	if override.Entrypoint != nil {
		out.Entrypoint = append(spec.StringList(nil), override.Entrypoint...)
	}
	if override.Command != nil {
		out.Command = append(spec.StringList(nil), override.Command...)
	}
	if override.Restart != "" {
		out.Restart = override.Restart
	}
	if override.Healthcheck != nil {
		hc := *override.Healthcheck
		hc.Test = append(spec.StringList(nil), override.Healthcheck.Test...)
		out.Healthcheck = &hc
	}
	if override.Extends != nil {
		ext := *override.Extends
		out.Extends = &ext
	}

	for k, v := range override.Environment {
		if out.Environment == nil {
			out.Environment = spec.Environment{}
		}
		out.Environment[k] = v
	}
	for k, v := range override.Labels {
		if out.Labels == nil {
			out.Labels = map[string]string{}
		}
		out.Labels[k] = v
	}
	for k, v := range override.DependsOn {
		if out.DependsOn == nil {
			out.DependsOn = spec.DependsOn{}
		}
		out.DependsOn[k] = v
	}

	out.Ports = unionStrings(out.Ports, override.Ports)
	out.Volumes = mergeVolumeStrings(out.Volumes, override.Volumes)
	out.Networks = unionStrings(out.Networks, override.Networks)

	return out
}

func mergeBuild(base, override *spec.BuildSpec) *spec.BuildSpec {
	if base == nil {
		b := *override
		if override.Args != nil {
			b.Args = make(map[string]string, len(override.Args))
			for k, v := range override.Args {
				b.Args[k] = v
			}
		}
		return &b
	}
	out := *base
	if base.Args != nil {
		out.Args = make(map[string]string, len(base.Args))
		for k, v := range base.Args {
			out.Args[k] = v
		}
	}
	if override.Context != "" {
		out.Context = override.Context
	}
	if override.Dockerfile != "" {
		out.Dockerfile = override.Dockerfile
	}
	for k, v := range override.Args {
		if out.Args == nil {
			out.Args = map[string]string{}
		}
		out.Args[k] = v
	}
	return &out
}

// unionStrings appends entries from override that base doesn't already
// contain, preserving order. Exact-string comparison.
func unionStrings(base, override []string) []string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := append([]string(nil), base...)
	for _, entry := range override {
		found := false
		for _, have := range out {
			if have == entry {
				found = true
				break
			}
		}
		if !found {
			out = append(out, entry)
		}
	}
	return out
}

// mergeVolumeStrings unions volume strings, but an override entry with the
// same mount target as a base entry replaces it: two mounts cannot share
// a target inside one container.
func mergeVolumeStrings(base, override []string) []string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := append([]string(nil), base...)
	for _, entry := range override {
		target := volumeTarget(entry)
		replaced := false
		for i, have := range out {
			if have == entry || (target != "" && volumeTarget(have) == target) {
				out[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, entry)
		}
	}
	return out
}

func volumeTarget(s string) string {
	vm, err := spec.ParseVolumeMount(s)
	if err != nil {
		return ""
	}
	return vm.Target
}
