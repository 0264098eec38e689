package spec

import "gopkg.in/yaml.v3"

// Clone returns a deep copy of the topology. Merging and materialization
// both transform topologies without touching their inputs, so everything
// reachable through maps and slices is copied.
func (t *Topology) Clone() *Topology {
	out := &Topology{
		Version:  t.Version,
		Services: make(map[string]Service, len(t.Services)),
	}
	for name, svc := range t.Services {
		out.Services[name] = svc.Clone()
	}
	if t.Volumes != nil {
		out.Volumes = make(map[string]VolumeSpec, len(t.Volumes))
		for k, v := range t.Volumes {
			out.Volumes[k] = v
		}
	}
	if t.Networks != nil {
		out.Networks = make(map[string]NetworkSpec, len(t.Networks))
		for k, v := range t.Networks {
			out.Networks[k] = v
		}
	}
	if t.Extensions != nil {
		out.Extensions = make(map[string]yaml.Node, len(t.Extensions))
		for k, v := range t.Extensions {
			out.Extensions[k] = v
		}
	}
	return out
}

// Clone returns a deep copy of the service.
func (s Service) Clone() Service {
	out := s
	out.Entrypoint = append(StringList(nil), s.Entrypoint...)
	out.Command = append(StringList(nil), s.Command...)
	out.Ports = append([]string(nil), s.Ports...)
	out.Volumes = append([]string(nil), s.Volumes...)
	out.Networks = append([]string(nil), s.Networks...)
	out.Environment = cloneStringMap(s.Environment)
	out.Labels = cloneStringMap(s.Labels)
	if s.DependsOn != nil {
		out.DependsOn = make(DependsOn, len(s.DependsOn))
		for k, v := range s.DependsOn {
			out.DependsOn[k] = v
		}
	}
	if s.Build != nil {
		b := *s.Build
		b.Args = cloneStringMap(s.Build.Args)
		out.Build = &b
	}
	if s.Healthcheck != nil {
		hc := *s.Healthcheck
		hc.Test = append(StringList(nil), s.Healthcheck.Test...)
		out.Healthcheck = &hc
	}
	if s.Extends != nil {
		ext := *s.Extends
		out.Extends = &ext
	}
	return out
}

func cloneStringMap[M ~map[string]string](m M) M {
	if m == nil {
		return nil
	}
	out := make(M, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
