package spec

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Service defines a single service within a topology.
type Service struct {
	// Image is the container image reference (e.g. "parity/parity:v2.5.0").
	// Either Image or Build must be set on a fully merged service.
	Image string `yaml:"image,omitempty"`

	// Build describes how to build the image instead of pulling it.
	Build *BuildSpec `yaml:"build,omitempty"`

	// Entrypoint overrides the image entrypoint. A plain string is kept
	// as a single element.
	Entrypoint StringList `yaml:"entrypoint,omitempty"`

	// Command overrides the image command.
	Command StringList `yaml:"command,omitempty"`

	// Environment holds environment variables. Accepts both the map form
	// and the "KEY=value" list form; normalized to a map.
	Environment Environment `yaml:"environment,omitempty"`

	// Ports are host:container mappings in compose string syntax
	// (e.g. "9916:9616", "127.0.0.1:8080:80/tcp"). Kept as strings until
	// materialization so variable references can be interpolated first.
	Ports []string `yaml:"ports,omitempty"`

	// Volumes are bind mounts and named volume mounts in compose string
	// syntax (e.g. "./dashboard/prometheus:/etc/prometheus:ro").
	Volumes []string `yaml:"volumes,omitempty"`

	// DependsOn lists services that must be up before this one starts.
	// Accepts both the list form and the map-with-condition form.
	DependsOn DependsOn `yaml:"depends_on,omitempty"`

	// Healthcheck defines how the engine decides the service is healthy.
	Healthcheck *Healthcheck `yaml:"healthcheck,omitempty"`

	// Labels are attached to the created container.
	Labels map[string]string `yaml:"labels,omitempty"`

	// Networks lists networks the container joins.
	Networks []string `yaml:"networks,omitempty"`

	// Restart is the container restart policy ("no", "always",
	// "on-failure", "unless-stopped").
	Restart string `yaml:"restart,omitempty"`

	// Extends pulls in another service definition as the base for this
	// one. The loader expands it by struct composition before merging.
	Extends *ExtendsSpec `yaml:"extends,omitempty"`
}

// BuildSpec describes an image build.
type BuildSpec struct {
	Context    string            `yaml:"context"`
	Dockerfile string            `yaml:"dockerfile,omitempty"`
	Args       map[string]string `yaml:"args,omitempty"`
}

// ExtendsSpec points at the service this one extends. File is optional;
// when empty, the target is looked up in the same topology.
type ExtendsSpec struct {
	File    string `yaml:"file,omitempty"`
	Service string `yaml:"service"`
}

// Healthcheck mirrors the compose healthcheck block. Durations are kept
// as strings ("5s", "1m30s") and parsed where needed.
type Healthcheck struct {
	Test        StringList `yaml:"test,omitempty"`
	Interval    string     `yaml:"interval,omitempty"`
	Timeout     string     `yaml:"timeout,omitempty"`
	Retries     int        `yaml:"retries,omitempty"`
	StartPeriod string     `yaml:"start_period,omitempty"`
	Disable     bool       `yaml:"disable,omitempty"`
}

// StringList is a YAML value that may be written as a single string or a
// sequence of strings. A single string decodes to a one-element list.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.AliasNode {
		value = value.Alias
	}
	switch value.Kind {
	case yaml.ScalarNode:
		var one string
		if err := value.Decode(&one); err != nil {
			return err
		}
		*s = StringList{one}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*s = StringList(many)
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", value.Line)
	}
}

// Environment is a set of environment variables. YAML accepts either the
// map form or the "KEY=value" list form; a bare "KEY" list entry becomes
// "${KEY}" so the value is picked up from the host at materialization.
type Environment map[string]string

func (e *Environment) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.AliasNode {
		value = value.Alias
	}
	switch value.Kind {
	case yaml.MappingNode:
		out := make(Environment, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			key := value.Content[i]
			val := value.Content[i+1]
			if key.Tag == "!!merge" || key.Value == "<<" {
				// Merge keys inside environment maps are resolved by
				// expanding the aliased mapping in place.
				if err := mergeAliasedEnv(val, out); err != nil {
					return err
				}
				continue
			}
			if val.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: environment %q: value must be a scalar", val.Line, key.Value)
			}
			if _, dup := out[key.Value]; dup {
				return fmt.Errorf("line %d: duplicate environment key %q", key.Line, key.Value)
			}
			// Use the raw scalar text so numbers and booleans keep their
			// literal spelling ("60" stays "60").
			out[key.Value] = val.Value
		}
		*e = out
		return nil
	case yaml.SequenceNode:
		var entries []string
		if err := value.Decode(&entries); err != nil {
			return err
		}
		out := make(Environment, len(entries))
		for _, entry := range entries {
			key, val, found := cutEnvEntry(entry)
			if key == "" {
				return fmt.Errorf("line %d: invalid environment entry %q", value.Line, entry)
			}
			if !found {
				// Bare "KEY": defer to the host environment.
				val = "${" + key + "}"
			}
			if _, dup := out[key]; dup {
				return fmt.Errorf("line %d: duplicate environment key %q", value.Line, key)
			}
			out[key] = val
		}
		*e = out
		return nil
	default:
		return fmt.Errorf("line %d: environment must be a map or a list of KEY=value strings", value.Line)
	}
}

// mergeAliasedEnv expands a "<<: *anchor" entry into dst. Keys already
// present win, matching YAML merge-key semantics.
func mergeAliasedEnv(val *yaml.Node, dst Environment) error {
	var merged Environment
	if err := val.Decode(&merged); err != nil {
		return err
	}
	for k, v := range merged {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return nil
}

func cutEnvEntry(entry string) (key, val string, found bool) {
	for i := 0; i < len(entry); i++ {
		if entry[i] == '=' {
			return entry[:i], entry[i+1:], true
		}
	}
	return entry, "", false
}

// DependsOnCondition controls what "up" means for a dependency edge.
type DependsOnCondition string

const (
	// ConditionStarted waits until the dependency's container is running.
	ConditionStarted DependsOnCondition = "service_started"

	// ConditionHealthy additionally waits for the dependency's
	// healthcheck (or a TCP probe of its published ports) to pass.
	ConditionHealthy DependsOnCondition = "service_healthy"
)

// Valid reports whether the condition is one gantry supports.
func (c DependsOnCondition) Valid() bool {
	return c == ConditionStarted || c == ConditionHealthy
}

// DependsOn maps dependency service names to their start conditions.
// YAML accepts the plain list form (every entry gets ConditionStarted)
// and the map form with an explicit condition per entry.
type DependsOn map[string]DependsOnCondition

func (d *DependsOn) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.AliasNode {
		value = value.Alias
	}
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		out := make(DependsOn, len(names))
		for _, name := range names {
			if _, dup := out[name]; dup {
				return fmt.Errorf("line %d: duplicate depends_on entry %q", value.Line, name)
			}
			out[name] = ConditionStarted
		}
		*d = out
		return nil
	case yaml.MappingNode:
		var entries map[string]struct {
			Condition DependsOnCondition `yaml:"condition"`
		}
		if err := value.Decode(&entries); err != nil {
			return err
		}
		out := make(DependsOn, len(entries))
		for name, entry := range entries {
			cond := entry.Condition
			if cond == "" {
				cond = ConditionStarted
			}
			out[name] = cond
		}
		*d = out
		return nil
	default:
		return fmt.Errorf("line %d: depends_on must be a list or a map", value.Line)
	}
}

// Names returns the dependency names in sorted order.
func (d DependsOn) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
