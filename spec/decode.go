package spec

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// serviceKeys is the set of keys gantry understands inside a service
// block. Anything else is a typo or an unsupported compose feature;
// both fail decoding rather than being silently ignored.
var serviceKeys = map[string]bool{
	"image":       true,
	"build":       true,
	"entrypoint":  true,
	"command":     true,
	"environment": true,
	"ports":       true,
	"volumes":     true,
	"depends_on":  true,
	"healthcheck": true,
	"labels":      true,
	"restart":     true,
	"extends":     true,
	"networks":    true,
}

// Decode parses a topology document. YAML anchors, aliases, and "<<" merge
// keys are expanded by the YAML layer, so by the time services are decoded
// the alias reuse has become plain struct data; expanding again is a no-op.
//
// Decode is stricter than a plain unmarshal: duplicate service names,
// duplicate keys within a service, unknown service keys, and unknown
// top-level keys (other than "x-" extensions) all fail with DecodeError.
func Decode(data []byte) (*Topology, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		// Undefined aliases and malformed YAML both surface here.
		return nil, DecodeError.Wrap(err, "parse topology")
	}

	topo := &Topology{
		Services: map[string]Service{},
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		return topo, nil // empty document
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, DecodeError.New("line %d: topology must be a mapping", root.Line)
	}

	seen := map[string]bool{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		val := root.Content[i+1]

		if seen[key.Value] {
			return nil, DecodeError.New("line %d: duplicate top-level key %q", key.Line, key.Value)
		}
		seen[key.Value] = true

		switch {
		case key.Value == "version":
			if err := val.Decode(&topo.Version); err != nil {
				return nil, DecodeError.Wrap(err, "version")
			}
		case key.Value == "services":
			if err := decodeServices(val, topo); err != nil {
				return nil, err
			}
		case key.Value == "volumes":
			if err := val.Decode(&topo.Volumes); err != nil {
				return nil, DecodeError.Wrap(err, "volumes")
			}
		case key.Value == "networks":
			if err := val.Decode(&topo.Networks); err != nil {
				return nil, DecodeError.Wrap(err, "networks")
			}
		case strings.HasPrefix(key.Value, "x-"):
			if topo.Extensions == nil {
				topo.Extensions = map[string]yaml.Node{}
			}
			topo.Extensions[key.Value] = *val
		default:
			return nil, DecodeError.New("line %d: unknown top-level key %q", key.Line, key.Value)
		}
	}

	return topo, nil
}

func decodeServices(node *yaml.Node, topo *Topology) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return DecodeError.New("line %d: services must be a mapping", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		val := node.Content[i+1]

		name := key.Value
		if _, dup := topo.Services[name]; dup {
			return DecodeError.New("line %d: duplicate service %q", key.Line, name)
		}

		if err := checkServiceKeys(name, val); err != nil {
			return err
		}

		var svc Service
		if err := val.Decode(&svc); err != nil {
			return DecodeError.Wrap(err, "service %q", name)
		}
		topo.Services[name] = svc
	}
	return nil
}

// checkServiceKeys rejects unknown and duplicate keys in a service block.
// Keys arriving through a "<<" merge alias are not re-checked here; the
// fragment they come from was checked where it was defined, or lives under
// an "x-" extension whose shape is the author's business.
func checkServiceKeys(name string, node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return DecodeError.New("service %q: must be a mapping (line %d)", name, node.Line)
	}

	seen := map[string]bool{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if key.Tag == "!!merge" || key.Value == "<<" {
			continue
		}
		if seen[key.Value] {
			return DecodeError.New("service %q: duplicate key %q (line %d)", name, key.Value, key.Line)
		}
		seen[key.Value] = true
		if !serviceKeys[key.Value] {
			return DecodeError.New("service %q: unknown key %q (line %d)", name, key.Value, key.Line)
		}
	}
	return nil
}

// Encode renders a topology as YAML with services in sorted order.
func Encode(topo *Topology) ([]byte, error) {
	out, err := yaml.Marshal(topo)
	if err != nil {
		return nil, fmt.Errorf("encode topology: %w", err)
	}
	return out, nil
}
