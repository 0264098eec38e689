package loader

import (
	"path/filepath"

	"github.com/matgreaves/gantry/spec"
)

// expandExtends replaces every extends reference in the topology with the
// composed service record: the extended definition as the base, the local
// entry merged on top. This is plain struct composition: the expanded
// service is a copy with no remaining link to its source, so expanding an
// already-expanded topology changes nothing.
func (c *fileCache) expandExtends(topo *spec.Topology, file string) error {
	for _, name := range topo.ServiceNames() {
		visiting := map[string]bool{}
		expanded, err := c.expandService(topo, file, name, topo.Services[name], visiting)
		if err != nil {
			return err
		}
		topo.Services[name] = expanded
	}
	return nil
}

func (c *fileCache) expandService(topo *spec.Topology, file, name string, svc spec.Service, visiting map[string]bool) (spec.Service, error) {
	if svc.Extends == nil {
		return svc, nil
	}

	key := file + "::" + name
	if visiting[key] {
		return spec.Service{}, ConfigError.New("service %q: extends cycle via %s", name, file)
	}
	visiting[key] = true

	if svc.Extends.Service == "" {
		return spec.Service{}, ConfigError.New("service %q: extends is missing the service name", name)
	}

	baseTopo := topo
	baseFile := file
	if svc.Extends.File != "" {
		path := svc.Extends.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(file), path)
		}
		loaded, err := c.load(path)
		if err != nil {
			return spec.Service{}, err
		}
		baseTopo = loaded
		baseFile, err = filepath.Abs(path)
		if err != nil {
			return spec.Service{}, ConfigError.Wrap(err, "resolve extends file %q", svc.Extends.File)
		}
	}

	base, ok := baseTopo.Services[svc.Extends.Service]
	if !ok {
		return spec.Service{}, ConfigError.New(
			"service %q: extends target %q not found in %s", name, svc.Extends.Service, baseFile)
	}

	// The base may extend something itself.
	base, err := c.expandService(baseTopo, baseFile, svc.Extends.Service, base, visiting)
	if err != nil {
		return spec.Service{}, err
	}

	merged := MergeService(base, svc)
	merged.Extends = nil
	return merged, nil
}
