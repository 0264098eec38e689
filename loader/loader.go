// Package loader reads topology files and merges overrides onto a base,
// producing the single merged topology the rest of gantry operates on.
package loader

import (
	"os"
	"path/filepath"

	"github.com/matgreaves/gantry/spec"
)

// Load reads and merges topology files in order. The first file is the
// base; each later file is an override layered on top (override wins).
//
// An override may add a brand-new service only if the entry is
// self-contained (declares image, build, or extends). A partial fragment
// for a service no earlier file defines is a ConfigError; it almost
// always means a typo'd service name.
func Load(paths ...string) (*spec.Topology, error) {
	if len(paths) == 0 {
		return nil, ConfigError.New("no topology files given")
	}

	cache := newFileCache()

	var merged *spec.Topology
	for i, path := range paths {
		topo, err := cache.load(path)
		if err != nil {
			return nil, err
		}

		if i == 0 {
			merged = topo
			continue
		}

		for name, svc := range topo.Services {
			if _, exists := merged.Services[name]; exists {
				continue
			}
			if svc.Image == "" && svc.Build == nil && svc.Extends == nil {
				return nil, ConfigError.New(
					"%s: override defines service %q which no earlier file declares, and the entry has no image, build, or extends",
					path, name)
			}
		}

		merged = Merge(merged, topo)
	}

	return merged, nil
}

// fileCache loads and caches decoded topology files. extends targets may
// point back at files already on the command line; loading each file once
// keeps extends cycles detectable by path.
type fileCache struct {
	byPath map[string]*spec.Topology
}

func newFileCache() *fileCache {
	return &fileCache{byPath: map[string]*spec.Topology{}}
}

func (c *fileCache) load(path string) (*spec.Topology, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ConfigError.Wrap(err, "resolve path %q", path)
	}
	if topo, ok := c.byPath[abs]; ok {
		return topo, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, ConfigError.Wrap(err, "read topology file")
	}

	topo, err := spec.Decode(data)
	if err != nil {
		return nil, ConfigError.Wrap(err, "%s", path)
	}

	// Cache before expanding extends: a service extending another service
	// in its own file must see the file's unexpanded form, and cycles
	// must terminate.
	c.byPath[abs] = topo

	if err := c.expandExtends(topo, abs); err != nil {
		return nil, err
	}
	return topo, nil
}
