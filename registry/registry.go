// Package registry implements the process-wide Symbol Registry: a map from
// demangled canonical symbol name to the loaded section that defines it,
// used to resolve cross-crate relocations.
//
// Entries are weak references. The registry is a lookup index, not an
// owner: a crate's own LoadedCrate.Sections slice is what keeps a
// LoadedSection alive, and since crate unloading is out of scope, that
// ownership never ends in practice. The weak encoding still matters because
// it keeps the registry from being mistaken for an owner in its own right;
// a future unload path can drop a crate's strong references and have
// lookups for its symbols fail cleanly instead of resurrecting it.
package registry

import (
	"sync"
	"weak"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/nanokernel/modloader/crate"
)

// Registry is the global demangled-name -> section map. The zero value is
// not usable; construct one with New.
type Registry struct {
	mu sync.RWMutex
	m  map[string]weak.Pointer[crate.LoadedSection]
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{m: make(map[string]weak.Pointer[crate.LoadedSection])}
}

// Publish inserts every global section of c into the registry, keyed by its
// canonical name (LoadedSection.CanonicalName, i.e. the name with any hash
// suffix stripped off). Non-global sections are skipped: only symbols with
// default/global binding are visible to other crates, matching the loader's
// own Global flag on each section.
//
// On a name collision the most recently published section wins, matching
// the insertion-order policy of the loader this registry backs: a crate
// loaded later shadows same-named symbols from one loaded earlier.
func (r *Registry) Publish(c *crate.LoadedCrate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range c.Sections {
		if !s.Global {
			continue
		}
		r.m[s.CanonicalName] = weak.Make(s)
	}
}

// Lookup resolves a canonical name (hash suffix stripped, as published by
// Publish) to its defining section. It returns false both when the name was
// never published and when it was published but its crate (and therefore
// the section) has since been collected — which, absent an unload path,
// only happens in tests that drop a crate's strong references on purpose.
func (r *Registry) Lookup(name string) (*crate.LoadedSection, bool) {
	r.mu.RLock()
	w, ok := r.m[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	sec := w.Value()
	return sec, sec != nil
}

// Names returns a sorted snapshot of every currently registered name,
// regardless of whether its weak pointer still resolves. Used by
// diagnostics to list what has been published without forcing a resolve of
// each entry.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := maps.Keys(r.m)
	slices.Sort(names)
	return names
}

// Len returns the number of names currently tracked, live or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
