// Package crate holds the data model a fully loaded kernel module leaves
// behind: its sections, the memory regions backing them, and enough address
// information for the loader and the symbol registry to resolve references
// into it.
package crate

import (
	"fmt"

	"github.com/nanokernel/modloader/demangle"
	"github.com/nanokernel/modloader/memory"
	"github.com/nanokernel/modloader/section"
)

// LoadedSection is one placed, relocated section of a loaded crate. Its
// CanonicalName and HashSuffix come from demangling the original ELF symbol
// or section name; Global marks whether it was published into the symbol
// registry (only sections backing a STB_GLOBAL symbol are).
type LoadedSection struct {
	CanonicalName string
	HashSuffix    string
	Class         section.Class
	// VirtualAddress is this section's address once placed in its
	// crate's region. Sections sharing a region embed an offset relative
	// to the same base.
	VirtualAddress uint64
	Size           uint64
	Global         bool

	// parent points back at the owning crate so a registry lookup can
	// report which crate a resolved symbol belongs to.
	parent *LoadedCrate
}

// Crate returns the LoadedCrate that owns s.
func (s *LoadedSection) Crate() *LoadedCrate { return s.parent }

// Contains reports whether addr falls within s's mapped extent.
func (s *LoadedSection) Contains(addr uint64) bool {
	return addr >= s.VirtualAddress && addr < s.VirtualAddress+s.Size
}

// Name reconstructs the demangle.Result.WithHash() rendering of this
// section's symbol, i.e. the name exactly as it appeared before the hash
// component was split out.
func (s *LoadedSection) Name() string {
	return demangle.Result{Canonical: s.CanonicalName, Hash: s.HashSuffix, Mangled: s.HashSuffix != ""}.WithHash()
}

// LoadedCrate is a fully loaded, relocated, permission-tightened kernel
// module: the stable handle the loader returns and that the symbol registry
// points weakly into.
type LoadedCrate struct {
	Name     string
	Sections []*LoadedSection
	// Regions are the distinct memory mappings backing Sections, grouped
	// by class (one region for Text, one for Rodata, one for Data, as the
	// loader's size-planning phase lays them out). A class with no
	// sections of it has a nil entry here.
	Regions []*memory.MappedRegion
}

// New creates an empty LoadedCrate with the given name.
func New(name string) *LoadedCrate {
	return &LoadedCrate{Name: name}
}

// AddSection appends sec to c, setting sec's owning crate.
func (c *LoadedCrate) AddSection(sec *LoadedSection) {
	sec.parent = c
	c.Sections = append(c.Sections, sec)
}

// SectionByName finds a loaded section by its full name (canonical name
// plus hash suffix, as returned by LoadedSection.Name).
func (c *LoadedCrate) SectionByName(name string) (*LoadedSection, bool) {
	for _, s := range c.Sections {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Close unmaps every region backing c. It is only meaningful for a crate
// whose load failed partway through and is being unwound; fully published
// crates are expected to live until process exit, since unloading is out of
// scope.
func (c *LoadedCrate) Close() error {
	var firstErr error
	for i := len(c.Regions) - 1; i >= 0; i-- {
		r := c.Regions[i]
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("crate: closing region %d of %q: %w", i, c.Name, err)
		}
	}
	return firstErr
}
