// Package region implements the loader's Region Allocator: turning a byte
// count into a freshly mapped, writable scratch region, and later tightening
// that region's permissions to match the class of section it ends up
// holding.
package region

import (
	"fmt"

	"github.com/nanokernel/modloader/memory"
	"github.com/nanokernel/modloader/section"
)

// Allocator reserves and maps scratch regions against a memory subsystem.
// Every region it hands out starts out Present|Writable regardless of its
// eventual class, since the loader must be able to copy section bytes and
// patch relocations into it before Tighten locks it down.
type Allocator struct {
	Space  *memory.VirtualSpace
	Frames memory.FrameAllocator
	Table  memory.ActivePageTable
}

// NewAllocator builds an Allocator over the given memory subsystem pieces.
func NewAllocator(space *memory.VirtualSpace, frames memory.FrameAllocator, table memory.ActivePageTable) *Allocator {
	return &Allocator{Space: space, Frames: frames, Table: table}
}

// Allocate reserves and maps a region of at least n bytes, writable, for the
// loader to populate. n == 0 is not an error: it returns a nil region, which
// callers must treat as "nothing to place here" rather than dereference.
func (a *Allocator) Allocate(n uint64) (*memory.MappedRegion, error) {
	if n == 0 {
		return nil, nil
	}
	pages, err := memory.AllocatePagesByBytes(a.Space, n)
	if err != nil {
		return nil, fmt.Errorf("region: reserving virtual address space: %w", err)
	}
	r, err := a.Table.MapAllocatedPages(pages, memory.Present|memory.Writable, a.Frames)
	if err != nil {
		return nil, fmt.Errorf("region: mapping %d pages: %w", pages.NumPages, err)
	}
	return r, nil
}

// Tighten remaps r's permissions to match the final class of content it
// holds, once the loader has finished copying bytes and applying
// relocations into it. A nil r is a no-op, matching Allocate(0)'s nil
// result.
func (a *Allocator) Tighten(r *memory.MappedRegion, class section.Class) error {
	if r == nil {
		return nil
	}
	flags, ok := classFlags(class)
	if !ok {
		return fmt.Errorf("region: cannot tighten a region of class %v", class)
	}
	if err := a.Table.Remap(r, flags); err != nil {
		return fmt.Errorf("region: remapping to %v: %w", flags, err)
	}
	return nil
}

// classFlags returns the final permission flags a region should carry once
// it's fully populated, per section class. Text is mapped present without
// NoExecute (this loader's page tables treat "not no-execute" as
// executable), Rodata present and read-only, Data present and writable.
// Ignored has no final mapping since nothing of that class is ever placed in
// a region.
func classFlags(c section.Class) (memory.EntryFlags, bool) {
	switch c {
	case section.Text:
		return memory.Present, true
	case section.Rodata:
		return memory.Present | memory.NoExecute, true
	case section.Data:
		return memory.Present | memory.Writable | memory.NoExecute, true
	default:
		return 0, false
	}
}
