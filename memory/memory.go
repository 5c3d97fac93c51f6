// Package memory describes the memory-subsystem contracts the loader
// consumes but never implements: frame allocation, page mapping, and
// per-page permission flags. A real kernel wires its own frame allocator and
// active page table against these interfaces; this package also ships a
// Host implementation, a single-process reference backed by a Go byte slice
// arena, so the loader and its tests can run without a real kernel beneath
// them.
package memory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nanokernel/modloader/arch"
)

// EntryFlags is the subset of page-table entry permission bits the loader
// needs to request. The absence of Executable is intentional: Theseus-style
// page tables (and this one) treat "not writable, not no-execute" as the
// executable case rather than carrying a dedicated bit, so Text sections are
// mapped with Present alone.
type EntryFlags uint8

const (
	Present EntryFlags = 1 << iota
	Writable
	NoExecute
)

func (f EntryFlags) String() string {
	s := "present"
	if f&Writable != 0 {
		s += "+writable"
	}
	if f&NoExecute != 0 {
		s += "+noexec"
	} else {
		s += "+exec"
	}
	return s
}

// Frame is an opaque physical-frame handle; the loader never interprets its
// value, only passes it back to the page table it came from.
type Frame uint64

// FrameAllocator hands out physical frames one at a time. A real
// implementation draws from the kernel's free-frame list under its own
// locking; Host's implementation below is a simple bump allocator over a
// backing arena.
type FrameAllocator interface {
	AllocateFrame() (Frame, error)
}

// PageRange is a contiguous run of virtual pages, expressed in page units
// (not bytes).
type PageRange struct {
	StartPage uint64
	NumPages  uint64
}

// Bytes returns the byte length of r.
func (r PageRange) Bytes() uint64 { return r.NumPages * arch.PageSize }

// StartAddr returns the virtual address of the first byte of r.
func (r PageRange) StartAddr() uint64 { return r.StartPage * arch.PageSize }

// AllocatePagesByBytes reserves enough virtual address space for n bytes,
// rounded up to a whole number of pages. It's a pure address-space
// bookkeeping operation: it doesn't touch physical memory or page tables.
func AllocatePagesByBytes(v *VirtualSpace, n uint64) (PageRange, error) {
	return v.Reserve(arch.NumPages(n))
}

// VirtualSpace is a trivial bump reservation of the kernel's virtual address
// space, used by Host and by tests. Real kernels have their own virtual
// address space allocator; this one exists so the reference memory
// implementation doesn't need one wired in from outside.
type VirtualSpace struct {
	mu   sync.Mutex
	next uint64
}

// NewVirtualSpace returns a VirtualSpace that hands out pages starting at
// base (which must already be page-aligned).
func NewVirtualSpace(base uint64) *VirtualSpace {
	return &VirtualSpace{next: base}
}

// Reserve hands out the next numPages pages of virtual address space.
func (v *VirtualSpace) Reserve(numPages uint64) (PageRange, error) {
	if numPages == 0 {
		return PageRange{}, errors.New("memory: cannot reserve zero pages")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	start := v.next / arch.PageSize
	v.next += numPages * arch.PageSize
	return PageRange{StartPage: start, NumPages: numPages}, nil
}

// MappedRegion is a virtually contiguous, currently-mapped range of memory.
// It owns the physical frames backing it: Close unmaps them and returns the
// frames to whatever allocator produced them (Host's does not reclaim, since
// the loader never frees crates once loaded).
type MappedRegion struct {
	base   uint64
	size   uint64
	flags  EntryFlags
	bytes  []byte // direct read/write window onto the backing frames
	table  ActivePageTable
	closed bool
}

// Base returns the starting virtual address of the region.
func (r *MappedRegion) Base() uint64 { return r.base }

// Size returns the region's size in bytes.
func (r *MappedRegion) Size() uint64 { return r.size }

// Flags returns the region's current permission flags.
func (r *MappedRegion) Flags() EntryFlags { return r.flags }

// Bytes returns the raw read/write window onto the region. Writes through
// this slice are writes to the mapped memory itself; the loader uses this to
// copy section content and patch relocations in place.
func (r *MappedRegion) Bytes() []byte { return r.bytes }

// Close unmaps the region. It is an error to use Bytes after Close.
func (r *MappedRegion) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.table == nil {
		return nil
	}
	return r.table.unmap(r)
}

// ActivePageTable is the page-table contract the loader depends on: mapping
// fresh pages backed by newly allocated frames, and re-mapping an existing
// region with tightened permissions once its final contents are known. A
// real kernel's page table implementation satisfies this against its own
// paging structures; Host's satisfies it against a plain byte arena.
type ActivePageTable interface {
	// MapAllocatedPages maps pages, backing each with a freshly allocated
	// frame from frames, and returns the resulting region with the given
	// initial flags.
	MapAllocatedPages(pages PageRange, flags EntryFlags, frames FrameAllocator) (*MappedRegion, error)
	// Remap changes the permission flags of an already-mapped region in
	// place, without touching its content or moving its frames.
	Remap(region *MappedRegion, flags EntryFlags) error

	unmap(region *MappedRegion) error
}

// Host is a single-process reference ActivePageTable + FrameAllocator,
// backed by one growable byte slice standing in for all of physical memory.
// It exists so the loader can be exercised and tested without a real paging
// subsystem underneath it; it is not meant to back a real kernel.
type Host struct {
	mu    sync.Mutex
	arena []byte
}

// NewHost returns a Host with an empty backing arena.
func NewHost() *Host {
	return &Host{}
}

// AllocateFrame satisfies FrameAllocator by growing the arena by one page
// and returning its offset as the "frame number". Host frames and Host
// virtual addresses are deliberately identity-mapped onto the same arena
// index space, since there's no separate physical address space to model.
func (h *Host) AllocateFrame() (Frame, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	frame := Frame(len(h.arena) / arch.PageSize)
	h.arena = append(h.arena, make([]byte, arch.PageSize)...)
	return frame, nil
}

// MapAllocatedPages implements ActivePageTable by allocating one frame per
// requested page (in the Host's identity-mapped arena) and returning a
// MappedRegion whose Bytes() window aliases that arena slice directly.
func (h *Host) MapAllocatedPages(pages PageRange, flags EntryFlags, frames FrameAllocator) (*MappedRegion, error) {
	if pages.NumPages == 0 {
		return nil, errors.New("memory: cannot map zero pages")
	}
	var firstFrame Frame
	for i := uint64(0); i < pages.NumPages; i++ {
		f, err := frames.AllocateFrame()
		if err != nil {
			return nil, fmt.Errorf("memory: allocating frame %d/%d: %w", i+1, pages.NumPages, err)
		}
		if i == 0 {
			firstFrame = f
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	start := uint64(firstFrame) * arch.PageSize
	end := start + pages.Bytes()
	if end > uint64(len(h.arena)) {
		return nil, fmt.Errorf("memory: mapped region [%d,%d) exceeds arena of size %d", start, end, len(h.arena))
	}
	return &MappedRegion{
		base:  pages.StartAddr(),
		size:  pages.Bytes(),
		flags: flags,
		bytes: h.arena[start:end:end],
		table: h,
	}, nil
}

// Remap updates the flags recorded on region. Host has no real MMU to
// enforce them against; it records the flags so tests can assert on them and
// so a later Bytes() write outside the loader's own tightening pass can be
// flagged as a bug by a wrapping implementation.
func (h *Host) Remap(region *MappedRegion, flags EntryFlags) error {
	if region == nil {
		return errors.New("memory: cannot remap nil region")
	}
	region.flags = flags
	return nil
}

func (h *Host) unmap(region *MappedRegion) error {
	// The Host arena never shrinks or reclaims frames: crates in this
	// reference implementation live until the process exits, matching the
	// no-unload scope of the loader itself. Close still clears the live
	// Bytes() window so use-after-close shows up as a nil slice rather
	// than silently succeeding.
	region.bytes = nil
	return nil
}
