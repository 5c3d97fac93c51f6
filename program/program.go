// Package program implements the Program Loader: a small routine that
// enumerates the loadable segments of an already-built executable ELF
// image, as opposed to loader's relocatable-object-aware Loader Core. It
// exists for the narrower case of loading a fully linked, non-relocatable
// program (a userspace init binary, a standalone test payload) where there
// is no symbol resolution or relocation work left to do -- only segments to
// copy into place.
package program

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
)

// Flags mirrors the subset of ELF program header permission bits callers
// need to set up a segment's final mapping.
type Flags uint8

const (
	Read Flags = 1 << iota
	Write
	Execute
)

func (f Flags) String() string {
	s := ""
	if f&Read != 0 {
		s += "r"
	} else {
		s += "-"
	}
	if f&Write != 0 {
		s += "w"
	} else {
		s += "-"
	}
	if f&Execute != 0 {
		s += "x"
	} else {
		s += "-"
	}
	return s
}

// Segment describes one PT_LOAD program header: a contiguous range of the
// file that must be copied to VAddr in memory, zero-extended from FileSize
// out to MemSize (the difference is a program's .bss-equivalent).
type Segment struct {
	VAddr      uint64
	FileOffset uint64
	FileSize   uint64
	MemSize    uint64
	Flags      Flags
}

var (
	// ErrNotExecutable is returned when the image isn't an ET_EXEC object.
	// Position-independent (ET_DYN) executables are out of scope: this
	// loader assumes fixed load addresses throughout, like the rest of
	// this module.
	ErrNotExecutable = errors.New("program: image is not an ET_EXEC executable")
	ErrWrongMachine  = errors.New("program: image is not x86_64")
)

// Segments parses imageBytes as an ELF64 x86_64 executable and returns its
// loadable (PT_LOAD) segments in program-header order.
func Segments(imageBytes []byte) ([]Segment, error) {
	ef, err := elf.NewFile(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	if ef.Type != elf.ET_EXEC {
		return nil, fmt.Errorf("%w: got %v", ErrNotExecutable, ef.Type)
	}
	if ef.Machine != elf.EM_X86_64 || ef.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("%w: machine=%v class=%v", ErrWrongMachine, ef.Machine, ef.Class)
	}

	var segs []Segment
	for _, p := range ef.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		segs = append(segs, Segment{
			VAddr:      p.Vaddr,
			FileOffset: p.Off,
			FileSize:   p.Filesz,
			MemSize:    p.Memsz,
			Flags:      toFlags(p.Flags),
		})
	}
	return segs, nil
}

// Content returns the on-disk bytes of seg from imageBytes, excluding the
// zero-extension between FileSize and MemSize: callers copy this slice to
// VAddr and then zero the remaining MemSize-FileSize bytes themselves.
func (s Segment) Content(imageBytes []byte) ([]byte, error) {
	end := s.FileOffset + s.FileSize
	if end > uint64(len(imageBytes)) {
		return nil, fmt.Errorf("program: segment at %#x extends past end of image (%d > %d)", s.VAddr, end, len(imageBytes))
	}
	return imageBytes[s.FileOffset:end], nil
}

func toFlags(f elf.ProgFlag) Flags {
	var out Flags
	if f&elf.PF_R != 0 {
		out |= Read
	}
	if f&elf.PF_W != 0 {
		out |= Write
	}
	if f&elf.PF_X != 0 {
		out |= Execute
	}
	return out
}
