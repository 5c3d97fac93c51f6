// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch provides basic descriptions of CPU architectures.
package arch

// An Arch describes a CPU architecture.
type Arch struct {
	// Layout is the byte order and word size of this architecture.
	Layout Layout

	// GoArch is the GOARCH value for this architecture.
	GoArch string

	// MinFrameSize is the number of bytes at the bottom of every
	// stack frame except for empty leaf frames. This includes,
	// for example, space for a saved LR (because that space is
	// always reserved), but does not include the return PC pushed
	// on x86 by CALL (because that is added only on a call).
	MinFrameSize int
}

var (
	AMD64 = &Arch{Layout{0, 8}, "amd64", 0}
	I386  = &Arch{Layout{0, 4}, "386", 0}
)

// String returns the GOARCH value of a.
func (a *Arch) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.GoArch
}

// PageSize is the MMU page size assumed for crate loading: every region the
// loader asks for is rounded up to a multiple of this, and every virtual
// address it hands back is page-aligned.
const PageSize = 4096

// RoundUpPage rounds n up to the next multiple of PageSize.
func RoundUpPage(n uint64) uint64 {
	return (n + PageSize - 1) &^ (PageSize - 1)
}

// NumPages returns the number of PageSize pages needed to hold n bytes.
func NumPages(n uint64) uint64 {
	return RoundUpPage(n) / PageSize
}
