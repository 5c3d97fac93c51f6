// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildCrateObject assembles a minimal ELF64 little-endian x86_64
// relocatable object with a .text section, a .rodata section, a .bss
// section, and a symbol table naming one symbol in each, so obj's generic
// section/symbol machinery can be exercised against the kind of crate
// object the loader package also works with.
func buildCrateObject() []byte {
	const ehdrSize = 64
	const shdrSize = 64
	const symSize = 24

	text := []byte{0x90, 0x90, 0x90, 0x90} // nop nop nop nop
	rodata := []byte{0x2a, 0x00, 0x00, 0x00}
	strtab := []byte{0x00}
	strtab = append(strtab, []byte("crate_fn\x00crate_const\x00crate_bss\x00")...)
	shstrtab := []byte{0x00}
	shstrtab = append(shstrtab, []byte(".text\x00.rodata\x00.bss\x00.symtab\x00.strtab\x00.shstrtab\x00")...)

	nameOff := func(tab []byte, name string) uint32 {
		i := bytes.Index(tab, []byte(name+"\x00"))
		if i < 0 {
			panic("name not in table: " + name)
		}
		return uint32(i)
	}

	sections := []struct {
		name  string
		typ   uint32
		flags uint64
		addr  uint64
		data  []byte
		size  uint64
		link  uint32
		info  uint32
	}{
		{name: "", typ: 0}, // SHT_NULL
		{name: ".text", typ: 1 /* PROGBITS */, flags: 0x2 | 0x4 /* ALLOC|EXECINSTR */, addr: 0, data: text},
		{name: ".rodata", typ: 1, flags: 0x2 /* ALLOC */, addr: 0x1000, data: rodata},
		{name: ".bss", typ: 8 /* NOBITS */, flags: 0x2 | 0x1 /* ALLOC|WRITE */, addr: 0x2000, size: 16},
		{name: ".symtab", typ: 2 /* SYMTAB */, link: 5, info: 1},
		{name: ".strtab", typ: 3 /* STRTAB */, data: strtab},
		{name: ".shstrtab", typ: 3, data: shstrtab},
	}

	// Symbol table: null symbol + one per data section.
	syms := make([]byte, 0, symSize*4)
	putSym := func(name uint32, info uint8, shn uint16, value, size uint64) {
		var b [symSize]byte
		binary.LittleEndian.PutUint32(b[0:4], name)
		b[4] = info
		binary.LittleEndian.PutUint16(b[6:8], shn)
		binary.LittleEndian.PutUint64(b[8:16], value)
		binary.LittleEndian.PutUint64(b[16:24], size)
		syms = append(syms, b[:]...)
	}
	putSym(0, 0, 0, 0, 0)
	putSym(nameOff(strtab, "crate_fn"), 0x12 /* GLOBAL|FUNC */, 1, 0, uint64(len(text)))
	putSym(nameOff(strtab, "crate_const"), 0x11 /* GLOBAL|OBJECT */, 2, 0x1000, uint64(len(rodata)))
	putSym(nameOff(strtab, "crate_bss"), 0x11, 3, 0x2000, 16)
	sections[4].data = syms
	sections[4].size = uint64(len(syms))

	// Lay out file: header, then section headers, then section data.
	shoff := uint64(ehdrSize)
	dataStart := shoff + uint64(len(sections))*shdrSize
	offs := make([]uint64, len(sections))
	total := dataStart
	for i, s := range sections {
		if len(s.data) == 0 {
			continue
		}
		offs[i] = total
		total += uint64(len(s.data))
	}

	buf := make([]byte, total)
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4], buf[5], buf[6] = 2, 1, 1
	binary.LittleEndian.PutUint16(buf[16:18], 1)  // e_type = ET_REL
	binary.LittleEndian.PutUint16(buf[18:20], 62) // e_machine = EM_X86_64
	binary.LittleEndian.PutUint32(buf[20:24], 1)
	binary.LittleEndian.PutUint64(buf[40:48], shoff)
	binary.LittleEndian.PutUint16(buf[52:54], ehdrSize)
	binary.LittleEndian.PutUint16(buf[58:60], shdrSize)
	binary.LittleEndian.PutUint16(buf[60:62], uint16(len(sections)))
	binary.LittleEndian.PutUint16(buf[62:64], uint16(len(sections)-1)) // e_shstrndx

	for i, s := range sections {
		base := shoff + uint64(i)*shdrSize
		binary.LittleEndian.PutUint32(buf[base:base+4], nameOff(shstrtab, s.name))
		if s.name == "" {
			binary.LittleEndian.PutUint32(buf[base:base+4], 0)
		}
		binary.LittleEndian.PutUint32(buf[base+4:base+8], s.typ)
		binary.LittleEndian.PutUint64(buf[base+8:base+16], s.flags)
		binary.LittleEndian.PutUint64(buf[base+16:base+24], s.addr)
		binary.LittleEndian.PutUint64(buf[base+24:base+32], offs[i])
		size := s.size
		if size == 0 {
			size = uint64(len(s.data))
		}
		binary.LittleEndian.PutUint64(buf[base+32:base+40], size)
		binary.LittleEndian.PutUint32(buf[base+40:base+44], s.link)
		binary.LittleEndian.PutUint32(buf[base+44:base+48], s.info)
		binary.LittleEndian.PutUint64(buf[base+48:base+56], 1)
		if s.typ == 2 {
			binary.LittleEndian.PutUint64(buf[base+56:base+64], symSize)
		}
		if len(s.data) > 0 {
			copy(buf[offs[i]:], s.data)
		}
	}

	return buf
}

func TestOpenCrateObject(t *testing.T) {
	f, err := Open(bytes.NewReader(buildCrateObject()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	names := map[string]*Section{}
	for _, s := range f.Sections() {
		names[s.Name] = s
	}

	text, ok := names[".text"]
	if !ok {
		t.Fatal(".text section missing")
	}
	if !text.ReadOnly() {
		t.Error(".text should be ReadOnly (its header has no SHF_WRITE flag)")
	}
	data, err := text.Data(text.Bounds())
	if err != nil {
		t.Fatalf(".text Data: %v", err)
	}
	if !bytes.Equal(data.B, []byte{0x90, 0x90, 0x90, 0x90}) {
		t.Errorf(".text data = %x, want 4 nops", data.B)
	}

	bss, ok := names[".bss"]
	if !ok {
		t.Fatal(".bss section missing")
	}
	if !bss.ZeroInitialize() {
		t.Error(".bss should be ZeroInitialize")
	}
	bssData, err := bss.Data(bss.Bounds())
	if err != nil {
		t.Fatalf(".bss Data: %v", err)
	}
	if len(bssData.B) != 16 {
		t.Errorf(".bss data len = %d, want 16", len(bssData.B))
	}
	for _, b := range bssData.B {
		if b != 0 {
			t.Fatalf(".bss data not zeroed: %x", bssData.B)
		}
	}
}

func TestOpenCrateObjectSyms(t *testing.T) {
	f, err := Open(bytes.NewReader(buildCrateObject()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var gotFn, gotConst, gotBSS bool
	for i := SymID(0); i < f.NumSyms(); i++ {
		sym := f.Sym(i)
		switch sym.Name {
		case "crate_fn":
			gotFn = true
			if sym.Kind != SymText {
				t.Errorf("crate_fn kind = %v, want SymText", sym.Kind)
			}
		case "crate_const":
			gotConst = true
			if sym.Kind != SymROData {
				t.Errorf("crate_const kind = %v, want SymROData", sym.Kind)
			}
		case "crate_bss":
			gotBSS = true
			if sym.Kind != SymBSS {
				t.Errorf("crate_bss kind = %v, want SymBSS", sym.Kind)
			}
		}
	}
	if !gotFn || !gotConst || !gotBSS {
		t.Fatalf("missing expected symbols: fn=%v const=%v bss=%v", gotFn, gotConst, gotBSS)
	}
}

func TestOpenNonELFIdentifiedAsELF(t *testing.T) {
	ident := [16]byte{'\x7f', 'E', 'L', 'F', 42}
	_, err := Open(bytes.NewReader(ident[:]))
	if err == nil {
		t.Fatal("Open succeeded unexpectedly")
	}
}
