package main

import "encoding/binary"

// buildTestObject assembles a minimal ELF64 little-endian x86_64 ET_REL
// object with a .text section (a handful of real x86 instructions so
// disasm has something to decode), a .rodata section, and a .bss section,
// naming one global symbol in each. It mirrors the fixture style used
// throughout this module's lower-level packages, since there's no ELF
// writer available to produce one directly.
func buildTestObject(moduleName string) []byte {
	const ehdrSize = 64
	const shdrSize = 64
	const symSize = 24

	// push %rbp; mov %rsp,%rbp; xor %eax,%eax; pop %rbp; ret
	text := []byte{0x55, 0x48, 0x89, 0xe5, 0x31, 0xc0, 0x5d, 0xc3}
	rodata := []byte{0x2a, 0x00, 0x00, 0x00}
	strtab := []byte{0x00}
	strtab = append(strtab, []byte(moduleName+"_fn\x00"+moduleName+"_const\x00"+moduleName+"_bss\x00")...)
	shstrtab := []byte{0x00}
	shstrtab = append(shstrtab, []byte(".text\x00.rodata\x00.bss\x00.symtab\x00.strtab\x00.shstrtab\x00")...)

	nameOff := func(tab []byte, name string) uint32 {
		for i := 0; i+len(name) < len(tab); i++ {
			if string(tab[i:i+len(name)]) == name && tab[i+len(name)] == 0 {
				return uint32(i)
			}
		}
		panic("name not found: " + name)
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
		{name: "", typ: 0},
		{name: ".text", typ: 1, flags: 0x2 | 0x4, data: text},
		{name: ".rodata", typ: 1, flags: 0x2, addr: 0x1000, data: rodata},
		{name: ".bss", typ: 8, flags: 0x2 | 0x1, addr: 0x2000, size: 16},
		{name: ".symtab", typ: 2, link: 5, info: 1},
		{name: ".strtab", typ: 3, data: strtab},
		{name: ".shstrtab", typ: 3, data: shstrtab},
	}

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
	putSym(nameOff(strtab, moduleName+"_fn"), 0x12, 1, 0, uint64(len(text)))
	putSym(nameOff(strtab, moduleName+"_const"), 0x11, 2, 0x1000, uint64(len(rodata)))
	putSym(nameOff(strtab, moduleName+"_bss"), 0x11, 3, 0x2000, 16)
	sections[4].data = syms
	sections[4].size = uint64(len(syms))

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
	binary.LittleEndian.PutUint16(buf[16:18], 1)
	binary.LittleEndian.PutUint16(buf[18:20], 62)
	binary.LittleEndian.PutUint32(buf[20:24], 1)
	binary.LittleEndian.PutUint64(buf[40:48], shoff)
	binary.LittleEndian.PutUint16(buf[52:54], ehdrSize)
	binary.LittleEndian.PutUint16(buf[58:60], shdrSize)
	binary.LittleEndian.PutUint16(buf[60:62], uint16(len(sections)))
	binary.LittleEndian.PutUint16(buf[62:64], uint16(len(sections)-1))

	for i, s := range sections {
		base := shoff + uint64(i)*shdrSize
		if s.name != "" {
			binary.LittleEndian.PutUint32(buf[base:base+4], nameOff(shstrtab, s.name))
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
