package loader

import "encoding/binary"

// testSection describes one section to synthesize into a minimal ELF64
// relocatable object. There is no ELF writer in the standard library (or in
// the object-parsing package this module builds on), so tests assemble
// fixture objects by hand at the byte level, the same way the teacher
// package's own relocation tests build hex-encoded fixtures.
type testSection struct {
	name      string
	typ       uint32
	flags     uint64
	data      []byte // nil together with nobits=true means SHT_NOBITS (no file content)
	nobits    bool
	nobitsLen uint64
	link      uint32 // 1-based index into the final section table, or 0
	info      uint32
	addralign uint64
	entsize   uint64
}

const (
	shtNull    = 0
	shtProgbit = 1
	shtSymtab  = 2
	shtStrtab  = 3
	shtRela    = 4
	shtNobits  = 8
)

// buildELF assembles a minimal ELF64 little-endian ET_REL x86_64 object
// containing exactly the given sections (in order, 1-based index i+1), plus
// an automatically appended trailing .shstrtab.
func buildELF(sections []testSection) []byte {
	const ehdrSize = 64
	const shdrSize = 64

	shstrtab := []byte{0}
	nameOffsets := make([]uint32, len(sections))
	for i, s := range sections {
		nameOffsets[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(s.name)...)
		shstrtab = append(shstrtab, 0)
	}
	shstrtabNameOff := uint32(len(shstrtab))
	shstrtab = append(shstrtab, []byte(".shstrtab")...)
	shstrtab = append(shstrtab, 0)

	shnum := len(sections) + 2 // null + given + trailing shstrtab

	offset := uint64(ehdrSize)
	contentOffset := make([]uint64, len(sections))
	contentSize := make([]uint64, len(sections))
	for i, s := range sections {
		if s.typ == shtNobits {
			contentOffset[i] = offset
			contentSize[i] = s.nobitsLen
			continue
		}
		contentOffset[i] = offset
		contentSize[i] = uint64(len(s.data))
		offset += uint64(len(s.data))
	}
	shstrtabOffset := offset
	offset += uint64(len(shstrtab))
	shoff := offset

	buf := make([]byte, shoff+uint64(shnum)*shdrSize)

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	buf[5] = 1 // ELFDATA2LSB
	buf[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(buf[16:18], 1)  // e_type = ET_REL
	binary.LittleEndian.PutUint16(buf[18:20], 62) // e_machine = EM_X86_64
	binary.LittleEndian.PutUint32(buf[20:24], 1)  // e_version
	binary.LittleEndian.PutUint64(buf[40:48], shoff)
	binary.LittleEndian.PutUint16(buf[52:54], ehdrSize)
	binary.LittleEndian.PutUint16(buf[58:60], shdrSize)
	binary.LittleEndian.PutUint16(buf[60:62], uint16(shnum))
	binary.LittleEndian.PutUint16(buf[62:64], uint16(len(sections)+1)) // e_shstrndx

	for i, s := range sections {
		if s.typ == shtNobits {
			continue
		}
		copy(buf[contentOffset[i]:], s.data)
	}
	copy(buf[shstrtabOffset:], shstrtab)

	writeShdr := func(idx int, nameOff, typ uint32, flags, addr, off, size uint64, link, info uint32, addralign, entsize uint64) {
		base := shoff + uint64(idx)*shdrSize
		binary.LittleEndian.PutUint32(buf[base:base+4], nameOff)
		binary.LittleEndian.PutUint32(buf[base+4:base+8], typ)
		binary.LittleEndian.PutUint64(buf[base+8:base+16], flags)
		binary.LittleEndian.PutUint64(buf[base+16:base+24], addr)
		binary.LittleEndian.PutUint64(buf[base+24:base+32], off)
		binary.LittleEndian.PutUint64(buf[base+32:base+40], size)
		binary.LittleEndian.PutUint32(buf[base+40:base+44], link)
		binary.LittleEndian.PutUint32(buf[base+44:base+48], info)
		binary.LittleEndian.PutUint64(buf[base+48:base+56], addralign)
		binary.LittleEndian.PutUint64(buf[base+56:base+64], entsize)
	}

	for i, s := range sections {
		writeShdr(i+1, nameOffsets[i], s.typ, s.flags, 0, contentOffset[i], contentSize[i], s.link, s.info, s.addralign, s.entsize)
	}
	writeShdr(len(sections)+1, shstrtabNameOff, shtStrtab, 0, 0, shstrtabOffset, uint64(len(shstrtab)), 0, 0, 1, 0)

	return buf
}

// sym64 encodes one Elf64_Sym entry.
func sym64(nameOff uint32, bind, typ byte, shndx uint16, value, size uint64) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint32(b[0:4], nameOff)
	b[4] = bind<<4 | typ
	b[5] = 0
	binary.LittleEndian.PutUint16(b[6:8], shndx)
	binary.LittleEndian.PutUint64(b[8:16], value)
	binary.LittleEndian.PutUint64(b[16:24], size)
	return b
}

// rela64 encodes one Elf64_Rela entry.
func rela64(offset uint64, symIdx uint32, relType uint32, addend int64) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:8], offset)
	info := uint64(symIdx)<<32 | uint64(relType)
	binary.LittleEndian.PutUint64(b[8:16], info)
	binary.LittleEndian.PutUint64(b[16:24], uint64(addend))
	return b
}

// strtabBytes builds a string table from a leading empty name followed by
// the given names, returning the table bytes and each name's offset.
func strtabBytes(names ...string) ([]byte, []uint32) {
	tab := []byte{0}
	offs := make([]uint32, len(names))
	for i, n := range names {
		offs[i] = uint32(len(tab))
		tab = append(tab, []byte(n)...)
		tab = append(tab, 0)
	}
	return tab, offs
}

const (
	sttNotype  = 0
	sttObject  = 1
	sttFunc    = 2
	sttSection = 3
	stbLocal   = 0
	stbGlobal  = 1
)
