// Package loader implements the Loader Core: turning a relocatable ELF64
// x86_64 object into a LoadedCrate with its sections copied into freshly
// mapped memory, its internal and cross-crate relocations applied, and its
// final page permissions tightened — plus the two smaller loaders that
// share its ELF-walking idiom: a first-section-by-type finder and a
// textual base-image symbol ingestor.
package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nanokernel/modloader/crate"
	"github.com/nanokernel/modloader/demangle"
	"github.com/nanokernel/modloader/memory"
	"github.com/nanokernel/modloader/region"
	"github.com/nanokernel/modloader/registry"
	"github.com/nanokernel/modloader/section"
)

// CratePrefix is the required module-name prefix, matching the convention
// the base kernel image and every loadable module share.
const CratePrefix = "__k_"

// Options configures a single Load call.
type Options struct {
	// Log receives Debug-level progress and Warn-level warn-and-continue
	// notices (ignored sections, zero-target relocation sections,
	// unrecognized allocated sections). A nil Log defaults to
	// slog.Default().
	Log *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// Load parses objectBytes as a relocatable ELF64 x86_64 object, places its
// loadable sections into freshly allocated memory via alloc, applies its
// relocations (resolving external symbols through reg), tightens final page
// permissions, and publishes its globally visible sections into reg before
// returning the resulting crate.
//
// moduleName must carry CratePrefix; it becomes the LoadedCrate's Name.
func Load(objectBytes []byte, moduleName string, alloc *region.Allocator, reg *registry.Registry, opts Options) (*crate.LoadedCrate, error) {
	log := opts.logger()

	if moduleName == "" {
		return nil, fmt.Errorf("%w: %w", ErrInput, ErrEmptyModuleName)
	}
	if !strings.HasPrefix(moduleName, CratePrefix) {
		return nil, fmt.Errorf("%w: %w: %q", ErrInput, ErrMissingPrefix, moduleName)
	}

	ef, err := elf.NewFile(bytes.NewReader(objectBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if ef.Type != elf.ET_REL {
		return nil, fmt.Errorf("%w: %w: got %v", ErrFormat, ErrNotRelocatable, ef.Type)
	}
	if ef.Machine != elf.EM_X86_64 || ef.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("%w: %w: machine=%v class=%v", ErrFormat, ErrWrongMachine, ef.Machine, ef.Class)
	}

	syms, err := ef.Symbols()
	if err != nil {
		if err == elf.ErrNoSymbols {
			return nil, fmt.Errorf("%w: %w", ErrFormat, ErrStripped)
		}
		return nil, fmt.Errorf("%w: reading symbol table: %v", ErrFormat, err)
	}

	log.Debug("loading crate", "module", moduleName, "sections", len(ef.Sections), "symbols", len(syms))

	c := crate.New(moduleName)

	// Phase A: find which section indices are defined by a globally bound
	// symbol; those sections' contents become visible to other crates.
	globalShndx := phaseA(syms)

	// Phase B: classify every section and plan its placement within its
	// class's eventual region.
	placements, err := phaseB(ef, log)
	if err != nil {
		return nil, err
	}

	// Phase C: allocate one region per non-empty class.
	regions, err := phaseC(alloc, placements)
	if err != nil {
		return nil, err
	}
	// Regions are recorded on c immediately so a failure partway through
	// the remaining phases unmaps them via c.Close() before Load returns.
	c.Regions = []*memory.MappedRegion{regions[section.Text], regions[section.Rodata], regions[section.Data]}
	published := false
	defer func() {
		if !published {
			c.Close()
		}
	}()

	// Phase D: copy section content (or leave zeroed, for .bss) into its
	// region, building the LoadedSection records and handling the
	// zero-size-section address convention.
	shndxToSection, err := phaseD(ef, placements, regions, globalShndx, c, log)
	if err != nil {
		return nil, err
	}

	// Phase E: apply every relocation section's entries.
	if err := phaseE(ef, syms, placements, regions, shndxToSection, reg, log); err != nil {
		return nil, err
	}

	// Phase F: tighten each region's permissions to its final class.
	for _, class := range []section.Class{section.Text, section.Rodata, section.Data} {
		if err := alloc.Tighten(regions[class], class); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
		}
	}

	// Phase G: publish global sections into the registry.
	published = true
	reg.Publish(c)

	log.Debug("loaded crate", "module", moduleName, "sections", len(c.Sections))
	return c, nil
}

// stvDefault is ELF's STV_DEFAULT visibility, the low two bits of st_other.
// debug/elf doesn't expose a symbolic constant for it.
const stvDefault = 0

// phaseA returns the set of ELF section indices defined by at least one
// symbol that is STB_GLOBAL bound, STV_DEFAULT visibility, and either
// STT_FUNC or STT_OBJECT typed — the same three-way test the original
// applies before trusting a symbol to make its section globally visible.
// A GLOBAL HIDDEN symbol, or a global STT_NOTYPE/STT_SECTION symbol, must
// not mark its section global.
func phaseA(syms []elf.Symbol) map[elf.SectionIndex]bool {
	global := make(map[elf.SectionIndex]bool)
	for _, s := range syms {
		if elf.ST_BIND(s.Info) != elf.STB_GLOBAL {
			continue
		}
		if s.Other&0x3 != stvDefault {
			continue
		}
		typ := elf.ST_TYPE(s.Info)
		if typ != elf.STT_FUNC && typ != elf.STT_OBJECT {
			continue
		}
		if s.Section == elf.SHN_UNDEF || s.Section == elf.SHN_ABS || s.Section == elf.SHN_COMMON {
			continue
		}
		global[s.Section] = true
	}
	return global
}

// placement records where one ELF section ends up within its class's
// region. sec is the section's own header, which supplies its name, flags,
// and classification; dataSec is the header whose size, alignment, and
// content are actually used to place and fill it — the same as sec, unless
// sec is a zero-sized section substituting the next section header's shape
// (see phaseB).
type placement struct {
	shndx     elf.SectionIndex
	sec       *elf.Section
	dataSec   *elf.Section
	class     section.Class
	offset    uint64 // offset within its class's region
	size      uint64
	canonical string
	hash      string
}

var sectionNamePrefixes = []string{".text.", ".rodata.", ".data.", ".bss.", ".tdata.", ".tbss."}

// symbolNameOf strips the section-class prefix from an ELF section name to
// recover the mangled symbol name the compiler derived it from, e.g.
// ".text._ZN4main17h0E" -> "_ZN4main17h0E". Sections with no such suffix
// (a bare ".text" with nothing appended) are returned unchanged.
func symbolNameOf(secName string) string {
	for _, p := range sectionNamePrefixes {
		if strings.HasPrefix(secName, p) && len(secName) > len(p) {
			return secName[len(p):]
		}
	}
	return secName
}

// phaseB classifies every section and lays out per-class offsets,
// respecting each section's own alignment. Sections the classifier reports
// as Ignored (including ErrUnhandledSection, the warn-and-continue case) are
// omitted from the returned slice but not treated as fatal.
func phaseB(ef *elf.File, log *slog.Logger) ([]placement, error) {
	offsets := map[section.Class]uint64{}
	var placements []placement

	for i, s := range ef.Sections {
		if i == 0 {
			continue // SHN_UNDEF's reserved null section header
		}
		flags := toFlags(s.Flags)
		kind := toKind(s.Type)
		class, err := section.Classify(s.Name, flags, kind, s.Size)
		if err != nil {
			if !isUnhandled(err) {
				return nil, fmt.Errorf("%w: %v", ErrClassification, err)
			}
			log.Warn("skipping unrecognized allocated section", "section", s.Name, "size", s.Size)
		}
		if class == section.Ignored {
			if s.Flags&elf.SHF_ALLOC != 0 && err == nil {
				log.Debug("ignoring allocated non-loadable section", "section", s.Name)
			}
			continue
		}

		// A section of size zero isn't necessarily meaningless — it's
		// sometimes the target of a relocation that really refers to the
		// section immediately following it. Such a section keeps its own
		// name, flags, and class, but borrows the next section header's
		// size, alignment, and content wholesale.
		dataSec := s
		if s.Size == 0 {
			next := i + 1
			if next >= len(ef.Sections) {
				return nil, fmt.Errorf("%w: zero-sized section %q has no following section to borrow", ErrFormat, s.Name)
			}
			dataSec = ef.Sections[next]
			log.Debug("zero-size section borrows next section's size/alignment/data", "section", s.Name, "donor", dataSec.Name)
		}

		align := dataSec.Addralign
		if align == 0 {
			align = 1
		}
		off := roundUp(offsets[class], align)
		offsets[class] = off + dataSec.Size

		dres := demangle.Demangle(symbolNameOf(s.Name))
		placements = append(placements, placement{
			shndx:     elf.SectionIndex(i),
			sec:       s,
			dataSec:   dataSec,
			class:     class,
			offset:    off,
			size:      dataSec.Size,
			canonical: dres.Canonical,
			hash:      dres.Hash,
		})
	}
	return placements, nil
}

func isUnhandled(err error) bool {
	return err != nil && errors.Is(err, section.ErrUnhandledSection)
}

func roundUp(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

func toFlags(f elf.SectionFlag) section.Flags {
	var out section.Flags
	if f&elf.SHF_ALLOC != 0 {
		out |= section.Alloc
	}
	if f&elf.SHF_WRITE != 0 {
		out |= section.Write
	}
	if f&elf.SHF_EXECINSTR != 0 {
		out |= section.ExecInstr
	}
	return out
}

func toKind(t elf.SectionType) section.Kind {
	if t == elf.SHT_NOBITS {
		return section.NoBits
	}
	return section.ProgBits
}

// phaseC allocates one region per class with at least one placement.
func phaseC(alloc *region.Allocator, placements []placement) (map[section.Class]*memory.MappedRegion, error) {
	sizes := map[section.Class]uint64{}
	for _, p := range placements {
		end := p.offset + p.size
		if end > sizes[p.class] {
			sizes[p.class] = end
		}
	}
	regions := map[section.Class]*memory.MappedRegion{}
	for _, class := range []section.Class{section.Text, section.Rodata, section.Data} {
		r, err := alloc.Allocate(sizes[class])
		if err != nil {
			return nil, fmt.Errorf("%w: class %v: %v", ErrAllocation, class, err)
		}
		regions[class] = r
	}
	return regions, nil
}

// phaseD copies section content into its region (or leaves a fresh,
// zero-filled region alone for NOBITS sections) and builds every
// LoadedSection. A section that borrowed its donor's size/alignment/content
// in phaseB also gets its own freshly placed copy of that content here, at
// its own address — it is a distinct LoadedSection from its donor, not an
// alias of it.
func phaseD(ef *elf.File, placements []placement, regions map[section.Class]*memory.MappedRegion, globalShndx map[elf.SectionIndex]bool, c *crate.LoadedCrate, log *slog.Logger) (map[elf.SectionIndex]*crate.LoadedSection, error) {
	shndxToSection := make(map[elf.SectionIndex]*crate.LoadedSection, len(placements))

	for _, p := range placements {
		r := regions[p.class]
		var vaddr uint64
		if r != nil {
			vaddr = r.Base() + p.offset
		}

		if p.size > 0 && p.dataSec.Type != elf.SHT_NOBITS {
			data, err := p.dataSec.Data()
			if err != nil {
				return nil, fmt.Errorf("%w: reading %q: %v", ErrFormat, p.dataSec.Name, err)
			}
			dest := r.Bytes()[p.offset : p.offset+p.size]
			copy(dest, data)
		}

		sec := &crate.LoadedSection{
			CanonicalName:  p.canonical,
			HashSuffix:     p.hash,
			Class:          p.class,
			VirtualAddress: vaddr,
			Size:           p.size,
			Global:         globalShndx[p.shndx],
		}
		c.AddSection(sec)
		shndxToSection[p.shndx] = sec
	}
	return shndxToSection, nil
}

// phaseE applies every relocation section's entries against the sections
// already placed in shndxToSection, resolving external (SHN_UNDEF) symbols
// through reg.
func phaseE(ef *elf.File, syms []elf.Symbol, placements []placement, regions map[section.Class]*memory.MappedRegion, shndxToSection map[elf.SectionIndex]*crate.LoadedSection, reg *registry.Registry, log *slog.Logger) error {
	placementByShndx := make(map[elf.SectionIndex]placement, len(placements))
	for _, p := range placements {
		placementByShndx[p.shndx] = p
	}

	const relaEntSize = 24

	for _, relSec := range ef.Sections {
		if relSec.Type != elf.SHT_RELA {
			continue
		}
		targetShndx := elf.SectionIndex(relSec.Info)
		targetSec, ok := shndxToSection[targetShndx]
		if !ok {
			log.Warn("skipping relocation section with no loaded target", "section", relSec.Name)
			continue
		}
		targetPlacement := placementByShndx[targetShndx]
		targetRegion := regions[targetPlacement.class]

		data, err := relSec.Data()
		if err != nil {
			return fmt.Errorf("%w: reading %q: %v", ErrFormat, relSec.Name, err)
		}
		if len(data)%relaEntSize != 0 {
			return fmt.Errorf("%w: %q length %d not a multiple of %d", ErrFormat, relSec.Name, len(data), relaEntSize)
		}

		for off := 0; off+relaEntSize <= len(data); off += relaEntSize {
			entryOffset := binary.LittleEndian.Uint64(data[off : off+8])
			info := binary.LittleEndian.Uint64(data[off+8 : off+16])
			addend := int64(binary.LittleEndian.Uint64(data[off+16 : off+24]))

			if entryOffset >= targetPlacement.size {
				return fmt.Errorf("%w: %w: offset %#x in %q (size %#x)", ErrRelocation, ErrRelocationOutOfFile, entryOffset, relSec.Name, targetPlacement.size)
			}

			symIdx := info >> 32
			relType := elf.R_X86_64(info & 0xffffffff)

			value, err := resolveSymbolValue(syms, symIdx, shndxToSection, reg)
			if err != nil {
				return fmt.Errorf("%w: in %q: %v", ErrRelocation, relSec.Name, err)
			}

			patchAddr := targetSec.VirtualAddress + entryOffset
			regionOffset := targetPlacement.offset + entryOffset
			log.Debug("applying relocation", "section", relSec.Name, "type", relType, "offset", entryOffset, "value", value, "addend", addend)

			if err := applyReloc(targetRegion.Bytes(), regionOffset, relType, value, addend, patchAddr); err != nil {
				return fmt.Errorf("%w: in %q at %#x: %v", ErrRelocation, relSec.Name, entryOffset, err)
			}
		}
	}
	return nil
}

// resolveSymbolValue computes the value (S, in the ELF spec's relocation
// notation) a relocation's symbol index resolves to: for a symbol defined in
// a section this object placed, its section's base plus its in-section
// offset; for an undefined symbol, a registry lookup by demangled canonical
// name. SHN_ABS and SHN_COMMON symbols are unsupported: the loader has no
// support for an absolute source section index any more than the original
// does.
func resolveSymbolValue(syms []elf.Symbol, symIdx uint64, shndxToSection map[elf.SectionIndex]*crate.LoadedSection, reg *registry.Registry) (uint64, error) {
	if symIdx == 0 || int(symIdx) > len(syms) {
		return 0, fmt.Errorf("symbol index %d out of range (table has %d entries)", symIdx, len(syms))
	}
	sym := syms[symIdx-1]

	switch sym.Section {
	case elf.SHN_ABS:
		return 0, fmt.Errorf("%w: %q is SHN_ABS", ErrUnsupportedSymbol, sym.Name)

	case elf.SHN_UNDEF:
		dres := demangle.Demangle(sym.Name)
		sec, ok := reg.Lookup(dres.Canonical)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnresolvedSymbol, dres.Canonical)
		}
		return sec.VirtualAddress, nil

	case elf.SHN_COMMON:
		return 0, fmt.Errorf("%w: %q is SHN_COMMON", ErrUnsupportedSymbol, sym.Name)

	default:
		targetSec, ok := shndxToSection[sym.Section]
		if !ok {
			return 0, fmt.Errorf("%w: symbol %q defined in unplaced section %d", ErrUnplacedSection, sym.Name, sym.Section)
		}
		return targetSec.VirtualAddress + sym.Value, nil
	}
}

// applyReloc computes and writes the patched value for one relocation entry
// into regionBytes at regionOffset, given the symbol value S, the explicit
// addend A, and the patch site's own virtual address P (needed by PC-relative
// types).
func applyReloc(regionBytes []byte, regionOffset uint64, relType elf.R_X86_64, symValue uint64, addend int64, patchAddr uint64) error {
	s := int64(symValue)
	switch relType {
	case elf.R_X86_64_64:
		v := uint64(s + addend)
		binary.LittleEndian.PutUint64(regionBytes[regionOffset:regionOffset+8], v)

	case elf.R_X86_64_32:
		v := s + addend
		if v < 0 || v > 0xffffffff {
			return fmt.Errorf("%w: R_X86_64_32 value %#x", ErrRelocationOverflow, v)
		}
		binary.LittleEndian.PutUint32(regionBytes[regionOffset:regionOffset+4], uint32(v))

	case elf.R_X86_64_32S:
		v := s + addend
		if v < -0x80000000 || v > 0x7fffffff {
			return fmt.Errorf("%w: R_X86_64_32S value %#x", ErrRelocationOverflow, v)
		}
		binary.LittleEndian.PutUint32(regionBytes[regionOffset:regionOffset+4], uint32(int32(v)))

	case elf.R_X86_64_PC32:
		v := s + addend - int64(patchAddr)
		if v < -0x80000000 || v > 0x7fffffff {
			return fmt.Errorf("%w: R_X86_64_PC32 value %#x", ErrRelocationOverflow, v)
		}
		binary.LittleEndian.PutUint32(regionBytes[regionOffset:regionOffset+4], uint32(int32(v)))

	case elf.R_X86_64_PC64:
		v := uint64(s + addend - int64(patchAddr))
		binary.LittleEndian.PutUint64(regionBytes[regionOffset:regionOffset+8], v)

	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedReloc, relType)
	}
	return nil
}

// FindFirstSectionByType returns the first section header of the given
// type, or nil if none exists. It is exported the way the original loader
// this one is patterned after exposes the same helper; nothing in this
// module calls it.
func FindFirstSectionByType(ef *elf.File, typ elf.SectionType) *elf.Section {
	for _, s := range ef.Sections {
		if s.Type == typ {
			return s
		}
	}
	return nil
}
