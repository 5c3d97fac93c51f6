package loader

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nanokernel/modloader/crate"
	"github.com/nanokernel/modloader/demangle"
	"github.com/nanokernel/modloader/registry"
	"github.com/nanokernel/modloader/section"
)

// maxBaseImageSize bounds how much of r IngestBaseImage will buffer, mirroring
// the original's check that the symbol dump doesn't exceed the bounds of the
// memory region it was handed.
const maxBaseImageSize = 64 << 20

// noShndx marks a section-index slot as not yet discovered; it can never
// equal a real (non-negative) ELF section index parsed from the dump.
const noShndx = -1

// IngestBaseImage seeds reg with the symbols of the already-resident kernel
// image, described by the combined textual output of a symbol and section
// header dump (as `readelf -s -S` produces) rather than an ELF object — the
// base image is the running kernel itself; there is no separate relocatable
// file for it to parse.
//
// It handles two kinds of line in a single scan over the text: section header lines
// (identified by containing "PROGBITS"/"NOBITS" alongside one of
// .text/.rodata/.data/.bss) are used to discover those sections' indices,
// e.g.:
//
//	[ 3] .text             PROGBITS        ffffffff80100000  00100000
//
// and symbol table lines containing the token "GLOBAL " are parsed as
// whitespace-delimited columns (num, value, size, type, bind, vis, ndx,
// name), e.g.:
//
//	5: ffffffff80100000    16 FUNC    GLOBAL DEFAULT    3 _ZN9nano_core...
//
// Only value, size, ndx, and name are used; ndx is matched against the
// discovered section indices to classify the symbol's section (text,
// rodata, or data/bss) — a non-numeric ndx (e.g. "ABS") is skipped, not an
// error, since it can never match a discovered index. Every resulting
// section is global and is wrapped into a single LoadedCrate named
// "nano_core".
func IngestBaseImage(r io.Reader, reg *registry.Registry) (*crate.LoadedCrate, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBaseImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading symbol dump: %v", ErrFormat, err)
	}
	if len(data) > maxBaseImageSize {
		return nil, fmt.Errorf("%w: %w", ErrInput, ErrOversizedInput)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %w", ErrTextEncoding, ErrInvalidUTF8)
	}

	c := crate.New("nano_core")
	textShndx, rodataShndx, dataShndx, bssShndx := noShndx, noShndx, noShndx, noShndx

	for lineNo, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		// Discover the .text/.data/.rodata/.bss section indices from
		// section header lines, in the same preference order the
		// original checks them (a line can only match one of these).
		switch {
		case strings.Contains(line, ".text") && strings.Contains(line, "PROGBITS"):
			if idx, ok := sectionHeaderIndex(line); ok {
				textShndx = idx
			}
		case strings.Contains(line, ".data") && strings.Contains(line, "PROGBITS"):
			if idx, ok := sectionHeaderIndex(line); ok {
				dataShndx = idx
			}
		case strings.Contains(line, ".rodata") && strings.Contains(line, "PROGBITS"):
			if idx, ok := sectionHeaderIndex(line); ok {
				rodataShndx = idx
			}
		case strings.Contains(line, ".bss") && strings.Contains(line, "NOBITS"):
			if idx, ok := sectionHeaderIndex(line); ok {
				bssShndx = idx
			}
		}

		if !strings.Contains(line, "GLOBAL ") {
			continue
		}

		// num: value size type bind vis ndx name
		fields := strings.Fields(line)
		if len(fields) < 8 {
			return nil, fmt.Errorf("%w: line %d: %w: need 8 columns (num value size type bind vis ndx name), got %d: %q",
				ErrFormat, lineNo+1, ErrMissingColumn, len(fields), line)
		}

		vaddr, err := strconv.ParseUint(fields[1], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad virtual address %q: %v", ErrFormat, lineNo+1, fields[1], err)
		}
		size, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: bad size %q: %v", ErrFormat, lineNo+1, fields[2], err)
		}
		// Ndx is required but isn't necessarily numeric (e.g. "ABS");
		// when it isn't, it can't match a discovered section index, so
		// the entry is skipped rather than treated as an error.
		ndx, err := strconv.Atoi(fields[6])
		if err != nil {
			continue
		}
		name := fields[7]

		var class section.Class
		switch ndx {
		case textShndx:
			class = section.Text
		case rodataShndx:
			class = section.Rodata
		case dataShndx, bssShndx:
			class = section.Data
		default:
			continue
		}

		dres := demangle.Demangle(name)
		c.AddSection(&crate.LoadedSection{
			CanonicalName:  dres.Canonical,
			HashSuffix:     dres.Hash,
			Class:          class,
			VirtualAddress: vaddr,
			Size:           size,
			Global:         true,
		})
	}

	reg.Publish(c)
	return c, nil
}

// sectionHeaderIndex extracts the bracketed section index from a readelf -S
// style line, e.g. "  [ 3] .text ..." -> 3.
func sectionHeaderIndex(line string) (int, bool) {
	open := strings.Index(line, "[")
	if open < 0 {
		return 0, false
	}
	rest := line[open+1:]
	end := strings.Index(rest, "]")
	if end < 0 {
		return 0, false
	}
	idx, err := strconv.Atoi(strings.TrimSpace(rest[:end]))
	if err != nil {
		return 0, false
	}
	return idx, true
}
