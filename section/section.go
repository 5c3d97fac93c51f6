// Package section classifies ELF section headers into the coarse buckets
// the loader cares about: executable code, read-only data, writable data, or
// not worth loading at all. Classification is a pure function of a section's
// name, flags, and type; it never touches file content.
package section

import (
	"errors"
	"fmt"
	"strings"
)

// Class is the bucket a section falls into once loaded.
type Class int

const (
	// Ignored sections are never copied into a crate's memory regions:
	// debug info, symbol/string/relocation tables, comments, build
	// attributes, and any allocated section this loader doesn't recognize
	// (logged as a warning, not an error, at the classifier's call site).
	Ignored Class = iota
	// Text holds executable instructions. Mapped present + executable,
	// never writable.
	Text
	// Rodata holds read-only data: string literals, vtables, exception
	// tables. Mapped present, never writable or executable.
	Rodata
	// Data holds mutable global state, zero-initialized or not. Mapped
	// present + writable, never executable.
	Data
)

func (c Class) String() string {
	switch c {
	case Text:
		return "text"
	case Rodata:
		return "rodata"
	case Data:
		return "data"
	default:
		return "ignored"
	}
}

// Flags mirrors the subset of ELF section header flags the classifier
// consults, decoupled from debug/elf's own flag type so this package has no
// parsing dependency.
type Flags uint8

const (
	Alloc Flags = 1 << iota
	Write
	ExecInstr
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }

// Kind distinguishes sections backed by file content (PROGBITS) from
// sections that reserve space without occupying any (NOBITS, i.e. .bss).
type Kind uint8

const (
	ProgBits Kind = iota
	NoBits
)

var (
	// ErrFlagMismatch is returned when a section's name implies one class
	// but its flags are incompatible with it (e.g. a ".text" section
	// lacking SHF_EXECINSTR).
	ErrFlagMismatch = errors.New("section flags inconsistent with its name")
	// ErrUnhandledSection is returned for an allocated section whose name
	// the classifier doesn't recognize at all. Callers are expected to
	// treat this as the spec's warn-and-continue case: log it and fall
	// back to Ignored rather than abort the whole load.
	ErrUnhandledSection = errors.New("unrecognized allocated section")
)

// Classify derives the Class of a section from its name, flags, type, and
// size. It never inspects file bytes.
//
// A non-nil error other than ErrUnhandledSection means the section is
// malformed in a way the loader cannot safely paper over (e.g. an allocated
// ".text" section lacking SHF_EXECINSTR); callers should
// treat that as fatal to the whole object, per the spec's FormatError /
// ClassificationError split. ErrUnhandledSection is the sole warn-and-continue
// case: Class is still meaningfully Ignored alongside it.
func Classify(name string, flags Flags, kind Kind, size uint64) (Class, error) {
	if !flags.has(Alloc) {
		return Ignored, nil
	}

	switch {
	case hasPrefix(name, ".text"):
		if !flags.has(ExecInstr) {
			return Ignored, fmt.Errorf("%w: %q is allocated but not executable", ErrFlagMismatch, name)
		}
		if flags.has(Write) {
			return Ignored, fmt.Errorf("%w: %q is both executable and writable", ErrFlagMismatch, name)
		}
		return Text, nil

	case hasPrefix(name, ".rodata"), name == ".eh_frame", name == ".gcc_except_table":
		if flags.has(Write) || flags.has(ExecInstr) {
			return Ignored, fmt.Errorf("%w: %q is read-only by name but writable/executable", ErrFlagMismatch, name)
		}
		return Rodata, nil

	case hasPrefix(name, ".data"), hasPrefix(name, ".tdata"):
		if !flags.has(Write) {
			return Ignored, fmt.Errorf("%w: %q is allocated data but not writable", ErrFlagMismatch, name)
		}
		if kind == NoBits {
			return Ignored, fmt.Errorf("%w: %q has no file content but isn't a .bss section", ErrFlagMismatch, name)
		}
		return Data, nil

	case hasPrefix(name, ".bss"), hasPrefix(name, ".tbss"):
		if !flags.has(Write) {
			return Ignored, fmt.Errorf("%w: %q is allocated bss but not writable", ErrFlagMismatch, name)
		}
		return Data, nil

	case isAlwaysIgnored(name):
		return Ignored, nil

	default:
		return Ignored, fmt.Errorf("%w: %q (size %d)", ErrUnhandledSection, name, size)
	}
}

func hasPrefix(name, p string) bool {
	return strings.HasPrefix(name, p)
}

func isAlwaysIgnored(name string) bool {
	switch {
	case hasPrefix(name, ".debug"),
		hasPrefix(name, ".comment"),
		hasPrefix(name, ".note"),
		hasPrefix(name, ".group"),
		hasPrefix(name, ".symtab"),
		hasPrefix(name, ".strtab"),
		hasPrefix(name, ".shstrtab"),
		hasPrefix(name, ".rela"),
		hasPrefix(name, ".rel"),
		name == "":
		return true
	}
	return false
}
