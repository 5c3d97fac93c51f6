package loader

import "errors"

// The six error categories a caller can distinguish with errors.Is, each a
// root for Load's more specific sentinel errors below.
var (
	// ErrInput covers malformed arguments to Load itself: empty names,
	// wrong prefixes, nil dependencies.
	ErrInput = errors.New("loader: invalid input")
	// ErrFormat covers an object that isn't the ELF64 little-endian
	// relocatable x86_64 object this loader understands.
	ErrFormat = errors.New("loader: malformed object")
	// ErrAllocation covers a failure from the memory subsystem the loader
	// consumes (out of virtual space, frame allocation failure, mapping
	// failure).
	ErrAllocation = errors.New("loader: memory allocation failed")
	// ErrClassification covers a section whose flags are inconsistent
	// with its name in a way the classifier cannot paper over.
	ErrClassification = errors.New("loader: section classification failed")
	// ErrRelocation covers a relocation entry the loader could not apply.
	ErrRelocation = errors.New("loader: relocation failed")
	// ErrTextEncoding covers a failure decoding a symbol or section name
	// as UTF-8/ASCII text, or demangling it.
	ErrTextEncoding = errors.New("loader: symbol text decoding failed")
)

var (
	ErrEmptyModuleName     = errors.New("module name must not be empty")
	ErrMissingPrefix       = errors.New("module name missing required crate prefix")
	ErrNotRelocatable      = errors.New("object is not an ET_REL relocatable object")
	ErrWrongMachine        = errors.New("object is not x86_64")
	ErrStripped            = errors.New("object has no symbol table")
	ErrUnplacedSection     = errors.New("relocation targets a section that was not placed")
	ErrUnresolvedSymbol    = errors.New("undefined symbol not found in registry")
	ErrUnsupportedSymbol   = errors.New("symbol section index is absolute or common, which the loader does not support")
	ErrUnsupportedReloc    = errors.New("unsupported relocation type")
	ErrRelocationOverflow  = errors.New("relocation value does not fit in field width")
	ErrRelocationOutOfFile = errors.New("relocation offset falls outside its target section")
	ErrOversizedInput      = errors.New("input exceeds the maximum accepted size")
	ErrInvalidUTF8         = errors.New("input is not valid UTF-8")
	ErrMissingColumn       = errors.New("symbol table line is missing a required column")
)
