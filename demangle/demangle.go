// Package demangle turns a possibly-mangled symbol name into a canonical,
// human-readable path plus the compiler-generated disambiguation suffix
// embedded in it, without touching the filesystem or any loader state.
//
// The scheme recognized is the legacy ("v0-less") Rust mangling rustc emits
// by default: a symbol looks like _ZN<len><component>...<len>h<16 hex>E,
// where every component but the last is a path segment (crate, module,
// function name, monomorphization marker, ...) and the last is a fixed-width
// 17-byte hash component used to disambiguate generic instantiations and
// identically named items across crates.
package demangle

import (
	"strconv"
	"strings"
)

const (
	prefix    = "_ZN"
	suffix    = "E"
	hashLen   = 16 // hex digits following the 'h'
	hashCompN = 1 + hashLen
)

// Result is the outcome of splitting a mangled symbol.
type Result struct {
	// Canonical is the "::"-joined path with the hash component removed,
	// e.g. "my_crate::module::function".
	Canonical string
	// Hash is the hash component including its leading 'h', e.g.
	// "h1a2b3c4d5e6f7081". Empty if the symbol carried no hash component.
	Hash string
	// Mangled reports whether sym was recognized as a mangled name at all.
	// When false, Canonical == sym and Hash == "".
	Mangled bool
}

// WithHash reconstructs the hash-qualified rendering of the symbol, i.e.
// Canonical + "::" + Hash. It equals Canonical when Hash is empty.
func (r Result) WithHash() string {
	if r.Hash == "" {
		return r.Canonical
	}
	return r.Canonical + "::" + r.Hash
}

// Demangle splits sym into its canonical name and hash suffix. Symbols that
// don't match the recognized mangling scheme are returned unchanged with
// Mangled set to false: the loader treats such names (plain C-style symbols,
// already-canonical names from a base image dump) as already canonical.
func Demangle(sym string) Result {
	components, ok := splitComponents(sym)
	if !ok {
		return Result{Canonical: sym}
	}

	canonical := components
	hash := ""
	if n := len(components); n > 0 && isHashComponent(components[n-1]) {
		hash = components[n-1]
		canonical = components[:n-1]
	}
	if len(canonical) == 0 {
		// A bare hash with nothing else isn't a useful canonical name;
		// treat the whole thing as unmangled rather than emit "".
		return Result{Canonical: sym}
	}

	return Result{
		Canonical: strings.Join(canonical, "::"),
		Hash:      hash,
		Mangled:   true,
	}
}

// splitComponents strips the _ZN...E envelope and decodes the
// length-prefixed component list inside it. It returns nil, false if sym
// isn't shaped like a mangled legacy Rust symbol.
func splitComponents(sym string) ([]string, bool) {
	if !strings.HasPrefix(sym, prefix) || !strings.HasSuffix(sym, suffix) {
		return nil, false
	}
	body := sym[len(prefix) : len(sym)-len(suffix)]
	if body == "" {
		return nil, false
	}

	var components []string
	for len(body) > 0 {
		i := 0
		for i < len(body) && body[i] >= '0' && body[i] <= '9' {
			i++
		}
		if i == 0 {
			return nil, false
		}
		n, err := strconv.Atoi(body[:i])
		if err != nil || n <= 0 || i+n > len(body) {
			return nil, false
		}
		components = append(components, body[i:i+n])
		body = body[i+n:]
	}
	if len(components) == 0 {
		return nil, false
	}
	return components, true
}

// isHashComponent reports whether c is a legacy hash component: 'h' followed
// by exactly 16 lowercase hex digits.
func isHashComponent(c string) bool {
	if len(c) != hashCompN || c[0] != 'h' {
		return false
	}
	for _, r := range c[1:] {
		if !isHexDigit(r) {
			return false
		}
	}
	return true
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}
