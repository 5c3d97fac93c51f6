package section

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		secName   string
		flags     Flags
		kind      Kind
		size      uint64
		wantClass Class
		wantErr   error
	}{
		{"unallocated debug section", ".debug_info", 0, ProgBits, 100, Ignored, nil},
		{"plain text", ".text", Alloc | ExecInstr, ProgBits, 64, Text, nil},
		{"mangled text subsection", ".text._ZN4main17h0E", Alloc | ExecInstr, ProgBits, 16, Text, nil},
		{"text missing execinstr", ".text", Alloc, ProgBits, 64, Ignored, ErrFlagMismatch},
		{"text also writable", ".text", Alloc | ExecInstr | Write, ProgBits, 64, Ignored, ErrFlagMismatch},
		{"rodata", ".rodata.str1.1", Alloc, ProgBits, 32, Rodata, nil},
		{"rodata writable", ".rodata", Alloc | Write, ProgBits, 32, Ignored, ErrFlagMismatch},
		{"data", ".data", Alloc | Write, ProgBits, 8, Data, nil},
		{"data with no content", ".data", Alloc | Write, NoBits, 8, Ignored, ErrFlagMismatch},
		{"bss", ".bss", Alloc | Write, NoBits, 4096, Data, nil},
		{"bss subsection", ".bss.counter", Alloc | Write, NoBits, 8, Data, nil},
		{"unrecognized allocated section", ".oddball", Alloc, ProgBits, 8, Ignored, ErrUnhandledSection},
		{"symtab always ignored", ".symtab", 0, ProgBits, 200, Ignored, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, err := Classify(tt.secName, tt.flags, tt.kind, tt.size)
			if class != tt.wantClass {
				t.Errorf("Classify(%q) class = %v, want %v", tt.secName, class, tt.wantClass)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("Classify(%q) unexpected error: %v", tt.secName, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Classify(%q) error = %v, want wrapping %v", tt.secName, err, tt.wantErr)
			}
		})
	}
}

func TestClassString(t *testing.T) {
	tests := []struct {
		c    Class
		want string
	}{
		{Text, "text"},
		{Rodata, "rodata"},
		{Data, "data"},
		{Ignored, "ignored"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("%v.String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}
