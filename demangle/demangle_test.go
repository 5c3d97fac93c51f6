package demangle

import "testing"

func TestDemangle(t *testing.T) {
	tests := []struct {
		name          string
		sym           string
		wantCanonical string
		wantHash      string
		wantMangled   bool
	}{
		{
			name:          "simple path with hash",
			sym:           "_ZN8my_crate6module8function17h1a2b3c4d5e6f7081E",
			wantCanonical: "my_crate::module::function",
			wantHash:      "h1a2b3c4d5e6f7081",
			wantMangled:   true,
		},
		{
			name:          "single segment with hash",
			sym:           "_ZN4main17h0000000000000000E",
			wantCanonical: "main",
			wantHash:      "h0000000000000000",
			wantMangled:   true,
		},
		{
			name:          "no hash component",
			sym:           "_ZN8my_crate8function" + "E",
			wantCanonical: "my_crate::function",
			wantHash:      "",
			wantMangled:   true,
		},
		{
			name:          "plain C symbol is not mangled",
			sym:           "kprint",
			wantCanonical: "kprint",
			wantMangled:   false,
		},
		{
			name:          "malformed length prefix falls back unmangled",
			sym:           "_ZN99tinyE",
			wantCanonical: "_ZN99tinyE",
			wantMangled:   false,
		},
		{
			name:          "empty string",
			sym:           "",
			wantCanonical: "",
			wantMangled:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Demangle(tt.sym)
			if got.Canonical != tt.wantCanonical {
				t.Errorf("Canonical = %q, want %q", got.Canonical, tt.wantCanonical)
			}
			if got.Hash != tt.wantHash {
				t.Errorf("Hash = %q, want %q", got.Hash, tt.wantHash)
			}
			if got.Mangled != tt.wantMangled {
				t.Errorf("Mangled = %v, want %v", got.Mangled, tt.wantMangled)
			}
		})
	}
}

func TestResultWithHash(t *testing.T) {
	r := Demangle("_ZN8my_crate8function17hdeadbeefdeadbeefE")
	want := "my_crate::function::hdeadbeefdeadbeef"
	if got := r.WithHash(); got != want {
		t.Errorf("WithHash() = %q, want %q", got, want)
	}

	plain := Demangle("kprint")
	if got := plain.WithHash(); got != "kprint" {
		t.Errorf("WithHash() on unmangled = %q, want %q", got, "kprint")
	}
}
