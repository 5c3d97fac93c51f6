package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nanokernel/modloader/asm"
	"github.com/nanokernel/modloader/obj"
)

var disasmSection string

var disasmCmd = &cobra.Command{
	Use:   "disasm <object-file>",
	Short: "Disassemble a section of an ELF x86_64 object file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisasm,
}

func init() {
	disasmCmd.Flags().StringVar(&disasmSection, "section", ".text", "section to disassemble")
	rootCmd.AddCommand(disasmCmd)
}

func runDisasm(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("disasm: %w", err)
	}
	defer f.Close()

	of, err := obj.Open(f)
	if err != nil {
		return fmt.Errorf("disasm: %w", err)
	}
	defer of.Close()

	var target *obj.Section
	for _, s := range of.Sections() {
		if s.Name == disasmSection {
			target = s
			break
		}
	}
	if target == nil {
		return fmt.Errorf("disasm: no section named %q", disasmSection)
	}

	addr, size := target.Bounds()
	data, err := target.Data(addr, size)
	if err != nil {
		return fmt.Errorf("disasm: %w", err)
	}

	lines, err := asm.DisassembleX86(data.B, addr, nil)
	if err != nil {
		return fmt.Errorf("disasm: %w", err)
	}
	for _, l := range lines {
		syntax := l.Syntax
		if strings.TrimSpace(syntax) == "?" {
			syntax = colorWarn.Sprint("? (undecodable)")
		}
		fmt.Printf("  %s  %s\n", colorAddr.Sprintf("0x%08x", l.PC), syntax)
	}
	return nil
}
