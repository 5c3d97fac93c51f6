package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nanokernel/modloader/obj"
	"github.com/nanokernel/modloader/symtab"
)

var (
	colorSection = color.New(color.FgCyan, color.Bold)
	colorSymbol  = color.New(color.FgGreen, color.Bold)
	colorAddr    = color.New(color.FgYellow)
	colorWarn    = color.New(color.FgMagenta)
)

var (
	inspectAddr   string
	inspectRelocs bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <object-file>",
	Short: "Print the sections and symbols of an ELF object file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectAddr, "addr", "", "resolve a hex address to the symbol containing it")
	inspectCmd.Flags().BoolVar(&inspectRelocs, "relocs", false, "print relocations carried by each section")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	defer f.Close()

	of, err := obj.Open(f)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	defer of.Close()

	colorSection.Println("Sections:")
	for _, s := range of.Sections() {
		addr, size := s.Bounds()
		flags := ""
		if s.ReadOnly() {
			flags += "r"
		}
		if s.ZeroInitialize() {
			flags += "z"
		}
		fmt.Printf("  %-20s %s  size=%-8d %s\n", s.Name, colorAddr.Sprintf("0x%08x", addr), size, flags)
	}

	syms := make([]obj.Sym, of.NumSyms())
	for i := range syms {
		syms[i] = of.Sym(obj.SymID(i))
	}
	obj.SynthesizeSizes(syms)
	table := symtab.NewTable(syms)

	colorSymbol.Println("\nSymbols:")
	for i, s := range syms {
		if s.Name == "" {
			continue
		}
		section := "-"
		if s.Section != nil {
			section = s.Section.Name
		}
		fmt.Printf("  [%4d] %-30s %s kind=%s size=%-6d section=%s\n",
			i, s.Name, colorAddr.Sprintf("0x%08x", s.Value), s.Kind, s.Size, section)
	}

	if inspectRelocs {
		colorSection.Println("\nRelocations:")
		for _, s := range of.Sections() {
			addr, size := s.Bounds()
			if size == 0 {
				continue
			}
			d, err := s.Data(addr, size)
			if err != nil {
				colorWarn.Printf("  %s: %v\n", s.Name, err)
				continue
			}
			for _, r := range d.R {
				symName := "-"
				if r.Symbol != obj.NoSym {
					symName = syms[r.Symbol].Name
				}
				fmt.Printf("  %-20s %s type=%-16s symbol=%s addend=%d\n",
					s.Name, colorAddr.Sprintf("0x%08x", r.Addr), r.Type, colorSymbol.Sprint(symName), r.Addend)
			}
		}
	}

	if inspectAddr != "" {
		addr, err := strconv.ParseUint(inspectAddr, 0, 64)
		if err != nil {
			return fmt.Errorf("inspect: bad --addr %q: %w", inspectAddr, err)
		}
		// Mapped sections share one index; unmapped ones (every section
		// of a relocatable object) are indexed per section.
		id := table.Addr(nil, addr)
		for _, s := range of.Sections() {
			if id != obj.NoSym {
				break
			}
			id = table.Addr(s, addr)
		}
		fmt.Println()
		if id == obj.NoSym {
			colorWarn.Printf("0x%x does not fall within any known symbol\n", addr)
			return nil
		}
		sym := syms[id]
		fmt.Printf("0x%x resolves to %s+0x%x (size=%d, section=%s)\n",
			addr, colorSymbol.Sprint(sym.Name), addr-sym.Value, sym.Size, sym.Section.Name)
	}
	return nil
}
