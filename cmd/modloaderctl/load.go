package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nanokernel/modloader/loader"
	"github.com/nanokernel/modloader/memory"
	"github.com/nanokernel/modloader/region"
	"github.com/nanokernel/modloader/registry"
)

var loadBase uint64

var loadCmd = &cobra.Command{
	Use:   "load <object-file> <module-name>",
	Short: "Load a relocatable object through the crate loader against an in-memory kernel stand-in",
	Args:  cobra.ExactArgs(2),
	RunE:  runLoad,
}

func init() {
	loadCmd.Flags().Uint64Var(&loadBase, "base", 0x4000_0000, "base virtual address for the in-memory address space")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	objectPath, moduleName := args[0], args[1]

	data, err := os.ReadFile(objectPath)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	space := memory.NewVirtualSpace(loadBase)
	host := memory.NewHost()
	alloc := region.NewAllocator(space, host, host)
	reg := registry.New()

	lc, err := loader.Load(data, moduleName, alloc, reg, loader.Options{Log: logger()})
	if err != nil {
		colorWarn.Fprintf(os.Stderr, "load failed: %v\n", err)
		return err
	}
	defer lc.Close()

	colorSection.Printf("Loaded crate %s\n", lc.Name)
	for _, s := range lc.Sections {
		vis := "local"
		if s.Global {
			vis = color.GreenString("global")
		}
		fmt.Printf("  %-30s %s size=%-8d class=%-10s %s\n",
			s.CanonicalName, colorAddr.Sprintf("0x%08x", s.VirtualAddress), s.Size, s.Class, vis)
	}

	colorSymbol.Printf("\nRegistry now holds %d published symbol(s)\n", reg.Len())
	return nil
}
