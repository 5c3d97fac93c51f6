package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "modloaderctl",
	Short: "Inspect object files and drive the crate loader",
	Long: `modloaderctl inspects ELF object files, disassembles their code, and can
drive a load against an in-memory stand-in for the kernel's memory
subsystem. It has no command for ingesting a nano_core symbol dump.`,
}

// Execute runs the root command. Called by main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// logger returns the process-wide logger initLogging configured, for
// subcommands that drive library code expecting a *slog.Logger.
func logger() *slog.Logger {
	return slog.Default()
}
