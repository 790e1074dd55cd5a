package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pipebench",
	Short: "In-memory pipe stress bench",
	Long: `pipebench is a CLI tool for exercising mempipe byte pipes under load.

It creates pipe pairs, pushes seeded pseudo-random streams through them
from concurrent writers, verifies every byte on the reader side, and
prints per-pipe throughput.

Scenarios can be described in a YAML file and overridden per run with
flags.

Usage:
  pipebench run --pipes 8 --capacity 4096`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Command returns the root cobra command for mounting into a parent CLI.
func Command() *cobra.Command {
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))
}
