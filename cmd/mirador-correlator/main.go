package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:           "mirador-correlator",
		Short:         "Correlates alerts into incidents using an inferred service dependency graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (defaults to $MIRADOR_CORRELATOR_CONFIG)")
	rootCmd.AddCommand(serveCmd, discoverCmd, enqueueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("mirador-correlator failed", slog.Any("error", err))
		os.Exit(1)
	}
}
