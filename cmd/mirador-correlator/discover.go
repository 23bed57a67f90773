package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-correlator/internal/config"
	"github.com/miradorstack/mirador-correlator/internal/repo"
	"github.com/miradorstack/mirador-correlator/internal/services"
	"github.com/miradorstack/mirador-correlator/internal/utils"
)

var (
	discoverTenant   string
	discoverSnapshot string
	discoverDryRun   bool

	discoverCmd = &cobra.Command{
		Use:   "discover",
		Short: "Infer the service dependency graph for one tenant and print the run report",
		RunE:  runDiscover,
	}
)

func init() {
	discoverCmd.Flags().StringVar(&discoverTenant, "tenant", "", "Tenant to discover")
	discoverCmd.Flags().StringVar(&discoverSnapshot, "snapshot", "", "Read nodes and enrichment from a JSON or YAML file instead of the discovery API")
	discoverCmd.Flags().BoolVar(&discoverDryRun, "dry-run", false, "Infer edges without writing to the graph store")
	_ = discoverCmd.MarkFlagRequired("tenant")
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout carries only the report.
	logger := utils.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.JSON)

	var source services.DiscoverySource
	if discoverSnapshot != "" {
		snap, err := repo.LoadSnapshot(discoverSnapshot)
		if err != nil {
			return err
		}
		source = snap
	}

	a, err := newApp(cmd.Context(), cfg, logger, source)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.discovery == nil {
		return fmt.Errorf("no discovery source: pass --snapshot or set discovery.baseURL")
	}

	report, err := a.discovery.Run(cmd.Context(), discoverTenant, services.DiscoveryOptions{DryRun: discoverDryRun})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
