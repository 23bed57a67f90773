package main

import (
	"encoding/json"
	"fmt"
	"os"

	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-correlator/internal/config"
	"github.com/miradorstack/mirador-correlator/internal/intake"
	"github.com/miradorstack/mirador-correlator/internal/models"
)

var (
	enqueueTenant string
	enqueueFile   string

	enqueueCmd = &cobra.Command{
		Use:   "enqueue",
		Short: "Push alerts from a JSON file onto the intake queue",
		RunE:  runEnqueue,
	}
)

func init() {
	enqueueCmd.Flags().StringVar(&enqueueTenant, "tenant", "", "Tenant the alerts belong to")
	enqueueCmd.Flags().StringVar(&enqueueFile, "file", "", "JSON file holding an array of alerts")
	_ = enqueueCmd.MarkFlagRequired("tenant")
	_ = enqueueCmd.MarkFlagRequired("file")
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Intake.Addr == "" {
		return fmt.Errorf("intake.addr is not configured")
	}

	data, err := os.ReadFile(enqueueFile)
	if err != nil {
		return fmt.Errorf("read alerts: %w", err)
	}
	var alerts []models.Alert
	if err := json.Unmarshal(data, &alerts); err != nil {
		return fmt.Errorf("parse alerts: %w", err)
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Intake.Addr, Password: cfg.Intake.Password, DB: cfg.Intake.DB})
	defer client.Close()

	for _, alert := range alerts {
		if err := intake.Enqueue(cmd.Context(), client, cfg.Intake.QueueKey, intake.Envelope{TenantID: enqueueTenant, Alert: alert}); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "enqueued %d alerts on %s\n", len(alerts), cfg.Intake.QueueKey)
	return nil
}
