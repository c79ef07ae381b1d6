package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"iotml/internal/engine"
	"iotml/internal/training"
)

func newTrainCmd() *cobra.Command {
	var (
		modelID   string
		modelType string
		orgID     int64
		samples   int
		source    string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train one model synchronously and print the finished job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, os.Getenv)
			if err != nil {
				return err
			}
			kind, err := engine.ParseKind(modelType)
			if err != nil {
				return err
			}
			log := newLogger(cfg, stderr)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			job, err := a.trainer.CreateJob(training.CreateJobRequest{
				ModelID:        modelID,
				OrganizationID: orgID,
				ModelType:      kind,
				Config:         map[string]any{"n_samples": samples, "data_source": source},
				TriggeredBy:    "cli",
			})
			if err != nil {
				return err
			}
			a.trainer.Run(ctx, job.ID)
			job, _ = a.trainer.GetJob(job.ID)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(job); err != nil {
				return err
			}
			if job.Status != training.StatusCompleted {
				return fmt.Errorf("training %s: %s", job.Status, job.ErrorMessage)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&modelID, "model-id", "", "model identifier (required)")
	f.StringVar(&modelType, "type", "", "ANOMALY_DETECTION, PREDICTIVE_MAINTENANCE, ENERGY_FORECAST or EQUIPMENT_RUL")
	f.Int64Var(&orgID, "org", 1, "organization id")
	f.IntVar(&samples, "samples", 1000, "number of training samples")
	f.StringVar(&source, "source", "synthetic", "synthetic or telemetry")
	f.String("database-url", "", "Postgres DSN for telemetry training data")
	_ = cmd.MarkFlagRequired("model-id")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
