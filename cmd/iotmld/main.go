package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "iotmld",
		Short:         "Model cache and training service for IoT telemetry models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (.yaml, .json or .toml)")
	root.PersistentFlags().String("models-dir", "", "directory holding trained model artifacts")
	root.PersistentFlags().String("environment", "", "development or production")
	root.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	root.AddCommand(newServeCmd(), newTrainCmd())
	return root
}
