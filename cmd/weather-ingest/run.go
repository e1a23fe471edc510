package main

import (
	"github.com/spf13/cobra"

	"github.com/i474232898/weather-ingest/internal/scheduler"
)

var runCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run one job immediately and exit",
	Long: `Run one job immediately and exit. Jobs: stations, stations-hr, missed,
cams, soundings, health, export, export-hr, cleanup.`,
	Args: cobra.ExactArgs(1),
	RunE: runJob,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	job, err := a.job(args[0])
	if err != nil {
		return err
	}
	return scheduler.RunJob(ctx, job)
}
