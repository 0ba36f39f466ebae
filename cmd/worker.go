package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/compliance-cli/internal/worker"
)

var workerSchedule bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker for scheduled sweeps and snapshots",
	Long: `Serves the compliance task queue: the hourly severity sweep and the
daily score snapshot run as Temporal cron workflows. With --schedule the cron
workflows are (re)started before the worker begins polling.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runner, err := worker.NewRunner(cfg.Temporal, &worker.Activities{
			Deadlines: env.Deadlines,
			Scoring:   env.Scoring,
			Alerter:   env.Alerter,
		})
		if err != nil {
			return err
		}
		defer runner.Close()

		if workerSchedule {
			if err := runner.Schedule(ctx); err != nil {
				return err
			}
		}
		return runner.Run(ctx)
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerSchedule, "schedule", false, "start the cron workflows before polling")
	rootCmd.AddCommand(workerCmd)
}
