package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepWatch bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-evaluate severity on all open deadlines",
	Long: `Runs one severity re-evaluation pass over every non-terminal deadline:
reclassifies severity tiers, expires deadlines whose time has lapsed, and
sends escalation alerts. Idempotent: re-running with no elapsed time is a
no-op. With --watch it loops on the configured check interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if sweepWatch {
			checker := newChecker(env)
			checker.Run(ctx)
			return nil
		}

		result, err := env.Deadlines.ReEvaluateAll(ctx)
		if err != nil {
			return err
		}

		alerted := env.Alerter.SendAll(ctx, result.Escalations)
		for _, id := range alerted {
			if err := env.Deadlines.MarkAlerted(ctx, id); err != nil {
				zap.L().Error("failed to stamp alert time", zap.String("deadline_id", id), zap.Error(err))
			}
		}

		fmt.Printf("evaluated %d deadlines: %d severity changes, %d expired, %d alerted, %d failures\n",
			result.Evaluated, result.SeverityChanges, result.Expired, len(alerted), len(result.Failures))
		for _, f := range result.Failures {
			fmt.Printf("  failed %s: %s\n", f.DeadlineID, f.Error)
		}
		return nil
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepWatch, "watch", false, "run continuously on the configured interval")
	rootCmd.AddCommand(sweepCmd)
}
