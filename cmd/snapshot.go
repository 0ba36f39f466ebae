package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/compliance-cli/internal/model"
)

var snapshotGranularity string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Persist score trend snapshots for all projects",
	Long: `Computes the current compliance score for every project with tracked
deadlines and upserts a trend snapshot at the chosen granularity. Re-running
within the same period overwrites that period's row, so the command is safe
to schedule aggressively.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		taken, errs := env.Scoring.SnapshotAll(cmd.Context(), model.Granularity(snapshotGranularity))
		for _, e := range errs {
			zap.L().Error("snapshot failed", zap.Error(e))
		}

		fmt.Printf("took %d %s snapshots, %d failures\n", taken, snapshotGranularity, len(errs))
		if len(errs) > 0 {
			return fmt.Errorf("%d projects failed to snapshot", len(errs))
		}
		return nil
	},
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotGranularity, "granularity", "daily", "snapshot granularity: daily, weekly, or monthly")
	rootCmd.AddCommand(snapshotCmd)
}
