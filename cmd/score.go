package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/compliance-cli/internal/model"
)

var (
	scoreForce    bool
	scoreSnapshot string
)

var scoreCmd = &cobra.Command{
	Use:   "score <project-id>",
	Short: "Show a project's compliance score",
	Long: `Computes (or serves from cache) the project compliance score: the
on-time percentage, current and best streaks, verdict, and the protected and
at-risk dollar exposure. With --snapshot the score is also persisted as a
trend snapshot at the given granularity.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		projectID := args[0]
		score, err := env.Scoring.Score(ctx, projectID, scoreForce)
		if err != nil {
			return err
		}

		p := message.NewPrinter(language.AmericanEnglish)
		fmt.Printf("project:   %s\n", score.ProjectID)
		fmt.Printf("score:     %d/100 (%s)\n", score.Score, score.Verdict)
		fmt.Printf("notices:   %d total, %d on time, %d missed\n",
			score.TotalNotices, score.OnTimeCount, score.MissedCount)
		fmt.Printf("streak:    %d current, %d best\n", score.CurrentStreak, score.BestStreak)

		protected := p.Sprintf("$%.2f", score.ProtectedValueUSD)
		if score.ProtectedValueEstimated {
			protected += " (estimated)"
		}
		fmt.Printf("protected: %s\n", protected)
		fmt.Printf("at risk:   %s\n", p.Sprintf("$%.2f", score.AtRiskValueUSD))
		fmt.Printf("computed:  %s\n", score.ComputedAt.Format("2006-01-02 15:04:05 MST"))

		if scoreSnapshot != "" {
			snap, err := env.Scoring.Snapshot(ctx, projectID, model.Granularity(scoreSnapshot))
			if err != nil {
				return err
			}
			fmt.Printf("snapshot:  %s %s saved\n", snap.Granularity, snap.Date.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	scoreCmd.Flags().BoolVar(&scoreForce, "force", false, "bypass the score cache")
	scoreCmd.Flags().StringVar(&scoreSnapshot, "snapshot", "", "also persist a snapshot: daily, weekly, or monthly")
	rootCmd.AddCommand(scoreCmd)
}
