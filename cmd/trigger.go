package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/compliance-cli/internal/deadline"
)

var triggerReq deadline.TriggerRequest

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Record a trigger event and create its compliance deadline",
	Long: `Creates a deadline from a project trigger event (RFI, change order,
defect discovery) against a confirmed clause. Re-sending the same clause and
event id returns the existing open deadline instead of creating a duplicate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.Deadlines.NotifyTrigger(ctx, triggerReq)
		if err != nil {
			return err
		}

		fmt.Printf("deadline %s\n", d.ID)
		fmt.Printf("  due:      %s\n", d.DeadlineAt.Format(time.RFC3339))
		fmt.Printf("  severity: %s\n", d.Severity)
		fmt.Printf("  status:   %s\n", d.Status)
		return nil
	},
}

func init() {
	f := triggerCmd.Flags()
	f.StringVar(&triggerReq.ProjectID, "project", "", "project id")
	f.StringVar(&triggerReq.ClauseID, "clause", "", "clause id")
	f.StringVar(&triggerReq.TriggerEventType, "event-type", "", "trigger event type (rfi, change_order, defect, ...)")
	f.StringVar(&triggerReq.TriggerEventID, "event-id", "", "trigger event id for idempotence")
	f.StringVar(&triggerReq.TriggerDescription, "description", "", "human description of the trigger")
	f.StringVar(&triggerReq.TriggeredBy, "actor", "", "who reported the event")
	f.Float64Var(&triggerReq.EstimatedValueUSD, "value", 0, "estimated claim value in USD")
	_ = triggerCmd.MarkFlagRequired("project")
	_ = triggerCmd.MarkFlagRequired("clause")
	_ = triggerCmd.MarkFlagRequired("event-type")
	rootCmd.AddCommand(triggerCmd)
}
