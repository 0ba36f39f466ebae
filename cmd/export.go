package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/compliance-cli/internal/model"
	"github.com/sells-group/compliance-cli/internal/store"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <project-id>",
	Short: "Export a project's deadlines and notices to XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		projectID := args[0]
		deadlines, err := env.Deadlines.List(ctx, store.DeadlineFilter{ProjectID: projectID, Limit: 10000})
		if err != nil {
			return err
		}
		notices, err := env.Notices.List(ctx, store.NoticeFilter{ProjectID: projectID, Limit: 10000})
		if err != nil {
			return err
		}

		f := xlsx.NewFile()
		if err := writeDeadlineSheet(f, deadlines); err != nil {
			return err
		}
		if err := writeNoticeSheet(f, notices); err != nil {
			return err
		}

		out := exportOutput
		if out == "" {
			out = fmt.Sprintf("compliance-%s-%s.xlsx", projectID, time.Now().UTC().Format("20060102"))
		}
		if err := f.Save(out); err != nil {
			return eris.Wrapf(err, "export: save %s", out)
		}
		fmt.Printf("wrote %d deadlines and %d notices to %s\n", len(deadlines), len(notices), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output file path (default compliance-<project>-<date>.xlsx)")
	rootCmd.AddCommand(exportCmd)
}

func writeDeadlineSheet(f *xlsx.File, deadlines []model.ComplianceDeadline) error {
	sheet, err := f.AddSheet("Deadlines")
	if err != nil {
		return eris.Wrap(err, "export: add deadlines sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"ID", "Clause", "Trigger", "Triggered At", "Deadline At", "Severity", "Status", "Value USD", "Waiver Reason"} {
		header.AddCell().Value = h
	}

	for _, d := range deadlines {
		row := sheet.AddRow()
		row.AddCell().Value = d.ID
		row.AddCell().Value = d.ClauseID
		row.AddCell().Value = d.TriggerDescription
		row.AddCell().Value = d.TriggeredAt.Format(time.RFC3339)
		row.AddCell().Value = d.DeadlineAt.Format(time.RFC3339)
		row.AddCell().Value = string(d.Severity)
		row.AddCell().Value = string(d.Status)
		row.AddCell().Value = strconv.FormatFloat(d.EstimatedValueUSD, 'f', 2, 64)
		row.AddCell().Value = d.WaiverReason
	}
	return nil
}

func writeNoticeSheet(f *xlsx.File, notices []model.ComplianceNotice) error {
	sheet, err := f.AddSheet("Notices")
	if err != nil {
		return eris.Wrap(err, "export: add notices sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"ID", "Deadline", "Type", "Status", "Recipient", "Due At", "Sent At", "On Time", "Methods"} {
		header.AddCell().Value = h
	}

	for _, n := range notices {
		row := sheet.AddRow()
		row.AddCell().Value = n.ID
		if n.DeadlineID != nil {
			row.AddCell().Value = *n.DeadlineID
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().Value = string(n.Type)
		row.AddCell().Value = string(n.Status)
		row.AddCell().Value = n.RecipientName
		row.AddCell().Value = n.DueAt.Format(time.RFC3339)
		if n.SentAt != nil {
			row.AddCell().Value = n.SentAt.Format(time.RFC3339)
		} else {
			row.AddCell().Value = ""
		}
		switch {
		case n.OnTime == nil:
			row.AddCell().Value = ""
		case *n.OnTime:
			row.AddCell().Value = "yes"
		default:
			row.AddCell().Value = "no"
		}
		methods := ""
		for i, ch := range n.Channels {
			if i > 0 {
				methods += ", "
			}
			methods += fmt.Sprintf("%s (%s)", ch.Method, ch.State)
		}
		row.AddCell().Value = methods
	}
	return nil
}
