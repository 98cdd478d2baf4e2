package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/app"
	"github.com/tacticalcatboy/legit-rag/engine/ledger"
)

var logsFlags struct {
	since time.Duration
	id    string
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List recent workflows, or show one workflow's steps",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

func init() {
	f := logsCmd.Flags()
	f.DurationVar(&logsFlags.since, "since", 24*time.Hour, "how far back to list workflows")
	f.StringVar(&logsFlags.id, "id", "", "show the steps of this workflow")
}

func runLogs(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App, _ *zap.Logger) error {
		out := cmd.OutOrStdout()
		if logsFlags.id != "" {
			trace, err := ledger.LoadTrace(ctx, a.Ledger, logsFlags.id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Query:   %s\nOutcome: %s\n", trace.Workflow.Query, outcome(trace.Workflow.Outcome))
			if trace.Workflow.Error != "" {
				fmt.Fprintf(out, "Error:   %s\n", bad(trace.Workflow.Error))
			}
			fmt.Fprintln(out, renderSteps(trace.Steps))
			return nil
		}

		ws, err := a.Ledger.Workflows(ctx, ledger.Since(logsFlags.since, time.Now()))
		if err != nil {
			return err
		}
		if len(ws) == 0 {
			fmt.Fprintf(out, "No workflows in the last %s\n", logsFlags.since)
			return nil
		}
		fmt.Fprintln(out, renderWorkflows(ws))
		return nil
	})
}
