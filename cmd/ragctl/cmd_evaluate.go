package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/app"
	"github.com/tacticalcatboy/legit-rag/engine/evaluate"
)

var evaluateFlags struct {
	llm bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <workflow-id>",
	Short: "Score each step of a recorded workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runEvaluate,
}

func init() {
	evaluateCmd.Flags().BoolVar(&evaluateFlags.llm, "llm", false, "judge steps with the evaluator model instead of the built-in checks")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App, log *zap.Logger) error {
		ev := a.Evaluator
		if evaluateFlags.llm {
			if a.Judge == nil {
				return errors.New("evaluate: --llm needs pipeline.mode=llm")
			}
			ev = a.Judge
		}
		report, err := evaluate.EvaluateWorkflow(ctx, a.Ledger, ev, args[0], log)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Query:   %s\nOutcome: %s\n", report.Query, outcome(report.Outcome))
		fmt.Fprintln(out, renderReport(report))
		return nil
	})
}
