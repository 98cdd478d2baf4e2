package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/app"
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Run a question through the pipeline",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	return withApp(cmd, func(ctx context.Context, a *app.App, _ *zap.Logger) error {
		res, err := a.Orchestrator.Process(ctx, query)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Workflow: %s\n", res.Workflow.WorkflowID)
		fmt.Fprintf(out, "Outcome:  %s\n", outcome(res.Workflow.Outcome))
		if err != nil {
			return err
		}
		if res.Intent != "" {
			fmt.Fprintf(out, "Intent:   %s\n", res.Intent)
		}
		if res.Answer == nil {
			return nil
		}
		fmt.Fprintf(out, "Score:    %.2f\n\n%s\n\n", res.Score, res.Answer.Text)
		fmt.Fprintf(out, "Confidence: %s\n", score(res.Answer.Confidence))
		if len(res.Answer.Citations) > 0 {
			fmt.Fprintln(out, renderCitations(res.Answer.Citations))
		}
		return nil
	})
}
