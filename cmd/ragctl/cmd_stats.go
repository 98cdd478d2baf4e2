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

var statsFlags struct {
	since time.Duration
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize workflow outcomes and step timings",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().DurationVar(&statsFlags.since, "since", 24*time.Hour, "window to summarize")
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App, _ *zap.Logger) error {
		traces, err := ledger.LoadTraces(ctx, a.Ledger, ledger.Since(statsFlags.since, time.Now()))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderSummary(ledger.Summarize(traces)))
		return nil
	})
}
