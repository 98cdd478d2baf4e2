package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/app"
	"github.com/tacticalcatboy/legit-rag/engine/ledger"
)

var exportFlags struct {
	since time.Duration
	out   string
	steps []string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write fine-tuning examples from successful workflows as JSONL",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	f := exportCmd.Flags()
	f.DurationVar(&exportFlags.since, "since", 7*24*time.Hour, "window to export")
	f.StringVarP(&exportFlags.out, "out", "o", "-", "output file, - for stdout")
	f.StringSliceVar(&exportFlags.steps, "step", nil, "only export these steps (repeatable)")
}

func runExport(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App, log *zap.Logger) error {
		traces, err := ledger.LoadTraces(ctx, a.Ledger, ledger.Since(exportFlags.since, time.Now()))
		if err != nil {
			return err
		}

		var w io.Writer = cmd.OutOrStdout()
		if exportFlags.out != "-" {
			f, err := os.Create(exportFlags.out)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			defer f.Close()
			w = f
		}
		n, err := ledger.WriteJSONL(w, ledger.Examples(traces, exportFlags.steps...))
		if err != nil {
			return err
		}
		log.Info("export complete", zap.Int("examples", n), zap.Int("workflows", len(traces)))
		if exportFlags.out != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %d examples to %s\n", good("wrote"), n, exportFlags.out)
		}
		return nil
	})
}
