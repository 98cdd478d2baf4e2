package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/app"
	"github.com/tacticalcatboy/legit-rag/engine/ingest"
)

var ingestFlags struct {
	offset uint64
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Add a JSON or YAML document corpus to the store",
	Long: "The file holds either {\"documents\": [...]} or a bare list of\n" +
		"{text, metadata} objects. Document ids are assigned from --offset upward.",
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().Uint64Var(&ingestFlags.offset, "offset", 0, "id of the first document (overrides the file)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	batch, err := ingest.LoadFile(args[0])
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("offset") {
		batch.Offset = ingestFlags.offset
	}
	return withApp(cmd, func(ctx context.Context, a *app.App, _ *zap.Logger) error {
		n, err := a.Ingestor.Ingest(ctx, batch)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d documents from %s (%d stored)\n",
			good("ingested"), len(batch.Documents), args[0], n)
		return nil
	})
}
