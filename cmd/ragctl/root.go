// Command ragctl runs the legit-rag pipeline and inspects its ledger from
// the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/app"
	"github.com/tacticalcatboy/legit-rag/pkg/config"
	"github.com/tacticalcatboy/legit-rag/pkg/logging"
)

var rootFlags struct {
	config  string
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Query the legit-rag pipeline and inspect its execution ledger",
	Long: "ragctl ingests documents, answers questions through the five-stage pipeline\n" +
		"and reads back the ledger: traces, statistics, fine-tuning exports and evaluations.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.config, "config", os.Getenv("LEGITRAG_CONFIG"), "path to a YAML config file")
	f.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp builds the configured pipeline, runs f and tears it down again.
// Logs go to stderr so command output can be piped.
func withApp(cmd *cobra.Command, f func(ctx context.Context, a *app.App, log *zap.Logger) error) error {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return err
	}
	level := "warn"
	if rootFlags.verbose {
		level = "debug"
	}
	log, err := logging.New(logging.Options{Level: level, Format: "console", File: cfg.Logging.File, Stderr: true})
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Shutdown(a, log)
	return f(ctx, a, log)
}
