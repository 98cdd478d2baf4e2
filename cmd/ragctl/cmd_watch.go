package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/tacticalcatboy/legit-rag/engine/ledger"
	"github.com/tacticalcatboy/legit-rag/pkg/config"
	"github.com/tacticalcatboy/legit-rag/pkg/natsutil"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow workflows as the API server records them",
	Long:  "watch subscribes to the ledger's NATS subject and prints one line per finished workflow.\nIt needs ledger.nats_url to be set.",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return err
	}
	if cfg.Ledger.NATSURL == "" {
		return errors.New("watch: ledger.nats_url is not set")
	}
	nc, err := nats.Connect(cfg.Ledger.NATSURL, nats.Name("ragctl-watch"))
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer nc.Close()

	out := cmd.OutOrStdout()
	subject := cfg.Ledger.NATSSubject + ".workflows"
	sub, err := natsutil.Subscribe(nc, subject, func(_ context.Context, w ledger.WorkflowRecord) {
		fmt.Fprintf(out, "%s  %-36s  %-12s  %8s  %s\n",
			w.StartedAt.Local().Format(time.TimeOnly), w.WorkflowID, outcome(w.Outcome),
			w.Duration().Round(time.Millisecond), w.Query)
	}, func(err error) {
		fmt.Fprintln(cmd.ErrOrStderr(), bad(err.Error()))
	})
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer sub.Unsubscribe()

	fmt.Fprintf(cmd.ErrOrStderr(), "watching %s, interrupt to stop\n", subject)
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
