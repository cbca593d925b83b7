// Command pcron is the cron-compatible scheduling daemon: it parses a
// crontab.ini catalog, runs jobs on their configured schedules under a
// configurable conflict policy, and records outcomes to a state store and
// optional history sink.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signalContext()
	defer cancel()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pcron",
		Short:         "pcron runs scheduled jobs from a crontab.ini catalog",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newReloadCommand())
	root.AddCommand(newDumpCommand())
	root.AddCommand(newJobCommand())
	return root
}

// signalContext returns a context canceled on SIGINT/SIGTERM, for commands
// that run until interrupted. The engine itself also watches these signals
// for its own shutdown sequencing; canceling ctx here is what lets the
// cobra command's RunE return once the engine's Run loop has drained.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
