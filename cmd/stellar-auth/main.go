// Command stellar-auth runs the authentication engine and talks to it.
//
//	stellar-auth serve   run the tick loop, command service, /metrics and /healthz
//	stellar-auth plan    predict the next shadow ingress and print a mission window
//	stellar-auth ctl     send a ground command to a running server
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "stellar-auth",
		Short:         "Celestial-geometry authentication engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCommand(), newPlanCommand(), newCtlCommand())
	return root
}
