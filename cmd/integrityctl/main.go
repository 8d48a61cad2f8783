// Command integrityctl tunes and inspects the attention monitor offline:
// it classifies saved frames with the live thresholds, evaluates scores and
// prints the stored audit trail of a session.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/interview-coach/internal/config"
	"github.com/stemsi/interview-coach/internal/logger"
)

var (
	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "integrityctl",
	Short:         "Offline tools for the interview attention monitor",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		log = logger.New(os.Stderr, cfg.LogLevel, "pretty")
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
