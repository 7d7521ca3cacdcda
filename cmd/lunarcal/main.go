package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "lunarcal/internal/log"
)

const version = "0.1.0"

var (
	configFlag string
	rootCmd    = &cobra.Command{
		Use:           "lunarcal",
		Short:         "Personal calendar with Chinese lunar dates and reminders",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "/etc/lunarcal/config.yaml", "Path to config file")

	rootCmd.AddCommand(
		serveCmd(),
		gridCmd(),
		dayCmd(),
		addCmd(),
		editCmd(),
		deleteCmd(),
		lunarCmd(),
		exportCmd(),
		importCmd(),
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
