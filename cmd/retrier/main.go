package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gaborage/go-retrier/internal/commands"
)

var version = "dev" // Will be set during build

func main() {
	rootCmd := &cobra.Command{
		Use:   "retrier",
		Short: "Send an HTTP request with retries and credential refresh",
		Long: `retrier sends one logical HTTP request and keeps re-sending it on
transient failures with backoff between attempts.

A stale credential (401/403) triggers a single refresh against the configured
login endpoint, and the request is replayed with the new token.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		commands.NewDoCommand(),
		commands.NewVersionCommand(version),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
