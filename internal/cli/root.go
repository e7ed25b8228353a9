// Package cli implements the yuna command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "yuna",
	Short: "Chat-bot economy backend with multi-endpoint image generation",
	Long: `yuna is the backend for a chat bot's paid-action economy: a per-user
currency and experience ledger, plus a dispatcher that load-balances
image generation across several Stable Diffusion endpoints and keeps
the ledger consistent with remote outcomes.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
