package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boddenberg/leadchat-go/internal/config"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	root := &cobra.Command{
		Use:           "leadchat",
		Short:         "Sales chat and lead capture backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newScoreCmd(), newHashPasswordCmd(), newDigestCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
