// Package cmd wires the hash-archive CLI.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-archive",
		Short: "Archive cryptographic digests of documents on the web.",
		Long: `hash-archive crawls URLs on request and records the SHA-1, SHA-256,
SHA-384 and SHA-512 digests of whatever was found there, building a
permanent history of what each URL has contained and which URLs have
produced a given hash.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; defaults and HX_* env vars otherwise)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
