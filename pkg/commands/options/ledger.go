// Package options defines shared flag helpers for CLI commands.
package options

import (
	"github.com/spf13/cobra"
)

// LedgerOptions selects the workflow and the storage engine every ledger
// command works against. Empty values fall back to the configuration file.
type LedgerOptions struct {
	Workflow string
	Server   string
	Verbose  bool
}

// AddLedgerArgs registers the ledger flags as persistent flags of cmd.
func AddLedgerArgs(cmd *cobra.Command, o *LedgerOptions) {
	cmd.PersistentFlags().StringVarP(&o.Workflow, "workflow", "w", "",
		"Workflow to record, for example sand or process.")
	cmd.PersistentFlags().StringVar(&o.Server, "server", "",
		"Base URL of a remote storage engine. Defaults to the local store.")
	cmd.PersistentFlags().BoolVarP(&o.Verbose, "verbose", "v", false,
		"Enable debug logging.")
}
