package commands

import (
	"github.com/spf13/cobra"

	base "github.com/n3wscott/cli-base/pkg/commands/options"

	"tableflip.dev/sandlab/pkg/commands/options"
)

var (
	oo = &base.OutputOptions{}
	lo = &options.LedgerOptions{}
)

func New() *cobra.Command {

	cmd := &cobra.Command{
		Use:   "sandlab",
		Short: base.Wrap80("Daily foundry sand-testing records on the command line."),
		Long: base.Wrap80("sandlab keeps the daily records of a foundry sand lab. Every shift " +
			"fills in its part of the same record: committed values are write-once and " +
			"lists only grow, so concurrent operators never overwrite each other."),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	options.AddLedgerArgs(cmd, lo)

	AddCommands(cmd)
	return cmd
}

func AddCommands(topLevel *cobra.Command) {
	addShow(topLevel)
	addEnter(topLevel)
	addAppend(topLevel)
	addUI(topLevel)
	addTables(topLevel)
	addEnsure(topLevel)
	addWatch(topLevel)
	addReport(topLevel)
	addServe(topLevel)
	addMCP(topLevel)
	addInfo(topLevel)
	addVersion(topLevel)
	addCompletions(topLevel)
}
