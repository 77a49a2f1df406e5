package commands

import (
	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/commands/options"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/runner/watch"
)

func addWatch(topLevel *cobra.Command) {
	to := &options.TableOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow records as operators commit values.",
		Example: `
sandlab watch
sandlab watch -t clayTests
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			e, err := openEnv(lo, true)
			if err != nil {
				return err
			}
			defer e.Close()

			var tables []*ledger.Table
			if len(to.Tables) > 0 {
				if tables, err = to.Resolve(e.workflow); err != nil {
					return err
				}
			}
			n := watch.Watch{Service: e.local, Tables: tables, Out: cmd.OutOrStdout()}
			return oo.HandleError(n.Do(cmd.Context()))
		},
	}
	options.AddTableArgs(cmd, to)
	registerCompletions(cmd)

	topLevel.AddCommand(cmd)
}
