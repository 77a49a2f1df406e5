package commands

import (
	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/commands/options"
	"tableflip.dev/sandlab/pkg/runner/tables"
	"tableflip.dev/sandlab/pkg/store"
	"tableflip.dev/sandlab/pkg/workflow"
)

func addTables(topLevel *cobra.Command) {
	to := &options.TableOptions{}

	cmd := &cobra.Command{
		Use:     "tables",
		Aliases: []string{"key"},
		Short:   "Print the tables of a workflow and the paths of their fields.",
		Example: `
sandlab tables
sandlab tables -w process
sandlab tables -t mixRun
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			name := lo.Workflow
			if name == "" {
				// The legend does not need storage; only read the configured default.
				if s, err := store.LoadConfig(); err == nil {
					name = s.Workflow
				}
			}
			wf, err := workflow.Lookup(name)
			if err != nil {
				return err
			}
			selected, err := to.Resolve(wf)
			if err != nil {
				return err
			}
			if len(to.Tables) == 0 {
				selected = nil
			}
			n := tables.Tables{Workflow: wf, Tables: selected, Out: cmd.OutOrStdout()}
			return n.Do(cmd.Context())
		},
	}
	options.AddTableArgs(cmd, to)
	registerCompletions(cmd)

	topLevel.AddCommand(cmd)
}
