package commands

import (
	"time"

	"github.com/spf13/cobra"

	base "github.com/n3wscott/cli-base/pkg/commands/options"

	"tableflip.dev/sandlab/pkg/commands/options"
	"tableflip.dev/sandlab/pkg/runner/show"
)

func addShow(topLevel *cobra.Command) {
	on := &options.OnOptions{}
	to := &options.TableOptions{}
	fo := &options.FormatOptions{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the record of a day.",
		Example: `
sandlab show
sandlab show --on yesterday --table clayTests
sandlab show -w process --unit DISA-1 -o yaml
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			e, err := openEnv(lo, false)
			if err != nil {
				return err
			}
			defer e.Close()

			key, err := on.Key(e.workflow, time.Now())
			if err != nil {
				return err
			}
			tables, err := to.Resolve(e.workflow)
			if err != nil {
				return err
			}
			format, err := fo.Format(oo.JSON)
			if err != nil {
				return err
			}
			s := show.Show{
				Remote: e.remote,
				Key:    key,
				Tables: tables,
				Format: format,
				Out:    cmd.OutOrStdout(),
			}
			return oo.HandleError(s.Do(cmd.Context()))
		},
	}
	options.AddOnArgs(cmd, on)
	options.AddTableArgs(cmd, to)
	options.AddFormatArgs(cmd, fo)
	base.AddOutputArg(cmd, oo)
	registerCompletions(cmd)

	topLevel.AddCommand(cmd)
}
