package commands

import (
	"time"

	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/commands/options"
	"tableflip.dev/sandlab/pkg/runner/ui"
)

func addUI(topLevel *cobra.Command) {
	on := &options.OnOptions{}
	to := &options.TableOptions{}

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Open the interactive record editor.",
		Example: `
sandlab ui
sandlab ui --on yesterday -t clayTests -t mixRun
sandlab ui -w process -u DISA-1
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			e, err := openEnv(lo, false)
			if err != nil {
				return err
			}
			defer e.Close()

			day, err := on.GetOn(time.Now())
			if err != nil {
				return err
			}
			tables, err := to.Resolve(e.workflow)
			if err != nil {
				return err
			}
			i := ui.UI{
				Remote:   e.remote,
				Workflow: e.workflow,
				Tables:   tables,
				Unit:     on.Unit,
				Day:      day,
				Local:    e.local,
				Logger:   e.logger,
			}
			return i.Do(cmd.Context())
		},
	}
	options.AddOnArgs(cmd, on)
	options.AddTableArgs(cmd, to)
	registerCompletions(cmd)

	topLevel.AddCommand(cmd)
}
