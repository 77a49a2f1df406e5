package commands

import (
	"time"

	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/commands/options"
	"tableflip.dev/sandlab/pkg/runner/ensure"
)

func addEnsure(topLevel *cobra.Command) {
	on := &options.OnOptions{}
	every := &options.WindowOptions{}

	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create today's empty record unless it exists.",
		Long: `Create today's empty record unless it exists, so every operator starts from
the same document. With --every the check repeats until interrupted, which is
how the daily record is created at midnight.`,
		Example: `
sandlab ensure
sandlab ensure --every 1h
sandlab ensure -w process -u DISA-1
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			interval, _, err := every.Duration()
			if err != nil {
				return err
			}
			e, err := openEnv(lo, true)
			if err != nil {
				return err
			}
			defer e.Close()

			n := ensure.Ensure{
				Service: e.local,
				Unit:    on.Unit,
				Every:   interval,
				Out:     cmd.OutOrStdout(),
				Logger:  e.logger,
			}
			if on.OnString != "" {
				day, err := on.GetOn(time.Now())
				if err != nil {
					return err
				}
				n.Now = func() time.Time { return day }
			}
			return oo.HandleError(n.Do(cmd.Context()))
		},
	}
	options.AddOnArgs(cmd, on)
	options.AddEveryArgs(cmd, every)

	topLevel.AddCommand(cmd)
}
