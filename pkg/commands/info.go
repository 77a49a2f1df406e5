package commands

import (
	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/runner/info"
)

func addInfo(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the configuration and the stored records.",
		Example: `
sandlab info
SANDLAB_BACKEND=badger sandlab info
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			e, err := openEnv(lo, false)
			if err != nil {
				return err
			}
			defer e.Close()

			n := info.Info{Settings: e.settings, Service: e.local, Out: cmd.OutOrStdout()}
			return n.Do(cmd.Context())
		},
	}

	topLevel.AddCommand(cmd)
}
