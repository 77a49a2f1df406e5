package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/server"
)

func addServe(topLevel *cobra.Command) {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storage engine over HTTP.",
		Long: `Serve every workflow of the local store over HTTP so several terminals, the
UI and other clients share the same records. The merge rules of the storage
engine apply to every submission: committed values are write-once and lists
only grow.

Endpoints:
  GET  /api/v1/{workflow}/records?date=2024-05-01[&key=UNIT]
  POST /api/v1/{workflow}/records
  GET  /healthz
  GET  /metrics`,
		Example: `
sandlab serve
sandlab serve --listen 0.0.0.0:8087
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			e, err := openEnv(lo, true)
			if err != nil {
				return err
			}
			defer e.Close()

			addr := listen
			if addr == "" {
				addr = e.settings.Listen
			}
			e.logger.Info("serving storage engine",
				zap.String("addr", addr),
				zap.String("backend", e.settings.Backend()),
				zap.String("path", e.settings.BasePath()))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "storage engine listening on http://%s\n", addr)
			return server.New(e.persistence, e.logger).Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Address to listen on. Defaults to the listen setting.")

	topLevel.AddCommand(cmd)
}
