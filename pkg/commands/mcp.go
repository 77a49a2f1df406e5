package commands

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/runner/mcp"
)

func addMCP(topLevel *cobra.Command) {
	var (
		transport string
		host      string
		port      int
		hopts     mcp.HTTPOptions
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the Model Context Protocol server.",
		Long: `Launch an MCP server that lets agents read the daily records of a workflow
and fill them in, under the same write-once rules as every other client.

Tools: list_tables, get_table, set_values, append_row, list_days.
Resources: sandlab://tables, sandlab://records/{date[@unit]} and
sandlab://records/{date[@unit]}/tables/{table}.`,
		Example: `
sandlab mcp
sandlab mcp --transport stdio
sandlab mcp -w process --http-port 8090
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			t, err := mcp.ParseTransport(transport)
			if err != nil {
				return err
			}
			if port < 0 || port > 65535 {
				return fmt.Errorf("invalid http-port %d", port)
			}

			e, err := openEnv(lo, false)
			if err != nil {
				return err
			}
			defer e.Close()

			// list_days reads stored keys, which only the local store can list.
			var keys mcp.KeyLister
			if e.local != nil {
				keys = e.local
			}

			hopts.Addr = net.JoinHostPort(host, strconv.Itoa(port))
			hopts.OnListening = func(endpoint string) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "MCP HTTP server listening on", endpoint)
			}
			r := mcp.Runner{
				Service:   mcp.NewService(e.remote, e.workflow, keys, e.logger),
				Name:      "sandlab",
				Version:   version,
				Transport: t,
				HTTP:      hopts,
			}
			return r.Do(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&transport, "transport", string(mcp.TransportHTTP), "Transport to use: http or stdio.")
	cmd.Flags().StringVar(&host, "http-host", "127.0.0.1", "Host or interface for the HTTP transport.")
	cmd.Flags().IntVar(&port, "http-port", 8080, "Port for the HTTP transport, 0 picks a free one.")
	cmd.Flags().StringVar(&hopts.Path, "http-path", "/mcp", "HTTP endpoint path.")
	cmd.Flags().StringVar(&hopts.CertFile, "http-tls-cert", "", "TLS certificate file for HTTPS.")
	cmd.Flags().StringVar(&hopts.KeyFile, "http-tls-key", "", "TLS private key file for HTTPS.")

	topLevel.AddCommand(cmd)
}
