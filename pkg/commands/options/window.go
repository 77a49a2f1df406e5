package options

import (
	"time"

	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/timeutil"
)

// WindowOptions holds a human-friendly duration such as "1w2d".
type WindowOptions struct {
	Window string
}

func AddLastArgs(cmd *cobra.Command, o *WindowOptions) {
	cmd.Flags().StringVar(&o.Window, "last", timeutil.DefaultWindow,
		"Time window to include (for example 3d, 1w).")
}

func AddEveryArgs(cmd *cobra.Command, o *WindowOptions) {
	cmd.Flags().StringVar(&o.Window, "every", "",
		"Repeat on this interval (for example 1h, 30m) until interrupted.")
}

// Duration parses the window. An empty window yields zero.
func (o *WindowOptions) Duration() (time.Duration, string, error) {
	if o.Window == "" {
		return 0, "", nil
	}
	return timeutil.ParseInterval(o.Window)
}
