// Package info reports where sandlab keeps its records.
package info

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"tableflip.dev/sandlab/pkg/app"
	"tableflip.dev/sandlab/pkg/store"
)

// Info prints the active configuration and the stored days of a workflow.
type Info struct {
	Settings *store.Settings
	// Service is nil when records live on a remote storage engine.
	Service *app.Service
	Out     io.Writer
}

func (n *Info) Do(ctx context.Context) error {
	out := n.Out
	if out == nil {
		out = color.Output
	}

	if override := os.Getenv("SANDLAB_CONFIG_PATH"); override != "" {
		_, _ = fmt.Fprintln(out, "SANDLAB_CONFIG_PATH found on env, using", override)
	} else {
		_, _ = fmt.Fprintln(out, "SANDLAB_CONFIG_PATH env var not set")
	}

	if n.Settings == nil {
		var err error
		n.Settings, err = store.LoadConfig()
		if err != nil {
			return err
		}
	}
	_, _ = fmt.Fprintln(out, "Config.workflow:", n.Settings.Workflow)
	if n.Settings.Server != "" {
		_, _ = fmt.Fprintln(out, "Config.server:", n.Settings.Server)
		return nil
	}
	_, _ = fmt.Fprintln(out, "Config.backend:", n.Settings.Backend())
	_, _ = fmt.Fprintln(out, "Config.path:", n.Settings.BasePath())

	if n.Service == nil {
		return fmt.Errorf("failed to open the %s store", n.Settings.Backend())
	}
	keys, err := n.Service.Keys(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Records (%s):\n", n.Service.Workflow.Name)
	for _, k := range keys {
		_, _ = fmt.Fprintf(out, "  %s\n", k)
	}
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "  no records")
	}
	return nil
}
