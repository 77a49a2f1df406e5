package options

import (
	"fmt"

	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/printers"
)

// FormatOptions selects structured output.
type FormatOptions struct {
	Output string
}

func AddFormatArgs(cmd *cobra.Command, o *FormatOptions) {
	cmd.Flags().StringVarP(&o.Output, "output", "o", printers.FormatText,
		"Output format. One of 'text', 'json' or 'yaml'.")
}

// Format folds the cli-base --json flag into the selected format.
func (o *FormatOptions) Format(json bool) (string, error) {
	if json {
		return printers.FormatJSON, nil
	}
	switch o.Output {
	case "", printers.FormatText:
		return printers.FormatText, nil
	case printers.FormatJSON, printers.FormatYAML:
		return o.Output, nil
	}
	return "", fmt.Errorf("unsupported output format %q", o.Output)
}
