package options

import (
	"fmt"

	"github.com/spf13/cobra"

	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/workflow"
)

// TableOptions selects tables of a workflow by name or number.
type TableOptions struct {
	Tables []string
}

func AddTableArgs(cmd *cobra.Command, o *TableOptions) {
	cmd.Flags().StringSliceVarP(&o.Tables, "table", "t", nil,
		"Table name or number. Repeat or separate with commas; defaults to every table.")
}

// Resolve returns the selected tables, or all tables of wf when none were
// named.
func (o *TableOptions) Resolve(wf *workflow.Workflow) ([]*ledger.Table, error) {
	if len(o.Tables) == 0 {
		return wf.Tables, nil
	}
	out := make([]*ledger.Table, 0, len(o.Tables))
	for _, name := range o.Tables {
		t, ok := wf.TableByName(name)
		if !ok {
			return nil, fmt.Errorf("workflow %q has no table %q", wf.Name, name)
		}
		out = append(out, t)
	}
	return out, nil
}

// One returns the single selected table.
func (o *TableOptions) One(wf *workflow.Workflow) (*ledger.Table, error) {
	if len(o.Tables) != 1 {
		return nil, fmt.Errorf("exactly one --table is required")
	}
	tables, err := o.Resolve(wf)
	if err != nil {
		return nil, err
	}
	return tables[0], nil
}
