// Package tables prints the field legend of a workflow: every table, its
// fields and the paths used to address them.
package tables

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/workflow"
)

// Tables prints the schema of the selected tables of Workflow.
type Tables struct {
	Workflow *workflow.Workflow
	// Tables limits the legend; empty prints every table.
	Tables []*ledger.Table
	Out    io.Writer
}

func (n *Tables) Do(ctx context.Context) error {
	out := n.Out
	if out == nil {
		out = color.Output
	}
	tables := n.Tables
	if len(tables) == 0 {
		tables = n.Workflow.Tables
	}

	bold := color.New(color.Bold)
	_, _ = fmt.Fprintln(out, "")
	_, _ = color.New(color.Bold, color.Underline).Fprintf(out, "%s (%s)\n", n.Workflow.Title, n.Workflow.Name)
	if n.Workflow.UnitRequired {
		_, _ = color.New(color.Faint).Fprintln(out, "records are kept per date and unit")
	}
	for _, t := range tables {
		_, _ = fmt.Fprintln(out, "")
		_, _ = bold.Fprintf(out, "%d. %s [%s]\n", t.Num, t.Title, t.Name)
		n.Table(ctx, out, t)
	}
	_, _ = fmt.Fprintln(out, "")
	return nil
}

// Table renders the legend of one table.
func (n *Tables) Table(_ context.Context, out io.Writer, t *ledger.Table) {
	bold := color.New(color.Bold)

	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.AddRow(bold.Sprint("   Path"), bold.Sprint("Kind"), bold.Sprint("Stored as"))
	for _, sec := range t.Sections {
		for _, sc := range sec.Scalars {
			tbl.AddRow(ledger.ScalarPath(sec.Section, sc.Name).String(), "once", wire(sec.Section, sc.Wire, sc.Name))
		}
		for _, seq := range sec.Sequences {
			switch {
			case seq.Layout == ledger.Objects:
				for _, col := range seq.Columns {
					p := ledger.CellPath(sec.Section, seq.Name, 0, col.Name)
					tbl.AddRow(p.String(), rowKind(seq), wire(sec.Section, seq.Wire, seq.Name)+"[]."+strings.Join(wirePath(col.Wire, col.Name), "."))
				}
			default:
				for _, col := range seq.Columns {
					p := ledger.SeqPath(sec.Section, col.Name, 0)
					tbl.AddRow(p.String(), rowKind(seq), wire(sec.Section, col.Wire, col.Name)+"[]")
				}
			}
		}
	}
	tbl.RightAlign(0)
	_, _ = fmt.Fprintln(out, tbl)
}

func rowKind(seq ledger.Sequence) string {
	switch {
	case seq.Tag != "":
		return fmt.Sprintf("rows %s (%s)", seq.Name, seq.Tag)
	case len(seq.Columns) > 1:
		return "rows " + seq.Name
	default:
		return "list"
	}
}

func wirePath(w []string, name string) []string {
	if len(w) == 0 {
		return []string{name}
	}
	return w
}

func wire(section ledger.Section, w []string, name string) string {
	return string(section) + "." + strings.Join(wirePath(w, name), ".")
}
