// Package enter types values into one table of a daily record and submits
// them.
package enter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/coordinator"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/printers"
)

// Assignment is one "path=value" argument.
type Assignment struct {
	Path  ledger.FieldPath
	Value string
}

// ParseAssignments parses "shiftI.vcm=2.1" style arguments.
func ParseAssignments(args []string) ([]Assignment, error) {
	out := make([]Assignment, 0, len(args))
	for _, a := range args {
		path, value, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("expected path=value, got %q", a)
		}
		p, err := ledger.ParsePath(strings.TrimSpace(path))
		if err != nil {
			return nil, err
		}
		out = append(out, Assignment{Path: p, Value: value})
	}
	return out, nil
}

// Enter sets values on a freshly loaded table and submits the delta.
type Enter struct {
	Remote coordinator.Remote
	Table  *ledger.Table
	Key    ledger.Key
	Values []Assignment
	// DryRun prints the payload instead of submitting it.
	DryRun bool
	Out    io.Writer
	Logger *zap.Logger
}

func (n *Enter) Do(ctx context.Context) error {
	c, err := n.load(ctx)
	if err != nil {
		return err
	}
	var skipped []string
	for _, a := range n.Values {
		if err := c.Set(a.Path, a.Value); err != nil {
			if errors.Is(err, ledger.ErrLocked) {
				skipped = append(skipped, a.Path.String())
				continue
			}
			return err
		}
	}
	if len(skipped) > 0 {
		_, _ = fmt.Fprintf(n.Out, "already committed, skipped: %s\n", strings.Join(skipped, ", "))
	}
	return submit(ctx, c, n.DryRun, n.Out)
}

func (n *Enter) load(ctx context.Context) (*coordinator.Coordinator, error) {
	if n.Remote == nil {
		return nil, errors.New("can not enter, no storage engine")
	}
	c := coordinator.New(n.Table, n.Remote, n.Logger)
	if err := c.SelectDate(ctx, n.Key); err != nil {
		return nil, err
	}
	return c, nil
}

func submit(ctx context.Context, c *coordinator.Coordinator, dryRun bool, out io.Writer) error {
	if dryRun {
		p, err := c.Delta()
		if err != nil {
			return err
		}
		return printers.Encode(out, printers.FormatJSON, p.Body(c.Key()))
	}
	res, err := c.Submit(ctx)
	pp := printers.PrettyPrint{Out: out}
	pp.Result(c.Table().Num, res.Message, res.Rejected, err)
	return err
}

// Append adds rows to one sequence of a table and submits them.
type Append struct {
	Remote   coordinator.Remote
	Table    *ledger.Table
	Key      ledger.Key
	Section  ledger.Section
	Sequence string
	// Rows maps column names to values, one map per new row.
	Rows   []map[string]string
	DryRun bool
	Out    io.Writer
	Logger *zap.Logger
}

// ParseRows turns arguments into rows. "col=value" arguments form a single
// row; bare values each form a row of a single-column sequence.
func ParseRows(sequence string, args []string) ([]map[string]string, error) {
	if len(args) == 0 {
		return nil, errors.New("no values given")
	}
	if strings.Contains(args[0], "=") {
		row := make(map[string]string, len(args))
		for _, a := range args {
			col, v, ok := strings.Cut(a, "=")
			if !ok {
				return nil, fmt.Errorf("expected column=value, got %q", a)
			}
			row[strings.TrimSpace(col)] = v
		}
		return []map[string]string{row}, nil
	}
	rows := make([]map[string]string, 0, len(args))
	for _, a := range args {
		if strings.Contains(a, "=") {
			return nil, fmt.Errorf("can not mix column=value and bare values: %q", a)
		}
		rows = append(rows, map[string]string{sequence: a})
	}
	return rows, nil
}

func (n *Append) Do(ctx context.Context) error {
	e := Enter{Remote: n.Remote, Table: n.Table, Key: n.Key, Logger: n.Logger}
	c, err := e.load(ctx)
	if err != nil {
		return err
	}
	for _, row := range n.Rows {
		if err := c.AppendRow(n.Section, n.Sequence, row); err != nil {
			return fmt.Errorf("append %s.%s (columns %s): %w", n.Section, n.Sequence, columns(row), err)
		}
	}
	return submit(ctx, c, n.DryRun, n.Out)
}

func columns(row map[string]string) string {
	names := make([]string, 0, len(row))
	for k := range row {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
