// Package show prints the daily record of a workflow.
package show

import (
	"context"
	"errors"
	"io"

	"tableflip.dev/sandlab/pkg/coordinator"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/printers"
)

// Show fetches one record and prints the selected tables.
type Show struct {
	Remote coordinator.Remote
	Key    ledger.Key
	Tables []*ledger.Table
	Format string
	Out    io.Writer
}

func (n *Show) Do(ctx context.Context) error {
	if n.Remote == nil {
		return errors.New("can not show, no storage engine")
	}
	rec, err := n.Remote.Fetch(ctx, n.Key)
	if err != nil {
		return err
	}

	if n.Format != "" && n.Format != printers.FormatText {
		if rec == nil {
			rec = ledger.NewRecord(n.Key)
		}
		return printers.Encode(n.Out, n.Format, rec)
	}

	pp := printers.PrettyPrint{Out: n.Out}
	pp.Title(n.Key.String())
	if rec.IsEmpty() {
		pp.NewLine()
	}
	for _, t := range n.Tables {
		doc := rec.Table(t.Num)
		pp.Table(ledger.Hydrate(t, doc, ledger.DeriveLockMap(t, doc)))
	}
	return nil
}
