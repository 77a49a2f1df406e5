// Package watch follows record changes of a workflow as they are committed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"tableflip.dev/sandlab/pkg/app"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/printers"
	"tableflip.dev/sandlab/pkg/store"
)

// Watch prints a line for every committed change and, when Tables is set,
// reprints those tables of the changed record.
type Watch struct {
	Service *app.Service
	Tables  []*ledger.Table
	Out     io.Writer
	// Now stamps each line; defaults to time.Now.
	Now func() time.Time
}

func (n *Watch) Do(ctx context.Context) error {
	if n.Service == nil {
		return errors.New("can not watch, no persistence")
	}
	out := n.Out
	if out == nil {
		out = color.Output
	}
	now := n.Now
	if now == nil {
		now = time.Now
	}

	events, err := n.Service.Watch(ctx)
	if err != nil {
		return err
	}
	faint := color.New(color.Faint)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			_, _ = faint.Fprint(out, now().Format("15:04:05")+" ")
			if ev.Type != store.EventRecordChanged {
				_, _ = fmt.Fprintln(out, "storage changed, refresh all records")
				continue
			}
			_, _ = fmt.Fprintf(out, "%s %s changed\n", ev.Workflow, ev.Key)
			if err := n.reprint(ctx, out, ev.Key); err != nil {
				return err
			}
		}
	}
}

func (n *Watch) reprint(ctx context.Context, out io.Writer, key ledger.Key) error {
	if len(n.Tables) == 0 {
		return nil
	}
	rec, err := n.Service.Fetch(ctx, key)
	if err != nil {
		return err
	}
	pp := printers.PrettyPrint{Out: out}
	for _, t := range n.Tables {
		doc := rec.Table(t.Num)
		pp.Table(ledger.Hydrate(t, doc, ledger.DeriveLockMap(t, doc)))
	}
	return nil
}
