// Package ui launches the interactive record editor.
package ui

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/app"
	"tableflip.dev/sandlab/pkg/coordinator"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/tui/form"
	"tableflip.dev/sandlab/pkg/workflow"
)

// UI opens the form for the tables of one workflow.
type UI struct {
	Remote   coordinator.Remote
	Workflow *workflow.Workflow
	Tables   []*ledger.Table
	Unit     string
	Day      time.Time
	// Local, when set, streams storage changes into the form so values other
	// operators commit show up without a manual refresh.
	Local  *app.Service
	Logger *zap.Logger
}

func (d *UI) Do(ctx context.Context) error {
	if d.Remote == nil {
		return errors.New("can not open ui, no storage engine")
	}
	tables := d.Tables
	if len(tables) == 0 {
		tables = d.Workflow.Tables
	}
	opts := form.Options{
		Workflow: d.Workflow,
		Ledger:   coordinator.NewLedger(tables, d.Remote, d.Logger),
		Unit:     d.Unit,
		Day:      d.Day,
	}
	if d.Local != nil {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		events, err := d.Local.Watch(ctx)
		if err != nil {
			return err
		}
		opts.Events = events
		return form.Run(ctx, opts)
	}
	return form.Run(ctx, opts)
}
