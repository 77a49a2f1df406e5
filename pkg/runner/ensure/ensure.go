// Package ensure creates the empty daily record so every client starts from
// the same document.
package ensure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/app"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/logging"
)

// Ensure creates the record of the current day, once or on every tick.
type Ensure struct {
	Service *app.Service
	Unit    string
	// Every repeats the check until ctx is cancelled. Zero runs once.
	Every  time.Duration
	Now    func() time.Time
	Out    io.Writer
	Logger *zap.Logger
}

func (n *Ensure) Do(ctx context.Context) error {
	if n.Service == nil {
		return errors.New("can not ensure, no persistence")
	}
	if err := n.once(ctx); err != nil {
		return err
	}
	if n.Every <= 0 {
		return nil
	}

	ticker := time.NewTicker(n.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := n.once(ctx); err != nil {
				// Keep ticking; the next run retries.
				logging.OrNop(n.Logger).Warn("ensure daily record failed", zap.Error(err))
			}
		}
	}
}

func (n *Ensure) once(ctx context.Context) error {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	key, err := n.Service.Key(now().Format(ledger.LayoutISO), n.Unit)
	if err != nil {
		return err
	}
	created, err := n.Service.EnsureDay(ctx, key)
	if err != nil {
		return err
	}
	if n.Out != nil {
		if created {
			_, _ = fmt.Fprintf(n.Out, "created %s record %s\n", n.Service.Workflow.Name, key)
		} else {
			_, _ = fmt.Fprintf(n.Out, "%s record %s exists\n", n.Service.Workflow.Name, key)
		}
	}
	return nil
}
