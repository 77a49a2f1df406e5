package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/coordinator"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/logging"
	"tableflip.dev/sandlab/pkg/store"
	"tableflip.dev/sandlab/pkg/workflow"
)

// Service provides the storage-engine operations of one workflow on top of a
// local Persistence. It implements coordinator.Remote so the CLI, the TUI and
// the HTTP server share the same merge path.
type Service struct {
	Persistence store.Persistence
	Workflow    *workflow.Workflow
	Logger      *zap.Logger
}

var (
	errNoPersistence = errors.New("app: no persistence configured")
	// ErrUnknownTable is returned for table numbers the workflow lacks.
	ErrUnknownTable = errors.New("app: unknown table")
)

var _ coordinator.Remote = (*Service)(nil)

func (s *Service) ready() error {
	if s.Persistence == nil {
		return errNoPersistence
	}
	if s.Workflow == nil {
		return errors.New("app: no workflow configured")
	}
	return nil
}

func (s *Service) log() *zap.Logger {
	return logging.OrNop(s.Logger)
}

// Key validates a record key for the service's workflow.
func (s *Service) Key(date, unit string) (ledger.Key, error) {
	if err := s.ready(); err != nil {
		return ledger.Key{}, err
	}
	return s.Workflow.Key(date, unit)
}

// Fetch returns the stored record for key, or nil when none exists.
func (s *Service) Fetch(ctx context.Context, key ledger.Key) (*ledger.Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rec, err := s.Persistence.Fetch(ctx, s.Workflow.Name, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Apply merges the delta of one table into the record for key.
func (s *Service) Apply(ctx context.Context, key ledger.Key, table int, delta ledger.Document) (*ledger.Record, ledger.MergeReport, error) {
	if err := s.ready(); err != nil {
		return nil, ledger.MergeReport{}, err
	}
	t, ok := s.Workflow.Table(table)
	if !ok {
		return nil, ledger.MergeReport{}, fmt.Errorf("%w: %d", ErrUnknownTable, table)
	}
	if key.IsZero() {
		return nil, ledger.MergeReport{}, fmt.Errorf("%w: date required", ledger.ErrInvalidKey)
	}
	if err := ledger.ValidateDelta(t, delta); err != nil {
		return nil, ledger.MergeReport{}, err
	}
	rec, rep, err := s.Persistence.Merge(ctx, s.Workflow.Name, key, table, delta)
	if err != nil {
		return nil, rep, err
	}
	if len(rep.Rejected) > 0 {
		s.log().Info("rejected overwrite of committed values",
			zap.String("workflow", s.Workflow.Name), zap.Stringer("key", key),
			zap.Int("table", table), zap.Strings("paths", rep.Rejected))
	}
	return rec, rep, nil
}

// Submit implements coordinator.Remote.
func (s *Service) Submit(ctx context.Context, key ledger.Key, p ledger.Payload) (coordinator.Result, error) {
	_, rep, err := s.Apply(ctx, key, p.Table, p.Data)
	if err != nil {
		return coordinator.Result{Table: p.Table}, err
	}
	return coordinator.Result{Table: p.Table, Message: Message(p.Table, rep), Rejected: rep.Rejected}, nil
}

// EnsureDay creates the empty record for key unless it exists.
func (s *Service) EnsureDay(ctx context.Context, key ledger.Key) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	created, err := s.Persistence.EnsureDay(ctx, s.Workflow.Name, key)
	if err != nil {
		return false, err
	}
	if created {
		s.log().Info("created daily record", zap.String("workflow", s.Workflow.Name), zap.Stringer("key", key))
	}
	return created, nil
}

// Keys lists the stored record keys of the workflow.
func (s *Service) Keys(ctx context.Context) ([]ledger.Key, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.Persistence.Keys(ctx, s.Workflow.Name)
}

// Watch subscribes to persistence change events of the workflow.
func (s *Service) Watch(ctx context.Context) (<-chan store.Event, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	all, err := s.Persistence.Watch(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan store.Event, cap(all))
	go func() {
		defer close(out)
		for ev := range all {
			if ev.Type == store.EventRecordChanged && ev.Workflow != s.Workflow.Name {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Message renders a merge report the way the storage engine answers a
// submission.
func Message(table int, rep ledger.MergeReport) string {
	var b strings.Builder
	switch {
	case rep.Changed():
		fmt.Fprintf(&b, "table %d saved (%d set, %d appended)", table, rep.Accepted, rep.Appended)
	default:
		fmt.Fprintf(&b, "table %d: no changes", table)
	}
	if len(rep.Rejected) > 0 {
		fmt.Fprintf(&b, "; already set, ignored: %s", strings.Join(rep.Rejected, ", "))
	}
	return b.String()
}
