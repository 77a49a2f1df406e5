package coordinator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/logging"
)

// Ledger is the aggregate root of one workflow's daily record: every table has
// its own coordinator, and all of them share the selected key and the refetch
// trigger.
type Ledger struct {
	remote Remote
	logger *zap.Logger
	coords []*Coordinator
}

// TableResult is the outcome of submitting one table.
type TableResult struct {
	Table  int
	Result Result
	Err    error
}

// NewLedger builds one coordinator per table.
func NewLedger(tables []*ledger.Table, remote Remote, logger *zap.Logger) *Ledger {
	logger = logging.OrNop(logger)
	l := &Ledger{remote: remote, logger: logger}
	for _, t := range tables {
		l.coords = append(l.coords, New(t, remote, logger))
	}
	return l
}

// Tables returns the coordinators in table order.
func (l *Ledger) Tables() []*Coordinator {
	return append([]*Coordinator(nil), l.coords...)
}

// Table returns the coordinator of table num.
func (l *Ledger) Table(num int) (*Coordinator, bool) {
	for _, c := range l.coords {
		if c.table.Num == num {
			return c, true
		}
	}
	return nil, false
}

// SelectDate fetches the record for key once and rehydrates every table.
func (l *Ledger) SelectDate(ctx context.Context, key ledger.Key) error {
	return l.fetchAll(ctx, key, false)
}

// Refresh re-fetches the current record for every table, keeping unsaved
// input. Tables with a submission in flight are left to refresh themselves.
func (l *Ledger) Refresh(ctx context.Context) error {
	if len(l.coords) == 0 {
		return nil
	}
	key := l.coords[0].Key()
	if key.IsZero() {
		return ErrNoDate
	}
	return l.fetchAll(ctx, key, true)
}

func (l *Ledger) fetchAll(ctx context.Context, key ledger.Key, carry bool) error {
	var (
		targets []*Coordinator
		gens    []uint64
	)
	for _, c := range l.coords {
		if carry && c.isSubmitting() {
			continue
		}
		targets = append(targets, c)
		gens = append(gens, c.begin(key))
	}
	rec, err := l.remote.Fetch(ctx, key)
	var first error
	for i, c := range targets {
		if ferr := c.finish(gens[i], key, rec, err, carry); ferr != nil && first == nil {
			first = ferr
		}
	}
	return first
}

func (c *Coordinator) isSubmitting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// SubmitAll submits every table concurrently. Submissions are independent: a
// failure in one table does not affect the others.
func (l *Ledger) SubmitAll(ctx context.Context) []TableResult {
	results := make([]TableResult, len(l.coords))
	var g errgroup.Group
	for i, c := range l.coords {
		i, c := i, c
		g.Go(func() error {
			res, err := c.Submit(ctx)
			results[i] = TableResult{Table: c.table.Num, Result: res, Err: err}
			if err != nil {
				l.logger.Warn("table submission failed", zap.Int("table", c.table.Num), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Dirty reports whether any table holds unsaved input.
func (l *Ledger) Dirty() bool {
	for _, c := range l.coords {
		dirty := false
		_ = c.View(func(s *ledger.State) { dirty = s.Dirty() })
		if dirty {
			return true
		}
	}
	return false
}

// Summary renders per-table results in table order.
func Summary(results []TableResult) string {
	var b strings.Builder
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(&b, "table %d: %v\n", r.Table, r.Err)
			continue
		}
		b.WriteString(r.Result.Message)
		b.WriteByte('\n')
	}
	return b.String()
}
