// Package coordinator reconciles the editable state of ledger tables with the
// storage engine: fetch on date change, submit, and re-fetch after submit so
// newly committed values become read-only.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/logging"
)

// Phase is the lifecycle state of a table coordinator.
type Phase int

const (
	Idle Phase = iota
	Loading
	Hydrated
	Editing
	Submitting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Hydrated:
		return "hydrated"
	case Editing:
		return "editing"
	case Submitting:
		return "submitting"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

var (
	// ErrSubmitInFlight is returned while a submission for the table is
	// outstanding.
	ErrSubmitInFlight = errors.New("coordinator: submission already in flight")
	// ErrNoDate is returned before a record has been loaded.
	ErrNoDate = errors.New("coordinator: no date selected")
	// ErrRefreshFailed is returned when a submission succeeded but the record
	// could not be fetched again. The submitted values are committed locally.
	ErrRefreshFailed = errors.New("coordinator: refresh after submit failed")
)

// Coordinator drives one table. It is safe for concurrent use; network calls
// run without holding the lock.
type Coordinator struct {
	table  *ledger.Table
	remote Remote
	logger *zap.Logger

	mu    sync.Mutex
	phase Phase
	// key is the key the current state was hydrated for; want is the key most
	// recently requested.
	key, want ledger.Key
	// gen increments on every fetch; only the latest response is applied.
	gen        uint64
	doc        ledger.Document
	state      *ledger.State
	submitting bool
	onChange   func(*Coordinator)
}

// New returns an idle coordinator for table t.
func New(t *ledger.Table, remote Remote, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		table:  t,
		remote: remote,
		logger: logging.OrNop(logger).With(zap.Int("table", t.Num)),
	}
}

// Table returns the schema the coordinator edits.
func (c *Coordinator) Table() *ledger.Table { return c.table }

// OnChange registers fn to be called after every state transition. fn runs
// without the coordinator lock held.
func (c *Coordinator) OnChange(fn func(*Coordinator)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// Phase returns the current lifecycle state.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Key returns the key of the loaded record.
func (c *Coordinator) Key() ledger.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// LockMap returns the lock map of the loaded record.
func (c *Coordinator) LockMap() ledger.LockMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return ledger.NewLockMap()
	}
	return c.state.LockMap()
}

// View calls fn with the current state under the coordinator lock. fn must not
// retain the state or call back into the coordinator.
func (c *Coordinator) View(fn func(s *ledger.State)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return ErrNoDate
	}
	fn(c.state)
	return nil
}

// Delta previews the payload Submit would send.
func (c *Coordinator) Delta() (ledger.Payload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return ledger.Payload{}, ErrNoDate
	}
	return ledger.BuildDelta(c.state), nil
}

// SelectDate loads the record for key and rehydrates the table. Responses for
// a key that is no longer the latest selection are discarded. On failure the
// previously loaded record stays in place.
func (c *Coordinator) SelectDate(ctx context.Context, key ledger.Key) error {
	gen := c.begin(key)
	rec, err := c.remote.Fetch(ctx, key)
	return c.finish(gen, key, rec, err, false)
}

// Refresh re-fetches the loaded record, keeping unsaved input in slots that
// are still editable. It is a no-op while a submission is in flight since the
// submission refreshes on its own.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return ErrNoDate
	}
	if c.submitting {
		c.mu.Unlock()
		return nil
	}
	key := c.key
	c.mu.Unlock()

	gen := c.begin(key)
	rec, err := c.remote.Fetch(ctx, key)
	return c.finish(gen, key, rec, err, true)
}

func (c *Coordinator) begin(key ledger.Key) uint64 {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.want = key
	if !c.submitting {
		c.phase = Loading
	}
	c.mu.Unlock()
	c.notify()
	return gen
}

// finish applies a fetch result if it is still the latest one.
func (c *Coordinator) finish(gen uint64, key ledger.Key, rec *ledger.Record, fetchErr error, carry bool) error {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("discarding stale response", zap.Stringer("key", key))
		return nil
	}
	if fetchErr != nil {
		c.want = c.key
		c.settleLocked()
		c.mu.Unlock()
		c.notify()
		return fmt.Errorf("coordinator: fetch %s: %w", key, fetchErr)
	}
	if rec != nil && rec.Key != key {
		c.want = c.key
		c.settleLocked()
		c.mu.Unlock()
		c.notify()
		c.logger.Debug("discarding response for another key",
			zap.Stringer("key", key), zap.Stringer("got", rec.Key))
		return nil
	}
	c.hydrateLocked(key, rec.Table(c.table.Num), carry)
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Coordinator) hydrateLocked(key ledger.Key, doc ledger.Document, carry bool) {
	next := ledger.Hydrate(c.table, doc, ledger.DeriveLockMap(c.table, doc))
	if carry && c.state != nil && c.key == key {
		next.Carry(c.state)
	}
	c.key = key
	c.doc = doc
	c.state = next
	c.settleLocked()
}

// settleLocked picks the resting phase for the current state.
func (c *Coordinator) settleLocked() {
	switch {
	case c.submitting:
		c.phase = Submitting
	case c.state == nil:
		c.phase = Idle
	case c.state.Dirty():
		c.phase = Editing
	default:
		c.phase = Hydrated
	}
}

func (c *Coordinator) edit(fn func(s *ledger.State) error) error {
	c.mu.Lock()
	switch {
	case c.submitting:
		c.mu.Unlock()
		return ErrSubmitInFlight
	case c.state == nil || c.phase == Loading:
		c.mu.Unlock()
		return ErrNoDate
	}
	err := fn(c.state)
	if err == nil {
		c.phase = Editing
	}
	c.mu.Unlock()
	if err == nil {
		c.notify()
	}
	return err
}

// Set types v into p. Refused paths are left untouched and reported as
// ledger.ErrLocked, ledger.ErrNotTrailing or ledger.ErrUnknownField.
func (c *Coordinator) Set(p ledger.FieldPath, v string) error {
	return c.edit(func(s *ledger.State) error {
		if err := s.CheckEdit(p); err != nil {
			return err
		}
		s.Set(p, v)
		return nil
	})
}

// Append adds a blank row after the trailing row p.
func (c *Coordinator) Append(p ledger.FieldPath) error {
	return c.edit(func(s *ledger.State) error { return s.Append(p) })
}

// Remove drops the trailing row p.
func (c *Coordinator) Remove(p ledger.FieldPath) error {
	return c.edit(func(s *ledger.State) error { return s.Remove(p) })
}

// AppendRow types cells, keyed by column name, into the trailing row of the
// named sequence. A new row is added first when the trailing one already
// holds input.
func (c *Coordinator) AppendRow(section ledger.Section, sequence string, cells map[string]string) error {
	seq, ok := c.sequence(section, sequence)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ledger.ErrUnknownField, section, sequence)
	}
	cols := make(map[int]string, len(cells))
	for name, v := range cells {
		i := columnIndex(seq, name)
		if i < 0 {
			return fmt.Errorf("%w: %s.%s.%s", ledger.ErrUnknownField, section, sequence, name)
		}
		cols[i] = v
	}
	return c.edit(func(s *ledger.State) error {
		rows := s.Rows(section, sequence)
		idx := len(rows) - 1
		if !blank(rows[idx].Cells) {
			trailing, _ := s.Trailing(section, sequence)
			if err := s.Append(trailing); err != nil {
				return err
			}
			idx++
		}
		for i, v := range cols {
			p, err := s.EditPath(section, sequence, idx, i)
			if err != nil {
				return err
			}
			if !s.Set(p, v) {
				return fmt.Errorf("%w: %s", ledger.ErrLocked, p)
			}
		}
		return nil
	})
}

func (c *Coordinator) sequence(section ledger.Section, name string) (*ledger.Sequence, bool) {
	for si := range c.table.Sections {
		sec := &c.table.Sections[si]
		if sec.Section != section {
			continue
		}
		for i := range sec.Sequences {
			if sec.Sequences[i].Name == name {
				return &sec.Sequences[i], true
			}
		}
	}
	return nil, false
}

func columnIndex(seq *ledger.Sequence, name string) int {
	for i, col := range seq.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

func blank(cells []string) bool {
	for _, v := range cells {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Submit sends the delta of the table, even when it is empty. On success the
// submitted values are locked locally and the record is fetched again; on
// failure the unsaved input is kept for a retry.
func (c *Coordinator) Submit(ctx context.Context) (Result, error) {
	c.mu.Lock()
	switch {
	case c.submitting:
		c.mu.Unlock()
		return Result{}, ErrSubmitInFlight
	case c.state == nil || c.key.IsZero():
		c.mu.Unlock()
		return Result{}, ErrNoDate
	}
	p := ledger.BuildDelta(c.state)
	key := c.key
	c.submitting = true
	c.phase = Submitting
	c.mu.Unlock()
	c.notify()

	c.logger.Debug("submitting", zap.Stringer("key", key), zap.Int("paths", len(p.Paths())))
	res, err := c.remote.Submit(ctx, key, p)
	if err != nil {
		c.mu.Lock()
		c.submitting = false
		if c.want == key {
			c.phase = Editing
		} else {
			c.settleLocked()
		}
		c.mu.Unlock()
		c.notify()
		return res, fmt.Errorf("coordinator: submit table %d for %s: %w", c.table.Num, key, err)
	}
	return res, c.afterSubmit(ctx, key, p)
}

func (c *Coordinator) afterSubmit(ctx context.Context, key ledger.Key, p ledger.Payload) error {
	c.mu.Lock()
	c.submitting = false
	if c.want != key {
		// Another date was selected meanwhile; its fetch owns the state.
		c.settleLocked()
		c.mu.Unlock()
		c.notify()
		return nil
	}
	// The submitted values are locked locally before the record is fetched
	// again, so a Refresh racing that fetch carries nothing already sent.
	merged, _ := ledger.Merge(c.doc, p.Data)
	c.hydrateLocked(key, merged, false)
	c.gen++
	gen := c.gen
	c.want = key
	c.phase = Loading
	c.mu.Unlock()
	c.notify()

	rec, err := c.remote.Fetch(ctx, key)
	if err == nil {
		return c.finish(gen, key, rec, nil, true)
	}

	c.mu.Lock()
	if gen == c.gen {
		c.want = c.key
		c.settleLocked()
	}
	c.mu.Unlock()
	c.notify()
	c.logger.Warn("refresh after submit failed", zap.Stringer("key", key), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
}
