// Package store persists daily ledger records and applies the merge contract
// of the storage engine: scalars are write-once and sequences only grow.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/logging"
)

var (
	// ErrNotFound is returned by Fetch when no record exists for the key.
	ErrNotFound = errors.New("store: record not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: persistence closed")
)

// Persistence defines the persistence contract for daily records. Records are
// partitioned by workflow name and key.
type Persistence interface {
	// Fetch returns the stored record or ErrNotFound.
	Fetch(ctx context.Context, workflow string, key ledger.Key) (*ledger.Record, error)
	// Merge folds the delta of one table into the record, creating it when
	// needed, and returns the record as stored afterwards.
	Merge(ctx context.Context, workflow string, key ledger.Key, table int, delta ledger.Document) (*ledger.Record, ledger.MergeReport, error)
	// EnsureDay creates an empty record for key unless one exists. It reports
	// whether a record was created.
	EnsureDay(ctx context.Context, workflow string, key ledger.Key) (bool, error)
	// Keys lists the stored keys of a workflow in date order.
	Keys(ctx context.Context, workflow string) ([]ledger.Key, error)
	// Watch streams change events until ctx is cancelled.
	Watch(ctx context.Context) (<-chan Event, error)
	Close() error
}

// EventType describes the nature of a persistence change notification.
type EventType int

const (
	// EventRecordChanged indicates the record for Workflow and Key changed.
	EventRecordChanged EventType = iota

	// EventInvalidated signals that the change could not be attributed to one
	// record and callers should refresh their full view.
	EventInvalidated
)

func (t EventType) String() string {
	if t == EventRecordChanged {
		return "changed"
	}
	return "invalidated"
}

// Event is emitted by Persistence.Watch when underlying storage changes.
type Event struct {
	Type     EventType
	Workflow string
	Key      ledger.Key
}

// Load opens the Persistence selected by cfg. A nil cfg loads the settings
// from the environment.
func Load(cfg Config, logger *zap.Logger) (Persistence, error) {
	if cfg == nil {
		s, err := LoadConfig()
		if err != nil {
			return nil, err
		}
		cfg = s
	}
	logger = logging.OrNop(logger).Named("store")
	switch cfg.Backend() {
	case "", BackendDiskv:
		return openDiskv(cfg.BasePath(), logger)
	case BackendBadger:
		return openBadger(badgerConfig{Path: cfg.BasePath(), SyncWrites: true}, logger)
	case BackendSQLite:
		return openSQLite(cfg.BasePath(), logger)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend())
	}
}

// apply merges delta into the table of rec, stamping the update time when
// anything changed.
func apply(rec *ledger.Record, table int, delta ledger.Document, now time.Time) ledger.MergeReport {
	merged, rep := ledger.Merge(rec.Table(table), delta)
	if rep.Changed() {
		rec.Tables[table] = merged
		rec.Updated = now
	}
	return rep
}

func decode(workflow string, key ledger.Key, data []byte) (*ledger.Record, error) {
	rec := &ledger.Record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("store: decode %s %s: %w", workflow, key, err)
	}
	rec.Key = key
	return rec, nil
}

func encode(rec *ledger.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", rec.Key, err)
	}
	return data, nil
}

// recordKey is the backend-neutral identity of a record: workflow, date and
// unit joined by '/'. Units never contain '/'.
func recordKey(workflow string, key ledger.Key) string {
	return workflow + "/" + key.Date + "/" + key.Unit
}

func splitKey(s, sep string) (string, ledger.Key, bool) {
	parts := strings.SplitN(s, sep, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", ledger.Key{}, false
	}
	return parts[0], ledger.Key{Date: parts[1], Unit: parts[2]}, true
}
