package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/ledger"
)

// badgerConfig holds configuration for the embedded BadgerDB backend.
type badgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps everything in RAM; used by tests.
	InMemory   bool
	SyncWrites bool
}

// badgerLogger adapts zap to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{}) { l.logger.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{}) { l.logger.Debugf(format, args...) }

const maxConflictRetries = 16

func openBadger(cfg badgerConfig, logger *zap.Logger) (*badgerPersistence, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store: path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("store: create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	logger = logger.With(zap.String("backend", BackendBadger))
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: logger.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger database: %w", err)
	}
	return &badgerPersistence{db: db, logger: logger, now: time.Now}, nil
}

// badgerPersistence stores each record as one JSON value keyed by
// workflow/date/unit. Read-modify-write runs in a single transaction and is
// retried on conflict, so concurrent merges never lose an append.
type badgerPersistence struct {
	db     *badger.DB
	logger *zap.Logger
	now    func() time.Time
	events hub
}

func (p *badgerPersistence) get(txn *badger.Txn, workflow string, key ledger.Key) (*ledger.Record, error) {
	item, err := txn.Get([]byte(recordKey(workflow, key)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	var rec *ledger.Record
	err = item.Value(func(val []byte) error {
		var derr error
		rec, derr = decode(workflow, key, val)
		return derr
	})
	return rec, err
}

func (p *badgerPersistence) put(txn *badger.Txn, workflow string, rec *ledger.Record) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return txn.Set([]byte(recordKey(workflow, rec.Key)), data)
}

func (p *badgerPersistence) Fetch(_ context.Context, workflow string, key ledger.Key) (*ledger.Record, error) {
	var rec *ledger.Record
	err := p.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = p.get(txn, workflow, key)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrDBClosed) {
			return nil, ErrClosed
		}
		return nil, err
	}
	return rec, nil
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (p *badgerPersistence) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = p.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		p.logger.Debug("transaction conflict, retrying", zap.Int("attempt", attempt+1))
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

func (p *badgerPersistence) Merge(ctx context.Context, workflow string, key ledger.Key, table int, delta ledger.Document) (*ledger.Record, ledger.MergeReport, error) {
	var (
		rec *ledger.Record
		rep ledger.MergeReport
	)
	err := p.update(ctx, func(txn *badger.Txn) error {
		var err error
		rec, err = p.get(txn, workflow, key)
		if errors.Is(err, ErrNotFound) {
			rec, err = ledger.NewRecord(key), nil
		}
		if err != nil {
			return err
		}
		rep = apply(rec, table, delta, p.now())
		if !rep.Changed() {
			return nil
		}
		return p.put(txn, workflow, rec)
	})
	if err != nil {
		return nil, ledger.MergeReport{}, err
	}
	if rep.Changed() {
		p.events.publish(Event{Type: EventRecordChanged, Workflow: workflow, Key: key})
	}
	return rec, rep, nil
}

func (p *badgerPersistence) EnsureDay(ctx context.Context, workflow string, key ledger.Key) (bool, error) {
	created := false
	err := p.update(ctx, func(txn *badger.Txn) error {
		created = false
		_, err := p.get(txn, workflow, key)
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		rec := ledger.NewRecord(key)
		rec.Updated = p.now()
		created = true
		return p.put(txn, workflow, rec)
	})
	if err != nil {
		return false, err
	}
	if created {
		p.events.publish(Event{Type: EventRecordChanged, Workflow: workflow, Key: key})
	}
	return created, nil
}

func (p *badgerPersistence) Keys(ctx context.Context, workflow string) ([]ledger.Key, error) {
	var keys []ledger.Key
	prefix := []byte(workflow + "/")
	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, key, ok := splitKey(string(it.Item().Key()), "/")
			if !ok {
				continue
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortKeys(keys)
	return keys, nil
}

func (p *badgerPersistence) Watch(ctx context.Context) (<-chan Event, error) {
	if p.db.IsClosed() {
		return nil, ErrClosed
	}
	return p.events.watch(ctx), nil
}

func (p *badgerPersistence) Close() error {
	p.events.close()
	if p.db.IsClosed() {
		return nil
	}
	return p.db.Close()
}
