package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/peterbourgon/diskv/v3"
	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/ledger"
)

const (
	diskvSep       = ":"
	dayFile        = "day"
	unitFilePrefix = "unit."
)

func openDiskv(basePath string, logger *zap.Logger) (*diskvPersistence, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, errors.New("store: base path required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure base path: %w", err)
	}
	return &diskvPersistence{
		d: diskv.New(diskv.Options{
			BasePath:          basePath,
			TempDir:           strings.TrimRight(basePath, string(os.PathSeparator)) + ".tmp",
			AdvancedTransform: keyToPathTransform,
			InverseTransform:  pathToKeyTransform,
			CacheSizeMax:      1024 * 1024, // 1MB
		}),
		basePath: basePath,
		logger:   logger.With(zap.String("backend", BackendDiskv)),
		now:      time.Now,
	}, nil
}

// diskvPersistence keeps one JSON file per record under
// <base>/<workflow>/<date>/<day|unit.NAME>. Writes are serialised within the
// process; diskv renames temp files so readers never see partial records.
type diskvPersistence struct {
	mu       sync.Mutex
	d        *diskv.Diskv
	basePath string
	logger   *zap.Logger
	now      func() time.Time
}

func (p *diskvPersistence) read(workflow string, key ledger.Key) (*ledger.Record, error) {
	k := toKey(workflow, key)
	if !p.d.Has(k) {
		return nil, ErrNotFound
	}
	val, err := p.d.Read(k)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: read %s: %w", k, err)
	}
	return decode(workflow, key, val)
}

func (p *diskvPersistence) write(workflow string, rec *ledger.Record) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	if err := p.d.Write(toKey(workflow, rec.Key), data); err != nil {
		return fmt.Errorf("store: write %s: %w", rec.Key, err)
	}
	return nil
}

func (p *diskvPersistence) Fetch(_ context.Context, workflow string, key ledger.Key) (*ledger.Record, error) {
	return p.read(workflow, key)
}

func (p *diskvPersistence) Merge(_ context.Context, workflow string, key ledger.Key, table int, delta ledger.Document) (*ledger.Record, ledger.MergeReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.read(workflow, key)
	if errors.Is(err, ErrNotFound) {
		rec, err = ledger.NewRecord(key), nil
	}
	if err != nil {
		return nil, ledger.MergeReport{}, err
	}
	rep := apply(rec, table, delta, p.now())
	if rep.Changed() {
		if err := p.write(workflow, rec); err != nil {
			return nil, rep, err
		}
		p.logger.Debug("merged",
			zap.String("workflow", workflow), zap.Stringer("key", rec.Key), zap.Int("table", table),
			zap.Int("accepted", rep.Accepted), zap.Int("appended", rep.Appended))
	}
	return rec, rep, nil
}

func (p *diskvPersistence) EnsureDay(_ context.Context, workflow string, key ledger.Key) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.d.Has(toKey(workflow, key)) {
		return false, nil
	}
	rec := ledger.NewRecord(key)
	rec.Updated = p.now()
	if err := p.write(workflow, rec); err != nil {
		return false, err
	}
	return true, nil
}

func (p *diskvPersistence) Keys(ctx context.Context, workflow string) ([]ledger.Key, error) {
	var keys []ledger.Key
	for k := range p.d.KeysPrefix(workflow+diskvSep, ctx.Done()) {
		wf, key, ok := splitKey(k, diskvSep)
		if !ok || wf != workflow {
			p.logger.Warn("skipping unrecognised key", zap.String("key", k))
			continue
		}
		keys = append(keys, key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sortKeys(keys)
	return keys, nil
}

func (p *diskvPersistence) Close() error { return nil }

func keyToPathTransform(s string) *diskv.PathKey {
	parts := strings.SplitN(s, diskvSep, 3)
	if len(parts) != 3 {
		return &diskv.PathKey{FileName: s}
	}
	name := dayFile
	if parts[2] != "" {
		name = unitFilePrefix + parts[2]
	}
	return &diskv.PathKey{
		Path:     parts[:2],
		FileName: name,
	}
}

func pathToKeyTransform(pathKey *diskv.PathKey) string {
	unit := ""
	if strings.HasPrefix(pathKey.FileName, unitFilePrefix) {
		unit = strings.TrimPrefix(pathKey.FileName, unitFilePrefix)
	}
	return strings.Join(pathKey.Path, diskvSep) + diskvSep + unit
}

// toKey makes `workflow:date:unit`.
func toKey(workflow string, key ledger.Key) string {
	return workflow + diskvSep + key.Date + diskvSep + key.Unit
}

func sortKeys(keys []ledger.Key) {
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].Unit < keys[j].Unit
	})
}
