package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/store"
	"tableflip.dev/sandlab/pkg/workflow"
)

type memoryPersistence struct {
	mu      sync.Mutex
	records map[string]*ledger.Record
	merges  int
}

func newMemoryPersistence() *memoryPersistence {
	return &memoryPersistence{records: make(map[string]*ledger.Record)}
}

func memKey(workflow string, key ledger.Key) string {
	return workflow + "|" + key.String()
}

func (m *memoryPersistence) Fetch(_ context.Context, workflow string, key ledger.Key) (*ledger.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[memKey(workflow, key)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *memoryPersistence) Merge(_ context.Context, workflow string, key ledger.Key, table int, delta ledger.Document) (*ledger.Record, ledger.MergeReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merges++
	rec, ok := m.records[memKey(workflow, key)]
	if !ok {
		rec = ledger.NewRecord(key)
		m.records[memKey(workflow, key)] = rec
	}
	merged, rep := ledger.Merge(rec.Table(table), delta)
	rec.Tables[table] = merged
	rec.Updated = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return rec.Clone(), rep, nil
}

func (m *memoryPersistence) EnsureDay(_ context.Context, workflow string, key ledger.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[memKey(workflow, key)]; ok {
		return false, nil
	}
	m.records[memKey(workflow, key)] = ledger.NewRecord(key)
	return true, nil
}

func (m *memoryPersistence) Keys(_ context.Context, workflow string) ([]ledger.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []ledger.Key
	for k, rec := range m.records {
		if strings.HasPrefix(k, workflow+"|") {
			keys = append(keys, rec.Key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func (m *memoryPersistence) Watch(context.Context) (<-chan store.Event, error) {
	return nil, errors.New("not supported")
}

func (m *memoryPersistence) Close() error { return nil }

func TestFetchMissingRecordIsNil(t *testing.T) {
	svc := &Service{Persistence: newMemoryPersistence(), Workflow: workflow.Sand}
	rec, err := svc.Fetch(context.Background(), ledger.Key{Date: "2024-05-01"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
}

func TestSubmitMergesAndReportsRejections(t *testing.T) {
	mp := newMemoryPersistence()
	svc := &Service{Persistence: mp, Workflow: workflow.Sand}
	ctx := context.Background()
	key := ledger.Key{Date: "2024-05-01"}

	clay, _ := workflow.Sand.Table(workflow.ClayTests)
	s := ledger.Hydrate(clay, nil, ledger.NewLockMap())
	s.Set(ledger.ScalarPath(ledger.ShiftI.Section(), "vcm"), "2.1")
	res, err := svc.Submit(ctx, key, ledger.BuildDelta(s))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Table != workflow.ClayTests || !strings.Contains(res.Message, "1 set") {
		t.Fatalf("unexpected result %+v", res)
	}

	// A second session that never saw the first write.
	s = ledger.Hydrate(clay, nil, ledger.NewLockMap())
	s.Set(ledger.ScalarPath(ledger.ShiftI.Section(), "vcm"), "9.9")
	res, err = svc.Submit(ctx, key, ledger.BuildDelta(s))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(res.Rejected) != 1 || res.Rejected[0] != "shiftI.vcm" {
		t.Fatalf("expected rejected shiftI.vcm, got %+v", res)
	}

	rec, _ := svc.Fetch(ctx, key)
	if v, _ := rec.Table(workflow.ClayTests).Lookup(ledger.ShiftI.Section(), "vcm"); v != "2.1" {
		t.Fatalf("expected first value to stick, got %v", v)
	}
}

func TestSubmitEmptyDeltaStillReachesStore(t *testing.T) {
	mp := newMemoryPersistence()
	svc := &Service{Persistence: mp, Workflow: workflow.Sand}
	tbl, _ := workflow.Sand.Table(workflow.SandAddition)
	p := ledger.BuildDelta(ledger.Hydrate(tbl, nil, ledger.NewLockMap()))

	res, err := svc.Submit(context.Background(), ledger.Key{Date: "2024-05-01"}, p)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if mp.merges != 1 {
		t.Fatalf("expected the empty delta to be sent, merges=%d", mp.merges)
	}
	if !strings.Contains(res.Message, "no changes") {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestApplyRejectsUnknownTable(t *testing.T) {
	svc := &Service{Persistence: newMemoryPersistence(), Workflow: workflow.Sand}
	_, _, err := svc.Apply(context.Background(), ledger.Key{Date: "2024-05-01"}, 9, ledger.Document{})
	if !errors.Is(err, ErrUnknownTable) {
		t.Fatalf("expected ErrUnknownTable, got %v", err)
	}
}

func TestApplyRejectsMisshapenDelta(t *testing.T) {
	mp := newMemoryPersistence()
	svc := &Service{Persistence: mp, Workflow: workflow.Sand}
	ctx := context.Background()
	day := ledger.Key{Date: "2024-05-01"}

	_, _, err := svc.Apply(ctx, day, workflow.SandAddition, ledger.Document{
		"shiftI": map[string]any{"rSand": "120", "bogus": "x"},
	})
	if !errors.Is(err, ledger.ErrInvalidDelta) {
		t.Fatalf("expected ErrInvalidDelta, got %v", err)
	}
	if mp.merges != 0 {
		t.Fatalf("misshapen delta reached persistence, merges=%d", mp.merges)
	}

	_, rep, err := svc.Apply(ctx, day, workflow.SandAddition, ledger.Document{
		"shiftI": map[string]any{"rSand": []any{"120"}},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rep.Appended != 1 {
		t.Fatalf("expected the row to be appended, got %+v", rep)
	}
}

func TestServiceRequiresPersistence(t *testing.T) {
	svc := &Service{Workflow: workflow.Sand}
	if _, err := svc.Fetch(context.Background(), ledger.Key{Date: "2024-05-01"}); err == nil {
		t.Fatal("expected error without persistence")
	}
}

func TestReportCountsCommittedValues(t *testing.T) {
	mp := newMemoryPersistence()
	svc := &Service{Persistence: mp, Workflow: workflow.Sand}
	ctx := context.Background()

	day := ledger.Key{Date: "2024-05-01"}
	if _, _, err := svc.Apply(ctx, day, workflow.SandAddition, ledger.Document{
		"shiftI": map[string]any{"rSand": []any{"120", "95"}, "bentonite": []any{"1.1"}},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, _, err := svc.Apply(ctx, day, workflow.ClayTests, ledger.Document{
		"shiftII": map[string]any{"vcm": "2.1"},
	}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := svc.EnsureDay(ctx, ledger.Key{Date: "2024-06-01"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	since := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	r, err := svc.Report(ctx, until, since)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(r.Days) != 1 {
		t.Fatalf("expected one day in window, got %d", len(r.Days))
	}
	if r.Total != 4 {
		t.Fatalf("expected 4 committed values, got %d", r.Total)
	}
	tables := r.Days[0].Tables
	if tables[0].Rows != 3 {
		t.Fatalf("expected 3 rows in table 1, got %d", tables[0].Rows)
	}
	if tables[1].Scalars != 1 || tables[1].ScalarsTotal != 21 {
		t.Fatalf("unexpected clay scalars %+v", tables[1])
	}
}

func TestMessage(t *testing.T) {
	got := Message(2, ledger.MergeReport{Accepted: 1, Rejected: []string{"shiftI.vcm"}})
	want := "table 2 saved (1 set, 0 appended); already set, ignored: shiftI.vcm"
	if got != want {
		t.Fatalf("Message() = %q, want %q", got, want)
	}
}
