package store

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/ledger"
)

func TestPersistenceWatchEmitsRecordChanges(t *testing.T) {
	base := t.TempDir()
	p, err := Load(testConfig{path: base}, zap.NewNop())
	if err != nil {
		t.Fatalf("load persistence: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := p.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	// Allow watcher goroutine to subscribe to directories before storing.
	time.Sleep(50 * time.Millisecond)

	day := ledger.Key{Date: "2024-05-01"}
	if _, err := p.EnsureDay(ctx, "sand", day); err != nil {
		t.Fatalf("ensure day: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Type == EventInvalidated {
				return
			}
			if evt.Workflow != "sand" || evt.Key != day {
				t.Fatalf("unexpected event %+v", evt)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for record change event")
		}
	}
}

func TestHubWatchEmitsRecordChanges(t *testing.T) {
	p, err := openBadger(badgerConfig{InMemory: true}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := p.Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	day := ledger.Key{Date: "2024-05-01"}
	if _, _, err := p.Merge(ctx, "sand", day, 1, ledger.Document{"shiftI": map[string]any{"rSand": []any{"1"}}}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Type != EventRecordChanged || evt.Key != day {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for record change event")
	}

	cancel()
	// The channel is closed once the watch context ends.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed")
		}
	}
}
