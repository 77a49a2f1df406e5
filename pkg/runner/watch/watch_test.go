package watch

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"tableflip.dev/sandlab/pkg/app"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/store"
	"tableflip.dev/sandlab/pkg/workflow"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestWatchPrintsChangedRecords(t *testing.T) {
	p, err := store.Load(&store.Settings{Path: filepath.Join(t.TempDir(), "db"), Store: store.BackendSQLite}, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer p.Close()
	svc := &app.Service{Persistence: p, Workflow: workflow.Sand}
	tbl, _ := workflow.Sand.Table(workflow.SandAddition)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var out syncBuffer
	w := Watch{
		Service: svc,
		Tables:  []*ledger.Table{tbl},
		Out:     &out,
		Now:     func() time.Time { return time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC) },
	}
	done := make(chan error, 1)
	go func() { done <- w.Do(ctx) }()

	// The subscription starts asynchronously, so keep committing new days
	// until one of them is reported.
	deadline := time.Now().Add(5 * time.Second)
	for day := 1; !strings.Contains(out.String(), "changed"); day++ {
		if time.Now().After(deadline) {
			t.Fatalf("no change reported: %q", out.String())
		}
		key := ledger.Key{Date: fmt.Sprintf("2024-05-%02d", day)}
		delta := ledger.Document{"shiftI": map[string]any{"rSand": []any{"120"}}}
		if _, _, err := svc.Apply(ctx, key, workflow.SandAddition, delta); err != nil {
			t.Fatalf("apply: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
	got := out.String()
	for _, want := range []string{"07:30:00 sand 2024-05-", "1. ", "120"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
