package info

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"tableflip.dev/sandlab/pkg/app"
	"tableflip.dev/sandlab/pkg/ledger"
	"tableflip.dev/sandlab/pkg/store"
	"tableflip.dev/sandlab/pkg/workflow"
)

func TestInfoListsRecords(t *testing.T) {
	t.Setenv("SANDLAB_CONFIG_PATH", "")
	settings := &store.Settings{Path: filepath.Join(t.TempDir(), "db"), Store: store.BackendDiskv, Workflow: "sand"}
	p, err := store.Load(settings, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	defer p.Close()
	svc := &app.Service{Persistence: p, Workflow: workflow.Sand}

	var buf bytes.Buffer
	n := Info{Settings: settings, Service: svc, Out: &buf}
	if err := n.Do(context.Background()); err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(buf.String(), "no records") {
		t.Fatalf("expected empty listing:\n%s", buf.String())
	}

	if _, err := svc.EnsureDay(context.Background(), ledger.Key{Date: "2024-05-01"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	buf.Reset()
	if err := n.Do(context.Background()); err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{"env var not set", "Config.backend: diskv", "  2024-05-01"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestInfoRemote(t *testing.T) {
	var buf bytes.Buffer
	n := Info{Settings: &store.Settings{Server: "http://lab:8087", Workflow: "sand"}, Out: &buf}
	if err := n.Do(context.Background()); err != nil {
		t.Fatalf("info: %v", err)
	}
	if !strings.Contains(buf.String(), "Config.server: http://lab:8087") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}
