package options

import (
	"testing"
	"time"

	"tableflip.dev/sandlab/pkg/printers"
	"tableflip.dev/sandlab/pkg/workflow"
)

func TestGetOn(t *testing.T) {
	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		on   string
		want string
	}{
		{"", "2024-01-02"},
		{"today", "2024-01-02"},
		{"Yesterday", "2024-01-01"},
		{"2023-12-5", "2023-12-05"},
		{"1/1", "2024-01-01"},
		// A month/day after today is taken from last year.
		{"12/30", "2023-12-30"},
	}
	for _, tt := range tests {
		o := OnOptions{OnString: tt.on}
		got, err := o.GetOn(now)
		if err != nil {
			t.Errorf("GetOn(%q): %v", tt.on, err)
			continue
		}
		if got.Format("2006-01-02") != tt.want {
			t.Errorf("GetOn(%q) = %s, want %s", tt.on, got.Format("2006-01-02"), tt.want)
		}
	}

	o := OnOptions{OnString: "someday"}
	if _, err := o.GetOn(now); err == nil {
		t.Error("expected error for unparsable date")
	}
}

func TestOnKey(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	o := OnOptions{}
	if _, err := o.Key(workflow.Process, now); err == nil {
		t.Fatal("expected missing unit error")
	}
	o.Unit = "DISA-1"
	key, err := o.Key(workflow.Process, now)
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if key.Date != "2024-05-01" || key.Unit != "DISA-1" {
		t.Fatalf("unexpected key %+v", key)
	}
}

func TestTableResolve(t *testing.T) {
	o := TableOptions{}
	all, err := o.Resolve(workflow.Sand)
	if err != nil || len(all) != 5 {
		t.Fatalf("Resolve() = %d tables, %v", len(all), err)
	}

	o.Tables = []string{"clayTests", "3"}
	got, err := o.Resolve(workflow.Sand)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(got) != 2 || got[0].Num != workflow.ClayTests || got[1].Num != workflow.MixRun {
		t.Fatalf("unexpected tables %v", got)
	}
	if _, err := o.One(workflow.Sand); err == nil {
		t.Fatal("expected One to refuse two tables")
	}

	o.Tables = []string{"nope"}
	if _, err := o.Resolve(workflow.Sand); err == nil {
		t.Fatal("expected unknown table error")
	}
}

func TestFormat(t *testing.T) {
	o := FormatOptions{Output: printers.FormatYAML}
	if got, _ := o.Format(true); got != printers.FormatJSON {
		t.Fatalf("--json should win, got %q", got)
	}
	if got, _ := o.Format(false); got != printers.FormatYAML {
		t.Fatalf("got %q", got)
	}
	o.Output = "xml"
	if _, err := o.Format(false); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestWindowDuration(t *testing.T) {
	o := WindowOptions{}
	if d, _, err := o.Duration(); err != nil || d != 0 {
		t.Fatalf("empty window = %v, %v", d, err)
	}
	o.Window = "1h"
	if d, _, err := o.Duration(); err != nil || d != time.Hour {
		t.Fatalf("1h = %v, %v", d, err)
	}
}
