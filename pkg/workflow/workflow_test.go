package workflow

import (
	"errors"
	"testing"

	"tableflip.dev/sandlab/pkg/ledger"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"sand", " Sand ", "process"} {
		if _, err := Lookup(name); err != nil {
			t.Errorf("Lookup(%q) = %v", name, err)
		}
	}
	if _, err := Lookup("paint"); err == nil {
		t.Error("expected error for unknown workflow")
	}
	if got := Names(); len(got) != 2 || got[0] != "process" || got[1] != "sand" {
		t.Errorf("Names() = %v", got)
	}
}

func TestSandTables(t *testing.T) {
	if len(Sand.Tables) != 5 {
		t.Fatalf("expected 5 tables, got %d", len(Sand.Tables))
	}
	for i, tbl := range Sand.Tables {
		if tbl.Num != i+1 {
			t.Errorf("table %d has number %d", i, tbl.Num)
		}
	}
	mix, ok := Sand.TableByName("mixRun")
	if !ok || mix.Num != MixRun {
		t.Fatalf("TableByName(mixRun) = %v, %v", mix, ok)
	}
	if _, ok := Sand.TableByName("3"); !ok {
		t.Error("expected lookup by number")
	}
	if _, ok := Sand.Table(9); ok {
		t.Error("unexpected table 9")
	}
}

func TestMixRunWireNames(t *testing.T) {
	mix, _ := Sand.Table(MixRun)
	s := ledger.Hydrate(mix, nil, ledger.NewLockMap())
	sec := ledger.ShiftII.Section()
	if !s.Set(ledger.SeqPath(sec, "mixNoStart", 0), "101") {
		t.Fatal("mixNoStart not editable")
	}
	if !s.Set(ledger.ScalarPath(ledger.SectionTotal, "mixNoTotal"), "55") {
		t.Fatal("total mixNoTotal not editable")
	}
	p := ledger.BuildDelta(s)
	if v, ok := p.Data.Lookup(sec, "mixno", "start"); !ok || len(v.([]any)) != 1 {
		t.Errorf("shiftII.mixno.start = %v", v)
	}
	if v, ok := p.Data.Lookup(ledger.SectionTotal, "mixno", "total"); !ok || v != "55" {
		t.Errorf("total.mixno.total = %v", v)
	}
	// The row group is rectangular even though only one column was typed.
	if v, ok := p.Data.Lookup(sec, "returnSandHopperLevel"); !ok || len(v.([]any)) != 1 {
		t.Errorf("shiftII.returnSandHopperLevel = %v", v)
	}
}

func TestEventsTable(t *testing.T) {
	ev, _ := Sand.Table(Events)
	s := ledger.Hydrate(ev, nil, ledger.NewLockMap())
	if !s.Set(ledger.CellPath("log", "entries", 0, "event"), "sand lump") {
		t.Fatal("event cell not editable")
	}
	p := ledger.BuildDelta(s)
	v, ok := p.Data.Lookup("log", "entries")
	if !ok {
		t.Fatal("no entries in delta")
	}
	row := v.([]any)[0].(map[string]any)
	if row["sno"] != 1 || row["event"] != "sand lump" {
		t.Errorf("row = %v", row)
	}
}

func TestKey(t *testing.T) {
	if _, err := Sand.Key("2024-05-01", ""); err != nil {
		t.Errorf("sand key: %v", err)
	}
	if _, err := Sand.Key("2024-05-01", "DISA-1"); !errors.Is(err, ledger.ErrInvalidKey) {
		t.Errorf("sand with unit: %v", err)
	}
	if _, err := Process.Key("2024-05-01", ""); !errors.Is(err, ledger.ErrInvalidKey) {
		t.Errorf("process without unit: %v", err)
	}
	k, err := Process.Key("2024-05-01", "DISA-1")
	if err != nil || k.Unit != "DISA-1" {
		t.Errorf("process key = %v, %v", k, err)
	}
}
