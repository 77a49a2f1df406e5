package ledger_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableflip.dev/sandlab/pkg/ledger"
)

func sandAddition(t *testing.T) *ledger.Table {
	t.Helper()
	tbl, err := ledger.NewTable(1, "sandAddition", "Sand addition",
		ledger.ShiftSections(nil, ledger.Lists("rSand", "bentonite"))...)
	require.NoError(t, err)
	return tbl
}

func mixRun(t *testing.T) *ledger.Table {
	t.Helper()
	tbl, err := ledger.NewTable(3, "mixRun", "Mix run",
		append(ledger.ShiftSections(nil, []ledger.Sequence{{
			Name: "mix",
			Columns: []ledger.Column{
				{Name: "mixNoStart", Wire: ledger.Wire("mixno.start")},
				{Name: "mixNoEnd", Wire: ledger.Wire("mixno.end")},
				{Name: "noOfMixRejected"},
			},
		}}), ledger.SectionSpec{
			Section: ledger.SectionTotal,
			Scalars: []ledger.Scalar{{Name: "mixNoEnd", Wire: ledger.Wire("mixno.end")}},
		})...)
	require.NoError(t, err)
	return tbl
}

func events(t *testing.T) *ledger.Table {
	t.Helper()
	tbl, err := ledger.NewTable(5, "events", "Events", ledger.SectionSpec{
		Section: "log",
		Sequences: []ledger.Sequence{{
			Name:    "entries",
			Layout:  ledger.Objects,
			Tag:     "sno",
			Columns: []ledger.Column{{Name: "time"}, {Name: "remarks"}},
		}},
	})
	require.NoError(t, err)
	return tbl
}

func doc(t *testing.T, s string) ledger.Document {
	t.Helper()
	var d ledger.Document
	require.NoError(t, json.Unmarshal([]byte(s), &d))
	return d
}

// roundTrip mimics the wire: the payload is encoded and decoded before the
// server merges it.
func roundTrip(t *testing.T, p ledger.Payload) ledger.Document {
	t.Helper()
	b, err := json.Marshal(p.Data)
	require.NoError(t, err)
	return doc(t, string(b))
}

func hydrate(tbl *ledger.Table, d ledger.Document) *ledger.State {
	return ledger.Hydrate(tbl, d, ledger.DeriveLockMap(tbl, d))
}

func TestFieldPathRoundTrip(t *testing.T) {
	tests := []ledger.FieldPath{
		ledger.ScalarPath(ledger.SectionTotal, "mixNoEnd"),
		ledger.SeqPath(ledger.ShiftII.Section(), "bentonite", 2),
		ledger.CellPath("log", "entries", 0, "remarks"),
	}
	want := []string{"total.mixNoEnd", "shiftII.bentonite[2]", "log.entries[0].remarks"}
	for i, p := range tests {
		assert.Equal(t, want[i], p.String())
		got, err := ledger.ParsePath(want[i])
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestParsePathRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "shiftI", ".rSand", "shiftI.", "shiftI.rSand[", "shiftI.rSand[x]", "shiftI.rSand[-1]", "shiftI.rSand[0]x", "shiftI.rSand[0].a.b"} {
		_, err := ledger.ParsePath(s)
		assert.Error(t, err, s)
	}
}

func TestParseShift(t *testing.T) {
	for in, want := range map[string]ledger.Shift{"I": ledger.ShiftI, "2": ledger.ShiftII, "shiftIII": ledger.ShiftIII} {
		got, err := ledger.ParseShift(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ledger.ParseShift("IV")
	assert.Error(t, err)
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	_, err := ledger.NewTable(1, "dup", "dup", ledger.SectionSpec{
		Section:   ledger.ShiftI.Section(),
		Scalars:   ledger.Scalars("rSand"),
		Sequences: ledger.Lists("rSand"),
	})
	assert.True(t, errors.Is(err, ledger.ErrInvalidSchema))
}

func TestParseKey(t *testing.T) {
	k, err := ledger.ParseKey(" 2024-05-01 ", "DISA-1")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01/DISA-1", k.String())

	for _, bad := range []string{"", "2024-13-01", "01/05/2024"} {
		_, err := ledger.ParseKey(bad, "")
		assert.ErrorIs(t, err, ledger.ErrInvalidKey, bad)
	}
	_, err = ledger.ParseKey("2024-05-01", "a/b")
	assert.ErrorIs(t, err, ledger.ErrInvalidKey)
}

func TestDeriveLockMapEmpty(t *testing.T) {
	tbl := sandAddition(t)
	assert.Equal(t, 0, ledger.DeriveLockMap(tbl, nil).Len())
	// A record pre-created by the daily initializer is treated like no record.
	assert.Equal(t, 0, ledger.DeriveLockMap(tbl, doc(t, `{"shiftI":{"rSand":[]},"shiftII":{}}`)).Len())
}

func TestDeriveLockMapSkipsBlanks(t *testing.T) {
	tbl := sandAddition(t)
	m := ledger.DeriveLockMap(tbl, doc(t, `{"shiftII":{"bentonite":["1.2","  ","1.4"]}}`))
	assert.Equal(t, []string{"shiftII.bentonite[0]", "shiftII.bentonite[2]"}, pathStrings(m.Paths()))
}

func TestHydrationFidelity(t *testing.T) {
	tbl := sandAddition(t)
	s := hydrate(tbl, doc(t, `{"shiftI":{"rSand":["120","95","80"]}}`))
	rows := s.Rows(ledger.ShiftI.Section(), "rSand")
	require.Len(t, rows, 4)
	for i := 0; i < 3; i++ {
		assert.True(t, rows[i].ReadOnly)
	}
	assert.False(t, rows[3].ReadOnly)
	assert.Equal(t, []string{""}, rows[3].Cells)

	empty := s.Rows(ledger.ShiftIII.Section(), "bentonite")
	require.Len(t, empty, 1)
	assert.False(t, empty[0].ReadOnly)
}

func TestScenarioFirstAndSecondOperator(t *testing.T) {
	tbl := sandAddition(t)
	first := ledger.SeqPath(ledger.ShiftI.Section(), "rSand", 0)

	// 2024-05-01, empty record: operator I enters 120.
	s := hydrate(tbl, nil)
	require.True(t, s.Set(first, "120"))
	delta := ledger.BuildDelta(s)
	if diff := cmp.Diff(doc(t, `{"shiftI":{"rSand":["120"]}}`), roundTrip(t, delta)); diff != "" {
		t.Fatalf("first delta mismatch (-want +got):\n%s", diff)
	}
	stored, rep := ledger.Merge(nil, roundTrip(t, delta))
	assert.Equal(t, 1, rep.Appended)

	// Re-fetch.
	s = hydrate(tbl, stored)
	assert.True(t, s.LockMap().Contains(first))
	rows := s.Rows(ledger.ShiftI.Section(), "rSand")
	require.Len(t, rows, 2)
	assert.Equal(t, slot("120", true), rows[0])
	assert.Equal(t, slot("", false), rows[1])

	// Re-typing over a committed slot is a no-op.
	assert.False(t, s.Set(first, "999"))
	v, _ := s.Get(first)
	assert.Equal(t, "120", v)

	// Second operator appends 95: only the new entry is sent.
	require.True(t, s.Set(ledger.SeqPath(ledger.ShiftI.Section(), "rSand", 1), "95"))
	delta = ledger.BuildDelta(s)
	if diff := cmp.Diff(doc(t, `{"shiftI":{"rSand":["95"]}}`), roundTrip(t, delta)); diff != "" {
		t.Fatalf("second delta mismatch (-want +got):\n%s", diff)
	}
	stored, _ = ledger.Merge(stored, roundTrip(t, delta))
	assert.Equal(t, doc(t, `{"shiftI":{"rSand":["120","95"]}}`), stored)
}

func slot(v string, ro bool) ledger.Slot {
	return ledger.Slot{Cells: []string{v}, ReadOnly: ro}
}

func TestDeltaMinimality(t *testing.T) {
	tbl := mixRun(t)
	stored := doc(t, `{
		"shiftI":{"mixno":{"start":["1","5"],"end":["4","9"]},"noOfMixRejected":["0","1"]},
		"total":{"mixno":{"end":"40"}}
	}`)
	s := hydrate(tbl, stored)
	locks := s.LockMap()

	// Try to write everywhere, locked or not.
	for _, sec := range []ledger.Section{ledger.ShiftI.Section(), ledger.ShiftII.Section()} {
		for i := 0; i < 3; i++ {
			for _, f := range []string{"mixNoStart", "mixNoEnd", "noOfMixRejected"} {
				s.Set(ledger.SeqPath(sec, f, i), "7")
			}
		}
	}
	s.Set(ledger.ScalarPath(ledger.SectionTotal, "mixNoEnd"), "41")

	delta := ledger.BuildDelta(s)
	require.False(t, delta.Empty())
	for _, p := range delta.Paths() {
		assert.False(t, locks.Locked(p), "delta contains locked path %s", p)
	}
	want := doc(t, `{
		"shiftI":{"mixno":{"start":["7"],"end":["7"]},"noOfMixRejected":["7"]},
		"shiftII":{"mixno":{"start":["7"],"end":["7"]},"noOfMixRejected":["7"]}
	}`)
	if diff := cmp.Diff(want, roundTrip(t, delta)); diff != "" {
		t.Fatalf("delta mismatch (-want +got):\n%s", diff)
	}
}

func TestRowGroupDeltaRepairsAlignment(t *testing.T) {
	tbl := mixRun(t)
	// Legacy record: start grew without end.
	stored := doc(t, `{"shiftI":{"mixno":{"start":["1","5","10"],"end":["4","9"]}}}`)
	s := hydrate(tbl, stored)
	rows := s.Rows(ledger.ShiftI.Section(), "mix")
	require.Len(t, rows, 4)
	assert.True(t, rows[2].ReadOnly)
	assert.False(t, s.Editable(ledger.SeqPath(ledger.ShiftI.Section(), "mixNoEnd", 2)))

	require.True(t, s.Set(ledger.SeqPath(ledger.ShiftI.Section(), "mixNoStart", 3), "15"))
	require.True(t, s.Set(ledger.SeqPath(ledger.ShiftI.Section(), "mixNoEnd", 3), "19"))
	merged, _ := ledger.Merge(stored, roundTrip(t, ledger.BuildDelta(s)))

	start, _ := merged.Lookup(ledger.ShiftI.Section(), "mixno", "start")
	end, _ := merged.Lookup(ledger.ShiftI.Section(), "mixno", "end")
	rejected, _ := merged.Lookup(ledger.ShiftI.Section(), "noOfMixRejected")
	assert.Len(t, start, 4)
	assert.Len(t, end, 4)
	assert.Len(t, rejected, 4)
	assert.Equal(t, "19", end.([]any)[3])
}

func TestEmptyDeltaIsIdempotent(t *testing.T) {
	tbl := mixRun(t)
	stored := doc(t, `{"shiftI":{"mixno":{"start":["1"],"end":["4"]}},"total":{"noOfMixRejected":"2"}}`)
	s := hydrate(tbl, stored)
	s.Set(ledger.SeqPath(ledger.ShiftI.Section(), "mixNoStart", 1), "   ")

	delta := ledger.BuildDelta(s)
	assert.True(t, delta.Empty())
	after, rep := ledger.Merge(stored, roundTrip(t, delta))
	assert.False(t, rep.Changed())
	assert.Equal(t, stored, after)
}

func TestAppendOnlyGrowth(t *testing.T) {
	tbl := sandAddition(t)
	stored := doc(t, `{"shiftII":{"bentonite":["1.1","1.2"]}}`)
	s := hydrate(tbl, stored)
	sec := ledger.ShiftII.Section()

	require.True(t, s.Set(ledger.SeqPath(sec, "bentonite", 2), "1.3"))
	require.NoError(t, s.Append(ledger.SeqPath(sec, "bentonite", 2)))
	require.NoError(t, s.Append(ledger.SeqPath(sec, "bentonite", 3)))
	require.True(t, s.Set(ledger.SeqPath(sec, "bentonite", 4), "1.5"))

	merged, rep := ledger.Merge(stored, roundTrip(t, ledger.BuildDelta(s)))
	assert.Equal(t, 2, rep.Appended)
	got, _ := merged.Lookup(sec, "bentonite")
	assert.Equal(t, []any{"1.1", "1.2", "1.3", "1.5"}, got)
}

func TestArrayEditorRules(t *testing.T) {
	tbl := sandAddition(t)
	sec := ledger.ShiftI.Section()
	s := hydrate(tbl, doc(t, `{"shiftI":{"rSand":["120"]}}`))

	assert.ErrorIs(t, s.Append(ledger.SeqPath(sec, "rSand", 0)), ledger.ErrNotTrailing)
	assert.ErrorIs(t, s.Remove(ledger.SeqPath(sec, "rSand", 1)), ledger.ErrLastSlot)
	assert.ErrorIs(t, s.Append(ledger.SeqPath(sec, "nope", 1)), ledger.ErrUnknownField)

	require.NoError(t, s.Append(ledger.SeqPath(sec, "rSand", 1)))
	require.Len(t, s.Rows(sec, "rSand"), 3)
	require.NoError(t, s.Remove(ledger.SeqPath(sec, "rSand", 2)))
	require.Len(t, s.Rows(sec, "rSand"), 2)

	trailing, ok := s.Trailing(sec, "rSand")
	require.True(t, ok)
	assert.Equal(t, "shiftI.rSand[1]", trailing.String())
}

func TestArrayEditorRowGroupMovesTogether(t *testing.T) {
	tbl := mixRun(t)
	sec := ledger.ShiftI.Section()
	s := hydrate(tbl, nil)
	require.NoError(t, s.Append(ledger.SeqPath(sec, "mixNoEnd", 0)))
	rows := s.Rows(sec, "mix")
	require.Len(t, rows, 2)
	assert.Len(t, rows[1].Cells, 3)
	require.NoError(t, s.Remove(ledger.SeqPath(sec, "mix", 1)))
}

func TestObjectsSequenceStampsRunningNumber(t *testing.T) {
	tbl := events(t)
	stored := doc(t, `{"log":{"entries":[{"sno":1,"time":"06:10","remarks":"start"}]}}`)
	s := hydrate(tbl, stored)
	assert.True(t, s.LockMap().Contains(ledger.SeqPath("log", "entries", 0)))
	assert.False(t, s.Set(ledger.CellPath("log", "entries", 0, "remarks"), "edited"))

	require.True(t, s.Set(ledger.CellPath("log", "entries", 1, "remarks"), "mould shift"))
	delta := roundTrip(t, ledger.BuildDelta(s))
	want := doc(t, `{"log":{"entries":[{"sno":2,"time":"","remarks":"mould shift"}]}}`)
	if diff := cmp.Diff(want, delta); diff != "" {
		t.Fatalf("delta mismatch (-want +got):\n%s", diff)
	}
}

func TestLockMonotonicity(t *testing.T) {
	tbl := sandAddition(t)
	sec := ledger.ShiftI.Section()
	var stored ledger.Document
	var history []ledger.LockMap
	for i, v := range []string{"120", "95", "80"} {
		s := hydrate(tbl, stored)
		history = append(history, s.LockMap())
		require.True(t, s.Set(ledger.SeqPath(sec, "rSand", i), v))
		stored, _ = ledger.Merge(stored, roundTrip(t, ledger.BuildDelta(s)))
	}
	final := ledger.DeriveLockMap(tbl, stored)
	for i, earlier := range history {
		assert.True(t, final.IsSupersetOf(earlier), "after 3 submissions vs %d", i)
	}
	assert.Equal(t, 3, final.Len())
}

func TestMergeWriteOnceScalars(t *testing.T) {
	stored := doc(t, `{"total":{"noOfMixRejected":"2"}}`)
	merged, rep := ledger.Merge(stored, doc(t, `{"total":{"noOfMixRejected":"3","mixno":{"end":"40"}}}`))
	assert.Equal(t, []string{"total.noOfMixRejected"}, rep.Rejected)
	assert.Equal(t, 1, rep.Accepted)
	v, _ := merged.Lookup(ledger.SectionTotal, "noOfMixRejected")
	assert.Equal(t, "2", v)
	// The stored document passed in is not modified.
	_, ok := stored.Lookup(ledger.SectionTotal, "mixno")
	assert.False(t, ok)
}

func TestMergeConcurrentDeltasCommute(t *testing.T) {
	base := doc(t, `{"shiftI":{"rSand":["120"]}}`)
	a := doc(t, `{"shiftI":{"rSand":["95"]}}`)
	b := doc(t, `{"shiftI":{"rSand":["80"]},"shiftII":{"rSand":["60"]}}`)

	ab, _ := ledger.Merge(base, a)
	ab, _ = ledger.Merge(ab, b)
	ba, _ := ledger.Merge(base, b)
	ba, _ = ledger.Merge(ba, a)

	for _, d := range []ledger.Document{ab, ba} {
		v, _ := d.Lookup(ledger.ShiftI.Section(), "rSand")
		assert.ElementsMatch(t, []any{"120", "95", "80"}, v)
		assert.Equal(t, "120", v.([]any)[0])
	}
}

func TestCarryKeepsUnsavedInput(t *testing.T) {
	tbl := sandAddition(t)
	sec := ledger.ShiftI.Section()
	prev := hydrate(tbl, nil)
	require.True(t, prev.Set(ledger.SeqPath(sec, "rSand", 0), "120"))

	// Someone else committed bentonite meanwhile.
	next := hydrate(tbl, doc(t, `{"shiftI":{"bentonite":["1.1"]}}`))
	next.Carry(prev)
	v, ok := next.Get(ledger.SeqPath(sec, "rSand", 0))
	require.True(t, ok)
	assert.Equal(t, "120", v)
	assert.True(t, next.Dirty())
}

func TestRecordJSON(t *testing.T) {
	rec := ledger.NewRecord(ledger.Key{Date: "2024-05-01", Unit: "DISA-1"})
	rec.Tables[3] = doc(t, `{"shiftI":{"mixno":{"start":["1"]}}}`)
	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var back ledger.Record
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, rec.Key, back.Key)
	assert.Equal(t, rec.Tables[3], back.Tables[3])
	assert.False(t, back.IsEmpty())
	assert.True(t, ledger.NewRecord(rec.Key).IsEmpty())
}

func pathStrings(ps []ledger.FieldPath) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

func TestValidateDelta(t *testing.T) {
	tests := []struct {
		name  string
		table func(*testing.T) *ledger.Table
		delta string
		ok    bool
	}{
		{"columnar append", sandAddition, `{"shiftI":{"rSand":["120"],"bentonite":["1.1",null]}}`, true},
		{"empty", sandAddition, `{}`, true},
		{"nested wire", mixRun, `{"shiftI":{"mixno":{"start":["1"]}},"total":{"mixno":{"end":"40"}}}`, true},
		{"objects rows", events, `{"log":{"entries":[{"sno":1,"time":"06:10","remarks":"start"}]}}`, true},
		{"scalar where a list is stored", sandAddition, `{"shiftI":{"rSand":"120"}}`, false},
		{"unknown field", sandAddition, `{"shiftI":{"rSand":["120"],"bogus":"x"}}`, false},
		{"unknown section", sandAddition, `{"shiftIV":{"rSand":["120"]}}`, false},
		{"nested list cell", sandAddition, `{"shiftI":{"rSand":[["120"]]}}`, false},
		{"list where a value is stored", mixRun, `{"total":{"mixno":{"end":["40"]}}}`, false},
		{"section not an object", sandAddition, `{"shiftI":"120"}`, false},
		{"row not an object", events, `{"log":{"entries":["start"]}}`, false},
		{"unknown row column", events, `{"log":{"entries":[{"sno":1,"operator":"ravi"}]}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.ValidateDelta(tt.table(t), doc(t, tt.delta))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ledger.ErrInvalidDelta)
		})
	}
}

func TestValidateDeltaAcceptsBuiltDeltas(t *testing.T) {
	tbl := events(t)
	s := hydrate(tbl, nil)
	require.True(t, s.Set(ledger.CellPath("log", "entries", 0, "time"), "06:10"))
	assert.NoError(t, ledger.ValidateDelta(tbl, roundTrip(t, ledger.BuildDelta(s))))

	mix := mixRun(t)
	s = hydrate(mix, nil)
	require.True(t, s.Set(ledger.SeqPath(ledger.ShiftI.Section(), "mixNoStart", 0), "1"))
	require.True(t, s.Set(ledger.ScalarPath(ledger.SectionTotal, "mixNoEnd"), "40"))
	assert.NoError(t, ledger.ValidateDelta(mix, roundTrip(t, ledger.BuildDelta(s))))
}

func TestCheckEdit(t *testing.T) {
	tbl := sandAddition(t)
	sec := ledger.ShiftI.Section()
	s := hydrate(tbl, doc(t, `{"shiftI":{"rSand":["120"]}}`))

	assert.NoError(t, s.CheckEdit(ledger.SeqPath(sec, "rSand", 1)))
	assert.ErrorIs(t, s.CheckEdit(ledger.SeqPath(sec, "rSand", 0)), ledger.ErrLocked)
	assert.ErrorIs(t, s.CheckEdit(ledger.SeqPath(sec, "rSand", 3)), ledger.ErrNotTrailing)
	assert.ErrorIs(t, s.CheckEdit(ledger.SeqPath(sec, "nope", 0)), ledger.ErrUnknownField)
	assert.False(t, s.Set(ledger.SeqPath(sec, "rSand", 3), "95"))
}
