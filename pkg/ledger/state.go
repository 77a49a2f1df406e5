package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownField is returned for paths the table does not define.
	ErrUnknownField = errors.New("ledger: unknown field")
	// ErrLocked is returned when an operation would touch a committed value.
	ErrLocked = errors.New("ledger: path is locked")
	// ErrNotTrailing is returned when a row operation targets a row other than
	// the last one.
	ErrNotTrailing = errors.New("ledger: only the trailing slot can be changed")
	// ErrLastSlot is returned when removing would leave no editable slot.
	ErrLastSlot = errors.New("ledger: cannot remove the last editable slot")
)

// Slot is one row of a sequence as shown to the operator. Committed rows are
// read-only; new input is only typed into editable rows.
type Slot struct {
	Cells    []string
	ReadOnly bool
}

type scalarSlot struct {
	value    string
	readOnly bool
}

type sequenceState struct {
	section Section
	spec    *Sequence
	// committed is the number of rows the server already holds.
	committed int
	// colCommitted is the stored length of each column array; columns of
	// legacy records may be shorter than committed.
	colCommitted []int
	rows         []Slot
}

// State is the editable representation of one table: committed values shown
// read-only plus the operator's unsaved input.
type State struct {
	table   *Table
	locks   LockMap
	scalars map[string]*scalarSlot
	seqs    map[string]*sequenceState
}

// Hydrate builds the editable state of t from the fetched document and the
// lock map derived from it. Every sequence gets one read-only slot per
// committed row and exactly one blank editable slot after them.
func Hydrate(t *Table, doc Document, locks LockMap) *State {
	s := &State{
		table:   t,
		locks:   locks,
		scalars: make(map[string]*scalarSlot),
		seqs:    make(map[string]*sequenceState),
	}
	for si := range t.Sections {
		sec := &t.Sections[si]
		for _, sc := range sec.Scalars {
			slot := &scalarSlot{}
			if locks.Contains(ScalarPath(sec.Section, sc.Name)) {
				v, _ := doc.Lookup(sec.Section, sc.Wire...)
				slot.value = Text(v)
				slot.readOnly = true
			}
			s.scalars[fieldKey(sec.Section, sc.Name)] = slot
		}
		for i := range sec.Sequences {
			seq := &sec.Sequences[i]
			s.seqs[fieldKey(sec.Section, seq.Name)] = hydrateSequence(sec.Section, seq, doc)
		}
	}
	return s
}

func hydrateSequence(section Section, seq *Sequence, doc Document) *sequenceState {
	ss := &sequenceState{section: section, spec: seq, colCommitted: make([]int, len(seq.Columns))}
	switch seq.Layout {
	case Columnar:
		cols := make([][]any, len(seq.Columns))
		for c, col := range seq.Columns {
			v, _ := doc.Lookup(section, col.Wire...)
			cols[c] = asSlice(v)
			ss.colCommitted[c] = len(cols[c])
			if len(cols[c]) > ss.committed {
				ss.committed = len(cols[c])
			}
		}
		for idx := 0; idx < ss.committed; idx++ {
			cells := make([]string, len(seq.Columns))
			for c := range seq.Columns {
				if idx < len(cols[c]) {
					cells[c] = Text(cols[c][idx])
				}
			}
			ss.rows = append(ss.rows, Slot{Cells: cells, ReadOnly: true})
		}
	case Objects:
		v, _ := doc.Lookup(section, seq.Wire...)
		rows := asSlice(v)
		ss.committed = len(rows)
		for c := range ss.colCommitted {
			ss.colCommitted[c] = len(rows)
		}
		for _, row := range rows {
			cells := make([]string, len(seq.Columns))
			if obj, ok := asMap(row); ok {
				for c, col := range seq.Columns {
					if x, ok := lookup(obj, col.Wire); ok {
						cells[c] = Text(x)
					}
				}
			}
			ss.rows = append(ss.rows, Slot{Cells: cells, ReadOnly: true})
		}
	}
	ss.rows = append(ss.rows, blankSlot(len(seq.Columns)))
	return ss
}

func blankSlot(n int) Slot {
	return Slot{Cells: make([]string, n)}
}

// Table returns the schema the state was hydrated for.
func (s *State) Table() *Table { return s.table }

// LockMap returns the lock map the state was hydrated with.
func (s *State) LockMap() LockMap { return s.locks }

// Set stores v at p. It is a no-op returning false when p is unknown or
// already committed.
func (s *State) Set(p FieldPath, v string) bool {
	if !s.Editable(p) {
		return false
	}
	ref, _ := s.table.resolve(p)
	if ref.kind == refScalar {
		s.scalars[fieldKey(p.Section, p.Field)].value = v
		return true
	}
	ss := s.seqs[fieldKey(p.Section, ref.seq.Name)]
	ss.rows[p.Index].Cells[ref.col] = v
	return true
}

// Editable reports whether an operator may type into p.
func (s *State) Editable(p FieldPath) bool {
	ref, ok := s.table.resolve(p)
	if !ok || s.locks.Locked(p) {
		return false
	}
	switch ref.kind {
	case refScalar:
		return !s.scalars[fieldKey(p.Section, p.Field)].readOnly
	case refEntries:
		if ref.col < 0 {
			return false
		}
	}
	ss := s.seqs[fieldKey(p.Section, ref.seq.Name)]
	if p.Index >= len(ss.rows) || ss.rows[p.Index].ReadOnly {
		return false
	}
	return !s.rowLocked(ss, p.Index)
}

// CheckEdit reports why Set would refuse p: ErrUnknownField for paths the
// table does not define, ErrNotTrailing for rows past the trailing slot and
// ErrLocked for committed or read-only values.
func (s *State) CheckEdit(p FieldPath) error {
	ref, ok := s.table.resolve(p)
	if !ok || (ref.kind == refEntries && ref.col < 0) {
		return fmt.Errorf("%w: %s", ErrUnknownField, p)
	}
	if ref.kind != refScalar {
		ss := s.seqs[fieldKey(p.Section, ref.seq.Name)]
		if p.Index >= len(ss.rows) {
			return fmt.Errorf("%w: %s (trailing index is %d)", ErrNotTrailing, p, len(ss.rows)-1)
		}
	}
	if !s.Editable(p) {
		return fmt.Errorf("%w: %s", ErrLocked, p)
	}
	return nil
}

func (s *State) rowLocked(ss *sequenceState, idx int) bool {
	for c := range ss.spec.Columns {
		if s.locks.Contains(cellPath(ss.section, ss.spec, idx, c)) {
			return true
		}
	}
	return false
}

// Get returns the value shown at p.
func (s *State) Get(p FieldPath) (string, bool) {
	ref, ok := s.table.resolve(p)
	if !ok {
		return "", false
	}
	if ref.kind == refScalar {
		return s.scalars[fieldKey(p.Section, p.Field)].value, true
	}
	if ref.col < 0 {
		return "", false
	}
	ss := s.seqs[fieldKey(p.Section, ref.seq.Name)]
	if p.Index >= len(ss.rows) {
		return "", false
	}
	return ss.rows[p.Index].Cells[ref.col], true
}

// Scalar returns the shown value of a scalar and whether it is read-only.
func (s *State) Scalar(section Section, name string) (value string, readOnly bool, ok bool) {
	slot, ok := s.scalars[fieldKey(section, name)]
	if !ok {
		return "", false, false
	}
	return slot.value, slot.readOnly, true
}

// Rows returns a copy of the rows of the named sequence.
func (s *State) Rows(section Section, sequence string) []Slot {
	ss, ok := s.seqs[fieldKey(section, sequence)]
	if !ok {
		return nil
	}
	out := make([]Slot, len(ss.rows))
	for i, r := range ss.rows {
		out[i] = Slot{Cells: append([]string(nil), r.Cells...), ReadOnly: r.ReadOnly}
	}
	return out
}

// Committed returns how many rows of the named sequence the server holds.
func (s *State) Committed(section Section, sequence string) int {
	if ss, ok := s.seqs[fieldKey(section, sequence)]; ok {
		return ss.committed
	}
	return 0
}

// EditPath returns the path of row i, column c of the named sequence.
func (s *State) EditPath(section Section, sequence string, i, c int) (FieldPath, error) {
	ss, ok := s.seqs[fieldKey(section, sequence)]
	if !ok || c < 0 || c >= len(ss.spec.Columns) {
		return FieldPath{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, section, sequence)
	}
	return editPath(section, ss.spec, i, c), nil
}

// Dirty reports whether any editable slot holds unsaved input.
func (s *State) Dirty() bool {
	for _, sc := range s.scalars {
		if !sc.readOnly && strings.TrimSpace(sc.value) != "" {
			return true
		}
	}
	for _, ss := range s.seqs {
		for _, r := range ss.rows[ss.committed:] {
			if !cellsBlank(r.Cells) {
				return true
			}
		}
	}
	return false
}

// Carry copies unsaved input from prev into s wherever the same slot is
// still editable, growing sequences as needed. Input for slots that became
// committed in the meantime is dropped.
func (s *State) Carry(prev *State) {
	if prev == nil || prev.table != s.table {
		return
	}
	for k, old := range prev.scalars {
		cur, ok := s.scalars[k]
		if ok && !old.readOnly && !cur.readOnly && strings.TrimSpace(old.value) != "" {
			cur.value = old.value
		}
	}
	for k, old := range prev.seqs {
		cur, ok := s.seqs[k]
		if !ok {
			continue
		}
		var pending []Slot
		for _, r := range old.rows[old.committed:] {
			if !cellsBlank(r.Cells) {
				pending = append(pending, Slot{Cells: append([]string(nil), r.Cells...)})
			}
		}
		if len(pending) == 0 {
			continue
		}
		cur.rows = append(cur.rows[:cur.committed], pending...)
		cur.rows = append(cur.rows, blankSlot(len(cur.spec.Columns)))
	}
}

func cellsBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
