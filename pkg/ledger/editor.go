package ledger

import "fmt"

// Append adds a blank editable row after the trailing row of the sequence p
// belongs to. p must address the trailing row, which must be editable. All
// columns of an aligned row group grow together.
func (s *State) Append(p FieldPath) error {
	ss, err := s.trailing(p)
	if err != nil {
		return err
	}
	last := len(ss.rows) - 1
	if ss.rows[last].ReadOnly || s.rowLocked(ss, last) {
		return fmt.Errorf("%w: %s", ErrLocked, p)
	}
	ss.rows = append(ss.rows, blankSlot(len(ss.spec.Columns)))
	return nil
}

// Remove drops the trailing row of the sequence p belongs to. Committed rows
// are never removed, and the last editable row always stays.
func (s *State) Remove(p FieldPath) error {
	ss, err := s.trailing(p)
	if err != nil {
		return err
	}
	last := len(ss.rows) - 1
	if ss.rows[last].ReadOnly || s.rowLocked(ss, last) {
		return fmt.Errorf("%w: %s", ErrLocked, p)
	}
	if len(ss.rows)-ss.committed <= 1 {
		return fmt.Errorf("%w: %s", ErrLastSlot, p)
	}
	ss.rows = ss.rows[:last]
	return nil
}

// Trailing returns the path of the last row of the named sequence.
func (s *State) Trailing(section Section, sequence string) (FieldPath, bool) {
	ss, ok := s.seqs[fieldKey(section, sequence)]
	if !ok {
		return FieldPath{}, false
	}
	return editPath(section, ss.spec, len(ss.rows)-1, 0).Row(), true
}

func (s *State) trailing(p FieldPath) (*sequenceState, error) {
	_, seq, ok := s.table.sequenceFor(p)
	if !ok || p.IsScalar() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, p)
	}
	ss := s.seqs[fieldKey(p.Section, seq.Name)]
	if p.Index != len(ss.rows)-1 {
		return nil, fmt.Errorf("%w: %s (trailing index is %d)", ErrNotTrailing, p, len(ss.rows)-1)
	}
	return ss, nil
}
