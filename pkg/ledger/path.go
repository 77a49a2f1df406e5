// Package ledger implements the per-date incremental ledger used by the lab
// recording workflows: write-once scalars, append-only sequences, the lock map
// derived from the last fetched record, the editable state built from it and
// the minimal delta sent back to the storage engine.
package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// Shift is one of the three working shifts of a day.
type Shift int

const (
	ShiftI Shift = iota
	ShiftII
	ShiftIII
)

var shiftKeys = [...]string{"shiftI", "shiftII", "shiftIII"}

// Shifts returns every shift in day order.
func Shifts() []Shift {
	return []Shift{ShiftI, ShiftII, ShiftIII}
}

// Key is the record key used for the shift, e.g. "shiftII".
func (s Shift) Key() string {
	if s < ShiftI || s > ShiftIII {
		return fmt.Sprintf("shift(%d)", int(s))
	}
	return shiftKeys[s]
}

func (s Shift) String() string {
	switch s {
	case ShiftI:
		return "I"
	case ShiftII:
		return "II"
	case ShiftIII:
		return "III"
	default:
		return strconv.Itoa(int(s))
	}
}

// Section returns the section addressing this shift.
func (s Shift) Section() Section {
	return Section(s.Key())
}

// ParseShift accepts "I", "2", "shiftIII" and similar spellings.
func ParseShift(v string) (Shift, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "i", "1", "shifti":
		return ShiftI, nil
	case "ii", "2", "shiftii":
		return ShiftII, nil
	case "iii", "3", "shiftiii":
		return ShiftIII, nil
	}
	return 0, fmt.Errorf("ledger: unknown shift %q", v)
}

// Section names a sub-tree of a table: a shift, the cross-shift total, or a
// table-level key.
type Section string

const (
	// SectionTotal holds cross-shift totals.
	SectionTotal Section = "total"
	// SectionTable holds table-level fields that belong to no shift.
	SectionTable Section = "table"
)

// Shift reports the shift this section addresses, if any.
func (s Section) Shift() (Shift, bool) {
	for _, sh := range Shifts() {
		if sh.Key() == string(s) {
			return sh, true
		}
	}
	return 0, false
}

// FieldPath addresses a scalar, a sequence row, or a single cell of an
// object-layout sequence row. Index is -1 for scalars.
type FieldPath struct {
	Section Section
	Field   string
	Index   int
	Column  string
}

// ScalarPath addresses a write-once scalar.
func ScalarPath(section Section, field string) FieldPath {
	return FieldPath{Section: section, Field: field, Index: -1}
}

// SeqPath addresses row i of a sequence field.
func SeqPath(section Section, field string, i int) FieldPath {
	return FieldPath{Section: section, Field: field, Index: i}
}

// CellPath addresses one column of row i of an object-layout sequence.
func CellPath(section Section, field string, i int, column string) FieldPath {
	return FieldPath{Section: section, Field: field, Index: i, Column: column}
}

// IsScalar reports whether p addresses a scalar.
func (p FieldPath) IsScalar() bool { return p.Index < 0 }

// Row strips the column, leaving the row-level path.
func (p FieldPath) Row() FieldPath {
	p.Column = ""
	return p
}

func (p FieldPath) String() string {
	var b strings.Builder
	b.WriteString(string(p.Section))
	b.WriteByte('.')
	b.WriteString(p.Field)
	if p.Index >= 0 {
		b.WriteByte('[')
		b.WriteString(strconv.Itoa(p.Index))
		b.WriteByte(']')
		if p.Column != "" {
			b.WriteByte('.')
			b.WriteString(p.Column)
		}
	}
	return b.String()
}

// ParsePath parses the string form produced by FieldPath.String.
func ParsePath(s string) (FieldPath, error) {
	s = strings.TrimSpace(s)
	dot := strings.IndexByte(s, '.')
	if dot <= 0 || dot == len(s)-1 {
		return FieldPath{}, fmt.Errorf("ledger: malformed path %q", s)
	}
	p := FieldPath{Section: Section(s[:dot]), Index: -1}
	rest := s[dot+1:]
	open := strings.IndexByte(rest, '[')
	if open < 0 {
		if strings.ContainsAny(rest, "].") {
			return FieldPath{}, fmt.Errorf("ledger: malformed path %q", s)
		}
		p.Field = rest
		return p, nil
	}
	shut := strings.IndexByte(rest, ']')
	if open == 0 || shut < open {
		return FieldPath{}, fmt.Errorf("ledger: malformed path %q", s)
	}
	p.Field = rest[:open]
	idx, err := strconv.Atoi(rest[open+1 : shut])
	if err != nil || idx < 0 {
		return FieldPath{}, fmt.Errorf("ledger: malformed index in %q", s)
	}
	p.Index = idx
	tail := rest[shut+1:]
	switch {
	case tail == "":
	case strings.HasPrefix(tail, ".") && len(tail) > 1 && !strings.ContainsAny(tail[1:], ".[]"):
		p.Column = tail[1:]
	default:
		return FieldPath{}, fmt.Errorf("ledger: malformed path %q", s)
	}
	return p, nil
}
