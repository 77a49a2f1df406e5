package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Layout selects how a sequence is stored on the wire.
type Layout int

const (
	// Columnar stores one array per column; index i across the arrays is row i.
	Columnar Layout = iota
	// Objects stores a single array of objects, one per row.
	Objects
)

// Scalar is a write-once field.
type Scalar struct {
	Name string
	// Wire is the location of the value below the section in the stored
	// document. Defaults to []string{Name}.
	Wire []string
}

// Column is one cell of a sequence row.
type Column struct {
	Name string
	// Wire is relative to the section for Columnar sequences and relative to
	// the row object for Objects sequences. Defaults to []string{Name}.
	Wire []string
}

// Sequence is an append-only list of rows. A sequence with several columns is
// an aligned row group: its columns always grow together.
type Sequence struct {
	Name    string
	Layout  Layout
	Columns []Column
	// Wire locates the row array for Objects sequences.
	Wire []string
	// Tag, when set, is the key of the running sequence number stamped on every
	// new Objects row.
	Tag string
}

// SectionSpec lists the fields of one section of a table.
type SectionSpec struct {
	Section   Section
	Scalars   []Scalar
	Sequences []Sequence
}

// Table is the schema of one independently submitted table of a workflow.
type Table struct {
	Num      int
	Name     string
	Title    string
	Sections []SectionSpec

	refs map[string]fieldRef
}

type refKind int

const (
	refScalar refKind = iota
	refColumn
	refEntries
)

type fieldRef struct {
	kind    refKind
	section *SectionSpec
	scalar  *Scalar
	seq     *Sequence
	col     int
}

// ErrInvalidSchema is returned by NewTable for inconsistent table definitions.
var ErrInvalidSchema = errors.New("ledger: invalid table schema")

// NewTable validates the table definition and indexes its fields.
func NewTable(num int, name, title string, sections ...SectionSpec) (*Table, error) {
	t := &Table{Num: num, Name: name, Title: title, Sections: sections}
	if err := t.index(); err != nil {
		return nil, err
	}
	return t, nil
}

// MustTable is NewTable for package-level schema definitions.
func MustTable(num int, name, title string, sections ...SectionSpec) *Table {
	t, err := NewTable(num, name, title, sections...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) index() error {
	if t.Num <= 0 {
		return fmt.Errorf("%w: table number must be positive", ErrInvalidSchema)
	}
	t.refs = make(map[string]fieldRef)
	seen := make(map[Section]bool)
	add := func(key string, ref fieldRef) error {
		if _, dup := t.refs[key]; dup {
			return fmt.Errorf("%w: duplicate field %q in table %d", ErrInvalidSchema, key, t.Num)
		}
		t.refs[key] = ref
		return nil
	}
	for si := range t.Sections {
		sec := &t.Sections[si]
		if strings.TrimSpace(string(sec.Section)) == "" || strings.ContainsAny(string(sec.Section), ".[]") {
			return fmt.Errorf("%w: bad section name %q", ErrInvalidSchema, sec.Section)
		}
		if seen[sec.Section] {
			return fmt.Errorf("%w: duplicate section %q", ErrInvalidSchema, sec.Section)
		}
		seen[sec.Section] = true
		for i := range sec.Scalars {
			sc := &sec.Scalars[i]
			if len(sc.Wire) == 0 {
				sc.Wire = []string{sc.Name}
			}
			if err := add(fieldKey(sec.Section, sc.Name), fieldRef{kind: refScalar, section: sec, scalar: sc}); err != nil {
				return err
			}
		}
		for i := range sec.Sequences {
			seq := &sec.Sequences[i]
			if len(seq.Columns) == 0 {
				return fmt.Errorf("%w: sequence %s.%s has no columns", ErrInvalidSchema, sec.Section, seq.Name)
			}
			for c := range seq.Columns {
				if len(seq.Columns[c].Wire) == 0 {
					seq.Columns[c].Wire = []string{seq.Columns[c].Name}
				}
			}
			switch seq.Layout {
			case Columnar:
				for c := range seq.Columns {
					if err := add(fieldKey(sec.Section, seq.Columns[c].Name), fieldRef{kind: refColumn, section: sec, seq: seq, col: c}); err != nil {
						return err
					}
				}
			case Objects:
				if len(seq.Wire) == 0 {
					seq.Wire = []string{seq.Name}
				}
				if err := add(fieldKey(sec.Section, seq.Name), fieldRef{kind: refEntries, section: sec, seq: seq, col: -1}); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%w: unknown layout for %s.%s", ErrInvalidSchema, sec.Section, seq.Name)
			}
		}
	}
	return nil
}

func fieldKey(section Section, name string) string {
	return string(section) + "." + name
}

func (t *Table) resolve(p FieldPath) (fieldRef, bool) {
	ref, ok := t.refs[fieldKey(p.Section, p.Field)]
	if !ok {
		return fieldRef{}, false
	}
	switch ref.kind {
	case refScalar:
		return ref, p.IsScalar()
	case refColumn:
		return ref, !p.IsScalar() && p.Column == ""
	case refEntries:
		if p.IsScalar() {
			return fieldRef{}, false
		}
		if p.Column == "" {
			return ref, true
		}
		for i, c := range ref.seq.Columns {
			if c.Name == p.Column {
				ref.col = i
				return ref, true
			}
		}
	}
	return fieldRef{}, false
}

// sequenceFor finds the sequence addressed by p, which may name the sequence
// itself or one of its columns.
func (t *Table) sequenceFor(p FieldPath) (*SectionSpec, *Sequence, bool) {
	if ref, ok := t.refs[fieldKey(p.Section, p.Field)]; ok && ref.seq != nil {
		return ref.section, ref.seq, true
	}
	for si := range t.Sections {
		sec := &t.Sections[si]
		if sec.Section != p.Section {
			continue
		}
		for i := range sec.Sequences {
			if sec.Sequences[i].Name == p.Field {
				return sec, &sec.Sequences[i], true
			}
		}
	}
	return nil, nil, false
}

// ScalarPaths lists every scalar path of the table in schema order.
func (t *Table) ScalarPaths() []FieldPath {
	var out []FieldPath
	for _, sec := range t.Sections {
		for _, sc := range sec.Scalars {
			out = append(out, ScalarPath(sec.Section, sc.Name))
		}
	}
	return out
}

// cellPath is the lock-map path of row i, column c of seq.
func cellPath(section Section, seq *Sequence, i, c int) FieldPath {
	if seq.Layout == Objects {
		return SeqPath(section, seq.Name, i)
	}
	return SeqPath(section, seq.Columns[c].Name, i)
}

// editPath is the path an operator uses to edit row i, column c of seq.
func editPath(section Section, seq *Sequence, i, c int) FieldPath {
	if seq.Layout == Objects {
		return CellPath(section, seq.Name, i, seq.Columns[c].Name)
	}
	return SeqPath(section, seq.Columns[c].Name, i)
}

// ShiftSections replicates the same fields into the three shift sections.
func ShiftSections(scalars []Scalar, sequences []Sequence) []SectionSpec {
	out := make([]SectionSpec, 0, 3)
	for _, sh := range Shifts() {
		out = append(out, SectionSpec{
			Section:   sh.Section(),
			Scalars:   append([]Scalar(nil), scalars...),
			Sequences: cloneSequences(sequences),
		})
	}
	return out
}

func cloneSequences(in []Sequence) []Sequence {
	out := make([]Sequence, len(in))
	for i, s := range in {
		s.Columns = append([]Column(nil), s.Columns...)
		s.Wire = append([]string(nil), s.Wire...)
		out[i] = s
	}
	return out
}

// Scalars builds write-once scalars stored under their own names.
func Scalars(names ...string) []Scalar {
	out := make([]Scalar, len(names))
	for i, n := range names {
		out[i] = Scalar{Name: n}
	}
	return out
}

// Lists builds independent single-column sequences stored under their own
// names.
func Lists(names ...string) []Sequence {
	out := make([]Sequence, len(names))
	for i, n := range names {
		out[i] = Sequence{Name: n, Columns: []Column{{Name: n}}}
	}
	return out
}

// Wire splits a dotted wire location such as "mixno.start".
func Wire(dotted string) []string {
	return strings.Split(dotted, ".")
}
